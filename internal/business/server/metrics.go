package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/openkcm/common-sdk/pkg/otlp"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	slogctx "github.com/veqryn/slog-context"

	"github.com/autoretech/backoffice/internal/config"
	"github.com/autoretech/backoffice/internal/middleware/responsewriter"
)

const (
	attrOutcome   = "outcome"
	attrStatus    = "status"
	attrAuthOp    = "auth.operation"
	unnamedRoute  = "unnamed"
	meterNameBase = "backoffice/"
)

// The instruments start as no-ops so handlers work without initMeters.
var (
	counter     metric.Int64Counter   = noop.Int64Counter{}
	hist        metric.Int64Histogram = noop.Int64Histogram{}
	authCounter metric.Int64Counter   = noop.Int64Counter{}
)

func initMeters(ctx context.Context, cfg *config.Config) error {
	meter := otel.Meter(
		meterNameBase+cfg.Application.Name,
		metric.WithInstrumentationVersion(otel.Version()),
		metric.WithInstrumentationAttributes(otlp.CreateAttributesFrom(cfg.Application)...),
	)

	var err error

	if counter, err = meter.Int64Counter("http.request_count",
		metric.WithDescription("Incoming request count"),
		metric.WithUnit("request"),
	); err != nil {
		return meterError(ctx, err, "http.request_count")
	}

	if hist, err = meter.Int64Histogram("http.duration",
		metric.WithDescription("Incoming end to end duration"),
		metric.WithUnit("milliseconds"),
	); err != nil {
		return meterError(ctx, err, "http.duration")
	}

	if authCounter, err = meter.Int64Counter("auth.operation_count",
		metric.WithDescription("Sign-in, sign-up, sign-out and callback attempts by outcome"),
		metric.WithUnit("operation"),
	); err != nil {
		return meterError(ctx, err, "auth.operation_count")
	}

	return nil
}

func meterError(ctx context.Context, err error, name string) error {
	return oops.In("HTTP Server").
		WithContext(ctx).
		Wrapf(err, "creating %s meter", name)
}

// recordAuth counts one auth operation with its outcome.
func recordAuth(ctx context.Context, operation, outcome string) {
	authCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrAuthOp, operation),
		attribute.String(attrOutcome, outcome),
	))
}

// newTraceMiddleware covers every named route with a span, request metrics
// and request-scoped log attributes.
func newTraceMiddleware(cfg *config.Config) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			operationID := routeName(r)
			traceAttrs := otlp.CreateAttributesFrom(cfg.Application, attribute.String(commoncfg.AttrOperation, operationID))
			tracer := otel.Tracer(operationID, trace.WithInstrumentationAttributes(traceAttrs...))

			ctx := slogctx.With(r.Context(),
				commoncfg.AttrRequestID, uuid.NewString(),
				commoncfg.AttrOperation, operationID,
			)

			parentCtx := otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(r.Header))

			ctx, span := tracer.Start(parentCtx, operationID+"-span", trace.WithAttributes(traceAttrs...))
			defer span.End()

			rec := responsewriter.Wrap(w)
			requestStartTime := time.Now()

			defer func() {
				elapsedTime := time.Since(requestStartTime)

				attrs := metric.WithAttributes(
					otlp.CreateAttributesFrom(cfg.Application,
						attribute.String("userAgent", r.UserAgent()),
						attribute.String(commoncfg.AttrOperation, operationID),
						attribute.Int(attrStatus, rec.Status()),
					)...,
				)

				counter.Add(ctx, 1, attrs)
				hist.Record(ctx, elapsedTime.Milliseconds(), attrs)
			}()

			slogctx.Debug(ctx, fmt.Sprintf("Processing %s request", operationID))
			next.ServeHTTP(rec, r.WithContext(ctx))
			slogctx.Debug(ctx, fmt.Sprintf("Finished %s request", operationID), "status", rec.Status())
		})
	}
}

func routeName(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if name := route.GetName(); name != "" {
			return name
		}
	}

	return unnamedRoute
}
