// Package responsewriter wraps the response writer of a request so that
// middlewares can see what the handler wrote.
package responsewriter

import (
	"net/http"
)

// Recorder remembers the status code and body size written through it.
type Recorder struct {
	http.ResponseWriter

	status  int
	written int64
}

func Wrap(w http.ResponseWriter) *Recorder {
	if rec, ok := w.(*Recorder); ok {
		return rec
	}

	return &Recorder{ResponseWriter: w}
}

func (r *Recorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *Recorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}

	n, err := r.ResponseWriter.Write(b)
	r.written += int64(n)

	return n, err
}

// Status returns the status code sent, http.StatusOK if the handler wrote
// nothing at all.
func (r *Recorder) Status() int {
	if r.status == 0 {
		return http.StatusOK
	}

	return r.status
}

func (r *Recorder) Written() int64 {
	return r.written
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (r *Recorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
