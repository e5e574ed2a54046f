package identity

// None is the value of a successful operation that produces nothing.
type None struct{}

// Result is the outcome of a backend call: either a value or an *Error.
type Result[T any] struct {
	value T
	err   *Error
}

func Ok[T any](value T) Result[T] {
	return Result[T]{value: value}
}

// Fail builds a failed result. A nil err is replaced by an ErrorKindUnknown error
// so a failed result can never look successful.
func Fail[T any](err *Error) Result[T] {
	if err == nil {
		err = NewError(ErrorKindUnknown, "unknown error")
	}

	return Result[T]{err: err}
}

func (r Result[T]) IsOk() bool {
	return r.err == nil
}

// Value returns the success value, or the zero value of T for a failure.
func (r Result[T]) Value() T {
	return r.value
}

// Err returns the failure, or nil for a success.
func (r Result[T]) Err() *Error {
	return r.err
}

// Unwrap converts the result into the usual (value, error) pair.
func (r Result[T]) Unwrap() (T, error) {
	if r.err != nil {
		var zero T
		return zero, r.err
	}

	return r.value, nil
}
