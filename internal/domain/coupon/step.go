package coupon

// stepKind tags the outcome of one resolution step.
type stepKind uint8

const (
	// stepOK carries a value.
	stepOK stepKind = iota
	// stepSkip means the step produced nothing usable and the caller moves
	// on to its next option.
	stepSkip
	// stepFatal ends the resolution with err.
	stepFatal
)

// step is the result of a resolution step: a value, a reason to skip, or a
// fatal error.
type step[T any] struct {
	kind  stepKind
	value T
	err   error
}

func ok[T any](v T) step[T] {
	return step[T]{kind: stepOK, value: v}
}

func skip[T any](reason error) step[T] {
	return step[T]{kind: stepSkip, err: reason}
}

func fatal[T any](err error) step[T] {
	return step[T]{kind: stepFatal, err: err}
}
