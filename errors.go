package mirnade

import "errors"

// Failure kinds surfaced by the pipeline. Every stage wraps one of these with
// %w so that callers can test with errors.Is.
var (
	ErrDatasetNotFound    = errors.New("dataset not found")
	ErrDatasetFormat      = errors.New("dataset format error")
	ErrInsufficientGroups = errors.New("fewer than two groups present")
	ErrDegenerateDesign   = errors.New("design matrix is rank deficient")
	ErrEmptyGroup         = errors.New("column group is empty")
	ErrAnnotationQuery    = errors.New("annotation query failed")
	ErrEmptyResultSet     = errors.New("empty result set")
)

// transient marks an error as worth retrying.
type transient struct {
	err error
}

func (t transient) Error() string { return t.err.Error() }
func (t transient) Unwrap() error { return t.err }

// Transient wraps err so that Retry will attempt the call again. A nil err
// stays nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return transient{err: err}
}

// IsTransient reports whether err (or anything it wraps) was marked with
// Transient.
func IsTransient(err error) bool {
	var t transient
	return errors.As(err, &t)
}
