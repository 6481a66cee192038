package ctxdata

import "errors"

var (
	// ErrNotReady is returned by the Handler getters before Process has completed.
	ErrNotReady = errors.New("ctxdata: data not processed")

	// ErrNotObject is returned by a Loader when a data file does not hold a
	// top-level mapping.
	ErrNotObject = errors.New("ctxdata: data file is not a mapping")
)
