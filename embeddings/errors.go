package embeddings

import (
	"github.com/teranos/semcluster/errors"
)

var (
	// ErrModelUnavailable means the backend does not serve the model or cannot be reached
	ErrModelUnavailable = errors.New("model unavailable")

	// ErrEncoding means the backend answered but its output is unusable
	ErrEncoding = errors.New("encoding failed")
)

// modelUnavailable builds an error matching both ErrModelUnavailable and
// errors.ErrCollaboratorFailure
func modelUnavailable(cause error, format string, args ...interface{}) error {
	if cause == nil {
		cause = ErrModelUnavailable
	} else {
		cause = errors.Mark(cause, ErrModelUnavailable)
	}
	return errors.Mark(errors.Wrapf(cause, format, args...), errors.ErrCollaboratorFailure)
}

// encodingError builds an error matching both ErrEncoding and
// errors.ErrCollaboratorFailure
func encodingError(cause error, format string, args ...interface{}) error {
	if cause == nil {
		cause = ErrEncoding
	} else {
		cause = errors.Mark(cause, ErrEncoding)
	}
	return errors.Mark(errors.Wrapf(cause, format, args...), errors.ErrCollaboratorFailure)
}

// IsModelUnavailable reports whether err carries ErrModelUnavailable
func IsModelUnavailable(err error) bool {
	return err != nil && errors.Is(err, ErrModelUnavailable)
}

// IsEncodingError reports whether err carries ErrEncoding
func IsEncodingError(err error) bool {
	return err != nil && errors.Is(err, ErrEncoding)
}
