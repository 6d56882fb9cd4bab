package hll

import "github.com/pkg/errors"

// The library surfaces two classes of failure.  ErrInvalidParameter covers
// range or form violations of the sketch parameters; ErrData covers every
// wire or state consistency failure (unknown schema version, truncated or
// padded bodies, descending explicit elements, incompatible unions).  Both
// are used as the cause of wrapped, site-specific errors, so callers should
// classify with IsInvalidParameter / IsDataException rather than comparing
// directly.
var (
	ErrInvalidParameter = errors.New("invalid parameter value")
	ErrData             = errors.New("data exception")
)

func invalidParameterf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidParameter, format, args...)
}

func dataExceptionf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrData, format, args...)
}

// IsInvalidParameter reports whether err was caused by a parameter range or
// form violation.
func IsInvalidParameter(err error) bool {
	return errors.Cause(err) == ErrInvalidParameter
}

// IsDataException reports whether err was caused by a wire or state
// consistency failure.
func IsDataException(err error) bool {
	return errors.Cause(err) == ErrData
}
