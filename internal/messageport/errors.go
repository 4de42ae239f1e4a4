package messageport

import (
	"github.com/pkg/errors"

	"github.com/Dicklesworthstone/wrt_device_api/internal/errs"
	"github.com/Dicklesworthstone/wrt_device_api/internal/native"
)

// errorTable maps the result codes of one native operation to error kinds.
// Codes missing from a table are platform errors.
type errorTable map[native.Errno]errs.Kind

var (
	registerErrors = errorTable{
		native.ErrInvalidParameter:    errs.InvalidArgument,
		native.ErrOutOfMemory:         errs.Platform,
		native.ErrIO:                  errs.Platform,
		native.ErrResourceUnavailable: errs.Platform,
	}

	checkRemoteErrors = errorTable{
		native.ErrInvalidParameter:    errs.InvalidArgument,
		native.ErrPortNotFound:        errs.NotFound,
		native.ErrCertificateNotMatch: errs.WrongState,
		native.ErrOutOfMemory:         errs.Platform,
		native.ErrIO:                  errs.Platform,
	}

	sendErrors = errorTable{
		native.ErrInvalidParameter:    errs.InvalidArgument,
		native.ErrOutOfMemory:         errs.Platform,
		native.ErrIO:                  errs.Platform,
		native.ErrPortNotFound:        errs.NotFound,
		native.ErrCertificateNotMatch: errs.WrongState,
		native.ErrMaxExceeded:         errs.OutOfRange,
	}
)

func (t errorTable) wrap(err error, format string, args ...interface{}) *errs.Error {
	kind := errs.Platform
	var code native.Errno
	if errors.As(err, &code) {
		if k, ok := t[code]; ok {
			kind = k
		}
	}
	return errs.Wrap(err, kind, format, args...)
}
