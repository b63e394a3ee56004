package nativefs

import (
	"io/fs"
	"syscall"

	"github.com/pkg/errors"
)

// Error codes passed as the first completion argument of every fs command.
const (
	NoError                = 0
	ErrUnknown             = 1
	ErrInvalidParams       = 2
	ErrNotFound            = 3
	ErrCantRead            = 4
	ErrUnsupportedEncoding = 5
	ErrCantWrite           = 6
	ErrOutOfSpace          = 7
	ErrNotFile             = 8
	ErrNotDirectory        = 9
)

var (
	errInvalidParams       = errors.New("invalid parameters")
	errUnsupportedEncoding = errors.New("unsupported encoding")
	errNotFile             = errors.New("not a file")
	errIsDirectory         = errors.New("is a directory")
)

type access int

const (
	reading access = iota
	writing
)

// codeFor maps an error to its wire code. Permission failures report
// ErrCantRead or ErrCantWrite depending on the operation.
func codeFor(err error, mode access) int {
	if err == nil {
		return NoError
	}
	cause := errors.Cause(err)
	switch {
	case errors.Is(cause, errInvalidParams):
		return ErrInvalidParams
	case errors.Is(cause, errUnsupportedEncoding):
		return ErrUnsupportedEncoding
	case errors.Is(cause, errNotFile):
		return ErrNotFile
	case errors.Is(cause, syscall.ENOTDIR):
		return ErrNotDirectory
	case errors.Is(cause, fs.ErrNotExist):
		return ErrNotFound
	case errors.Is(cause, syscall.ENOSPC):
		return ErrOutOfSpace
	case errors.Is(cause, syscall.EROFS):
		return ErrCantWrite
	case errors.Is(cause, fs.ErrPermission), errors.Is(cause, syscall.EISDIR), errors.Is(cause, errIsDirectory):
		if mode == writing {
			return ErrCantWrite
		}
		return ErrCantRead
	default:
		return ErrUnknown
	}
}
