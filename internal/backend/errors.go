package backend

import (
	"errors"
	"strings"

	"github.com/lightray22/andromeda-desktop-clients-sub001/internal/aerrors"
)

// classify maps an {ok:false, code,
// message} envelope maps to the most specific taxonomy sentinel the message
// text identifies, falling back to a generic APIError.
func classify(code int, message string) error {
	switch code {
	case 400:
		switch {
		case strings.Contains(message, "FILESYSTEM_MISMATCH"), strings.Contains(message, "STORAGE_FOLDERS_UNSUPPORTED"):
			return aerrors.New(code, message, aerrors.ErrUnsupported)
		case strings.Contains(message, "ACCOUNT_CRYPTO_NOT_UNLOCKED"):
			return aerrors.New(code, message, aerrors.ErrDenied)
		}
	case 403:
		switch {
		case strings.Contains(message, "AUTHENTICATION_FAILED"):
			return aerrors.New(code, message, aerrors.ErrAuthFailed)
		case strings.Contains(message, "TWOFACTOR_REQUIRED"):
			return aerrors.New(code, message, aerrors.ErrTwoFactorRequired)
		case strings.Contains(message, "READ_ONLY_DATABASE"), strings.Contains(message, "READ_ONLY_FILESYSTEM"):
			return aerrors.New(code, message, aerrors.ErrReadOnly)
		default:
			return aerrors.New(code, message, aerrors.ErrDenied)
		}
	case 404:
		return aerrors.New(code, message, aerrors.ErrNotFound)
	}
	return aerrors.New(code, message, nil)
}

// isNotFound reports whether err classifies as "not found", used by
// DeleteFile/DeleteFolder to swallow the error.
func isNotFound(err error) bool {
	return errors.Is(err, aerrors.ErrNotFound)
}
