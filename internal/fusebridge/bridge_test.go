package fusebridge

import (
	"fmt"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lightray22/andromeda-desktop-clients-sub001/internal/aerrors"
)

func TestErrnoMapping(t *testing.T) {
	for _, tc := range []struct {
		err  error
		want syscall.Errno
	}{
		{nil, 0},
		{aerrors.ErrNotFound, syscall.ENOENT},
		{aerrors.ErrNotFolder, syscall.ENOTDIR},
		{aerrors.ErrNotFile, syscall.EISDIR},
		{aerrors.ErrDuplicateItem, syscall.EEXIST},
		{aerrors.ErrReadOnly, syscall.EROFS},
		{aerrors.ErrDenied, syscall.EACCES},
		{aerrors.ErrModify, syscall.EACCES},
		{aerrors.ErrAuthFailed, syscall.EACCES},
		{aerrors.ErrWriteType, syscall.ENOTSUP},
		{aerrors.ErrItemBusy, syscall.EBUSY},
		{aerrors.ErrDeleteRoot, syscall.EBUSY},
		{aerrors.ErrCacheCapacity, syscall.ENOMEM},
		{aerrors.ErrConnection, syscall.EIO},
		{aerrors.ErrMalformedResponse, syscall.EIO},
		{fmt.Errorf("anything else"), syscall.EIO},
	} {
		assert.Equal(t, tc.want, errno(tc.err), "%v", tc.err)
	}
}

func TestErrnoUnwrapsWrappedErrors(t *testing.T) {
	wrapped := fmt.Errorf("context: %w", aerrors.ErrNotFound)
	assert.Equal(t, syscall.ENOENT, errno(wrapped))

	classified := aerrors.New(403, "READ_ONLY_FILESYSTEM", aerrors.ErrReadOnly)
	assert.Equal(t, syscall.EROFS, errno(classified))
}
