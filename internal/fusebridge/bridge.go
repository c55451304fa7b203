// Package fusebridge adapts the item tree to the kernel's filesystem
// interface via go-fuse. It is a thin translation layer: every callback
// maps 1:1 onto a tree or file operation, and every error maps onto a
// POSIX errno.
package fusebridge

import (
	"errors"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/lightray22/andromeda-desktop-clients-sub001/internal/aerrors"
	"github.com/lightray22/andromeda-desktop-clients-sub001/internal/config"
	"github.com/lightray22/andromeda-desktop-clients-sub001/internal/debug"
	"github.com/lightray22/andromeda-desktop-clients-sub001/internal/vfs"
)

// Bridge holds the per-mount state shared by every node.
type Bridge struct {
	mount *vfs.Mount
	cfg   config.Config
}

// Serve mounts the tree at mountpoint and returns the running server. The
// caller is responsible for calling server.Unmount and mount.Shutdown on
// teardown.
func Serve(mountpoint string, m *vfs.Mount, fuseOptions []string) (*fuse.Server, error) {
	b := &Bridge{mount: m, cfg: m.Config()}
	root := &dirNode{node: node{b: b, item: m.Root()}}

	timeout := time.Second
	opts := &fs.Options{
		AttrTimeout:  &timeout,
		EntryTimeout: &timeout,
		MountOptions: fuse.MountOptions{
			FsName:  "andromeda",
			Name:    "andromeda",
			Options: fuseOptions,
		},
	}
	server, err := fs.Mount(mountpoint, root, opts)
	if err != nil {
		return nil, err
	}
	debug.Infof("fusebridge", "mounted at %s", mountpoint)
	return server, nil
}

// node is the state embedded in both file and directory inodes.
type node struct {
	fs.Inode
	b    *Bridge
	item vfs.Item
}

func (n *node) fillAttr(out *fuse.Attr) {
	if file, ok := n.item.(*vfs.File); ok {
		out.Mode = syscall.S_IFREG | 0644
		out.Size = uint64(file.LocalSize())
	} else {
		out.Mode = syscall.S_IFDIR | 0755
	}
	mtime := n.item.Modified()
	ctime := n.item.Created()
	atime := n.item.Accessed()
	out.SetTimes(&atime, &mtime, &ctime)
}

// errno translates the error taxonomy into POSIX return codes.
func errno(err error) syscall.Errno {
	if err == nil {
		return 0
	}
	switch {
	case errors.Is(err, aerrors.ErrNotFound):
		return syscall.ENOENT
	case errors.Is(err, aerrors.ErrNotFolder):
		return syscall.ENOTDIR
	case errors.Is(err, aerrors.ErrNotFile):
		return syscall.EISDIR
	case errors.Is(err, aerrors.ErrDuplicateItem):
		return syscall.EEXIST
	case errors.Is(err, aerrors.ErrReadOnly):
		return syscall.EROFS
	case errors.Is(err, aerrors.ErrDenied), errors.Is(err, aerrors.ErrModify),
		errors.Is(err, aerrors.ErrAuthFailed), errors.Is(err, aerrors.ErrAuthRequired),
		errors.Is(err, aerrors.ErrTwoFactorRequired):
		return syscall.EACCES
	case errors.Is(err, aerrors.ErrWriteType):
		return syscall.ENOTSUP
	case errors.Is(err, aerrors.ErrItemBusy):
		return syscall.EBUSY
	case errors.Is(err, aerrors.ErrDeleteRoot):
		return syscall.EBUSY
	case errors.Is(err, aerrors.ErrCacheCapacity):
		return syscall.ENOMEM
	default:
		return syscall.EIO
	}
}
