package fusebridge

import (
	"context"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/lightray22/andromeda-desktop-clients-sub001/internal/debug"
	"github.com/lightray22/andromeda-desktop-clients-sub001/internal/vfs"
)

// fileNode wraps a File item.
type fileNode struct {
	node
}

var (
	_ fs.NodeGetattrer = (*fileNode)(nil)
	_ fs.NodeOpener    = (*fileNode)(nil)
	_ fs.NodeSetattrer = (*fileNode)(nil)
)

func (n *fileNode) file() *vfs.File {
	return n.item.(*vfs.File)
}

func (n *fileNode) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	n.fillAttr(&out.Attr)
	return 0
}

func (n *fileNode) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	return &fileHandle{file: n.file()}, 0, 0
}

func (n *fileNode) Setattr(ctx context.Context, f fs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	if size, ok := in.GetSize(); ok {
		if err := n.file().Truncate(ctx, int64(size)); err != nil {
			return errno(err)
		}
	}
	if errc := n.b.setattrPolicy(in); errc != 0 {
		return errc
	}
	n.fillAttr(&out.Attr)
	return 0
}

// fileHandle is one open() of a file. All handles on the same file share
// the page cache; the handle itself is stateless.
type fileHandle struct {
	file *vfs.File
}

var (
	_ fs.FileReader   = (*fileHandle)(nil)
	_ fs.FileWriter   = (*fileHandle)(nil)
	_ fs.FileFlusher  = (*fileHandle)(nil)
	_ fs.FileFsyncer  = (*fileHandle)(nil)
	_ fs.FileReleaser = (*fileHandle)(nil)
)

func (h *fileHandle) Read(ctx context.Context, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	data, err := h.file.Read(ctx, off, int64(len(dest)))
	if err != nil {
		return nil, errno(err)
	}
	return fuse.ReadResultData(data), 0
}

func (h *fileHandle) Write(ctx context.Context, data []byte, off int64) (uint32, syscall.Errno) {
	if err := h.file.Write(ctx, off, data); err != nil {
		return 0, errno(err)
	}
	return uint32(len(data)), 0
}

func (h *fileHandle) Flush(ctx context.Context) syscall.Errno {
	return errno(h.file.Flush(ctx, false))
}

func (h *fileHandle) Fsync(ctx context.Context, flags uint32) syscall.Errno {
	return errno(h.file.Flush(ctx, false))
}

// Release flushes nothrow: a close() must not lose data silently, but it
// also cannot usefully report an error to the kernel.
func (h *fileHandle) Release(ctx context.Context) syscall.Errno {
	if err := h.file.Flush(ctx, true); err != nil {
		debug.Errorf("fusebridge", "release flush %q: %v", h.file.Name(), err)
	}
	return 0
}
