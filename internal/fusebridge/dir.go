package fusebridge

import (
	"context"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/lightray22/andromeda-desktop-clients-sub001/internal/aerrors"
	"github.com/lightray22/andromeda-desktop-clients-sub001/internal/debug"
	"github.com/lightray22/andromeda-desktop-clients-sub001/internal/vfs"
)

// dirNode wraps a Folder item.
type dirNode struct {
	node
}

var (
	_ fs.NodeGetattrer = (*dirNode)(nil)
	_ fs.NodeLookuper  = (*dirNode)(nil)
	_ fs.NodeReaddirer = (*dirNode)(nil)
	_ fs.NodeCreater   = (*dirNode)(nil)
	_ fs.NodeMkdirer   = (*dirNode)(nil)
	_ fs.NodeUnlinker  = (*dirNode)(nil)
	_ fs.NodeRmdirer   = (*dirNode)(nil)
	_ fs.NodeRenamer   = (*dirNode)(nil)
	_ fs.NodeSetattrer = (*dirNode)(nil)
)

func (d *dirNode) folder() vfs.Folder {
	return d.item.(vfs.Folder)
}

// mutable asserts the folder accepts structural changes; special folders
// (SuperRoot, Filesystems, Adopted) fail here with EACCES.
func (d *dirNode) mutable() (vfs.Mutable, syscall.Errno) {
	m, ok := d.item.(vfs.Mutable)
	if !ok {
		return nil, errno(aerrors.ErrModify)
	}
	return m, 0
}

func (d *dirNode) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	d.fillAttr(&out.Attr)
	return 0
}

func (d *dirNode) newChildInode(ctx context.Context, child vfs.Item) *fs.Inode {
	if file, ok := child.(*vfs.File); ok {
		fn := &fileNode{node: node{b: d.b, item: file}}
		return d.NewInode(ctx, fn, fs.StableAttr{Mode: syscall.S_IFREG})
	}
	dn := &dirNode{node: node{b: d.b, item: child}}
	return d.NewInode(ctx, dn, fs.StableAttr{Mode: syscall.S_IFDIR})
}

func (d *dirNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	items, err := d.folder().GetItems(ctx)
	if err != nil {
		return nil, errno(err)
	}
	child, ok := items[name]
	if !ok {
		return nil, syscall.ENOENT
	}
	release := child.BorrowScope()
	defer release()

	inode := d.newChildInode(ctx, child)
	if file, ok := child.(*vfs.File); ok {
		out.Attr.Mode = syscall.S_IFREG | 0644
		out.Attr.Size = uint64(file.LocalSize())
	} else {
		out.Attr.Mode = syscall.S_IFDIR | 0755
	}
	return inode, 0
}

func (d *dirNode) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	items, err := d.folder().GetItems(ctx)
	if err != nil {
		return nil, errno(err)
	}
	entries := make([]fuse.DirEntry, 0, len(items))
	for name, item := range items {
		mode := uint32(syscall.S_IFDIR)
		if !item.IsFolder() {
			mode = syscall.S_IFREG
		}
		entries = append(entries, fuse.DirEntry{Name: name, Mode: mode})
	}
	return fs.NewListDirStream(entries), 0
}

func (d *dirNode) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*fs.Inode, fs.FileHandle, uint32, syscall.Errno) {
	m, errc := d.mutable()
	if errc != 0 {
		return nil, nil, 0, errc
	}
	file, err := m.CreateFile(ctx, name)
	if err != nil {
		return nil, nil, 0, errno(err)
	}
	inode := d.newChildInode(ctx, file)
	out.Attr.Mode = syscall.S_IFREG | 0644
	return inode, &fileHandle{file: file}, 0, 0
}

func (d *dirNode) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	m, errc := d.mutable()
	if errc != 0 {
		return nil, errc
	}
	folder, err := m.CreateFolder(ctx, name)
	if err != nil {
		return nil, errno(err)
	}
	inode := d.newChildInode(ctx, folder)
	out.Attr.Mode = syscall.S_IFDIR | 0755
	return inode, 0
}

func (d *dirNode) Unlink(ctx context.Context, name string) syscall.Errno {
	m, errc := d.mutable()
	if errc != 0 {
		return errc
	}
	return errno(m.DeleteItem(ctx, name))
}

func (d *dirNode) Rmdir(ctx context.Context, name string) syscall.Errno {
	m, errc := d.mutable()
	if errc != 0 {
		return errc
	}
	return errno(m.DeleteItem(ctx, name))
}

func (d *dirNode) Rename(ctx context.Context, name string, newParent fs.InodeEmbedder, newName string, flags uint32) syscall.Errno {
	m, errc := d.mutable()
	if errc != 0 {
		return errc
	}
	overwrite := flags&fuseRenameNoReplace == 0

	dest, ok := newParent.(*dirNode)
	if !ok {
		return syscall.ENOTDIR
	}
	if dest.item == d.item {
		return errno(m.RenameItem(ctx, name, newName, overwrite))
	}

	destFolder, ok := dest.item.(vfs.Folder)
	if !ok {
		return syscall.ENOTDIR
	}
	// A cross-folder rename with a name change renames in place first, then
	// moves, so the destination map never sees the old name.
	if name != newName {
		if err := m.RenameItem(ctx, name, newName, overwrite); err != nil {
			return errno(err)
		}
		name = newName
	}
	return errno(m.MoveItem(ctx, name, destFolder, overwrite))
}

// Setattr on a directory accepts chmod/chown as silent no-ops when
// configured and refuses them otherwise; other attributes are accepted
// without change.
func (d *dirNode) Setattr(ctx context.Context, f fs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	if errc := d.b.setattrPolicy(in); errc != 0 {
		return errc
	}
	d.fillAttr(&out.Attr)
	return 0
}

// fuseRenameNoReplace is RENAME_NOREPLACE from linux/fs.h; defined locally
// so the bridge builds on platforms whose syscall package lacks it.
const fuseRenameNoReplace = 0x1

// setattrPolicy applies the --no-chmod/--no-chown policy to a setattr
// request: configured ops are silently accepted, others are refused.
func (b *Bridge) setattrPolicy(in *fuse.SetAttrIn) syscall.Errno {
	if _, ok := in.GetMode(); ok && !b.cfg.NoChmod {
		return syscall.ENOTSUP
	}
	uid, uok := in.GetUID()
	gid, gok := in.GetGID()
	if (uok || gok) && !b.cfg.NoChown {
		debug.Debugf("fusebridge", "refusing chown to %d:%d", uid, gid)
		return syscall.ENOTSUP
	}
	return 0
}
