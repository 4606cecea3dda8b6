// Package fuseadapter exposes a *blockfs.Filesystem as a mountable FUSE
// tree, built on the go-fuse/v2 InodeEmbedder API the way that library's
// own loopback example is (fs/loopback.go): one node type per path,
// re-resolved through the facade on every callback rather than cached
// open file descriptors.
//
// The teacher's own FUSE glue (inode_fuse.go) targets go-fuse's older
// low-level RawFileSystem surface and a read-only image; this format is
// mutable, so the adapter is grounded on the modern high-level package
// instead, adapted to call through blockfs's path-based operations.
package fuseadapter

import (
	"context"
	"syscall"

	"github.com/KarpelesLab/blockfs"
	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"golang.org/x/sync/semaphore"
)

// Root owns the shared facade and the semaphore that serializes FUSE
// callbacks onto it. blockfs.Filesystem already guards itself with an
// InvariantMutex, so sem isn't required for correctness, but it keeps
// concurrent kernel callbacks from thrashing the facade's single handle
// tables (cache slots, fid/did storage) under load.
type Root struct {
	fsys *blockfs.Filesystem
	sem  *semaphore.Weighted
}

// NewRoot wraps fsys (already Init'd or Loaded) for mounting.
func NewRoot(fsys *blockfs.Filesystem) *Root {
	return &Root{fsys: fsys, sem: semaphore.NewWeighted(1)}
}

// Inode returns the root directory node to pass to fs.Mount.
func (r *Root) Inode() fs.InodeEmbedder {
	return &node{root: r, path: "/"}
}

// node is one path in the tree. Unlike the loopback example it carries no
// open descriptor of its own: every call re-resolves path through the
// facade, which is how blockfs.Filesystem's path-oriented API already
// works (Stat/Open/Opendir all take a path, not a handle).
type node struct {
	fs.Inode

	root *Root
	path string
}

var (
	_ fs.NodeLookuper  = (*node)(nil)
	_ fs.NodeReaddirer = (*node)(nil)
	_ fs.NodeGetattrer = (*node)(nil)
	_ fs.NodeOpener    = (*node)(nil)
	_ fs.NodeOpendirer = (*node)(nil)
	_ fs.NodeCreater   = (*node)(nil)
	_ fs.NodeMkdirer   = (*node)(nil)
	_ fs.NodeUnlinker  = (*node)(nil)
	_ fs.NodeRmdirer   = (*node)(nil)
	_ fs.NodeLinker    = (*node)(nil)
)

func (r *Root) newNode(path string) *node {
	return &node{root: r, path: path}
}

func (n *node) child(name string) string {
	if n.path == "/" {
		return "/" + name
	}
	return n.path + "/" + name
}

func (n *node) lock(ctx context.Context) {
	n.root.sem.Acquire(ctx, 1)
}

func (n *node) unlock() {
	n.root.sem.Release(1)
}

// toErrno maps the facade's closed Errno set to a kernel-facing errno, the
// same role nodefs.ToErrno/fuse.ToStatus plays for loopback's raw syscall
// errors — there's no os.PathError to unwrap here, just a switch over the
// facade's own codes.
func toErrno(err error) syscall.Errno {
	if err == nil {
		return 0
	}
	switch err {
	case blockfs.EDIR_FILE_NOT_FOUND:
		return syscall.ENOENT
	case blockfs.EDIR_FILE_EXISTS:
		return syscall.EEXIST
	case blockfs.EDIR_NOT_A_DIR:
		return syscall.ENOTDIR
	case blockfs.EDIR_NOT_EMPTY:
		return syscall.ENOTEMPTY
	case blockfs.EDIR_INVALID_PATH:
		return syscall.EINVAL
	case blockfs.EFIL_WRONG_TYPE:
		return syscall.EISDIR
	case blockfs.EFIL_INVALID_POS, blockfs.EFIL_INVALID_SECTOR:
		return syscall.EINVAL
	case blockfs.EFIL_TOO_BIG:
		return syscall.EFBIG
	case blockfs.EOUT_OF_BLOCKS, blockfs.EOUT_OF_INODES:
		return syscall.ENOSPC
	case blockfs.EFID_INVALID_ID, blockfs.EDID_INVALID_ID:
		return syscall.EBADF
	default:
		return syscall.EIO
	}
}

// unixTypeBits returns the raw S_IFxxx bits FUSE expects, distinct from
// modetype.go's io/fs.FileMode bits (Go's own abstraction, used by
// cmd/blockfsctl for human-readable listing but not wire-compatible with
// the kernel's stat mode field).
func unixTypeBits(t blockfs.FileType) uint32 {
	switch t {
	case blockfs.FileTypeDirectory:
		return syscall.S_IFDIR
	case blockfs.FileTypeRegular:
		return syscall.S_IFREG
	default:
		return syscall.S_IFREG
	}
}

func unixMode(attr blockfs.Attr) uint32 {
	return unixTypeBits(attr.Inode.FileType) | uint32(attr.Inode.Perm&0777)
}

func fillAttr(out *fuse.Attr, attr blockfs.Attr) {
	out.Ino = uint64(attr.Ino)
	out.Size = attr.Size
	out.Mode = unixMode(attr)
	out.Nlink = attr.Inode.LinksCount
	out.Atime = uint64(attr.Inode.AccessTime)
	out.Mtime = uint64(attr.Inode.ModifyTime)
	out.Ctime = uint64(attr.Inode.ChangeTime)
}

func stableAttr(attr blockfs.Attr) fs.StableAttr {
	return fs.StableAttr{
		Mode: unixMode(attr),
		Ino:  uint64(attr.Ino),
	}
}

func (n *node) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	n.lock(ctx)
	defer n.unlock()

	p := n.child(name)
	attr, err := n.root.fsys.Stat(p)
	if err != nil {
		return nil, toErrno(err)
	}
	fillAttr(&out.Attr, attr)
	child := n.root.newNode(p)
	return n.NewInode(ctx, child, stableAttr(attr)), 0
}

func (n *node) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	n.lock(ctx)
	defer n.unlock()

	attr, err := n.root.fsys.Stat(n.path)
	if err != nil {
		return toErrno(err)
	}
	fillAttr(&out.Attr, attr)
	return 0
}

func (n *node) Opendir(ctx context.Context) syscall.Errno {
	n.lock(ctx)
	defer n.unlock()

	attr, err := n.root.fsys.Stat(n.path)
	if err != nil {
		return toErrno(err)
	}
	if attr.Inode.FileType != blockfs.FileTypeDirectory {
		return syscall.ENOTDIR
	}
	return 0
}

func (n *node) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	n.lock(ctx)
	defer n.unlock()

	did, err := n.root.fsys.Opendir(n.path)
	if err != nil {
		return nil, toErrno(err)
	}
	defer n.root.fsys.Closedir(did)

	var entries []fuse.DirEntry
	for {
		ent, ok, err := n.root.fsys.Readdir(did)
		if err != nil {
			return nil, toErrno(err)
		}
		if !ok {
			break
		}
		if ent.Name == "." || ent.Name == ".." {
			continue
		}
		entries = append(entries, fuse.DirEntry{
			Name: ent.Name,
			Ino:  uint64(ent.Inode),
			Mode: unixTypeBits(ent.Type),
		})
	}
	return fs.NewListDirStream(entries), 0
}

func (n *node) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	n.lock(ctx)
	defer n.unlock()

	fid, err := n.root.fsys.Open(n.path)
	if err != nil {
		return nil, 0, toErrno(err)
	}
	return &fileHandle{root: n.root, fid: fid}, 0, 0
}

func (n *node) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*fs.Inode, fs.FileHandle, uint32, syscall.Errno) {
	n.lock(ctx)
	defer n.unlock()

	p := n.child(name)
	if err := n.root.fsys.Create(p); err != nil {
		return nil, nil, 0, toErrno(err)
	}
	attr, err := n.root.fsys.Stat(p)
	if err != nil {
		return nil, nil, 0, toErrno(err)
	}
	fid, err := n.root.fsys.Open(p)
	if err != nil {
		return nil, nil, 0, toErrno(err)
	}
	fillAttr(&out.Attr, attr)
	child := n.root.newNode(p)
	ch := n.NewInode(ctx, child, stableAttr(attr))
	return ch, &fileHandle{root: n.root, fid: fid}, 0, 0
}

func (n *node) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	n.lock(ctx)
	defer n.unlock()

	p := n.child(name)
	if err := n.root.fsys.Mkdir(p); err != nil {
		return nil, toErrno(err)
	}
	attr, err := n.root.fsys.Stat(p)
	if err != nil {
		return nil, toErrno(err)
	}
	fillAttr(&out.Attr, attr)
	child := n.root.newNode(p)
	return n.NewInode(ctx, child, stableAttr(attr)), 0
}

func (n *node) Unlink(ctx context.Context, name string) syscall.Errno {
	n.lock(ctx)
	defer n.unlock()

	return toErrno(n.root.fsys.Unlink(n.child(name)))
}

func (n *node) Rmdir(ctx context.Context, name string) syscall.Errno {
	n.lock(ctx)
	defer n.unlock()

	return toErrno(n.root.fsys.Rmdir(n.child(name)))
}

func (n *node) Link(ctx context.Context, target fs.InodeEmbedder, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	n.lock(ctx)
	defer n.unlock()

	tnode, ok := target.(*node)
	if !ok {
		return nil, syscall.EXDEV
	}
	p := n.child(name)
	if err := n.root.fsys.Link(tnode.path, p); err != nil {
		return nil, toErrno(err)
	}
	attr, err := n.root.fsys.Stat(p)
	if err != nil {
		return nil, toErrno(err)
	}
	fillAttr(&out.Attr, attr)
	child := n.root.newNode(p)
	return n.NewInode(ctx, child, stableAttr(attr)), 0
}

// fileHandle wraps an open fid, translating FUSE's offset-addressed
// Read/Write into the facade's cursor-addressed Seek+Read/Write, the same
// adaptation the teacher's inode_fuse.go performs between fuse.ReadIn and
// the squashfs reader's own io.ReaderAt.
type fileHandle struct {
	root *Root
	fid  uint32
}

var (
	_ fs.FileReader   = (*fileHandle)(nil)
	_ fs.FileWriter   = (*fileHandle)(nil)
	_ fs.FileReleaser = (*fileHandle)(nil)
)

func (h *fileHandle) Read(ctx context.Context, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	h.root.sem.Acquire(ctx, 1)
	defer h.root.sem.Release(1)

	if err := h.root.fsys.Seek(h.fid, uint64(off)); err != nil {
		return nil, toErrno(err)
	}
	n, err := h.root.fsys.Read(h.fid, dest)
	if err != nil && n == 0 {
		return nil, toErrno(err)
	}
	return fuse.ReadResultData(dest[:n]), 0
}

func (h *fileHandle) Write(ctx context.Context, data []byte, off int64) (uint32, syscall.Errno) {
	h.root.sem.Acquire(ctx, 1)
	defer h.root.sem.Release(1)

	if err := h.root.fsys.Seek(h.fid, uint64(off)); err != nil {
		return 0, toErrno(err)
	}
	n, err := h.root.fsys.Write(h.fid, data)
	if err != nil {
		return uint32(n), toErrno(err)
	}
	return uint32(n), 0
}

func (h *fileHandle) Release(ctx context.Context) syscall.Errno {
	h.root.sem.Acquire(ctx, 1)
	defer h.root.sem.Release(1)

	return toErrno(h.root.fsys.Close(h.fid))
}
