package blockfs

import (
	"encoding/binary"
	"io"
	"log"
	"strings"

	"github.com/jacobsa/syncutil"
	"github.com/jacobsa/timeutil"
)

// Filesystem is the facade described by original_source/src/fs/fs.{h,cpp}:
// it owns the backing image, the two bitmaps, the block device layer, and
// the open-handle tables, and is the only entry point mutating any of them.
type Filesystem struct {
	mu syncutil.InvariantMutex

	clock  timeutil.Clock
	logger *log.Logger

	disk disk
	dev  *device

	sb Superblock

	inodeMap *bitmap
	spaceMap *bitmap

	handles *handles
	cwd     uint32

	cacheCapacity int
	maxOpenFiles  int
	maxOpenDirs   int

	sbDirty       bool
	inodeMapDirty bool
	spaceMapDirty bool
}

// Option configures a Filesystem before Init/Load. Mirrors the teacher's
// functional-options pattern (options.go's Option, writer.go's WriterOption).
type Option func(*Filesystem)

// WithClock overrides the timestamp source (default timeutil.RealClock()),
// e.g. with a timeutil.SimulatedClock for deterministic timestamps.
func WithClock(c timeutil.Clock) Option {
	return func(fs *Filesystem) { fs.clock = c }
}

// WithLogger sets a diagnostic logger (default: discards everything).
// A nil logger also discards everything.
func WithLogger(l *log.Logger) Option {
	return func(fs *Filesystem) {
		if l == nil {
			l = discardLogger
		}
		fs.logger = l
	}
}

// WithCacheCapacity sets the block cache's slot count (default 64).
func WithCacheCapacity(n int) Option {
	return func(fs *Filesystem) { fs.cacheCapacity = n }
}

// WithMaxOpenFiles and WithMaxOpenDirs size the fid/did tables.
func WithMaxOpenFiles(n int) Option {
	return func(fs *Filesystem) { fs.maxOpenFiles = n }
}

func WithMaxOpenDirs(n int) Option {
	return func(fs *Filesystem) { fs.maxOpenDirs = n }
}

var discardLogger = log.New(io.Discard, "", 0)

// New returns a Filesystem ready for Init or Load.
func New(opts ...Option) *Filesystem {
	fs := &Filesystem{
		clock:         timeutil.RealClock(),
		logger:        discardLogger,
		cacheCapacity: 64,
		maxOpenFiles:  MaxOpenFiles,
		maxOpenDirs:   MaxOpenDirs,
	}
	for _, opt := range opts {
		opt(fs)
	}
	fs.mu = syncutil.NewInvariantMutex(fs.checkInvariants)
	return fs
}

func (fs *Filesystem) now() uint32 {
	return uint32(fs.clock.Now().Unix())
}

// checkInvariants enforces spec.md §8's two universal bitmap-population
// invariants on every unlock. It is only meaningful once an image is
// loaded; before that there's nothing to check.
func (fs *Filesystem) checkInvariants() {
	if !fs.disk.isOpen() {
		return
	}
	if fs.sb.InodesFree != fs.sb.InodesCount-fs.inodeMap.popcount() {
		panic("blockfs: inodes_free invariant violated")
	}
	if fs.sb.BlocksFree != fs.sb.BlocksCount-fs.spaceMap.popcount() {
		panic("blockfs: blocks_free invariant violated")
	}
}

func ceilDiv(n, d uint64) uint64 {
	if d == 0 {
		return 0
	}
	return (n + d - 1) / d
}

// rawSector returns the absolute sector where layout-relative block
// regionFirst begins.
func (fs *Filesystem) rawSector(regionFirst uint32) int64 {
	return int64(fs.sb.BlockOffset) + int64(regionFirst)*int64(fs.sb.BlockSize)
}

// Init creates a new image of imageSectors sectors, with the given inode
// capacity and block size (in sectors), and formats it: superblock, both
// bitmaps, an empty inode table, and a root directory inode.
func (fs *Filesystem) Init(path string, inodes uint32, imageSectors uint64, blockSectors uint32) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	blockBytes := uint64(blockSectors) * SectorSize

	inodeRecSize := uint64(InodeRecordSize())
	inodeTableBlocks := uint32(ceilDiv(uint64(inodes)*inodeRecSize, blockBytes))
	inodeMapBlocks := uint32(ceilDiv(ceilDiv(uint64(inodes), 8), blockBytes))

	reserved := uint64(inodeTableBlocks+inodeMapBlocks) * uint64(blockSectors)
	if imageSectors < 1+reserved {
		return EDIR_INVALID_PATH
	}
	dataBlocks := (imageSectors - 1 - reserved) / uint64(blockSectors)
	if dataBlocks == 0 {
		return EOUT_OF_BLOCKS
	}

	spaceMapBlocks := uint32(ceilDiv(ceilDiv(dataBlocks, 8), blockBytes))
	if uint64(spaceMapBlocks) >= dataBlocks {
		return EOUT_OF_BLOCKS
	}

	if err := fs.disk.create(path, int64(imageSectors)); err != nil {
		return err
	}

	fs.sb = Superblock{
		InodesCount:   inodes,
		InodesFree:    inodes,
		InodeSize:     uint32(inodeRecSize),
		BlocksCount:   uint32(dataBlocks),
		BlocksFree:    uint32(dataBlocks),
		BlockSize:     blockSectors,
		BlockOffset:   1,
		InodemapFirst: 0,
		InodeFirst:    inodeMapBlocks,
		SpacemapFirst: inodeMapBlocks + inodeTableBlocks,
		DataFirst:     inodeMapBlocks + inodeTableBlocks,
		InodemapSize:  inodeMapBlocks,
		InodesSize:    inodeTableBlocks,
		SpacemapSize:  spaceMapBlocks,
		Magic:         SuperblockMagic,
	}
	if err := fs.sb.validate(); err != nil {
		fs.disk.unload()
		return err
	}

	fs.inodeMap = newBitmap(inodes)
	fs.spaceMap = newBitmap(uint32(dataBlocks))
	for b := uint32(0); b < spaceMapBlocks; b++ {
		fs.spaceMap.set(b, true)
	}
	fs.sb.BlocksFree -= spaceMapBlocks

	cache := newBlockCache(fs.cacheCapacity)
	cache.logger = fs.logger
	fs.dev = &device{
		d:           &fs.disk,
		cache:       cache,
		blockSize:   blockSectors,
		blockOffset: fs.sb.BlockOffset,
		dataFirst:   fs.sb.DataFirst,
	}
	fs.handles = newHandles(fs.maxOpenFiles, fs.maxOpenDirs)

	if err := fs.writeSuperblock(); err != nil {
		return err
	}
	if err := fs.writeInodeMap(); err != nil {
		return err
	}
	if err := fs.writeSpaceMap(); err != nil {
		return err
	}

	// format the inode table with zeroed records so later partial writes
	// (e.g. allocateBlock's write-through-inode) never read garbage
	zero := make([]byte, inodeRecSize)
	for i := uint32(0); i < inodes; i++ {
		if err := fs.disk.writeAt(fs.inodeByteOffset(i), zero); err != nil {
			return err
		}
	}

	root := Inode{
		FileType:   FileTypeDirectory,
		Perm:       0755,
		AccessTime: fs.now(),
		ChangeTime: fs.now(),
		ModifyTime: fs.now(),
		LinksCount: 1,
	}
	fs.inodeMap.set(RootInode, true)
	fs.sb.InodesFree--
	fs.markInodeMapDirty()
	if err := fs.writeInode(RootInode, &root); err != nil {
		return err
	}

	rootDir, err := fs.openDirHandle(RootInode)
	if err != nil {
		return err
	}
	if err := rootDir.addEntry(RootInode, FileTypeDirectory, "."); err != nil {
		return err
	}
	if err := rootDir.addEntry(RootInode, FileTypeDirectory, ".."); err != nil {
		return err
	}

	fs.cwd = RootInode
	return fs.syncLocked()
}

// Load opens an existing image: reads the superblock, both bitmaps,
// initializes the cache, and sets cwd to the root.
func (fs *Filesystem) Load(path string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	return fs.loadLocked(path)
}

func (fs *Filesystem) loadLocked(path string) error {
	if err := fs.disk.load(path); err != nil {
		return err
	}

	sbBuf := make([]byte, SectorSize)
	if err := fs.disk.readAt(0, sbBuf); err != nil {
		fs.disk.unload()
		return err
	}
	if err := fs.sb.UnmarshalBinary(sbBuf); err != nil {
		fs.disk.unload()
		return err
	}
	if err := fs.sb.validate(); err != nil {
		fs.disk.unload()
		return err
	}

	imBuf := make([]byte, byteCount(fs.sb.InodesCount))
	if err := fs.disk.readAt(fs.rawSector(fs.sb.InodemapFirst)*SectorSize, imBuf); err != nil {
		fs.disk.unload()
		return err
	}
	fs.inodeMap = wrapBitmap(imBuf, fs.sb.InodesCount)

	smBuf := make([]byte, byteCount(fs.sb.BlocksCount))
	if err := fs.disk.readAt(fs.rawSector(fs.sb.SpacemapFirst)*SectorSize, smBuf); err != nil {
		fs.disk.unload()
		return err
	}
	fs.spaceMap = wrapBitmap(smBuf, fs.sb.BlocksCount)

	cache := newBlockCache(fs.cacheCapacity)
	cache.logger = fs.logger
	fs.dev = &device{
		d:           &fs.disk,
		cache:       cache,
		blockSize:   fs.sb.BlockSize,
		blockOffset: fs.sb.BlockOffset,
		dataFirst:   fs.sb.DataFirst,
	}
	fs.handles = newHandles(fs.maxOpenFiles, fs.maxOpenDirs)
	fs.cwd = RootInode
	return nil
}

// Sync flushes the superblock and either bitmap if their dirty flags are
// set, then clears those flags.
func (fs *Filesystem) Sync() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	return fs.syncLocked()
}

func (fs *Filesystem) syncLocked() error {
	if !fs.sbDirty && !fs.inodeMapDirty && !fs.spaceMapDirty {
		fs.logger.Printf("blockfs: sync: nothing dirty")
		return nil
	}

	if fs.sbDirty {
		if err := fs.writeSuperblock(); err != nil {
			return err
		}
		fs.sbDirty = false
		fs.logger.Printf("blockfs: sync: wrote superblock")
	}
	if fs.inodeMapDirty {
		if err := fs.writeInodeMap(); err != nil {
			return err
		}
		fs.inodeMapDirty = false
		fs.logger.Printf("blockfs: sync: wrote inode bitmap")
	}
	if fs.spaceMapDirty {
		if err := fs.writeSpaceMap(); err != nil {
			return err
		}
		fs.spaceMapDirty = false
		fs.logger.Printf("blockfs: sync: wrote space bitmap")
	}
	return nil
}

// Unload syncs, drops the cache, and closes the image.
func (fs *Filesystem) Unload() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := fs.syncLocked(); err != nil {
		return err
	}
	if fs.dev != nil {
		fs.dev.cache.clear()
	}
	return fs.disk.unload()
}

func (fs *Filesystem) markSuperblockDirty() { fs.sbDirty = true }
func (fs *Filesystem) markInodeMapDirty()   { fs.inodeMapDirty = true }
func (fs *Filesystem) markSpaceMapDirty()   { fs.spaceMapDirty = true }

func (fs *Filesystem) writeSuperblock() error {
	buf, err := fs.sb.MarshalBinary()
	if err != nil {
		return err
	}
	return fs.disk.writeAt(0, buf)
}

func (fs *Filesystem) writeInodeMap() error {
	return fs.disk.writeAt(fs.rawSector(fs.sb.InodemapFirst)*SectorSize, fs.inodeMap.arr)
}

func (fs *Filesystem) writeSpaceMap() error {
	return fs.disk.writeAt(fs.rawSector(fs.sb.SpacemapFirst)*SectorSize, fs.spaceMap.arr)
}

func (fs *Filesystem) inodeByteOffset(n uint32) int64 {
	return fs.rawSector(fs.sb.InodeFirst)*SectorSize + int64(n)*int64(fs.sb.InodeSize)
}

func (fs *Filesystem) readInode(n uint32, out *Inode) error {
	if n >= fs.sb.InodesCount {
		return EIND_INVALID_INODE
	}
	if !fs.inodeMap.get(n) {
		return EIND_INVALID_INODE
	}
	buf := make([]byte, fs.sb.InodeSize)
	if err := fs.disk.readAt(fs.inodeByteOffset(n), buf); err != nil {
		return err
	}
	return out.UnmarshalBinary(buf)
}

func (fs *Filesystem) writeInode(n uint32, ino *Inode) error {
	buf, err := ino.MarshalBinary()
	if err != nil {
		return err
	}
	return fs.disk.writeAt(fs.inodeByteOffset(n), buf)
}

// allocInode reserves a free inode number, marking the bitmap bit and
// decrementing the free count immediately.
func (fs *Filesystem) allocInode() (uint32, error) {
	n := fs.inodeMap.findFirstOf(false)
	if n == invalidIndex {
		return 0, EOUT_OF_INODES
	}
	fs.inodeMap.set(n, true)
	fs.sb.InodesFree--
	fs.markInodeMapDirty()
	fs.markSuperblockDirty()
	fs.logger.Printf("blockfs: allocated inode %d, %d free remaining", n, fs.sb.InodesFree)
	return n, nil
}

func (fs *Filesystem) freeInode(n uint32) {
	fs.inodeMap.set(n, false)
	fs.sb.InodesFree++
	fs.markInodeMapDirty()
	fs.markSuperblockDirty()
	fs.logger.Printf("blockfs: freed inode %d, %d free remaining", n, fs.sb.InodesFree)
}

func (fs *Filesystem) allocDataBlock() (uint32, error) {
	b := fs.spaceMap.findFirstOf(false)
	if b == invalidIndex {
		return 0, EOUT_OF_BLOCKS
	}
	fs.spaceMap.set(b, true)
	fs.sb.BlocksFree--
	fs.markSpaceMapDirty()
	fs.markSuperblockDirty()
	fs.logger.Printf("blockfs: allocated data block %d, %d free remaining", b, fs.sb.BlocksFree)
	return b, nil
}

func (fs *Filesystem) freeDataBlock(b uint32) {
	fs.spaceMap.set(b, false)
	fs.sb.BlocksFree++
	fs.logger.Printf("blockfs: freed data block %d, %d free remaining", b, fs.sb.BlocksFree)
	fs.markSpaceMapDirty()
	fs.markSuperblockDirty()
}

// --- path resolution ---

// getInodeByPath resolves path against cwd (or root, for an absolute path)
// per spec.md §4.8.
func (fs *Filesystem) getInodeByPath(path string) (uint32, error) {
	if path == "" {
		return InvalidInode, EDIR_INVALID_PATH
	}

	tokens := strings.Split(path, "/")
	cur := fs.cwd
	if tokens[0] == "" {
		cur = RootInode
		tokens = tokens[1:]
	}

	for idx, tok := range tokens {
		last := idx == len(tokens)-1
		if tok == "" {
			if last {
				return cur, nil
			}
			continue
		}

		dir, err := fs.openDirHandle(cur)
		if err != nil {
			return InvalidInode, EDIR_NOT_A_DIR
		}
		entry, _, err := dir.find(tok)
		if err != nil {
			if !last {
				return InvalidInode, EDIR_INVALID_PATH
			}
			return InvalidInode, EDIR_FILE_NOT_FOUND
		}
		if !last && entry.Type != FileTypeDirectory {
			return InvalidInode, EDIR_NOT_A_DIR
		}
		cur = entry.Inode
	}

	return cur, nil
}

// splitParentLeaf splits path into its parent directory's inode and the
// leaf name, for create/mkdir/unlink/link.
func (fs *Filesystem) splitParentLeaf(path string) (parent uint32, leaf string, err error) {
	trimmed := strings.TrimSuffix(path, "/")
	slash := strings.LastIndexByte(trimmed, '/')
	var parentPath string
	if slash < 0 {
		parentPath = ""
		leaf = trimmed
	} else {
		parentPath = trimmed[:slash]
		if parentPath == "" {
			parentPath = "/"
		}
		leaf = trimmed[slash+1:]
	}
	if leaf == "" || leaf == "." || leaf == ".." {
		return InvalidInode, "", EDIR_INVALID_PATH
	}

	if parentPath == "" {
		parent = fs.cwd
	} else {
		parent, err = fs.getInodeByPath(parentPath)
		if err != nil {
			return InvalidInode, "", err
		}
	}

	var ino Inode
	if err := fs.readInode(parent, &ino); err != nil {
		return InvalidInode, "", err
	}
	if ino.FileType != FileTypeDirectory {
		return InvalidInode, "", EDIR_NOT_A_DIR
	}
	return parent, leaf, nil
}

// --- create / mkdir / unlink / rmdir / link ---

func (fs *Filesystem) createEntry(path string, typ FileType) (uint32, error) {
	parent, leaf, err := fs.splitParentLeaf(path)
	if err != nil {
		return InvalidInode, err
	}

	parentDir, err := fs.openDirHandle(parent)
	if err != nil {
		return InvalidInode, err
	}
	if _, _, err := parentDir.find(leaf); err == nil {
		return InvalidInode, EDIR_FILE_EXISTS
	}

	n, err := fs.allocInode()
	if err != nil {
		return InvalidInode, err
	}

	ino := Inode{
		FileType:   typ,
		Perm:       0755,
		AccessTime: fs.now(),
		ChangeTime: fs.now(),
		ModifyTime: fs.now(),
		LinksCount: 1,
	}
	if err := fs.writeInode(n, &ino); err != nil {
		fs.freeInode(n)
		return InvalidInode, err
	}

	if err := parentDir.addEntry(n, typ, leaf); err != nil {
		fs.freeInode(n)
		return InvalidInode, err
	}

	if typ == FileTypeDirectory {
		newDir, err := fs.openDirHandle(n)
		if err != nil {
			return InvalidInode, err
		}
		if err := newDir.addEntry(n, FileTypeDirectory, "."); err != nil {
			return InvalidInode, err
		}
		if err := newDir.addEntry(parent, FileTypeDirectory, ".."); err != nil {
			return InvalidInode, err
		}
	}

	return n, nil
}

// Create makes a new empty regular file at path.
func (fs *Filesystem) Create(path string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	_, err := fs.createEntry(path, FileTypeRegular)
	return err
}

// Mkdir makes a new empty directory at path.
func (fs *Filesystem) Mkdir(path string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	_, err := fs.createEntry(path, FileTypeDirectory)
	return err
}

// Link creates a new directory entry "new" pointing at the same inode as
// "orig", incrementing its link count.
func (fs *Filesystem) Link(orig, newPath string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	origInode, err := fs.getInodeByPath(orig)
	if err != nil {
		return err
	}
	var ino Inode
	if err := fs.readInode(origInode, &ino); err != nil {
		return err
	}
	if ino.FileType == FileTypeDirectory {
		return EFIL_WRONG_TYPE
	}

	parent, leaf, err := fs.splitParentLeaf(newPath)
	if err != nil {
		return err
	}
	parentDir, err := fs.openDirHandle(parent)
	if err != nil {
		return err
	}
	if _, _, err := parentDir.find(leaf); err == nil {
		return EDIR_FILE_EXISTS
	}

	ino.LinksCount++
	if err := fs.writeInode(origInode, &ino); err != nil {
		return err
	}
	return parentDir.addEntry(origInode, ino.FileType, leaf)
}

// Unlink removes the directory entry at path and decrements its inode's
// link count, freeing the inode and its blocks once the count reaches
// zero. A directory target is refused unless force is set (used by Rmdir).
func (fs *Filesystem) unlink(path string, force bool) error {
	parent, leaf, err := fs.splitParentLeaf(path)
	if err != nil {
		return err
	}
	parentDir, err := fs.openDirHandle(parent)
	if err != nil {
		return err
	}
	entry, _, err := parentDir.find(leaf)
	if err != nil {
		return err
	}
	if entry.Type == FileTypeDirectory && !force {
		return EFIL_WRONG_TYPE
	}

	var ino Inode
	if err := fs.readInode(entry.Inode, &ino); err != nil {
		return err
	}

	if err := parentDir.removeEntry(leaf); err != nil {
		return err
	}

	ino.LinksCount--
	if ino.LinksCount == 0 {
		f, err := fs.openFileHandle(entry.Inode)
		if err != nil {
			return err
		}
		if err := f.Trunc(0); err != nil {
			return err
		}
		fs.freeInode(entry.Inode)
		return nil
	}
	return fs.writeInode(entry.Inode, &ino)
}

// Unlink removes a regular file.
func (fs *Filesystem) Unlink(path string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	return fs.unlink(path, false)
}

// Rmdir removes an empty, non-root directory.
func (fs *Filesystem) Rmdir(path string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	ino, err := fs.getInodeByPath(path)
	if err != nil {
		return err
	}
	if ino == RootInode {
		return EDIR_INVALID_PATH
	}
	dir, err := fs.openDirHandle(ino)
	if err != nil {
		return err
	}
	n, _, err := dir.count()
	if err != nil {
		return err
	}
	if n > 2 {
		return EDIR_NOT_EMPTY
	}
	return fs.unlink(path, true)
}

// Cd changes the current working directory.
func (fs *Filesystem) Cd(path string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	ino, err := fs.getInodeByPath(path)
	if err != nil {
		return err
	}
	var meta Inode
	if err := fs.readInode(ino, &meta); err != nil {
		return err
	}
	if meta.FileType != FileTypeDirectory {
		return EDIR_NOT_A_DIR
	}
	fs.cwd = ino
	return nil
}

// --- open-handle-table facing operations ---

// Open opens path for reading/writing and returns a stable fid.
func (fs *Filesystem) Open(path string) (uint32, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	ino, err := fs.getInodeByPath(path)
	if err != nil {
		return 0, err
	}
	f, err := fs.openFileHandle(ino)
	if err != nil {
		return 0, err
	}
	if f.inode.FileType == FileTypeDirectory {
		return 0, EFIL_WRONG_TYPE
	}
	return fs.handles.openFile(f)
}

func (fs *Filesystem) Close(fid uint32) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	return fs.handles.closeFile(fid)
}

func (fs *Filesystem) Read(fid uint32, buf []byte) (int, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	f, err := fs.handles.file(fid)
	if err != nil {
		return 0, err
	}
	return f.Read(buf)
}

func (fs *Filesystem) Write(fid uint32, buf []byte) (int, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	f, err := fs.handles.file(fid)
	if err != nil {
		return 0, err
	}
	return f.Write(buf)
}

func (fs *Filesystem) Seek(fid uint32, pos uint64) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	f, err := fs.handles.file(fid)
	if err != nil {
		return err
	}
	f.Seek(pos)
	return nil
}

func (fs *Filesystem) Trunc(fid uint32, size uint64) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	f, err := fs.handles.file(fid)
	if err != nil {
		return err
	}
	return f.Trunc(size)
}

// Opendir opens path (which must be a directory) and returns a stable did.
func (fs *Filesystem) Opendir(path string) (uint32, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	ino, err := fs.getInodeByPath(path)
	if err != nil {
		return 0, err
	}
	d, err := fs.openDirHandle(ino)
	if err != nil {
		return 0, err
	}
	return fs.handles.openDir(d)
}

func (fs *Filesystem) Closedir(did uint32) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	return fs.handles.closeDir(did)
}

func (fs *Filesystem) Readdir(did uint32) (Dirent, bool, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	d, err := fs.handles.dir(did)
	if err != nil {
		return Dirent{}, false, err
	}
	return d.ReadNext()
}

func (fs *Filesystem) RewindDir(did uint32) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	d, err := fs.handles.dir(did)
	if err != nil {
		return err
	}
	d.Rewind()
	return nil
}

// Attr is the metadata snapshot returned by Stat: the resolved inode number,
// its on-disk record, and an apparent byte size (fuseadapter's Getattr/Lookup
// need a size; the inode record itself carries none, spec.md §6).
type Attr struct {
	Ino   uint32
	Inode Inode
	Size  uint64
}

// Stat resolves path and returns its inode metadata, for callers (notably
// fuseadapter) that need attributes without opening a handle.
func (fs *Filesystem) Stat(path string) (Attr, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	ino, err := fs.getInodeByPath(path)
	if err != nil {
		return Attr{}, err
	}
	var meta Inode
	if err := fs.readInode(ino, &meta); err != nil {
		return Attr{}, err
	}
	return Attr{Ino: ino, Inode: meta, Size: fs.apparentSize(&meta)}, nil
}

// apparentSize reports ino's logical byte length, derived from its
// allocated block count: the inode record has no length field of its own
// (spec.md §6 lists only the block pointers), so size is implicit in how
// many blocks are actually allocated, the same granularity truncate()
// already works in (K = ceil(new_size/B)).
func (fs *Filesystem) apparentSize(ino *Inode) uint64 {
	bb := uint64(fs.dev.blockBytes())
	var n uint64
	for _, b := range ino.Blocks {
		if b != 0 {
			n++
		}
	}
	p := uint64(fs.pointersPerBlock())
	if ino.Indirect != 0 {
		n += fs.countNonZeroPointers(ino.Indirect, p)
	}
	if ino.DoubleIndirect != 0 {
		buf := make([]byte, pointerSize)
		for idx1 := uint64(0); idx1 < p; idx1++ {
			if err := fs.dev.readObject(ino.DoubleIndirect, uint32(idx1*pointerSize), buf); err != nil {
				break
			}
			l1 := binary.LittleEndian.Uint32(buf)
			if l1 == 0 {
				continue
			}
			n += fs.countNonZeroPointers(l1, p)
		}
	}
	return n * bb
}

// countNonZeroPointers counts the non-zero entries among the first p
// pointers stored in block.
func (fs *Filesystem) countNonZeroPointers(block uint32, p uint64) uint64 {
	buf := make([]byte, pointerSize)
	var n uint64
	for idx := uint64(0); idx < p; idx++ {
		if err := fs.dev.readObject(block, uint32(idx*pointerSize), buf); err != nil {
			break
		}
		if binary.LittleEndian.Uint32(buf) != 0 {
			n++
		}
	}
	return n
}
