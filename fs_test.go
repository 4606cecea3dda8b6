package blockfs

import (
	"errors"
	"path/filepath"
	"testing"
)

// testImage formats a fresh image at t.TempDir()/image.bin with a geometry
// small enough to exercise the indirect-pointer boundary quickly: 32 inodes,
// a 1 MiB image, 2-sector (1024-byte) blocks.
func testImage(t *testing.T) *Filesystem {
	t.Helper()
	path := filepath.Join(t.TempDir(), "image.bin")
	fsys := New()
	if err := fsys.Init(path, 32, 2048, 2); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}
	t.Cleanup(func() { fsys.Unload() })
	return fsys
}

func TestInitGeometry(t *testing.T) {
	fsys := testImage(t)

	if fsys.sb.Magic != SuperblockMagic {
		t.Fatalf("Magic = %#x, want %#x", fsys.sb.Magic, SuperblockMagic)
	}
	if fsys.sb.InodesCount != 32 {
		t.Fatalf("InodesCount = %d, want 32", fsys.sb.InodesCount)
	}
	if !fsys.inodeMap.get(RootInode) {
		t.Fatal("root inode not marked occupied")
	}
	for i := uint32(1); i < fsys.sb.InodesCount; i++ {
		if fsys.inodeMap.get(i) {
			t.Fatalf("inode %d marked occupied right after Init", i)
		}
	}
	if fsys.sb.InodesFree != fsys.sb.InodesCount-1 {
		t.Fatalf("InodesFree = %d, want %d", fsys.sb.InodesFree, fsys.sb.InodesCount-1)
	}
}

func TestRootDirectoryHasDotEntries(t *testing.T) {
	fsys := testImage(t)

	did, err := fsys.Opendir("/")
	if err != nil {
		t.Fatalf("Opendir(/) failed: %v", err)
	}
	defer fsys.Closedir(did)

	var names []string
	for {
		ent, ok, err := fsys.Readdir(did)
		if err != nil {
			t.Fatalf("Readdir failed: %v", err)
		}
		if !ok {
			break
		}
		names = append(names, ent.Name)
	}
	if len(names) != 2 || names[0] != "." || names[1] != ".." {
		t.Fatalf("root entries = %v, want [. ..]", names)
	}
}

func TestCreateWriteReadRoundTrip(t *testing.T) {
	fsys := testImage(t)

	if err := fsys.Create("/hello"); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	fid, err := fsys.Open("/hello")
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}

	data := make([]byte, 3*1024+7) // 3*block_bytes + 7: the round-trip boundary case
	for i := range data {
		data[i] = byte(i)
	}
	n, err := fsys.Write(fid, data)
	if err != nil || n != len(data) {
		t.Fatalf("Write() = %d, %v, want %d, nil", n, err, len(data))
	}

	if err := fsys.Seek(fid, 0); err != nil {
		t.Fatalf("Seek() failed: %v", err)
	}
	out := make([]byte, len(data))
	n, err = fsys.Read(fid, out)
	if err != nil || n != len(out) {
		t.Fatalf("Read() = %d, %v, want %d, nil", n, err, len(out))
	}
	for i := range data {
		if out[i] != data[i] {
			t.Fatalf("byte %d = %d, want %d", i, out[i], data[i])
		}
	}
	if err := fsys.Close(fid); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	// apparent size is block-granular: 3*1024+7 bytes still only needs 4
	// allocated blocks (ceil(3079/1024) == 4), so Stat reports 4096, not 3079.
	attr, err := fsys.Stat("/hello")
	if err != nil {
		t.Fatalf("Stat() failed: %v", err)
	}
	if attr.Size != 4*1024 {
		t.Fatalf("Stat().Size = %d, want %d (block-granular apparent size)", attr.Size, 4*1024)
	}
}

// TestIndirectPointerBoundary exercises the 8-direct + single-indirect
// addressing boundary: a write spanning exactly 9 blocks must cross from
// ino.Blocks[7] into the first entry of the indirect block.
func TestIndirectPointerBoundary(t *testing.T) {
	fsys := testImage(t)

	if err := fsys.Create("/big"); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	fid, err := fsys.Open("/big")
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer fsys.Close(fid)

	const blockBytes = 1024
	data := make([]byte, 9*blockBytes)
	for i := range data {
		data[i] = byte(i % 251)
	}
	if _, err := fsys.Write(fid, data); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}

	attr, err := fsys.Stat("/big")
	if err != nil {
		t.Fatalf("Stat() failed: %v", err)
	}
	if attr.Inode.Indirect == 0 {
		t.Fatal("expected the indirect pointer to be allocated after a 9-block write")
	}
	if attr.Size != uint64(len(data)) {
		t.Fatalf("Stat().Size = %d, want %d", attr.Size, len(data))
	}

	if err := fsys.Seek(fid, 0); err != nil {
		t.Fatalf("Seek() failed: %v", err)
	}
	out := make([]byte, len(data))
	if _, err := fsys.Read(fid, out); err != nil {
		t.Fatalf("Read() failed: %v", err)
	}
	for i := range data {
		if out[i] != data[i] {
			t.Fatalf("byte %d = %d, want %d", i, out[i], data[i])
		}
	}
}

func TestMkdirRmdirEmptyVsNonEmpty(t *testing.T) {
	fsys := testImage(t)

	if err := fsys.Mkdir("/sub"); err != nil {
		t.Fatalf("Mkdir() failed: %v", err)
	}
	if err := fsys.Create("/sub/file"); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	if err := fsys.Rmdir("/sub"); !errors.Is(err, EDIR_NOT_EMPTY) {
		t.Fatalf("Rmdir() on non-empty dir = %v, want EDIR_NOT_EMPTY", err)
	}

	if err := fsys.Unlink("/sub/file"); err != nil {
		t.Fatalf("Unlink() failed: %v", err)
	}
	if err := fsys.Rmdir("/sub"); err != nil {
		t.Fatalf("Rmdir() on empty dir failed: %v", err)
	}

	if _, err := fsys.Stat("/sub"); !errors.Is(err, EDIR_FILE_NOT_FOUND) {
		t.Fatalf("Stat() after Rmdir = %v, want EDIR_FILE_NOT_FOUND", err)
	}
}

func TestRmdirRefusesRoot(t *testing.T) {
	fsys := testImage(t)
	if err := fsys.Rmdir("/"); !errors.Is(err, EDIR_INVALID_PATH) {
		t.Fatalf("Rmdir(/) = %v, want EDIR_INVALID_PATH", err)
	}
}

func TestUnlinkRefusesDirectoryWithoutForce(t *testing.T) {
	fsys := testImage(t)
	if err := fsys.Mkdir("/dir"); err != nil {
		t.Fatalf("Mkdir() failed: %v", err)
	}
	if err := fsys.Unlink("/dir"); !errors.Is(err, EFIL_WRONG_TYPE) {
		t.Fatalf("Unlink() on a directory = %v, want EFIL_WRONG_TYPE", err)
	}
}

func TestLinkPreservesDataAndUnlinkKeepsItUntilLastLink(t *testing.T) {
	fsys := testImage(t)

	if err := fsys.Create("/orig"); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	fid, err := fsys.Open("/orig")
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	data := []byte("linked file contents")
	if _, err := fsys.Write(fid, data); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}
	if err := fsys.Close(fid); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	if err := fsys.Link("/orig", "/alias"); err != nil {
		t.Fatalf("Link() failed: %v", err)
	}

	origAttr, err := fsys.Stat("/orig")
	if err != nil {
		t.Fatalf("Stat(/orig) failed: %v", err)
	}
	aliasAttr, err := fsys.Stat("/alias")
	if err != nil {
		t.Fatalf("Stat(/alias) failed: %v", err)
	}
	if origAttr.Ino != aliasAttr.Ino {
		t.Fatalf("Stat(/orig).Ino = %d, Stat(/alias).Ino = %d, want equal", origAttr.Ino, aliasAttr.Ino)
	}
	if origAttr.Inode.LinksCount != 2 {
		t.Fatalf("LinksCount = %d, want 2 after Link", origAttr.Inode.LinksCount)
	}

	if err := fsys.Unlink("/orig"); err != nil {
		t.Fatalf("Unlink(/orig) failed: %v", err)
	}

	// the inode must still be alive and readable through the remaining link
	aliasFid, err := fsys.Open("/alias")
	if err != nil {
		t.Fatalf("Open(/alias) after unlinking /orig failed: %v", err)
	}
	out := make([]byte, len(data))
	if _, err := fsys.Read(aliasFid, out); err != nil {
		t.Fatalf("Read(/alias) failed: %v", err)
	}
	if string(out) != string(data) {
		t.Fatalf("Read(/alias) = %q, want %q", out, data)
	}
	fsys.Close(aliasFid)

	if _, err := fsys.Stat("/orig"); !errors.Is(err, EDIR_FILE_NOT_FOUND) {
		t.Fatalf("Stat(/orig) after unlink = %v, want EDIR_FILE_NOT_FOUND", err)
	}

	if err := fsys.Unlink("/alias"); err != nil {
		t.Fatalf("Unlink(/alias) failed: %v", err)
	}
	if _, err := fsys.Stat("/alias"); !errors.Is(err, EDIR_FILE_NOT_FOUND) {
		t.Fatalf("Stat(/alias) after last unlink = %v, want EDIR_FILE_NOT_FOUND", err)
	}
}

func TestLinkRefusesDirectories(t *testing.T) {
	fsys := testImage(t)
	if err := fsys.Mkdir("/dir"); err != nil {
		t.Fatalf("Mkdir() failed: %v", err)
	}
	if err := fsys.Link("/dir", "/dir2"); !errors.Is(err, EFIL_WRONG_TYPE) {
		t.Fatalf("Link() on a directory = %v, want EFIL_WRONG_TYPE", err)
	}
}

func TestCreateDuplicateNameFails(t *testing.T) {
	fsys := testImage(t)
	if err := fsys.Create("/dup"); err != nil {
		t.Fatalf("first Create() failed: %v", err)
	}
	if err := fsys.Create("/dup"); !errors.Is(err, EDIR_FILE_EXISTS) {
		t.Fatalf("second Create() = %v, want EDIR_FILE_EXISTS", err)
	}
}

func TestGetInodeByPathRejectsEmptyPath(t *testing.T) {
	fsys := testImage(t)
	if _, err := fsys.Stat(""); !errors.Is(err, EDIR_INVALID_PATH) {
		t.Fatalf("Stat(\"\") = %v, want EDIR_INVALID_PATH", err)
	}
}

func TestCreateInMissingParentFails(t *testing.T) {
	fsys := testImage(t)
	if err := fsys.Create("/no/such/dir/file"); !errors.Is(err, EDIR_FILE_NOT_FOUND) && !errors.Is(err, EDIR_INVALID_PATH) {
		t.Fatalf("Create() through a missing parent = %v, want EDIR_FILE_NOT_FOUND or EDIR_INVALID_PATH", err)
	}
}

// TestSpaceExhaustionLeavesNoLeak fills the data-block space map completely
// via a single growing file, confirms the final allocation past capacity
// fails with EOUT_OF_BLOCKS, and confirms BlocksFree is unchanged by the
// failed attempt (no block is marked used without a successful allocation).
func TestSpaceExhaustionLeavesNoLeak(t *testing.T) {
	fsys := testImage(t)

	if err := fsys.Create("/hog"); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	fid, err := fsys.Open("/hog")
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer fsys.Close(fid)

	const blockBytes = 1024
	chunk := make([]byte, blockBytes)

	var lastErr error
	written := 0
	for {
		if _, err := fsys.Write(fid, chunk); err != nil {
			lastErr = err
			break
		}
		written++
		if written > int(fsys.sb.BlocksCount)+10 {
			t.Fatal("writer never hit EOUT_OF_BLOCKS within a safe bound")
		}
	}
	if !errors.Is(lastErr, EOUT_OF_BLOCKS) {
		t.Fatalf("final Write() error = %v, want EOUT_OF_BLOCKS", lastErr)
	}

	freeBefore := fsys.sb.BlocksFree
	if _, err := fsys.Write(fid, chunk); !errors.Is(err, EOUT_OF_BLOCKS) {
		t.Fatalf("repeated Write() past exhaustion = %v, want EOUT_OF_BLOCKS", err)
	}
	if fsys.sb.BlocksFree != freeBefore {
		t.Fatalf("BlocksFree changed (%d -> %d) on a failed allocation", freeBefore, fsys.sb.BlocksFree)
	}
}

func TestLoadAfterUnloadRestoresState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image.bin")
	fsys := New()
	if err := fsys.Init(path, 32, 2048, 2); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}
	if err := fsys.Mkdir("/persisted"); err != nil {
		t.Fatalf("Mkdir() failed: %v", err)
	}
	if err := fsys.Create("/persisted/file"); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	fid, err := fsys.Open("/persisted/file")
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	data := []byte("still here after reload")
	if _, err := fsys.Write(fid, data); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}
	if err := fsys.Close(fid); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if err := fsys.Unload(); err != nil {
		t.Fatalf("Unload() failed: %v", err)
	}

	reloaded := New()
	if err := reloaded.Load(path); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	defer reloaded.Unload()

	attr, err := reloaded.Stat("/persisted/file")
	if err != nil {
		t.Fatalf("Stat() after reload failed: %v", err)
	}
	if attr.Inode.FileType != FileTypeRegular {
		t.Fatalf("FileType after reload = %v, want FileTypeRegular", attr.Inode.FileType)
	}

	rfid, err := reloaded.Open("/persisted/file")
	if err != nil {
		t.Fatalf("Open() after reload failed: %v", err)
	}
	defer reloaded.Close(rfid)
	out := make([]byte, len(data))
	if _, err := reloaded.Read(rfid, out); err != nil {
		t.Fatalf("Read() after reload failed: %v", err)
	}
	if string(out) != string(data) {
		t.Fatalf("Read() after reload = %q, want %q", out, data)
	}
}

func TestTruncShrinkFreesBlocksAndResetsCursorPastEnd(t *testing.T) {
	fsys := testImage(t)

	if err := fsys.Create("/shrink"); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	fid, err := fsys.Open("/shrink")
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer fsys.Close(fid)

	data := make([]byte, 5*1024)
	if _, err := fsys.Write(fid, data); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}

	freeBefore := fsys.sb.BlocksFree
	if err := fsys.Trunc(fid, 1024); err != nil {
		t.Fatalf("Trunc() failed: %v", err)
	}
	if fsys.sb.BlocksFree != freeBefore+4 {
		t.Fatalf("BlocksFree = %d after truncating away 4 blocks, want %d", fsys.sb.BlocksFree, freeBefore+4)
	}

	// the cursor sat at 5*1024 after the write, past the new size
	f, err := fsys.handles.file(fid)
	if err != nil {
		t.Fatalf("handles.file() failed: %v", err)
	}
	if f.Tell() != 0 {
		t.Fatalf("cursor = %d after truncating below it, want 0", f.Tell())
	}

	attr, err := fsys.Stat("/shrink")
	if err != nil {
		t.Fatalf("Stat() failed: %v", err)
	}
	if attr.Size != 1024 {
		t.Fatalf("Stat().Size = %d after truncate, want 1024", attr.Size)
	}
}

func TestOpenDirectoryAsFileFails(t *testing.T) {
	fsys := testImage(t)
	if _, err := fsys.Open("/"); !errors.Is(err, EFIL_WRONG_TYPE) {
		t.Fatalf("Open(/) = %v, want EFIL_WRONG_TYPE", err)
	}
}

func TestCdChangesRelativeResolution(t *testing.T) {
	fsys := testImage(t)
	if err := fsys.Mkdir("/work"); err != nil {
		t.Fatalf("Mkdir() failed: %v", err)
	}
	if err := fsys.Cd("/work"); err != nil {
		t.Fatalf("Cd() failed: %v", err)
	}
	if err := fsys.Create("relative"); err != nil {
		t.Fatalf("Create(relative) after Cd failed: %v", err)
	}
	if _, err := fsys.Stat("/work/relative"); err != nil {
		t.Fatalf("Stat(/work/relative) failed: %v", err)
	}
}
