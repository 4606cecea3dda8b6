package blockfs

import (
	"fmt"
	"io"
	"os"
)

// SnapshotCompression selects the codec Snapshot/Restore wrap the whole
// image in. The zero value means "store uncompressed", same convention
// as the teacher's SquashComp enum reserving low values for "no codec".
type SnapshotCompression uint16

const (
	SnapshotNone SnapshotCompression = iota
	SnapshotXZ
	SnapshotZSTD
)

func (c SnapshotCompression) String() string {
	switch c {
	case SnapshotNone:
		return "none"
	case SnapshotXZ:
		return "xz"
	case SnapshotZSTD:
		return "zstd"
	}
	return fmt.Sprintf("SnapshotCompression(%d)", c)
}

// compressionCodec pairs a stream compressor and decompressor, the shape
// ported from the teacher's CompHandler (comp.go/comp_xz.go/comp_zstd.go):
// an algorithm registers itself in an init() gated by a build tag, so a
// binary only links the codecs it was built with.
type compressionCodec struct {
	newWriter func(io.Writer) (io.WriteCloser, error)
	newReader func(io.Reader) (io.ReadCloser, error)
}

var compressionRegistry = map[SnapshotCompression]*compressionCodec{}

// RegisterCompression installs the codec for c. Called from snapshot_xz.go
// and snapshot_zstd.go's build-tag-gated init() functions, mirroring
// RegisterCompHandler's role for the teacher's squashfs block codecs.
func RegisterCompression(c SnapshotCompression, newWriter func(io.Writer) (io.WriteCloser, error), newReader func(io.Reader) (io.ReadCloser, error)) {
	compressionRegistry[c] = &compressionCodec{newWriter: newWriter, newReader: newReader}
}

type errUnsupportedCompression struct{ c SnapshotCompression }

func (e errUnsupportedCompression) Error() string {
	return fmt.Sprintf("blockfs: compression %s not registered (missing build tag?)", e.c)
}

// Snapshot writes a whole-image backup of the currently loaded disk to w,
// through the codec named by comp (SnapshotNone copies the raw bytes).
// Pending dirty sectors are flushed first so the backup is self-consistent.
func (fs *Filesystem) Snapshot(w io.Writer, comp SnapshotCompression) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := fs.syncLocked(); err != nil {
		return err
	}
	if !fs.disk.isOpen() {
		return ENODISK
	}

	dst := w
	var wc io.WriteCloser
	if comp != SnapshotNone {
		codec, ok := compressionRegistry[comp]
		if !ok {
			return errUnsupportedCompression{comp}
		}
		var err error
		wc, err = codec.newWriter(w)
		if err != nil {
			return err
		}
		dst = wc
	}

	if _, err := fs.disk.f.Seek(0, io.SeekStart); err != nil {
		return ERDFIL
	}
	if _, err := io.Copy(dst, fs.disk.f); err != nil {
		return ERDFIL
	}
	if wc != nil {
		if err := wc.Close(); err != nil {
			return EWRFIL
		}
	}
	return nil
}

// Restore decompresses r (per comp) into a fresh image file at path and
// loads it, replacing whatever image this Filesystem previously had
// loaded.
func (fs *Filesystem) Restore(path string, r io.Reader, comp SnapshotCompression) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	src := r
	if comp != SnapshotNone {
		codec, ok := compressionRegistry[comp]
		if !ok {
			return errUnsupportedCompression{comp}
		}
		rc, err := codec.newReader(r)
		if err != nil {
			return err
		}
		defer rc.Close()
		src = rc
	}

	if fs.disk.isOpen() {
		fs.disk.unload()
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return EOPFIL
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		return EWRFIL
	}
	if err := f.Close(); err != nil {
		return EWRFIL
	}

	return fs.loadLocked(path)
}
