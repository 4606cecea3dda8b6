package blockfs

import (
	"os"
)

// SectorSize is the fixed physical unit of the backing image file.
const SectorSize = 512

// disk provides sector-granular read/write access to a single host file.
// It is stateless beyond the open *os.File and mirrors the teacher's
// io.ReaderAt-centric style, except it also needs to write.
type disk struct {
	f      *os.File
	locked bool
}

// create truncates (or creates) the image file at path and fills it with
// nSectors*SectorSize zero bytes.
func (d *disk) create(path string, nSectors int64) error {
	d.unload()

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return EOPFIL
	}

	if err := lockExclusive(f); err != nil {
		f.Close()
		return EALREADY_LOADED
	}

	if err := f.Truncate(nSectors * SectorSize); err != nil {
		f.Close()
		return EWRFIL
	}

	d.f = f
	d.locked = true
	return nil
}

// load opens an existing image file for read+write.
func (d *disk) load(path string) error {
	d.unload()

	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return EOPFIL
	}

	if err := lockExclusive(f); err != nil {
		f.Close()
		return EALREADY_LOADED
	}

	d.f = f
	d.locked = true
	return nil
}

// unload flushes and closes the image file.
func (d *disk) unload() error {
	if d.f == nil {
		return nil
	}
	if err := d.f.Sync(); err != nil {
		d.f.Close()
		d.f = nil
		return EWRFIL
	}
	if d.locked {
		unlockFile(d.f)
		d.locked = false
	}
	err := d.f.Close()
	d.f = nil
	if err != nil {
		return EWRFIL
	}
	return nil
}

func (d *disk) isOpen() bool {
	return d.f != nil
}

// readAt and writeAt give byte-granular access for regions the block cache
// never sees: the superblock sector and the two bitmaps (spec.md §4.5 scopes
// the cache to the data region only).
func (d *disk) readAt(off int64, buf []byte) error {
	if d.f == nil {
		return ENODISK
	}
	if _, err := d.f.ReadAt(buf, off); err != nil {
		return ERDFIL
	}
	return nil
}

func (d *disk) writeAt(off int64, buf []byte) error {
	if d.f == nil {
		return ENODISK
	}
	if _, err := d.f.WriteAt(buf, off); err != nil {
		return EWRFIL
	}
	return nil
}

// readBlock reads n contiguous sectors starting at startSector into buf.
// buf must have room for n*SectorSize bytes. Returns the byte count read.
func (d *disk) readBlock(startSector uint64, buf []byte, n int) (int, error) {
	if d.f == nil {
		return 0, ENODISK
	}
	want := n * SectorSize
	if len(buf) < want {
		buf = buf[:want]
	}
	read, err := d.f.ReadAt(buf[:want], int64(startSector)*SectorSize)
	if err != nil {
		return read, ERDFIL
	}
	return read, nil
}

// writeBlock writes n contiguous sectors starting at startSector from buf.
func (d *disk) writeBlock(startSector uint64, buf []byte, n int) (int, error) {
	if d.f == nil {
		return 0, ENODISK
	}
	want := n * SectorSize
	written, err := d.f.WriteAt(buf[:want], int64(startSector)*SectorSize)
	if err != nil {
		return written, EWRFIL
	}
	return written, nil
}
