package blockfs

// Directory represents an open directory: a sequence of fixed-width
// dirents terminated by a sentinel (dirent.go), stored as the byte content
// of an underlying regular file handle. As recorded in DESIGN.md,
// Directory contains a *File by
// composition instead of subclassing it, mirroring
// original_source/src/entities/dir/dir.cpp's relationship to file.cpp.
type Directory struct {
	fs   *Filesystem
	ino  uint32
	file *File
}

func (fs *Filesystem) openDirHandle(inodeNum uint32) (*Directory, error) {
	f, err := fs.openFileHandle(inodeNum)
	if err != nil {
		return nil, err
	}
	if f.inode.FileType != FileTypeDirectory {
		return nil, EDIR_NOT_A_DIR
	}
	return &Directory{fs: fs, ino: inodeNum, file: f}, nil
}

// Rewind resets the read cursor to the first entry.
func (d *Directory) Rewind() {
	d.file.Seek(0)
}

// ReadNext returns the next live entry and advances the cursor past it. ok
// is false once the sentinel is reached; the cursor is left positioned at
// the sentinel so repeated calls keep returning ok == false.
func (d *Directory) ReadNext() (entry Dirent, ok bool, err error) {
	buf := make([]byte, direntSize)
	pos := d.file.pos
	if _, err = d.file.Read(buf); err != nil {
		return Dirent{}, false, err
	}
	e := unmarshalDirent(buf)
	if e.isSentinel() {
		d.file.Seek(pos)
		return Dirent{}, false, nil
	}
	return e, true, nil
}

// find performs a linear scan for name, returning its entry and byte
// offset. It does not disturb the directory's read cursor.
func (d *Directory) find(name string) (entry Dirent, offset uint64, err error) {
	saved := d.file.pos
	defer d.file.Seek(saved)

	d.file.Seek(0)
	buf := make([]byte, direntSize)
	for {
		off := d.file.pos
		if _, err := d.file.Read(buf); err != nil {
			return Dirent{}, 0, err
		}
		e := unmarshalDirent(buf)
		if e.isSentinel() {
			return Dirent{}, 0, EDIR_FILE_NOT_FOUND
		}
		if e.Name == name {
			return e, off, nil
		}
	}
}

// count returns the number of live entries and the byte offset of the
// sentinel.
func (d *Directory) count() (n uint64, sentinelOffset uint64, err error) {
	saved := d.file.pos
	defer d.file.Seek(saved)

	d.file.Seek(0)
	buf := make([]byte, direntSize)
	for {
		off := d.file.pos
		if _, err := d.file.Read(buf); err != nil {
			return 0, 0, err
		}
		if unmarshalDirent(buf).isSentinel() {
			return n, off, nil
		}
		n++
	}
}

// addEntry appends a new dirent, failing with EDIR_FILE_EXISTS if name is
// already present. The new entry overwrites the current sentinel, and a
// fresh sentinel is written immediately after it.
func (d *Directory) addEntry(inode uint32, typ FileType, name string) error {
	if len(name) >= DirentNameMax {
		return EDIR_INVALID_PATH
	}
	if _, _, err := d.find(name); err == nil {
		return EDIR_FILE_EXISTS
	} else if err != EDIR_FILE_NOT_FOUND {
		return err
	}

	_, sentinelOffset, err := d.count()
	if err != nil {
		return err
	}

	saved := d.file.pos
	defer d.file.Seek(saved)

	d.file.Seek(sentinelOffset)
	entry := Dirent{Inode: inode, Type: typ, Name: name}
	if _, err := d.file.Write(entry.marshal()); err != nil {
		return err
	}
	if _, err := d.file.Write(sentinelDirent().marshal()); err != nil {
		return err
	}
	return nil
}

// removeEntry deletes the entry named name. Per
// original_source/src/entities/dir/dir.cpp's remove_entry, every entry
// after the deleted one (including the sentinel) is shifted left by one
// slot, preserving the order of the surviving entries; the file is then
// truncated by one entry-slot.
func (d *Directory) removeEntry(name string) error {
	_, offset, err := d.find(name)
	if err != nil {
		return err
	}

	_, sentinelOffset, err := d.count()
	if err != nil {
		return err
	}

	saved := d.file.pos
	defer d.file.Seek(saved)

	tailStart := offset + direntSize
	tailLen := sentinelOffset - offset // covers every later entry plus the sentinel
	buf := make([]byte, tailLen)
	d.file.Seek(tailStart)
	if _, err := d.file.Read(buf); err != nil {
		return err
	}
	d.file.Seek(offset)
	if _, err := d.file.Write(buf); err != nil {
		return err
	}

	return d.file.Trunc(sentinelOffset)
}

// isEmpty reports whether the directory holds no entries.
func (d *Directory) isEmpty() (bool, error) {
	n, _, err := d.count()
	if err != nil {
		return false, err
	}
	return n == 0, nil
}
