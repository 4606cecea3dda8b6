package blockfs

import (
	"bytes"
	"encoding/binary"
)

// DirentNameMax is the maximum stored name length, including the NUL
// terminator (spec.md §4.7).
const DirentNameMax = 32

// direntSize is the fixed on-disk width of one directory entry: a uint32
// inode number, a uint8 type, and a 32-byte padded name.
const direntSize = 4 + 1 + DirentNameMax

// Dirent is one fixed-width directory entry.
type Dirent struct {
	Inode uint32
	Type  FileType
	Name  string
}

// sentinelDirent marks end-of-directory.
func sentinelDirent() Dirent {
	return Dirent{Inode: InvalidInode}
}

func (e Dirent) isSentinel() bool {
	return e.Inode == InvalidInode
}

func (e Dirent) marshal() []byte {
	buf := make([]byte, direntSize)
	binary.LittleEndian.PutUint32(buf[0:4], e.Inode)
	buf[4] = byte(e.Type)
	n := copy(buf[5:5+DirentNameMax-1], e.Name)
	_ = n
	return buf
}

func unmarshalDirent(buf []byte) Dirent {
	inode := binary.LittleEndian.Uint32(buf[0:4])
	typ := FileType(buf[4])
	name := buf[5 : 5+DirentNameMax]
	if nul := bytes.IndexByte(name, 0); nul >= 0 {
		name = name[:nul]
	}
	return Dirent{Inode: inode, Type: typ, Name: string(name)}
}
