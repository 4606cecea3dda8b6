package blockfs

import (
	"bytes"
	"encoding/binary"
)

// FileType is the inode's file_type field.
type FileType uint8

const (
	FileTypeRegular FileType = iota
	FileTypeDirectory
	FileTypeOther
)

// InodeBlocksMax is the number of direct block pointers an inode carries.
const InodeBlocksMax = 8

// pointerSize is the on-disk width of a block pointer (W in spec.md §4.6).
const pointerSize = 4

// InvalidInode is the sentinel inode number that must never be allocated
// (spec.md §3).
const InvalidInode uint32 = 0xFFFFFFFF

// RootInode is the reserved inode number for the root directory.
const RootInode uint32 = 0

// Inode is the fixed-size on-disk/in-memory metadata record for a file.
// Field order is the wire order (spec.md §6).
type Inode struct {
	FileType       FileType
	Perm           uint16
	AccessTime     uint32
	ChangeTime     uint32
	ModifyTime     uint32
	LinksCount     uint32
	Blocks         [InodeBlocksMax]uint32
	Indirect       uint32
	DoubleIndirect uint32
}

func (ino *Inode) MarshalBinary() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, uint8(ino.FileType)); err != nil {
		return nil, err
	}
	fields := []any{
		ino.Perm, ino.AccessTime, ino.ChangeTime, ino.ModifyTime, ino.LinksCount,
		ino.Blocks, ino.Indirect, ino.DoubleIndirect,
	}
	for _, f := range fields {
		if err := binary.Write(buf, binary.LittleEndian, f); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func (ino *Inode) UnmarshalBinary(data []byte) error {
	r := bytes.NewReader(data)
	var ft uint8
	if err := binary.Read(r, binary.LittleEndian, &ft); err != nil {
		return err
	}
	ino.FileType = FileType(ft)
	fields := []any{
		&ino.Perm, &ino.AccessTime, &ino.ChangeTime, &ino.ModifyTime, &ino.LinksCount,
		&ino.Blocks, &ino.Indirect, &ino.DoubleIndirect,
	}
	for _, f := range fields {
		if err := binary.Read(r, binary.LittleEndian, f); err != nil {
			return err
		}
	}
	return nil
}

// InodeRecordSize is the fixed on-disk size of one inode record.
func InodeRecordSize() int {
	ino := Inode{}
	b, _ := ino.MarshalBinary()
	return len(b)
}

// pointersPerBlock is P in spec.md §4.6: how many 32-bit pointers fit in
// one data block.
func (fs *Filesystem) pointersPerBlock() uint32 {
	return fs.dev.blockBytes() / pointerSize
}

// blockForIndex resolves a file-relative block index i to a data-region
// block id, per spec.md §4.6's direct/single-indirect/double-indirect
// scheme. If doAllocate is true and a pointer along the path is unallocated,
// allocateBlock is invoked first.
func (fs *Filesystem) blockForIndex(inodeNum uint32, ino *Inode, i uint32, doAllocate bool) (uint32, error) {
	if doAllocate {
		if err := fs.allocateBlock(inodeNum, ino, i); err != nil {
			return 0, err
		}
	}

	p := fs.pointersPerBlock()
	indirectMax := p
	doubleIndirectMax := p * p

	switch {
	case i < InodeBlocksMax:
		if ino.Blocks[i] == 0 {
			return 0, EFIL_INVALID_SECTOR
		}
		return ino.Blocks[i], nil

	case i < InodeBlocksMax+indirectMax:
		if ino.Indirect == 0 {
			return 0, EFIL_INVALID_SECTOR
		}
		var ptr uint32
		if err := fs.readPointer(ino.Indirect, (i-InodeBlocksMax)*pointerSize, &ptr); err != nil {
			return 0, err
		}
		if ptr == 0 {
			return 0, EFIL_INVALID_SECTOR
		}
		return ptr, nil

	case i < InodeBlocksMax+indirectMax+doubleIndirectMax:
		if ino.DoubleIndirect == 0 {
			return 0, EFIL_INVALID_SECTOR
		}
		j := i - InodeBlocksMax - indirectMax
		idx1 := j / p
		idx2 := j % p

		var l1 uint32
		if err := fs.readPointer(ino.DoubleIndirect, idx1*pointerSize, &l1); err != nil {
			return 0, err
		}
		if l1 == 0 {
			return 0, EFIL_INVALID_SECTOR
		}
		var l2 uint32
		if err := fs.readPointer(l1, idx2*pointerSize, &l2); err != nil {
			return 0, err
		}
		if l2 == 0 {
			return 0, EFIL_INVALID_SECTOR
		}
		return l2, nil

	default:
		return 0, EFIL_TOO_BIG
	}
}

func (fs *Filesystem) readPointer(block uint32, offset uint32, out *uint32) error {
	buf := make([]byte, pointerSize)
	if err := fs.dev.readObject(block, offset, buf); err != nil {
		return err
	}
	*out = binary.LittleEndian.Uint32(buf)
	return nil
}

func (fs *Filesystem) writePointer(block uint32, offset uint32, val uint32) error {
	buf := make([]byte, pointerSize)
	binary.LittleEndian.PutUint32(buf, val)
	return fs.dev.writeObject(block, offset, buf)
}

// allocateBlock walks the addressing tree for file-relative index i,
// allocating and zero-initializing any missing level along the way, then
// persisting the inode (and any newly written indirect blocks) immediately.
// Already-allocated levels are left untouched.
func (fs *Filesystem) allocateBlock(inodeNum uint32, ino *Inode, i uint32) error {
	p := fs.pointersPerBlock()
	indirectMax := p
	doubleIndirectMax := p * p

	switch {
	case i < InodeBlocksMax:
		if ino.Blocks[i] != 0 {
			return nil
		}
		blk, err := fs.allocDataBlock()
		if err != nil {
			return err
		}
		ino.Blocks[i] = blk
		return fs.writeInode(inodeNum, ino)

	case i < InodeBlocksMax+indirectMax:
		if ino.Indirect == 0 {
			blk, err := fs.allocDataBlock()
			if err != nil {
				return err
			}
			if err := fs.zeroBlock(blk); err != nil {
				return err
			}
			ino.Indirect = blk
			if err := fs.writeInode(inodeNum, ino); err != nil {
				return err
			}
		}

		off := (i - InodeBlocksMax) * pointerSize
		var existing uint32
		if err := fs.readPointer(ino.Indirect, off, &existing); err != nil {
			return err
		}
		if existing != 0 {
			return nil
		}
		blk, err := fs.allocDataBlock()
		if err != nil {
			return err
		}
		return fs.writePointer(ino.Indirect, off, blk)

	case i < InodeBlocksMax+indirectMax+doubleIndirectMax:
		if ino.DoubleIndirect == 0 {
			blk, err := fs.allocDataBlock()
			if err != nil {
				return err
			}
			if err := fs.zeroBlock(blk); err != nil {
				return err
			}
			ino.DoubleIndirect = blk
			if err := fs.writeInode(inodeNum, ino); err != nil {
				return err
			}
		}

		j := i - InodeBlocksMax - indirectMax
		idx1 := j / p
		idx2 := j % p

		var l1 uint32
		if err := fs.readPointer(ino.DoubleIndirect, idx1*pointerSize, &l1); err != nil {
			return err
		}
		if l1 == 0 {
			blk, err := fs.allocDataBlock()
			if err != nil {
				return err
			}
			if err := fs.zeroBlock(blk); err != nil {
				return err
			}
			l1 = blk
			if err := fs.writePointer(ino.DoubleIndirect, idx1*pointerSize, l1); err != nil {
				return err
			}
		}

		var l2 uint32
		if err := fs.readPointer(l1, idx2*pointerSize, &l2); err != nil {
			return err
		}
		if l2 != 0 {
			return nil
		}
		blk, err := fs.allocDataBlock()
		if err != nil {
			return err
		}
		return fs.writePointer(l1, idx2*pointerSize, blk)

	default:
		return EFIL_TOO_BIG
	}
}

func (fs *Filesystem) zeroBlock(blk uint32) error {
	buf := make([]byte, fs.dev.blockBytes())
	return fs.dev.writeBlock(blk, buf, 1)
}

// truncateInode implements spec.md §4.6's truncate: frees every block at or
// beyond the new block count K, across direct, single-indirect and
// double-indirect levels.
func (fs *Filesystem) truncateInode(inodeNum uint32, ino *Inode, newSize uint64) error {
	bb := uint64(fs.dev.blockBytes())
	k := newSize / bb
	if newSize%bb != 0 {
		k++
	}
	p := uint64(fs.pointersPerBlock())

	for i := uint64(InodeBlocksMax) - 1; ; i-- {
		if i >= k && ino.Blocks[i] != 0 {
			fs.freeDataBlock(ino.Blocks[i])
			ino.Blocks[i] = 0
		}
		if i == 0 {
			break
		}
	}

	if ino.Indirect != 0 {
		if err := fs.truncateIndirect(ino.Indirect, k, uint64(InodeBlocksMax), p); err != nil {
			return err
		}
		if k <= InodeBlocksMax {
			fs.freeDataBlock(ino.Indirect)
			ino.Indirect = 0
		}
	}

	if ino.DoubleIndirect != 0 {
		base := uint64(InodeBlocksMax) + p
		if err := fs.truncateDoubleIndirect(ino.DoubleIndirect, k, base, p); err != nil {
			return err
		}
		if k <= InodeBlocksMax {
			fs.freeDataBlock(ino.DoubleIndirect)
			ino.DoubleIndirect = 0
		}
	}

	return nil
}

// truncateIndirect frees leaf pointers in a single-indirect block whose
// file-relative index (base + slot) is >= k.
func (fs *Filesystem) truncateIndirect(block uint32, k, base, p uint64) error {
	buf := make([]byte, fs.dev.blockBytes())
	if err := fs.dev.readBlock(block, buf, 1); err != nil {
		return err
	}
	changed := false
	for slot := uint64(0); slot < p; slot++ {
		idx := base + slot
		off := slot * pointerSize
		ptr := binary.LittleEndian.Uint32(buf[off : off+pointerSize])
		if ptr != 0 && idx >= k {
			fs.freeDataBlock(ptr)
			binary.LittleEndian.PutUint32(buf[off:off+pointerSize], 0)
			changed = true
		}
	}
	if changed {
		return fs.dev.writeBlock(block, buf, 1)
	}
	return nil
}

// truncateDoubleIndirect walks a double-indirect block's level-1 pointers,
// freeing their level-2 leaves (and themselves, once empty of anything
// still below k) per spec.md §4.6.
func (fs *Filesystem) truncateDoubleIndirect(block uint32, k, base, p uint64) error {
	buf := make([]byte, fs.dev.blockBytes())
	if err := fs.dev.readBlock(block, buf, 1); err != nil {
		return err
	}
	changed := false
	for slot := uint64(0); slot < p; slot++ {
		off := slot * pointerSize
		l1 := binary.LittleEndian.Uint32(buf[off : off+pointerSize])
		if l1 == 0 {
			continue
		}
		l1Base := base + slot*p
		if l1Base+p <= k {
			// entirely below the new size: nothing to free here
			continue
		}
		if err := fs.truncateIndirect(l1, k, l1Base, p); err != nil {
			return err
		}
		if l1Base >= k {
			fs.freeDataBlock(l1)
			binary.LittleEndian.PutUint32(buf[off:off+pointerSize], 0)
			changed = true
		}
	}
	if changed {
		return fs.dev.writeBlock(block, buf, 1)
	}
	return nil
}
