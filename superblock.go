package blockfs

import (
	"bytes"
	"encoding/binary"
	"reflect"
)

// SuperblockMagic is the fixed value stored in every valid image's
// superblock (spec.md §3/§6).
const SuperblockMagic uint16 = 0xBEEF

// Superblock describes image geometry and layout offsets. It lives in
// sector 0, padded to exactly one sector. Field order is significant: it
// is the on-disk wire order, decoded sequentially the same way the
// teacher's Superblock.UnmarshalBinary walks its exported fields with
// reflect (super.go), generalized here to also drive Marshal.
type Superblock struct {
	InodesCount   uint32
	InodesFree    uint32
	InodeSize     uint32
	BlocksCount   uint32
	BlocksFree    uint32
	BlockSize     uint32
	BlockOffset   uint32
	InodemapFirst uint32
	InodeFirst    uint32
	SpacemapFirst uint32
	DataFirst     uint32
	InodemapSize  uint32
	InodesSize    uint32
	SpacemapSize  uint32
	Magic         uint16
}

// superblockWireSize is the size of the encoded fields before padding to a
// full sector.
func superblockWireSize() int {
	v := reflect.ValueOf(Superblock{})
	sz := 0
	for i := 0; i < v.NumField(); i++ {
		sz += int(v.Type().Field(i).Type.Size())
	}
	return sz
}

// MarshalBinary encodes the superblock, little-endian, in declaration
// order, padded to SectorSize.
func (sb *Superblock) MarshalBinary() ([]byte, error) {
	buf := new(bytes.Buffer)
	v := reflect.ValueOf(*sb)
	for i := 0; i < v.NumField(); i++ {
		if err := binary.Write(buf, binary.LittleEndian, v.Field(i).Interface()); err != nil {
			return nil, err
		}
	}
	out := make([]byte, SectorSize)
	copy(out, buf.Bytes())
	return out, nil
}

// UnmarshalBinary decodes a sector-sized buffer into sb, validating the
// magic value.
func (sb *Superblock) UnmarshalBinary(data []byte) error {
	r := bytes.NewReader(data)
	v := reflect.ValueOf(sb).Elem()
	for i := 0; i < v.NumField(); i++ {
		if err := binary.Read(r, binary.LittleEndian, v.Field(i).Addr().Interface()); err != nil {
			return err
		}
	}
	if sb.Magic != SuperblockMagic {
		return ErrBadMagic
	}
	return nil
}

// ErrBadMagic is returned by UnmarshalBinary when the superblock's magic
// field doesn't match SuperblockMagic. It is a hard load error (spec.md §6).
var ErrBadMagic = errBadMagic{}

type errBadMagic struct{}

func (errBadMagic) Error() string { return "blockfs: bad superblock magic" }

// errBadLayout signals a superblock whose layout invariants (spec.md §3)
// don't hold; this is always a corrupt or foreign image, never a normal
// runtime condition, so it doesn't need an Errno of its own.
type errBadLayout struct{ reason string }

func (e errBadLayout) Error() string { return "blockfs: invalid superblock layout: " + e.reason }

// validate checks the layout invariants from spec.md §3.
func (sb *Superblock) validate() error {
	switch {
	case sb.InodesFree > sb.InodesCount:
		return errBadLayout{"inodes_free > inodes_count"}
	case sb.BlocksFree > sb.BlocksCount:
		return errBadLayout{"blocks_free > blocks_count"}
	case sb.InodeFirst+sb.InodesSize > sb.SpacemapFirst:
		return errBadLayout{"inode table overlaps space-map"}
	case sb.SpacemapFirst > sb.DataFirst:
		return errBadLayout{"space-map starts after the data-addressable region"}
	}
	return nil
}
