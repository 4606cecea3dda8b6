package blockfs

// device is the block-device layer of spec.md §4.5: it sits between the
// facade and the (cache, disk) pair, translating data-region block indices
// to absolute sectors and offering block- and object-granular primitives.
type device struct {
	d          *disk
	cache      *blockCache
	blockSize  uint32 // in sectors
	blockOffset uint32 // absolute sector where block 0 of the layout begins
	dataFirst  uint32 // first data-region block, relative to block 0 of the layout
}

func (dv *device) blockBytes() uint32 {
	return dv.blockSize * SectorSize
}

// absoluteSector converts a data-region block index to an absolute sector,
// per spec.md §6's block_offset field: every block-relative offset in the
// superblock is measured from the sector right after the superblock itself.
func (dv *device) absoluteSector(blockIdx uint32) uint64 {
	return uint64(dv.blockOffset) + uint64(dv.dataFirst+blockIdx)*uint64(dv.blockSize)
}

// readBlock reads n consecutive data-region blocks starting at id into buf,
// serving cached blocks directly and coalescing maximal runs of uncached
// blocks into single underlying reads.
func (dv *device) readBlock(id uint32, buf []byte, n int) error {
	bb := int(dv.blockBytes())

	i := 0
	for i < n {
		if cached, ok := dv.cache.get(uint64(id) + uint64(i)); ok {
			copy(buf[i*bb:(i+1)*bb], cached)
			i++
			continue
		}

		// coalesce a run of uncached blocks starting here
		runStart := i
		for i < n {
			if _, ok := dv.cache.get(uint64(id) + uint64(i)); ok {
				break
			}
			i++
		}
		runLen := i - runStart

		sector := dv.absoluteSector(id + uint32(runStart))
		region := buf[runStart*bb : (runStart+runLen)*bb]
		if _, err := dv.d.readBlock(sector, region, runLen*int(dv.blockSize)); err != nil {
			return err
		}

		for j := 0; j < runLen; j++ {
			blk := make([]byte, bb)
			copy(blk, region[j*bb:(j+1)*bb])
			dv.cache.insert(uint64(id)+uint64(runStart+j), blk)
		}
	}

	return nil
}

// writeBlock writes n consecutive data-region blocks from buf, write-through:
// every block is inserted into the cache and the whole range is issued as
// one underlying write.
func (dv *device) writeBlock(id uint32, buf []byte, n int) error {
	bb := int(dv.blockBytes())

	sector := dv.absoluteSector(id)
	if _, err := dv.d.writeBlock(sector, buf[:n*bb], n*int(dv.blockSize)); err != nil {
		return err
	}

	for j := 0; j < n; j++ {
		blk := make([]byte, bb)
		copy(blk, buf[j*bb:(j+1)*bb])
		dv.cache.insert(uint64(id)+uint64(j), blk)
	}
	return nil
}

// readObject copies a byte-granular range starting at (startBlock, offset)
// into dst, which may span multiple blocks.
func (dv *device) readObject(startBlock uint32, offset uint32, dst []byte) error {
	bb := dv.blockBytes()
	size := uint32(len(dst))
	blk := startBlock
	off := offset
	pos := uint32(0)
	buf := make([]byte, bb)

	for pos < size {
		if err := dv.readBlock(blk, buf, 1); err != nil {
			return err
		}
		n := size - pos
		if n > bb-off {
			n = bb - off
		}
		copy(dst[pos:pos+n], buf[off:off+n])
		pos += n
		off = 0
		blk++
	}
	return nil
}

// writeObject copies src into the blocks starting at (startBlock, offset).
// Whole-block-aligned middle blocks are written without a preceding read.
func (dv *device) writeObject(startBlock uint32, offset uint32, src []byte) error {
	bb := dv.blockBytes()
	size := uint32(len(src))
	blk := startBlock
	off := offset
	pos := uint32(0)

	for pos < size {
		n := size - pos
		if n > bb-off {
			n = bb - off
		}

		if n == bb {
			// whole aligned block: no read-modify-write needed
			if err := dv.writeBlock(blk, src[pos:pos+n], 1); err != nil {
				return err
			}
		} else {
			buf := make([]byte, bb)
			if err := dv.readBlock(blk, buf, 1); err != nil {
				return err
			}
			copy(buf[off:off+n], src[pos:pos+n])
			if err := dv.writeBlock(blk, buf, 1); err != nil {
				return err
			}
		}

		pos += n
		off = 0
		blk++
	}
	return nil
}
