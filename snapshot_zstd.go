//go:build zstd

package blockfs

import (
	"io"

	"github.com/klauspost/compress/zstd"
)

// zstdReadCloser adapts *zstd.Decoder (whose Close takes no error) to
// io.ReadCloser, the same mismatch the teacher papers over with its own
// MakeDecompressor helper for zstd.ZipDecompressor.
type zstdReadCloser struct {
	*zstd.Decoder
}

func (z zstdReadCloser) Close() error {
	z.Decoder.Close()
	return nil
}

func init() {
	RegisterCompression(SnapshotZSTD,
		func(w io.Writer) (io.WriteCloser, error) {
			return zstd.NewWriter(w)
		},
		func(r io.Reader) (io.ReadCloser, error) {
			d, err := zstd.NewReader(r)
			if err != nil {
				return nil, err
			}
			return zstdReadCloser{d}, nil
		},
	)
}
