//go:build xz

package blockfs

import (
	"io"

	"github.com/ulikunitz/xz"
)

func init() {
	RegisterCompression(SnapshotXZ,
		func(w io.Writer) (io.WriteCloser, error) {
			return xz.NewWriter(w)
		},
		func(r io.Reader) (io.ReadCloser, error) {
			rc, err := xz.NewReader(r)
			if err != nil {
				return nil, err
			}
			return io.NopCloser(rc), nil
		},
	)
}
