package fuseadapter

import (
	"fmt"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/moby/sys/mountinfo"
)

// Mount mounts fsys's tree at dir, the way fs.Mount is used by go-fuse's
// own example/loopback command. Before mounting it refuses a dir that's
// already a mount point, the same guard the library's own examples skip
// but any real deployment needs (mounting onto an existing mount silently
// shadows it until a matching unmount, which is easy to leak).
func Mount(dir string, r *Root, options *fs.Options) (*fuse.Server, error) {
	mounted, err := mountinfo.Mounted(dir)
	if err != nil {
		return nil, fmt.Errorf("fuseadapter: checking mount state of %s: %w", dir, err)
	}
	if mounted {
		return nil, fmt.Errorf("fuseadapter: %s is already a mount point", dir)
	}

	return fs.Mount(dir, r.Inode(), options)
}
