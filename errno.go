package blockfs

import "fmt"

// Errno is one of the closed set of negative error codes a facade operation
// may return. It implements error so callers can use errors.Is against the
// package-level sentinels below.
type Errno int

const (
	ENOMEM             Errno = -1  // allocation failed
	EOPFIL             Errno = -2  // host file open failed
	ERDFIL             Errno = -3  // host file read failed
	EWRFIL             Errno = -4  // host file write failed
	ENODISK            Errno = -5  // operation attempted with no image loaded
	EOUT_OF_BLOCKS     Errno = -6  // data-block bitmap exhausted
	EOUT_OF_INODES     Errno = -7  // inode bitmap exhausted
	EDIR_FILE_NOT_FOUND Errno = -8  // path leaf missing
	EDIR_FILE_EXISTS   Errno = -9  // collision on create/mkdir/link
	EDIR_INVALID_PATH  Errno = -10 // empty path, missing intermediate, malformed
	EDIR_NOT_A_DIR     Errno = -11 // intermediate is not a directory
	EDIR_NOT_EMPTY     Errno = -12 // rmdir target has entries beyond ./..
	EFIL_INVALID_POS   Errno = -13 // seek/truncate out of reach
	EFIL_INVALID_SECTOR Errno = -14 // read through an unallocated pointer
	EFIL_WRONG_TYPE    Errno = -15 // unlink applied to a directory without force
	EFIL_TOO_BIG       Errno = -16 // block index beyond double-indirect capacity
	EFID_INVALID_ID    Errno = -17 // unknown open file handle id
	EDID_INVALID_ID    Errno = -18 // unknown open directory handle id
	EIND_INVALID_INODE Errno = -19 // inode bitmap says "free"
	EALREADY_LOADED    Errno = -20 // image file already locked by another open instance
)

var errnoText = map[Errno]string{
	ENOMEM:              "allocation failed",
	EOPFIL:              "host file open failed",
	ERDFIL:              "host file read failed",
	EWRFIL:              "host file write failed",
	ENODISK:             "no image loaded",
	EOUT_OF_BLOCKS:      "data-block bitmap exhausted",
	EOUT_OF_INODES:      "inode bitmap exhausted",
	EDIR_FILE_NOT_FOUND: "file not found",
	EDIR_FILE_EXISTS:    "file exists",
	EDIR_INVALID_PATH:   "invalid path",
	EDIR_NOT_A_DIR:      "not a directory",
	EDIR_NOT_EMPTY:      "directory not empty",
	EFIL_INVALID_POS:    "invalid position",
	EFIL_INVALID_SECTOR: "read through unallocated block",
	EFIL_WRONG_TYPE:     "wrong file type for operation",
	EFIL_TOO_BIG:        "file too big",
	EFID_INVALID_ID:     "invalid file handle id",
	EDID_INVALID_ID:     "invalid directory handle id",
	EIND_INVALID_INODE:  "invalid (unallocated) inode",
	EALREADY_LOADED:     "image already loaded",
}

func (e Errno) Error() string {
	if s, ok := errnoText[e]; ok {
		return s
	}
	return fmt.Sprintf("blockfs: errno %d", int(e))
}

// Is lets errors.Is(err, EDIR_FILE_EXISTS) work against a plain Errno value.
func (e Errno) Is(target error) bool {
	t, ok := target.(Errno)
	return ok && t == e
}
