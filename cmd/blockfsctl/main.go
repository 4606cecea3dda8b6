// Command blockfsctl is a non-interactive CLI over a blockfs image,
// styled after the teacher's cmd/sqfs: a manual os.Args switch, not a
// shell, one subcommand per verb.
package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/KarpelesLab/blockfs"
)

const usage = `blockfsctl - blockfs image CLI tool

Usage:
  blockfsctl mkfs <image> <inodes> <image_sectors> <block_sectors>   Create and format a new image
  blockfsctl ls <image> [<path>]                                     List files at path (default: /)
  blockfsctl cat <image> <file>                                      Display contents of a file
  blockfsctl mkdir <image> <path>                                    Create a directory
  blockfsctl stat <image> <path>                                     Show metadata for a path
  blockfsctl help                                                    Show this help message
`

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "mkfs":
		if len(os.Args) < 6 {
			fmt.Println("Error: mkfs needs <image> <inodes> <image_sectors> <block_sectors>")
			os.Exit(1)
		}
		err = mkfs(os.Args[2], os.Args[3], os.Args[4], os.Args[5])

	case "ls":
		if len(os.Args) < 3 {
			fmt.Println("Error: Missing image path")
			os.Exit(1)
		}
		path := "/"
		if len(os.Args) > 3 {
			path = os.Args[3]
		}
		err = listFiles(os.Args[2], path)

	case "cat":
		if len(os.Args) < 4 {
			fmt.Println("Error: Missing image path or target file")
			os.Exit(1)
		}
		err = catFile(os.Args[2], os.Args[3])

	case "mkdir":
		if len(os.Args) < 4 {
			fmt.Println("Error: Missing image path or target directory")
			os.Exit(1)
		}
		err = mkdirPath(os.Args[2], os.Args[3])

	case "stat":
		if len(os.Args) < 4 {
			fmt.Println("Error: Missing image path or target path")
			os.Exit(1)
		}
		err = statPath(os.Args[2], os.Args[3])

	case "help":
		fmt.Println(usage)
		return

	default:
		fmt.Printf("Error: Unknown command '%s'\n", os.Args[1])
		fmt.Println(usage)
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func mkfs(imagePath, inodesArg, sectorsArg, blockSectorsArg string) error {
	inodes, err := strconv.ParseUint(inodesArg, 10, 32)
	if err != nil {
		return fmt.Errorf("invalid inode count: %w", err)
	}
	sectors, err := strconv.ParseUint(sectorsArg, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid image sector count: %w", err)
	}
	blockSectors, err := strconv.ParseUint(blockSectorsArg, 10, 32)
	if err != nil {
		return fmt.Errorf("invalid block sector count: %w", err)
	}

	fsys := blockfs.New()
	if err := fsys.Init(imagePath, uint32(inodes), sectors, uint32(blockSectors)); err != nil {
		return fmt.Errorf("mkfs failed: %w", err)
	}
	return fsys.Unload()
}

func openImage(imagePath string) (*blockfs.Filesystem, error) {
	fsys := blockfs.New()
	if err := fsys.Load(imagePath); err != nil {
		return nil, fmt.Errorf("failed to load image: %w", err)
	}
	return fsys, nil
}

func joinPath(dir, name string) string {
	if dir == "/" {
		return "/" + name
	}
	return dir + "/" + name
}

func printEntry(displayPath string, attr blockfs.Attr) {
	mode := blockfs.InodeMode(&attr.Inode).String()
	size := fmt.Sprintf("%8d", attr.Size)
	if attr.Inode.FileType == blockfs.FileTypeDirectory {
		size = "       -"
	}
	modTime := time.Unix(int64(attr.Inode.ModifyTime), 0).Format("Jan 02 15:04")
	fmt.Printf("%s %s %s %s\n", mode, size, modTime, displayPath)
}

func listFiles(imagePath, dirPath string) error {
	fsys, err := openImage(imagePath)
	if err != nil {
		return err
	}
	defer fsys.Unload()

	did, err := fsys.Opendir(dirPath)
	if err != nil {
		return fmt.Errorf("failed to open directory '%s': %w", dirPath, err)
	}
	defer fsys.Closedir(did)

	for {
		ent, ok, err := fsys.Readdir(did)
		if err != nil {
			return fmt.Errorf("failed to read directory '%s': %w", dirPath, err)
		}
		if !ok {
			break
		}
		if ent.Name == "." || ent.Name == ".." {
			continue
		}
		childPath := joinPath(dirPath, ent.Name)
		attr, err := fsys.Stat(childPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to stat '%s': %s\n", childPath, err)
			continue
		}
		printEntry(ent.Name, attr)
	}
	return nil
}

// catFile reads exactly the apparent size reported by Stat: the facade has
// no logical end-of-file marker of its own (a read through an unallocated
// block beyond the last written data is an error, not a short read), so
// the caller has to know how much to ask for up front.
func catFile(imagePath, filePath string) error {
	fsys, err := openImage(imagePath)
	if err != nil {
		return err
	}
	defer fsys.Unload()

	attr, err := fsys.Stat(filePath)
	if err != nil {
		return fmt.Errorf("failed to stat '%s': %w", filePath, err)
	}
	if attr.Inode.FileType != blockfs.FileTypeRegular {
		return fmt.Errorf("'%s' is not a regular file", filePath)
	}

	fid, err := fsys.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open file '%s': %w", filePath, err)
	}
	defer fsys.Close(fid)

	buf := make([]byte, 64*1024)
	remaining := attr.Size
	for remaining > 0 {
		chunk := uint64(len(buf))
		if chunk > remaining {
			chunk = remaining
		}
		n, err := fsys.Read(fid, buf[:chunk])
		if err != nil {
			return fmt.Errorf("failed to read file '%s': %w", filePath, err)
		}
		if _, werr := os.Stdout.Write(buf[:n]); werr != nil {
			return fmt.Errorf("failed to write file contents to stdout: %w", werr)
		}
		remaining -= uint64(n)
	}
	return nil
}

func mkdirPath(imagePath, dirPath string) error {
	fsys, err := openImage(imagePath)
	if err != nil {
		return err
	}
	defer fsys.Unload()

	if err := fsys.Mkdir(dirPath); err != nil {
		return fmt.Errorf("failed to create directory '%s': %w", dirPath, err)
	}
	return nil
}

func statPath(imagePath, path string) error {
	fsys, err := openImage(imagePath)
	if err != nil {
		return err
	}
	defer fsys.Unload()

	attr, err := fsys.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat '%s': %w", path, err)
	}

	fmt.Printf("Path:             %s\n", path)
	fmt.Printf("Inode:            %d\n", attr.Ino)
	fmt.Printf("Type:             %s\n", fileTypeName(attr.Inode.FileType))
	fmt.Printf("Mode:             %s\n", blockfs.InodeMode(&attr.Inode).String())
	fmt.Printf("Size:             %d bytes\n", attr.Size)
	fmt.Printf("Links:            %d\n", attr.Inode.LinksCount)
	fmt.Printf("Access time:      %s\n", time.Unix(int64(attr.Inode.AccessTime), 0).Format(time.RFC1123))
	fmt.Printf("Modify time:      %s\n", time.Unix(int64(attr.Inode.ModifyTime), 0).Format(time.RFC1123))
	fmt.Printf("Change time:      %s\n", time.Unix(int64(attr.Inode.ChangeTime), 0).Format(time.RFC1123))
	return nil
}

func fileTypeName(t blockfs.FileType) string {
	switch t {
	case blockfs.FileTypeDirectory:
		return "directory"
	case blockfs.FileTypeRegular:
		return "regular"
	default:
		return "other"
	}
}
