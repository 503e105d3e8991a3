// Command vfsutil is a small CLI front-end over the persistence engines of
// this module, in the style of the teacher's own cmd/sqfs: one subcommand
// per verb, plain os.Args dispatch, no flag-parsing framework beyond the
// stdlib flag package for per-subcommand options.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/KarpelesLab/vfscore"
	"github.com/KarpelesLab/vfscore/dev"
	"github.com/KarpelesLab/vfscore/sefs"
	"github.com/KarpelesLab/vfscore/sfs"
)

const usage = `vfsutil - vfscore CLI tool

Usage:
  vfsutil mkfs.sfs -size <bytes> <image>      Format <image> as a fresh SFS volume
  vfsutil mkfs.sefs <dir>                     Format <dir> as a fresh SEFS volume
  vfsutil ls <image> [<path>]                 List files in an SFS volume
  vfsutil cat <image> <file>                  Display a file's contents from an SFS volume
  vfsutil fsck <image>                        Check an SFS volume's free-bitmap consistency
  vfsutil help                                Show this help message
`

func main() {
	if len(os.Args) < 2 {
		fmt.Print(usage)
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "mkfs.sfs":
		err = cmdMkfsSfs(os.Args[2:])
	case "mkfs.sefs":
		err = cmdMkfsSefs(os.Args[2:])
	case "ls":
		err = cmdLs(os.Args[2:])
	case "cat":
		err = cmdCat(os.Args[2:])
	case "fsck":
		err = cmdFsck(os.Args[2:])
	case "help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n", os.Args[1])
		fmt.Print(usage)
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func cmdMkfsSfs(args []string) error {
	fs := flag.NewFlagSet("mkfs.sfs", flag.ExitOnError)
	size := fs.Uint64("size", 16*1024*1024, "volume capacity in bytes")
	blockLog2 := fs.Uint("blocklog2", 12, "block size as a power of two (12 = 4096 bytes)")
	fs.Parse(args)

	if fs.NArg() < 1 {
		return fmt.Errorf("mkfs.sfs: missing image path")
	}
	path := fs.Arg(0)

	bd, err := dev.OpenFileBlockDevice(path, uint8(*blockLog2))
	if err != nil {
		return err
	}
	defer bd.Close()

	f, err := sfs.Create(bd, *size)
	if err != nil {
		return fmt.Errorf("mkfs.sfs: %w", err)
	}
	if err := f.Sync(); err != nil {
		return err
	}
	fmt.Printf("formatted %s: %d bytes, block size %d\n", path, *size, uint32(1)<<*blockLog2)
	return nil
}

func cmdMkfsSefs(args []string) error {
	fs := flag.NewFlagSet("mkfs.sefs", flag.ExitOnError)
	blockSize := fs.Int("blocksize", sefs.DefaultBlockSize, "metadata block size in bytes")
	integrity := fs.Bool("integrity", false, "enable integrity-only (MAC) mode")
	fs.Parse(args)

	if fs.NArg() < 1 {
		return fmt.Errorf("mkfs.sefs: missing target directory")
	}
	dir := fs.Arg(0)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	storage := dev.NewDirStorage(dir, *integrity)
	policy := sefs.PolicyError

	f, err := sefs.Create(storage, *blockSize, policy)
	if err != nil {
		return fmt.Errorf("mkfs.sefs: %w", err)
	}
	if err := f.Sync(); err != nil {
		return err
	}
	fmt.Printf("formatted %s as SEFS: block size %d, integrity=%v\n", dir, *blockSize, *integrity)
	return nil
}

func openSfs(path string) (*sfs.FS, *dev.FileBlockDevice, error) {
	bd, err := dev.OpenFileBlockDevice(path, 12)
	if err != nil {
		return nil, nil, err
	}
	f, err := sfs.Open(bd)
	if err != nil {
		bd.Close()
		return nil, nil, err
	}
	return f, bd, nil
}

func cmdLs(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("ls: missing image path")
	}
	f, bd, err := openSfs(args[0])
	if err != nil {
		return err
	}
	defer bd.Close()

	dir := f.RootInode()
	if len(args) > 1 {
		dir, err = vfs.LookupFollow(f, args[1], 8)
		if err != nil {
			return err
		}
	}

	md, err := dir.Metadata()
	if err != nil {
		return err
	}
	if md.Type != vfs.TypeDir {
		return vfs.ErrNotDir
	}

	for i := 0; ; i++ {
		name, err := dir.GetEntry(i)
		if err != nil {
			break
		}
		child, err := dir.Find(name)
		if err != nil {
			continue
		}
		cmd, err := child.Metadata()
		if err != nil {
			continue
		}
		fmt.Printf("%s %8d %s\n", typeChar(cmd.Type), cmd.Size, name)
	}
	return nil
}

func typeChar(t vfs.FileType) string {
	switch t {
	case vfs.TypeDir:
		return "d"
	case vfs.TypeSymLink:
		return "l"
	default:
		return "-"
	}
}

func cmdCat(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("cat: missing image path or target file")
	}
	f, bd, err := openSfs(args[0])
	if err != nil {
		return err
	}
	defer bd.Close()

	ino, err := vfs.LookupFollow(f, args[1], 8)
	if err != nil {
		return err
	}
	md, err := ino.Metadata()
	if err != nil {
		return err
	}
	buf := make([]byte, md.Size)
	if _, err := ino.ReadAt(0, buf); err != nil {
		return err
	}
	_, err = os.Stdout.Write(buf)
	return err
}

func cmdFsck(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("fsck: missing image path")
	}
	f, bd, err := openSfs(args[0])
	if err != nil {
		return err
	}
	defer bd.Close()

	report, err := f.Check()
	if err != nil {
		return err
	}
	if report.OK() {
		fmt.Println("fsck: OK, no bitmap mismatches")
		return nil
	}
	fmt.Printf("fsck: %d bitmap mismatches: %v\n", len(report.BitmapMismatches), report.BitmapMismatches)
	os.Exit(2)
	return nil
}
