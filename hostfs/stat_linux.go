//go:build linux

package hostfs

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/KarpelesLab/vfscore"
)

func lstatMetadata(path string) (vfs.Metadata, error) {
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return vfs.Metadata{}, wrapErr(err)
	}

	typ := vfs.TypeFile
	switch st.Mode & unix.S_IFMT {
	case unix.S_IFDIR:
		typ = vfs.TypeDir
	case unix.S_IFLNK:
		typ = vfs.TypeSymLink
	case unix.S_IFCHR:
		typ = vfs.TypeCharDevice
	case unix.S_IFBLK:
		typ = vfs.TypeBlockDevice
	}

	return vfs.Metadata{
		Inode:   st.Ino,
		Size:    uint64(st.Size),
		Mode:    uint32(st.Mode & 0o7777),
		Type:    typ,
		NLinks:  uint32(st.Nlink),
		UID:     st.Uid,
		GID:     st.Gid,
		BlkSize: uint32(st.Blksize),
		Blocks:  uint64(st.Blocks),
		ATime:   time.Unix(st.Atim.Sec, st.Atim.Nsec),
		MTime:   time.Unix(st.Mtim.Sec, st.Mtim.Nsec),
		CTime:   time.Unix(st.Ctim.Sec, st.Ctim.Nsec),
		RDev:    vfs.UnpackDev(st.Rdev),
	}, nil
}

func statfsInfo(root string) (vfs.FsInfo, error) {
	var sfs unix.Statfs_t
	if err := unix.Statfs(root, &sfs); err != nil {
		return vfs.FsInfo{}, wrapErr(err)
	}
	return vfs.FsInfo{
		BlockSize:   uint32(sfs.Bsize),
		TotalBlocks: sfs.Blocks,
		FreeBlocks:  sfs.Bfree,
		TotalInodes: sfs.Files,
		FreeInodes:  sfs.Ffree,
		MaxNameLen:  uint32(sfs.Namelen),
	}, nil
}

func isNotEmpty(err error) bool {
	return err == unix.ENOTEMPTY
}
