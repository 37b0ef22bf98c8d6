//go:build linux

package storage

import (
	"fmt"
	"syscall"
)

// statfs f_type values for the network filesystems in remoteKinds.
var linuxMagic = map[uint32]string{
	0x6969:     "nfs",
	0xFF534D42: "cifs",
	0xFE534D42: "smb2",
	0x517B:     "smbfs",
	0x00C36400: "ceph",
	0x01021997: "9p",
	0x5346414F: "afs",
}

func mountKind(dir string) (string, error) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(dir, &st); err != nil {
		return "", fmt.Errorf("statfs: %w", err)
	}
	// f_type is signed on some architectures; every magic fits in 32 bits.
	magic := uint32(st.Type)
	if kind, ok := linuxMagic[magic]; ok {
		return kind, nil
	}
	return fmt.Sprintf("0x%x", magic), nil
}
