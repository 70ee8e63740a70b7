//go:build unix

package rsync

import "golang.org/x/sys/unix"

// AvailableBytes returns the free space on the filesystem containing
// path, as seen by an unprivileged writer.
func AvailableBytes(path string) (int64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, err
	}
	return int64(st.Bavail) * int64(st.Bsize), nil
}
