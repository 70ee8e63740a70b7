//go:build !unix

package rsync

// AvailableBytes reports -1 on platforms without statfs support; the
// preflight check is skipped.
func AvailableBytes(path string) (int64, error) {
	return -1, nil
}
