//go:build !unix

package fsguard

// FreeSpace is not implemented on this platform; ok is always false.
func FreeSpace(string) (free uint64, ok bool, err error) {
	return 0, false, nil
}
