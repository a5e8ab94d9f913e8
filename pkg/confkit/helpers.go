package confkit

import "os"

// fileExists reports whether p names an existing filesystem entry; it treats
// a blank path as non-existent rather than stat-ing the current directory.
func fileExists(p string) bool {
	if p == "" {
		return false
	}
	_, err := os.Stat(p)
	return err == nil
}
