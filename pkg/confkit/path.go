package confkit

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// maxRootSearchDepth bounds how many parent directories walkUpToMarker will
// inspect before giving up; a monorepo checkout is never nested this deep.
const maxRootSearchDepth = 8

// walkUpToMarker walks upward from startDir, at each level invoking visit
// with the candidate directory. It stops as soon as visit reports done, or
// once maxRootSearchDepth levels or the filesystem root is reached. It backs
// both ProjectRoot's go.mod/.git search and LoadDotenvOnce's .env search so
// the two don't carry two independent copies of the same upward walk.
func walkUpToMarker(startDir string, visit func(dir string) (done bool)) {
	dir := startDir
	for i := 0; i < maxRootSearchDepth; i++ {
		if visit(dir) {
			return
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}

// callerSourceDir returns the directory containing this package's source, so
// repo-root discovery is anchored to the checkout this binary was built from
// rather than the process's current working directory.
func callerSourceDir() (string, bool) {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return "", false
	}
	return filepath.Dir(file), true
}

// ProjectRoot locates the repository root by walking upwards from this
// source file until it finds a directory containing go.mod or .git. Falls
// back to the current working directory on failure.
func ProjectRoot() (string, error) {
	if dir, ok := callerSourceDir(); ok {
		var root string
		walkUpToMarker(dir, func(d string) bool {
			if fileExists(filepath.Join(d, "go.mod")) || fileExists(filepath.Join(d, ".git")) {
				root = d
				return true
			}
			return false
		})
		if root != "" {
			return root, nil
		}
	}
	wd, err := os.Getwd()
	if err != nil {
		return ".", fmt.Errorf("getwd: %w", err)
	}
	return wd, nil
}

// MustProjectRoot returns the repository root path or panics on failure.
func MustProjectRoot() string {
	root, err := ProjectRoot()
	if err != nil {
		panic(err)
	}
	return root
}

// ProjectPath joins the repository root with the provided relative path.
func ProjectPath(rel string) (string, error) {
	root, err := ProjectRoot()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, rel), nil
}

// MustProjectPath returns ProjectPath(rel) and panics on failure.
func MustProjectPath(rel string) string {
	p, err := ProjectPath(rel)
	if err != nil {
		panic(err)
	}
	return p
}
