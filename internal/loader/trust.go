package loader

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrUntrusted is returned for module files the host refuses to open.
var ErrUntrusted = errors.New("untrusted module file")

// checkTrust refuses a candidate that resolves outside its search directory,
// or that sits in or is itself world-writable.
func checkTrust(dir, path string) error {
	resolvedDir, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return fmt.Errorf("%w: resolve %s: %v", ErrUntrusted, dir, err)
	}
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return fmt.Errorf("%w: resolve %s: %v", ErrUntrusted, path, err)
	}
	if !strings.HasPrefix(resolved, resolvedDir+string(os.PathSeparator)) {
		return fmt.Errorf("%w: %s resolves outside %s", ErrUntrusted, resolved, resolvedDir)
	}

	dirInfo, err := os.Stat(resolvedDir)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUntrusted, err)
	}
	if dirInfo.Mode().Perm()&0o002 != 0 {
		return fmt.Errorf("%w: directory %s is world-writable", ErrUntrusted, resolvedDir)
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUntrusted, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s is not a regular file", ErrUntrusted, resolved)
	}
	if info.Mode().Perm()&0o002 != 0 {
		return fmt.Errorf("%w: %s is world-writable", ErrUntrusted, resolved)
	}
	return nil
}
