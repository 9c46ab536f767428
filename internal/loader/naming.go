package loader

import (
	"fmt"
	"regexp"
	"runtime"
	"strings"
)

// Conventional prefixes for module families.
const (
	BlockPrefix = "block-"
	UIPrefix    = "ui-"
	AudioPrefix = "audio-"
)

var (
	prefixPattern = regexp.MustCompile(`^([a-z][a-z0-9]*-)?$`)
	namePattern   = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)
)

// ModuleID joins prefix and name after validating both. Names may use '/'
// for nested families; it is folded into '-'.
func ModuleID(prefix, name string) (string, error) {
	name = strings.ReplaceAll(strings.TrimSpace(name), "/", "-")
	if !prefixPattern.MatchString(prefix) {
		return "", fmt.Errorf("invalid module prefix %q", prefix)
	}
	if !namePattern.MatchString(name) {
		return "", fmt.Errorf("invalid module name %q", name)
	}
	return prefix + name, nil
}

// Suffix is the shared-library suffix on this platform.
func Suffix() string {
	return suffixFor(runtime.GOOS)
}

func suffixFor(goos string) string {
	if goos == "windows" {
		return ".dll"
	}
	return ".so"
}

// FileName maps a module id to its library file name.
func FileName(id string) string {
	return id + Suffix()
}
