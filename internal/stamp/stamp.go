// Package stamp holds the compatibility token shared by the host and its
// loadable modules.
//
// The token is opaque: the build injects it with
//
//	-ldflags "-X github.com/mattjoyce/modhost/internal/stamp.build=<token>"
//
// and every module is built with the same value in its ModuleStamp variable.
// Tokens are compared for exact equality only.
package stamp

import (
	"encoding/hex"
	"runtime/debug"
	"strings"

	"github.com/zeebo/blake3"
)

// Token is a build-derived compatibility value.
type Token string

// build is set at link time.
var build string

// Host returns the token of the running binary. When none was injected it is
// derived from the embedded build info so that binaries built from different
// sources still disagree.
func Host() Token {
	if build != "" {
		return Token(build)
	}
	return fromBuildInfo()
}

func fromBuildInfo() Token {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return Derive("unknown")
	}
	parts := []string{info.GoVersion, info.Main.Path, info.Main.Version}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision", "vcs.modified", "CGO_ENABLED", "GOARCH", "GOOS", "-tags":
			parts = append(parts, s.Key+"="+s.Value)
		}
	}
	return Derive(parts...)
}

// Derive hashes parts into a token. It is meant for build tooling that wants a
// stable token for a set of build inputs.
func Derive(parts ...string) Token {
	h := blake3.New()
	for _, p := range parts {
		_, _ = h.Write([]byte(p))
		_, _ = h.Write([]byte{0})
	}
	return Token(hex.EncodeToString(h.Sum(nil)[:20]))
}

// Equal reports whether t and other are the same token.
func (t Token) Equal(other Token) bool {
	return t != "" && t == other
}

// Short returns an abbreviated form for logs.
func (t Token) Short() string {
	s := strings.TrimSpace(string(t))
	if len(s) > 12 {
		return s[:12]
	}
	return s
}

func (t Token) String() string { return string(t) }
