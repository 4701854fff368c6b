// Package vpath implements the sandboxed path model shared by the FTP
// and WebDAV front ends: it maps a client-visible virtual path rooted
// at "/" onto a host-absolute path under a fixed root, normalizing
// "." and ".." segments and clamping traversal at the virtual root.
package vpath

import (
	"strings"

	"github.com/pkg/errors"
)

// PathMax is the largest virtual path the engine accepts, excluding
// the terminating NUL that host paths carry.
const PathMax = 256

// ErrInvalidPath is the sole failure mode of this package: a NUL
// byte, an over-length result, or an empty result.
var ErrInvalidPath = errors.New("invalid path")

// Root is a sandbox anchored at a fixed host-side prefix (e.g.
// "/sdcard"). The zero value is not usable; construct with NewRoot.
type Root struct {
	prefix string
}

// NewRoot builds a sandbox rooted at prefix, which must be a clean,
// non-empty, non-NUL-terminated absolute host path such as "/sdcard".
func NewRoot(prefix string) Root {
	return Root{prefix: strings.TrimSuffix(prefix, "/")}
}

// HostPathMax bounds the NUL-terminated host path produced by ToHost:
// the root prefix, the virtual path, and the NUL.
func (r Root) HostPathMax() int {
	return len(r.prefix) + PathMax + 2
}

// Normalize resolves userPath against cwd (the session's current
// virtual directory) and returns a clean, absolute virtual path.
//
// If userPath begins with "/" it is resolved from the virtual root;
// otherwise it is resolved relative to cwd. "." segments are dropped,
// empty segments (from repeated slashes) are dropped, and ".."
// segments pop one component from the result — but never below "/":
// excess ".." is silently clamped rather than rejected, so that
// clients performing redundant CDUP never error out.
func Normalize(cwd, userPath string) (string, error) {
	if strings.IndexByte(cwd, 0) >= 0 || strings.IndexByte(userPath, 0) >= 0 {
		return "", ErrInvalidPath
	}
	if !strings.HasPrefix(cwd, "/") {
		return "", ErrInvalidPath
	}

	var base string
	if strings.HasPrefix(userPath, "/") {
		base = userPath
	} else {
		base = cwd + "/" + userPath
	}

	segs := make([]string, 0, 16)
	for _, seg := range strings.Split(base, "/") {
		switch seg {
		case "", ".":
			// drop
		case "..":
			if len(segs) > 0 {
				segs = segs[:len(segs)-1]
			}
		default:
			segs = append(segs, seg)
		}
	}

	result := "/" + strings.Join(segs, "/")
	if len(segs) == 0 {
		result = "/"
	}
	if len(result) == 0 || len(result) > PathMax {
		return "", ErrInvalidPath
	}
	return result, nil
}

// ToHost maps a normalized virtual path onto a NUL-terminated host
// path under the sandbox root. "/" alone maps to the root prefix
// exactly, with no trailing slash.
func (r Root) ToHost(virtualPath string) (string, error) {
	if !strings.HasPrefix(virtualPath, "/") {
		return "", ErrInvalidPath
	}
	if strings.IndexByte(virtualPath, 0) >= 0 {
		return "", ErrInvalidPath
	}
	if virtualPath == "/" {
		return r.prefix + "\x00", nil
	}
	host := r.prefix + virtualPath
	if len(host)+1 > r.HostPathMax() {
		return "", ErrInvalidPath
	}
	return host + "\x00", nil
}

// JoinChild appends a single path component to a host directory path,
// producing a directory entry's full NUL-terminated host path.
// hostDir is expected NUL-terminated or bare; the
// NUL, if present, is stripped before joining.
func JoinChild(hostDir, name string) (string, error) {
	if strings.IndexByte(name, 0) >= 0 {
		return "", ErrInvalidPath
	}
	hostDir = strings.TrimSuffix(hostDir, "\x00")
	if strings.HasSuffix(hostDir, "/") {
		return hostDir + name + "\x00", nil
	}
	return hostDir + "/" + name + "\x00", nil
}

// TrimNUL strips a single trailing NUL terminator, if present. It is
// a convenience for adapters that want the bare string form of a host
// path produced by ToHost/JoinChild.
func TrimNUL(s string) string {
	return strings.TrimSuffix(s, "\x00")
}
