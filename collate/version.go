package collate

import (
	"fmt"
	"strconv"
	"strings"
)

// InternalVersionInfo is a parsed "major.minor.patch" version string (spec
// §4.8, §6.3, SPEC_FULL.md supplement 1).
type InternalVersionInfo struct {
	Major, Minor, Patch uint32
}

// ParseVersion parses a "major.minor.patch" string.
func ParseVersion(s string) (InternalVersionInfo, error) {
	parts := strings.SplitN(s, ".", 3)
	if len(parts) != 3 {
		return InternalVersionInfo{}, fmt.Errorf("collate: version %q is not major.minor.patch", s)
	}
	var v [3]uint32
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return InternalVersionInfo{}, fmt.Errorf("collate: version %q: %w", s, err)
		}
		v[i] = uint32(n)
	}
	return InternalVersionInfo{Major: v[0], Minor: v[1], Patch: v[2]}, nil
}

func (v InternalVersionInfo) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// IsCompatibleWith reports whether the calling version (v) can read data
// produced by the upstream version. Compatibility requires an equal major
// version and a calling (minor, patch) that is not older than upstream's.
func (v InternalVersionInfo) IsCompatibleWith(upstream InternalVersionInfo) error {
	if v.Major != upstream.Major {
		return fmt.Errorf("major version mismatch: calling version %s, upstream version %s", v, upstream)
	}
	if v.Minor < upstream.Minor || (v.Minor == upstream.Minor && v.Patch < upstream.Patch) {
		return fmt.Errorf("calling version %s is older than upstream version %s", v, upstream)
	}
	return nil
}
