package rtdb

import (
	"strings"

	"github.com/pkg/errors"
)

// illegalKeyChars may not appear in any key.
const illegalKeyChars = ".#$[]"

// maxKeyBytes is the longest key accepted.
const maxKeyBytes = 768

// SplitPath normalizes path and returns its keys. The root path ("" or "/")
// yields no keys.
func SplitPath(path string) ([]string, error) {
	var segs []string
	for _, seg := range strings.Split(path, "/") {
		if seg == "" {
			continue
		}
		if err := ValidateKey(seg); err != nil {
			return nil, errors.Wrapf(err, "path %q", path)
		}
		segs = append(segs, seg)
	}
	return segs, nil
}

// JoinPath joins keys into a normalized path without a leading slash.
func JoinPath(segs ...string) string {
	parts := make([]string, 0, len(segs))
	for _, s := range segs {
		s = strings.Trim(s, "/")
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "/")
}

// ValidateKey returns ErrInvalidPath if key may not be used as a child name.
func ValidateKey(key string) error {
	if key == "" {
		return errors.Wrap(ErrInvalidPath, "empty key")
	}
	if len(key) > maxKeyBytes {
		return errors.Wrapf(ErrInvalidPath, "key longer than %d bytes", maxKeyBytes)
	}
	if strings.ContainsAny(key, illegalKeyChars) {
		return errors.Wrapf(ErrInvalidPath, "key %q contains one of %q", key, illegalKeyChars)
	}
	for _, r := range key {
		if r < 0x20 || r == 0x7f {
			return errors.Wrapf(ErrInvalidPath, "key %q contains a control character", key)
		}
	}
	return nil
}

// IsAncestor reports whether path a is equal to or contains path b. Both
// paths must be normalized.
func IsAncestor(a, b string) bool {
	if a == "" || a == b {
		return true
	}
	return strings.HasPrefix(b, a+"/")
}
