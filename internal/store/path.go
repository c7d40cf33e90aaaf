package store

import (
	"fmt"
	"strings"
)

const reservedChars = ".#$[]"

// Join builds a path from segments, ignoring empty ones and stray slashes.
func Join(segments ...string) string {
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		seg = strings.Trim(seg, "/")
		if seg != "" {
			parts = append(parts, seg)
		}
	}
	return strings.Join(parts, "/")
}

// Split returns the segments of a path.
func Split(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// Parent returns the path one level up, or "" for a top-level path.
func Parent(path string) string {
	path = strings.Trim(path, "/")
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return ""
	}
	return path[:idx]
}

// Base returns the last segment of a path.
func Base(path string) string {
	path = strings.Trim(path, "/")
	return path[strings.LastIndex(path, "/")+1:]
}

// ValidatePath checks that every segment is non-empty and free of reserved characters.
func ValidatePath(path string) error {
	if strings.Trim(path, "/") == "" {
		return fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	for _, seg := range strings.Split(strings.Trim(path, "/"), "/") {
		if err := ValidateKey(seg); err != nil {
			return fmt.Errorf("%w: %q", err, path)
		}
	}
	return nil
}

// ValidateKey checks a single path segment.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty segment", ErrInvalidPath)
	}
	if strings.ContainsAny(key, reservedChars+"/") {
		return fmt.Errorf("%w: segment %q contains a reserved character", ErrInvalidPath, key)
	}
	return nil
}

func cleanPath(path string) (string, error) {
	if err := ValidatePath(path); err != nil {
		return "", err
	}
	return strings.Trim(path, "/"), nil
}
