package emysound

import (
	"os"
	"path/filepath"
	"strings"
)

// Source is the media submitted to the service: either a file on disk or an
// in-memory buffer with an explicit name. Build one with FromFile or
// FromBytes right before a call; it is consumed once and never cached.
type Source struct {
	path     string
	name     string
	data     []byte
	inMemory bool
}

// FromFile refers to a file read in full at submission time. Its display
// name is the final path segment.
func FromFile(path string) Source {
	return Source{path: path}
}

// FromBytes submits data under the given name.
func FromBytes(name string, data []byte) Source {
	return Source{name: name, data: data, inMemory: true}
}

// Resolve produces the display name and payload to upload.
func (s Source) Resolve() (string, []byte, error) {
	if s.inMemory {
		return s.name, s.data, nil
	}

	name, ok := fileName(s.path)
	if !ok {
		return "", nil, ErrInvalidPath
	}

	content, err := os.ReadFile(s.path)
	if err != nil {
		return "", nil, &IOError{Path: s.path, Err: err}
	}
	return name, content, nil
}

// fileName returns the final normal component of path. "." components are
// ignored wherever they appear, so "dir/song.mp3/." names "song.mp3"; a path
// ending in ".." or with no components has no name.
func fileName(path string) (string, bool) {
	parts := strings.FieldsFunc(path, func(r rune) bool {
		return r == '/' || r == filepath.Separator
	})
	for i := len(parts) - 1; i >= 0; i-- {
		switch parts[i] {
		case ".":
			continue
		case "..":
			return "", false
		default:
			return parts[i], true
		}
	}
	return "", false
}
