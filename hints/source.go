package hints

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Source provides explicit hint files. Load returns (nil, nil) when the root
// has no file.
type Source interface {
	Load(ctx context.Context, root string) (*HintFile, error)
}

// DirSource reads <Dir>/<root>.yaml, .yml or .json, first match wins. Dots,
// dashes and slashes in the root name become underscores.
type DirSource struct {
	Dir string
}

var extensions = []string{".yaml", ".yml", ".json"}

// FileName normalizes a root name into the base file name DirSource looks for.
func FileName(root string) string {
	return strings.NewReplacer(".", "_", "-", "_", "/", "_").Replace(root)
}

func (s DirSource) Load(_ context.Context, root string) (*HintFile, error) {
	if s.Dir == "" {
		return nil, nil
	}
	base := filepath.Join(s.Dir, FileName(root))
	for _, ext := range extensions {
		data, err := os.ReadFile(base + ext)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		var h *HintFile
		if ext == ".json" {
			h, err = ParseJSON(data)
		} else {
			h, err = ParseYAML(data)
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", base+ext, err)
		}
		return h, nil
	}
	return nil, nil
}

// StaticSource serves hint files from memory, keyed by root.
type StaticSource map[string]*HintFile

func (s StaticSource) Load(_ context.Context, root string) (*HintFile, error) {
	return s[root], nil
}
