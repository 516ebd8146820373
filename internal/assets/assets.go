package assets

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	log "log/slog"
	"os"
	"path"
	"slices"
	"strings"
)

const (
	Ext       = ".glb"
	MediaType = "model/gltf-binary"
)

var ErrNotFound = errors.New("not found")

// Store resolves model files. The models root holds one directory per
// category; the GLB root holds <id>.glb files. Both may be the same.
// Names are resolved inside the roots only.
type Store struct {
	models string
	glb    string
}

func NewStore(modelsDir, glbDir string) *Store {
	if glbDir == "" {
		glbDir = modelsDir
	}
	return &Store{models: modelsDir, glb: glbDir}
}

// File is an open model file. Close it when done.
type File struct {
	io.ReadCloser
	Name string
	Size int64
}

func (s *Store) Open(category, filename string) (*File, error) {
	label := category + "/" + filename
	if !isName(category) || !isName(filename) {
		return nil, fmt.Errorf("%s: %w", label, ErrNotFound)
	}
	return open(s.models, path.Join(category, filename), label)
}

func (s *Store) OpenGLB(id string) (*File, error) {
	if !isName(id) {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return open(s.glb, id+Ext, id)
}

// isName reports whether s is a single path element.
func isName(s string) bool {
	return fs.ValidPath(s) && s != "." && !strings.Contains(s, "/")
}

// List returns the sorted .glb file names of a category.
func (s *Store) List(category string) ([]string, error) {
	root, err := openRoot(s.models)
	if err != nil {
		return nil, err
	}
	defer root.Close()

	return listGLB(root.FS(), category)
}

// Categories maps every category directory to its number of .glb files.
func (s *Store) Categories() (map[string]int, error) {
	root, err := openRoot(s.models)
	if err != nil {
		return nil, err
	}
	defer root.Close()

	return countCategories(root.FS())
}

// countCategories skips subdirectories that cannot be listed.
func countCategories(fsys fs.FS) (map[string]int, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read models dir: %w", err)
	}

	out := make(map[string]int)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		names, err := listGLB(fsys, e.Name())
		if err != nil {
			log.Warn("Skipping unreadable category", "category", e.Name(), "err", err)
			continue
		}
		out[e.Name()] = len(names)
	}
	return out, nil
}

func openRoot(dir string) (*os.Root, error) {
	root, err := os.OpenRoot(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("models dir %s: %w", dir, ErrNotFound)
		}
		return nil, fmt.Errorf("open models dir: %w", err)
	}
	return root, nil
}

func open(dir, name, label string) (*File, error) {
	root, err := openRoot(dir)
	if err != nil {
		return nil, err
	}
	defer root.Close()

	f, err := root.Open(name)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", label, ErrNotFound)
	}

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("%s: %w", label, ErrNotFound)
	}

	return &File{ReadCloser: f, Name: info.Name(), Size: info.Size()}, nil
}

func listGLB(fsys fs.FS, category string) ([]string, error) {
	if !isName(category) {
		return nil, fmt.Errorf("category %s: %w", category, ErrNotFound)
	}

	entries, err := fs.ReadDir(fsys, category)
	if err != nil {
		return nil, fmt.Errorf("category %s: %w", category, ErrNotFound)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), Ext) {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)
	return names, nil
}
