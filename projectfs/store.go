// Package projectfs is the project file tree: an in-memory set of folders
// and text files that clips and the arrangement manifest are saved into,
// with import and export to a directory on disk.
package projectfs

import (
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"allolib-studio/clock"
)

// StoreName identifies the project store in snapshots.
const StoreName = "project"

// DefaultMaxFiles caps the number of entries (files and folders) in a store.
const DefaultMaxFiles = 1000

var (
	ErrInvalidName = errors.New("invalid file name")
	ErrExists      = errors.New("file already exists")
	ErrNotFound    = errors.New("file not found")
	ErrCapacity    = errors.New("project file limit reached")
	ErrIsFolder    = errors.New("path is a folder")
)

// File is one entry in the tree. Path is slash separated without a
// leading slash.
type File struct {
	Path       string    `json:"path"`
	Content    string    `json:"content,omitempty"`
	IsFolder   bool      `json:"isFolder,omitempty"`
	ModifiedAt time.Time `json:"modifiedAt"`
}

// Name is the last path element.
func (f File) Name() string { return path.Base(f.Path) }

// Store holds the tree. It is not safe for concurrent use.
type Store struct {
	files    map[string]*File
	maxFiles int
	clock    clock.Clock
}

// Option configures a Store.
type Option func(*Store)

// WithMaxFiles sets the entry limit.
func WithMaxFiles(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxFiles = n
		}
	}
}

// WithClock sets the clock used for modification times.
func WithClock(c clock.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// New returns an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		files:    make(map[string]*File),
		maxFiles: DefaultMaxFiles,
		clock:    clock.Real(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var reserved = `\:*?"<>|`

// CleanPath validates p and returns its canonical form.
func CleanPath(p string) (string, error) {
	p = strings.Trim(strings.TrimSpace(p), "/")
	if p == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidName)
	}
	for _, seg := range strings.Split(p, "/") {
		if err := validName(seg); err != nil {
			return "", err
		}
	}
	return p, nil
}

func validName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty path segment", ErrInvalidName)
	case name == "." || name == "..":
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	case strings.ContainsAny(name, reserved):
		return fmt.Errorf("%w: %q contains one of %s", ErrInvalidName, name, reserved)
	case strings.TrimSpace(name) != name:
		return fmt.Errorf("%w: %q has surrounding spaces", ErrInvalidName, name)
	}
	return nil
}

// GetFileByPath returns a copy of the entry at p.
func (s *Store) GetFileByPath(p string) (File, bool) {
	clean, err := CleanPath(p)
	if err != nil {
		return File{}, false
	}
	f, ok := s.files[clean]
	if !ok {
		return File{}, false
	}
	return *f, true
}

// Exists reports whether p names an entry.
func (s *Store) Exists(p string) bool {
	_, ok := s.GetFileByPath(p)
	return ok
}

// CreateFolder creates name inside parent ("" for the root) and returns
// its path. Missing ancestors are created.
func (s *Store) CreateFolder(name, parent string) (string, error) {
	if err := validName(name); err != nil {
		return "", err
	}
	p := name
	if strings.Trim(parent, "/") != "" {
		p = strings.Trim(parent, "/") + "/" + name
	}
	clean, err := CleanPath(p)
	if err != nil {
		return "", err
	}
	if _, ok := s.files[clean]; ok {
		return "", fmt.Errorf("%w: %s", ErrExists, clean)
	}
	if err := s.ensureParents(clean); err != nil {
		return "", err
	}
	if err := s.reserve(1); err != nil {
		return "", err
	}
	s.files[clean] = &File{Path: clean, IsFolder: true, ModifiedAt: s.clock.Now()}
	return clean, nil
}

// MkdirAll creates the folder p and its ancestors. An existing folder is
// not an error.
func (s *Store) MkdirAll(p string) error {
	clean, err := CleanPath(p)
	if err != nil {
		return err
	}
	if f, ok := s.files[clean]; ok {
		if !f.IsFolder {
			return fmt.Errorf("%w: %s is a file", ErrExists, clean)
		}
		return nil
	}
	if err := s.ensureParents(clean); err != nil {
		return err
	}
	if err := s.reserve(1); err != nil {
		return err
	}
	s.files[clean] = &File{Path: clean, IsFolder: true, ModifiedAt: s.clock.Now()}
	return nil
}

// CreateDataFile creates a text file at p, creating missing folders.
func (s *Store) CreateDataFile(p, content string) error {
	clean, err := CleanPath(p)
	if err != nil {
		return err
	}
	if _, ok := s.files[clean]; ok {
		return fmt.Errorf("%w: %s", ErrExists, clean)
	}
	if err := s.ensureParents(clean); err != nil {
		return err
	}
	if err := s.reserve(1); err != nil {
		return err
	}
	s.files[clean] = &File{Path: clean, Content: content, ModifiedAt: s.clock.Now()}
	return nil
}

// UpdateFileContent replaces the content of an existing file.
func (s *Store) UpdateFileContent(p, content string) error {
	clean, err := CleanPath(p)
	if err != nil {
		return err
	}
	f, ok := s.files[clean]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, clean)
	}
	if f.IsFolder {
		return fmt.Errorf("%w: %s", ErrIsFolder, clean)
	}
	f.Content = content
	f.ModifiedAt = s.clock.Now()
	return nil
}

// WriteFile creates p or replaces its content.
func (s *Store) WriteFile(p, content string) error {
	if s.Exists(p) {
		return s.UpdateFileContent(p, content)
	}
	return s.CreateDataFile(p, content)
}

// DeleteFile removes p. Deleting a folder removes everything under it.
func (s *Store) DeleteFile(p string) error {
	clean, err := CleanPath(p)
	if err != nil {
		return err
	}
	f, ok := s.files[clean]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, clean)
	}
	if f.IsFolder {
		prefix := clean + "/"
		for k := range s.files {
			if strings.HasPrefix(k, prefix) {
				delete(s.files, k)
			}
		}
	}
	delete(s.files, clean)
	return nil
}

// Files returns every entry sorted by path.
func (s *Store) Files() []File {
	out := make([]File, 0, len(s.files))
	for _, f := range s.files {
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Len is the number of entries.
func (s *Store) Len() int { return len(s.files) }

// Clear removes every entry.
func (s *Store) Clear() {
	s.files = make(map[string]*File)
}

func (s *Store) reserve(n int) error {
	if len(s.files)+n > s.maxFiles {
		return fmt.Errorf("%w (%d)", ErrCapacity, s.maxFiles)
	}
	return nil
}

// ensureParents creates the folders above p. A file in the way is an error.
func (s *Store) ensureParents(p string) error {
	dir := path.Dir(p)
	if dir == "." {
		return nil
	}
	var missing []string
	for d := dir; d != "."; d = path.Dir(d) {
		f, ok := s.files[d]
		if ok {
			if !f.IsFolder {
				return fmt.Errorf("%w: %s is a file", ErrExists, d)
			}
			break
		}
		missing = append(missing, d)
	}
	if err := s.reserve(len(missing) + 1); err != nil {
		return err
	}
	now := s.clock.Now()
	for _, d := range missing {
		s.files[d] = &File{Path: d, IsFolder: true, ModifiedAt: now}
	}
	return nil
}

// StoreName implements the serializable store contract.
func (s *Store) StoreName() string { return StoreName }

// MarshalState serializes every entry.
func (s *Store) MarshalState() ([]byte, error) {
	return json.Marshal(s.Files())
}

// RestoreState overwrites the tree with a MarshalState result.
func (s *Store) RestoreState(data []byte) error {
	var files []File
	if err := json.Unmarshal(data, &files); err != nil {
		return fmt.Errorf("decode project files: %w", err)
	}
	s.files = make(map[string]*File, len(files))
	for i := range files {
		f := files[i]
		s.files[f.Path] = &f
	}
	return nil
}
