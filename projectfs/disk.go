package projectfs

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ProjectsDir returns the directory projects are saved under.
func ProjectsDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "allolib-studio", "projects"), nil
}

// ProjectDir returns the directory of a named project.
func ProjectDir(projectName string) (string, error) {
	base, err := ProjectsDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, SanitizeName(projectName)), nil
}

// ListProjects returns the project folder names, sorted.
func ListProjects() ([]string, error) {
	dir, err := ProjectsDir()
	if err != nil {
		return nil, err
	}
	return listDirs(dir)
}

func listDirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, err
	}

	var projects []string
	for _, entry := range entries {
		if entry.IsDir() {
			projects = append(projects, entry.Name())
		}
	}
	sort.Strings(projects)
	return projects, nil
}

// SanitizeName replaces characters that are problematic in file names.
func SanitizeName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, " ", "-")
	name = strings.ReplaceAll(name, "/", "-")
	name = strings.ReplaceAll(name, "\\", "-")
	name = strings.ReplaceAll(name, ":", "-")
	for _, c := range []string{"*", "?", "\"", "<", ">", "|"} {
		name = strings.ReplaceAll(name, c, "")
	}
	name = strings.Trim(name, ".")
	if name == "" {
		return "untitled"
	}
	return name
}

// SaveToDir writes every entry under dir, creating it if needed.
func (s *Store) SaveToDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	for _, f := range s.Files() {
		target := filepath.Join(dir, filepath.FromSlash(f.Path))
		if f.IsFolder {
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(target, []byte(f.Content), 0644); err != nil {
			return fmt.Errorf("write %s: %w", f.Path, err)
		}
	}
	return nil
}

// LoadDir replaces the tree with the contents of dir. Hidden entries are
// skipped.
func (s *Store) LoadDir(dir string) error {
	loaded := New(WithMaxFiles(s.maxFiles), WithClock(s.clock))
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == dir {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			return loaded.MkdirAll(rel)
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		return loaded.CreateDataFile(rel, string(data))
	})
	if err != nil {
		return fmt.Errorf("load project %s: %w", dir, err)
	}
	s.files = loaded.files
	return nil
}
