// Package store persists project records as one JSON file per project
// under a flat directory. No database: records are small, writes are
// rare, and atomic rename keeps them consistent.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/storyreel/renderd/internal/models"
)

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// Names that collide with client-side navigation keywords.
var forbiddenNames = map[string]struct{}{
	"next":     {},
	"prev":     {},
	"previous": {},
	"continue": {},
}

type Store struct {
	dir string
}

func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create projects dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Create persists a new project. The ID is derived from the creation
// time plus a sanitized name so files sort chronologically on disk.
func (s *Store) Create(name string) (models.Project, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return models.Project{}, fmt.Errorf("project name is required")
	}
	if _, bad := forbiddenNames[strings.ToLower(trimmed)]; bad {
		return models.Project{}, fmt.Errorf("project name %q is reserved", trimmed)
	}

	now := time.Now()
	safe := unsafeNameChars.ReplaceAllString(trimmed, "_")
	project := models.Project{
		ID:      fmt.Sprintf("%d_%s", now.Unix(), safe),
		Name:    trimmed,
		Created: now.Unix(),
	}

	if err := s.save(project); err != nil {
		return models.Project{}, err
	}
	return project, nil
}

// Save overwrites an existing project record.
func (s *Store) Save(project models.Project) error {
	if project.ID == "" {
		return fmt.Errorf("project id is required")
	}
	return s.save(project)
}

// Get resolves a project by exact ID first, then by name match, so
// clients can use either form. Lookups that could traverse outside the
// projects directory skip the direct file probe.
func (s *Store) Get(idOrName string) (models.Project, bool, error) {
	if !strings.ContainsAny(idOrName, `/\`) && !strings.Contains(idOrName, "..") {
		path := filepath.Join(s.dir, idOrName+".json")
		if project, err := s.load(path); err == nil {
			return project, true, nil
		} else if !os.IsNotExist(err) {
			return models.Project{}, false, err
		}
	}

	projects, err := s.List()
	if err != nil {
		return models.Project{}, false, err
	}
	for _, p := range projects {
		if p.ID == idOrName || strings.EqualFold(p.Name, idOrName) {
			return p, true, nil
		}
	}
	return models.Project{}, false, nil
}

// List returns all projects, newest first.
func (s *Store) List() ([]models.Project, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read projects dir: %w", err)
	}

	projects := make([]models.Project, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		project, err := s.load(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			continue
		}
		projects = append(projects, project)
	}

	sort.Slice(projects, func(i, j int) bool {
		return projects[i].Created > projects[j].Created
	})
	return projects, nil
}

func (s *Store) save(project models.Project) error {
	data, err := json.MarshalIndent(project, "", "  ")
	if err != nil {
		return fmt.Errorf("encode project: %w", err)
	}

	path := filepath.Join(s.dir, project.ID+".json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write project: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("save project: %w", err)
	}
	return nil
}

func (s *Store) load(path string) (models.Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.Project{}, err
	}
	var project models.Project
	if err := json.Unmarshal(data, &project); err != nil {
		return models.Project{}, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return project, nil
}
