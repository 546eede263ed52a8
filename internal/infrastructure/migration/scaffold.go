package migration

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Scaffold is the file pair a new migration starts from.
type Scaffold struct {
	Version  string
	Slug     string
	UpPath   string
	DownPath string
}

// NewScaffold writes an empty up/down SQL pair into dir. The version prefix
// is the current time in 20060102150405 form so lexical order matches
// creation order.
func NewScaffold(dir, name, note string) (*Scaffold, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create migrations dir: %w", err)
	}

	now := time.Now()
	s := &Scaffold{
		Version: now.Format("20060102150405"),
		Slug:    slug(name),
	}
	base := s.Version + "_" + s.Slug
	s.UpPath = filepath.Join(dir, base+".up.sql")
	s.DownPath = filepath.Join(dir, base+".down.sql")

	stamp := now.Format(time.RFC3339)
	up := header(name, stamp, note) + "-- up\n"
	down := header(name, stamp, "rollback of "+note) + "-- down\n"

	if err := os.WriteFile(s.UpPath, []byte(up), 0o644); err != nil {
		return nil, fmt.Errorf("write up migration: %w", err)
	}
	if err := os.WriteFile(s.DownPath, []byte(down), 0o644); err != nil {
		_ = os.Remove(s.UpPath)
		return nil, fmt.Errorf("write down migration: %w", err)
	}
	return s, nil
}

func header(name, stamp, note string) string {
	return fmt.Sprintf("-- %s\n-- created %s\n-- %s\n\n", name, stamp, note)
}

// slug lowercases a migration name and squeezes everything that is not a
// letter or digit into single underscores.
func slug(name string) string {
	var b strings.Builder
	pending := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if pending && b.Len() > 0 {
				b.WriteByte('_')
			}
			pending = false
			b.WriteRune(r)
		case r == ' ', r == '-', r == '_':
			pending = true
		}
	}
	return b.String()
}

// Versions lists the migration base names found in dir, sorted. A missing
// directory is an empty list, not an error.
func Versions(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if base, ok := strings.CutSuffix(entry.Name(), ".up.sql"); ok {
			names = append(names, base)
		}
	}
	sort.Strings(names)
	return names, nil
}
