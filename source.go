package migrator

import (
	"fmt"
	"sort"

	"github.com/Maksumys/schema-migrator/internal/models"
)

// Source is the ordered, immutable catalog of known migrations.
type Source struct {
	migrations []Migration
	byID       map[string]int
}

// NewSource validates and orders migrations. Any problem is an ErrConfiguration: the
// source is rejected as a whole rather than shadowing or skipping entries.
func NewSource(migrations ...Migration) (*Source, error) {
	s := &Source{
		migrations: make([]Migration, 0, len(migrations)),
		byID:       make(map[string]int, len(migrations)),
	}

	seen := make(map[string]struct{}, len(migrations))
	for _, m := range migrations {
		if err := validateMigration(m); err != nil {
			return nil, err
		}
		if _, ok := seen[m.ID]; ok {
			return nil, fmt.Errorf("%w: duplicate migration id %s", ErrConfiguration, m.ID)
		}
		seen[m.ID] = struct{}{}
		s.migrations = append(s.migrations, m)
	}

	sort.SliceStable(s.migrations, func(i, j int) bool {
		return s.migrations[i].ID < s.migrations[j].ID
	})
	for i, m := range s.migrations {
		s.byID[m.ID] = i
	}

	return s, nil
}

func validateMigration(m Migration) error {
	if _, err := models.ParseID(m.ID); err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	if len(m.Up) == 0 {
		return fmt.Errorf("%w: migration %s has no up steps", ErrConfiguration, m.ID)
	}
	for i, step := range append(append([]Step{}, m.Up...), m.Down...) {
		if step == nil {
			return fmt.Errorf("%w: migration %s has a nil step at position %d", ErrConfiguration, m.ID, i+1)
		}
	}

	switch m.DownPolicy {
	case DownSteps:
		if len(m.Down) == 0 {
			return fmt.Errorf("%w: migration %s has no down steps; declare DownRetain or DownIrreversible",
				ErrConfiguration, m.ID)
		}
	case DownRetain, DownIrreversible:
		if len(m.Down) != 0 {
			return fmt.Errorf("%w: migration %s declares %s but has down steps", ErrConfiguration, m.ID, m.DownPolicy)
		}
	default:
		return fmt.Errorf("%w: migration %s has unknown down policy %q", ErrConfiguration, m.ID, m.DownPolicy)
	}

	return nil
}

// ListAll returns every migration in ascending id order.
func (s *Source) ListAll() []Migration {
	out := make([]Migration, len(s.migrations))
	copy(out, s.migrations)
	return out
}

func (s *Source) Get(id string) (Migration, error) {
	i, ok := s.byID[id]
	if !ok {
		return Migration{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.migrations[i], nil
}

func (s *Source) Has(id string) bool {
	_, ok := s.byID[id]
	return ok
}

func (s *Source) Len() int {
	return len(s.migrations)
}
