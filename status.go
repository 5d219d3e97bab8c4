package migrator

import (
	"context"
	"sort"
	"time"
)

type State string

const (
	StatePending State = "pending"
	StateApplied State = "applied"
	// StateUnknown is a ledger entry with no matching migration in the source.
	StateUnknown State = "unknown"
)

type MigrationStatus struct {
	ID         string
	Name       string
	State      State
	DownPolicy DownPolicy
	AppliedAt  time.Time

	// ChecksumMismatch is set when the applied checksum differs from the source's.
	ChecksumMismatch bool
}

// Status lists every migration known to the source or the ledger, in id order.
func (m *MigrationManager) Status(ctx context.Context) ([]MigrationStatus, error) {
	applied, err := m.ledger.ListApplied(ctx)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]AppliedRecord, len(applied))
	for _, a := range applied {
		byID[a.MigrationID] = a
	}

	statuses := make([]MigrationStatus, 0, m.source.Len()+len(applied))
	for _, migration := range m.source.ListAll() {
		s := MigrationStatus{
			ID:         migration.ID,
			Name:       migration.Name,
			State:      StatePending,
			DownPolicy: migration.DownPolicy,
		}
		if a, ok := byID[migration.ID]; ok {
			s.State = StateApplied
			s.AppliedAt = a.AppliedAt
			s.ChecksumMismatch = a.Checksum != "" && a.Checksum != Checksum(migration)
		}
		statuses = append(statuses, s)
	}

	for _, a := range applied {
		if m.source.Has(a.MigrationID) {
			continue
		}
		statuses = append(statuses, MigrationStatus{
			ID:        a.MigrationID,
			Name:      a.Name,
			State:     StateUnknown,
			AppliedAt: a.AppliedAt,
		})
	}

	sort.SliceStable(statuses, func(i, j int) bool {
		return statuses[i].ID < statuses[j].ID
	})

	return statuses, nil
}
