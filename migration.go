package migrator

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// DownPolicy declares how a migration behaves when it is reverted.
type DownPolicy string

const (
	// DownSteps reverts by running the migration's Down steps. Down must not be empty.
	DownSteps DownPolicy = ""
	// DownRetain reverts by removing the ledger entry only. Schema and data stay in place,
	// which is what seeded lookup rows want.
	DownRetain DownPolicy = "retain"
	// DownIrreversible forbids reverting the migration.
	DownIrreversible DownPolicy = "irreversible"
)

func (p DownPolicy) String() string {
	if p == DownSteps {
		return "steps"
	}
	return string(p)
}

type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// Migration is one immutable, ordered unit of schema change.
type Migration struct {
	// ID is a YYYYMMDDHHMMSS[_label] string; its lexicographic order is the application order.
	ID   string
	Name string

	Up   []Step
	Down []Step

	DownPolicy DownPolicy

	// DisableTransaction runs the steps outside a transaction, for statements such as
	// CREATE INDEX CONCURRENTLY. A failure may leave the migration partially applied.
	DisableTransaction bool
}

func (m Migration) steps(direction Direction) []Step {
	if direction == DirectionDown {
		return m.Down
	}
	return m.Up
}

// Checksum fingerprints the rendered up and down steps of a migration.
func Checksum(m Migration) string {
	var b strings.Builder
	for _, step := range m.Up {
		b.WriteString("up: ")
		b.WriteString(step.Describe())
		b.WriteByte('\n')
	}
	for _, step := range m.Down {
		b.WriteString("down: ")
		b.WriteString(step.Describe())
		b.WriteByte('\n')
	}
	b.WriteString("policy: ")
	b.WriteString(m.DownPolicy.String())

	h := sha256.Sum256([]byte(b.String()))
	return fmt.Sprintf("%x", h[:8])
}
