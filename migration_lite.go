package migrator

// MigrationLite describes a migration as plain SQL. Up and Down are executed verbatim;
// an empty Down requires DownPolicy to say why. Up is skipped when Unless holds.
type MigrationLite struct {
	ID   string
	Name string

	Up     string
	Down   string
	Unless Condition

	DownPolicy         DownPolicy
	DisableTransaction bool
}

func (l MigrationLite) Migration() Migration {
	m := Migration{
		ID:                 l.ID,
		Name:               l.Name,
		DownPolicy:         l.DownPolicy,
		DisableTransaction: l.DisableTransaction,
	}
	if l.Up != "" {
		m.Up = []Step{RawStatement{SQL: l.Up, Unless: l.Unless}}
	}
	if l.Down != "" {
		m.Down = []Step{RawStatement{SQL: l.Down}}
	}
	return m
}
