package migrator

import (
	"fmt"

	"gorm.io/gorm"
)

// Condition is a check against live catalog metadata. Steps use conditions as idempotent
// guards: when the desired end state already holds, the step is skipped instead of failing.
type Condition interface {
	Holds(m gorm.Migrator) bool
	Describe() string
}

type TableExists struct {
	Table string
}

func (c TableExists) Holds(m gorm.Migrator) bool { return m.HasTable(c.Table) }
func (c TableExists) Describe() string          { return fmt.Sprintf("table %s exists", c.Table) }

type ColumnExists struct {
	Table  string
	Column string
}

func (c ColumnExists) Holds(m gorm.Migrator) bool {
	return m.HasTable(c.Table) && m.HasColumn(c.Table, c.Column)
}

func (c ColumnExists) Describe() string {
	return fmt.Sprintf("column %s.%s exists", c.Table, c.Column)
}

type IndexExists struct {
	Table string
	Index string
}

func (c IndexExists) Holds(m gorm.Migrator) bool { return m.HasIndex(c.Table, c.Index) }
func (c IndexExists) Describe() string {
	return fmt.Sprintf("index %s on %s exists", c.Index, c.Table)
}

type ConstraintExists struct {
	Table      string
	Constraint string
}

func (c ConstraintExists) Holds(m gorm.Migrator) bool {
	return m.HasConstraint(c.Table, c.Constraint)
}

func (c ConstraintExists) Describe() string {
	return fmt.Sprintf("constraint %s on %s exists", c.Constraint, c.Table)
}

// Not inverts a condition.
func Not(c Condition) Condition {
	return not{inner: c}
}

type not struct {
	inner Condition
}

func (c not) Holds(m gorm.Migrator) bool { return !c.inner.Holds(m) }
func (c not) Describe() string          { return "not (" + c.inner.Describe() + ")" }
