package migrator

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Step is a single schema operation inside a migration.
//
// apply reports skipped when the step's idempotent guard found the end state already in
// place. Every step runs against the handle it is given, which is the migration's
// transaction unless the migration disables transactions.
type Step interface {
	Describe() string
	apply(tx *gorm.DB) (skipped bool, err error)
}

type Column struct {
	Name       string
	Definition string
}

type CreateTable struct {
	Table       string
	Columns     []Column
	Constraints []string
}

func (s CreateTable) Describe() string {
	defs := make([]string, 0, len(s.Columns)+len(s.Constraints))
	for _, c := range s.Columns {
		defs = append(defs, c.Name+" "+c.Definition)
	}
	defs = append(defs, s.Constraints...)
	return fmt.Sprintf("create table %s (%s)", s.Table, strings.Join(defs, ", "))
}

func (s CreateTable) apply(tx *gorm.DB) (bool, error) {
	if len(s.Columns) == 0 {
		return false, fmt.Errorf("create table %s: no columns", s.Table)
	}
	if (TableExists{Table: s.Table}).Holds(tx.Migrator()) {
		return true, nil
	}

	defs := make([]string, 0, len(s.Columns)+len(s.Constraints))
	for _, c := range s.Columns {
		defs = append(defs, quote(tx, c.Name)+" "+c.Definition)
	}
	defs = append(defs, s.Constraints...)

	return false, tx.Exec(fmt.Sprintf("CREATE TABLE %s (%s)", quote(tx, s.Table), strings.Join(defs, ", "))).Error
}

type DropTable struct {
	Table string
}

func (s DropTable) Describe() string { return "drop table " + s.Table }

func (s DropTable) apply(tx *gorm.DB) (bool, error) {
	if !(TableExists{Table: s.Table}).Holds(tx.Migrator()) {
		return true, nil
	}
	return false, tx.Exec("DROP TABLE " + quote(tx, s.Table)).Error
}

type AddColumn struct {
	Table  string
	Column Column
}

func (s AddColumn) Describe() string {
	return fmt.Sprintf("add column %s.%s %s", s.Table, s.Column.Name, s.Column.Definition)
}

func (s AddColumn) apply(tx *gorm.DB) (bool, error) {
	if (ColumnExists{Table: s.Table, Column: s.Column.Name}).Holds(tx.Migrator()) {
		return true, nil
	}
	return false, tx.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s",
		quote(tx, s.Table), quote(tx, s.Column.Name), s.Column.Definition)).Error
}

type DropColumn struct {
	Table  string
	Column string
}

func (s DropColumn) Describe() string { return fmt.Sprintf("drop column %s.%s", s.Table, s.Column) }

func (s DropColumn) apply(tx *gorm.DB) (bool, error) {
	if !(ColumnExists{Table: s.Table, Column: s.Column}).Holds(tx.Migrator()) {
		return true, nil
	}
	return false, tx.Exec(fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", quote(tx, s.Table), quote(tx, s.Column))).Error
}

type CreateIndex struct {
	Table   string
	Name    string
	Columns []string
	Unique  bool
}

func (s CreateIndex) Describe() string {
	kind := "index"
	if s.Unique {
		kind = "unique index"
	}
	return fmt.Sprintf("create %s %s on %s (%s)", kind, s.Name, s.Table, strings.Join(s.Columns, ", "))
}

func (s CreateIndex) apply(tx *gorm.DB) (bool, error) {
	if len(s.Columns) == 0 {
		return false, fmt.Errorf("create index %s: no columns", s.Name)
	}
	if (IndexExists{Table: s.Table, Index: s.Name}).Holds(tx.Migrator()) {
		return true, nil
	}

	unique := ""
	if s.Unique {
		unique = "UNIQUE "
	}
	return false, tx.Exec(fmt.Sprintf("CREATE %sINDEX %s ON %s (%s)",
		unique, quote(tx, s.Name), quote(tx, s.Table), quoteList(tx, s.Columns))).Error
}

type DropIndex struct {
	Table string
	Name  string
}

func (s DropIndex) Describe() string { return fmt.Sprintf("drop index %s on %s", s.Name, s.Table) }

func (s DropIndex) apply(tx *gorm.DB) (bool, error) {
	if !(IndexExists{Table: s.Table, Index: s.Name}).Holds(tx.Migrator()) {
		return true, nil
	}
	return false, tx.Migrator().DropIndex(s.Table, s.Name)
}

type AddForeignKey struct {
	Table      string
	Name       string
	Columns    []string
	RefTable   string
	RefColumns []string
	OnDelete   string
}

func (s AddForeignKey) Describe() string {
	d := fmt.Sprintf("add foreign key %s on %s (%s) references %s (%s)",
		s.Name, s.Table, strings.Join(s.Columns, ", "), s.RefTable, strings.Join(s.RefColumns, ", "))
	if s.OnDelete != "" {
		d += " on delete " + s.OnDelete
	}
	return d
}

func (s AddForeignKey) apply(tx *gorm.DB) (bool, error) {
	if (ConstraintExists{Table: s.Table, Constraint: s.Name}).Holds(tx.Migrator()) {
		return true, nil
	}

	stmt := fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s)",
		quote(tx, s.Table), quote(tx, s.Name), quoteList(tx, s.Columns), quote(tx, s.RefTable), quoteList(tx, s.RefColumns))
	if s.OnDelete != "" {
		stmt += " ON DELETE " + s.OnDelete
	}
	return false, tx.Exec(stmt).Error
}

type DropConstraint struct {
	Table string
	Name  string
}

func (s DropConstraint) Describe() string {
	return fmt.Sprintf("drop constraint %s on %s", s.Name, s.Table)
}

func (s DropConstraint) apply(tx *gorm.DB) (bool, error) {
	if !(ConstraintExists{Table: s.Table, Constraint: s.Name}).Holds(tx.Migrator()) {
		return true, nil
	}
	return false, tx.Exec(fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", quote(tx, s.Table), quote(tx, s.Name))).Error
}

// ReplaceView drops the named view if present and recreates it from Query.
// Both statements share the migration's transaction, so no partial view state is visible.
type ReplaceView struct {
	Name  string
	Query string
}

func (s ReplaceView) Describe() string {
	return fmt.Sprintf("replace view %s as %s", s.Name, strings.TrimSpace(s.Query))
}

func (s ReplaceView) apply(tx *gorm.DB) (bool, error) {
	query := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s.Query), ";"))
	if query == "" {
		return false, fmt.Errorf("replace view %s: empty query", s.Name)
	}
	if err := tx.Exec("DROP VIEW IF EXISTS " + quote(tx, s.Name)).Error; err != nil {
		return false, err
	}
	return false, tx.Exec(fmt.Sprintf("CREATE VIEW %s AS %s", quote(tx, s.Name), query)).Error
}

type DropView struct {
	Name string
}

func (s DropView) Describe() string { return "drop view " + s.Name }

func (s DropView) apply(tx *gorm.DB) (bool, error) {
	return false, tx.Exec("DROP VIEW IF EXISTS " + quote(tx, s.Name)).Error
}

// InsertRows seeds reference rows. A row whose natural key already exists is left
// untouched: INSERT ... ON CONFLICT (KeyColumns) DO NOTHING. KeyColumns must be covered
// by a unique constraint or index.
type InsertRows struct {
	Table      string
	KeyColumns []string
	Rows       []map[string]interface{}
}

func (s InsertRows) Describe() string {
	return fmt.Sprintf("insert into %s on conflict (%s) do nothing: %v", s.Table, strings.Join(s.KeyColumns, ", "), s.Rows)
}

func (s InsertRows) apply(tx *gorm.DB) (bool, error) {
	if len(s.KeyColumns) == 0 {
		return false, errors.New("insert rows: natural key columns are required")
	}
	if len(s.Rows) == 0 {
		return true, nil
	}

	keys := make([]clause.Column, 0, len(s.KeyColumns))
	for _, name := range s.KeyColumns {
		keys = append(keys, clause.Column{Name: name})
	}

	// gorm writes generated keys back into the maps it is given
	rows := make([]map[string]interface{}, 0, len(s.Rows))
	for _, row := range s.Rows {
		copied := make(map[string]interface{}, len(row))
		for k, v := range row {
			copied[k] = v
		}
		rows = append(rows, copied)
	}

	res := tx.Table(s.Table).Clauses(clause.OnConflict{Columns: keys, DoNothing: true}).Create(rows)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 0, nil
}

// RawStatement executes SQL verbatim. When Unless is set and holds against the live
// catalog, the statement is skipped.
type RawStatement struct {
	SQL    string
	Unless Condition
}

func (s RawStatement) Describe() string {
	d := "exec sql: " + strings.TrimSpace(s.SQL)
	if s.Unless != nil {
		d += " unless " + s.Unless.Describe()
	}
	return d
}

func (s RawStatement) apply(tx *gorm.DB) (bool, error) {
	if s.Unless != nil && s.Unless.Holds(tx.Migrator()) {
		return true, nil
	}
	return false, tx.Exec(s.SQL).Error
}

// Exec runs a Go function as a step, for data migrations that do not fit plain SQL.
// Only Name contributes to the migration checksum.
type Exec struct {
	Name string
	Fn   func(tx *gorm.DB) error
}

func (s Exec) Describe() string { return "exec func " + s.Name }

func (s Exec) apply(tx *gorm.DB) (bool, error) {
	if s.Fn == nil {
		return false, fmt.Errorf("exec %s: nil function", s.Name)
	}
	return false, s.Fn(tx)
}

func quote(tx *gorm.DB, name string) string {
	var b strings.Builder
	tx.Dialector.QuoteTo(&b, name)
	return b.String()
}

func quoteList(tx *gorm.DB, names []string) string {
	quoted := make([]string, 0, len(names))
	for _, name := range names {
		quoted = append(quoted, quote(tx, name))
	}
	return strings.Join(quoted, ", ")
}
