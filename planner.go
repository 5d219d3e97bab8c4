package migrator

import (
	"fmt"
	"sort"
	"strings"
)

// TargetInitial is the down target that reverts every applied migration.
const TargetInitial = "0"

// Plan is the ordered list of migrations one batch will apply or revert.
type Plan struct {
	Direction  Direction
	Target     string
	Migrations []Migration
}

func (p Plan) IsEmpty() bool {
	return len(p.Migrations) == 0
}

func (p Plan) IDs() []string {
	ids := make([]string, 0, len(p.Migrations))
	for _, m := range p.Migrations {
		ids = append(ids, m.ID)
	}
	return ids
}

func appliedSet(applied []AppliedRecord) map[string]struct{} {
	set := make(map[string]struct{}, len(applied))
	for _, a := range applied {
		set[a.MigrationID] = struct{}{}
	}
	return set
}

// planUp selects pending migrations in ascending order, up to and including target when
// target is set. all must be sorted ascending.
func planUp(all []Migration, applied []AppliedRecord, target string) (Plan, error) {
	plan := Plan{Direction: DirectionUp, Target: target}

	if target != "" && !containsID(all, target) {
		return plan, fmt.Errorf("%w: up target %s", ErrNotFound, target)
	}

	done := appliedSet(applied)
	newest := ""
	for id := range done {
		if id > newest {
			newest = id
		}
	}

	for _, m := range all {
		if _, ok := done[m.ID]; ok {
			continue
		}
		if target != "" && m.ID > target {
			break
		}
		if m.ID < newest {
			return Plan{Direction: DirectionUp, Target: target}, fmt.Errorf("%w: %w: %s is pending but %s is already applied",
				ErrPlanning, ErrOutOfOrder, m.ID, newest)
		}
		plan.Migrations = append(plan.Migrations, m)
	}

	return plan, nil
}

// planDown selects applied migrations newer than target, most recent first. The whole
// plan is rejected if any of them cannot be reverted.
func planDown(all []Migration, applied []AppliedRecord, target string) (Plan, error) {
	plan := Plan{Direction: DirectionDown, Target: target}

	if target == "" {
		return plan, fmt.Errorf("%w: down requires a target migration id", ErrPlanning)
	}
	if target != TargetInitial && !containsID(all, target) {
		return plan, fmt.Errorf("%w: down target %s", ErrNotFound, target)
	}

	byID := make(map[string]Migration, len(all))
	for _, m := range all {
		byID[m.ID] = m
	}

	ids := make([]string, 0, len(applied))
	for _, a := range applied {
		if a.MigrationID > target {
			ids = append(ids, a.MigrationID)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(ids)))

	var unknown, irreversible []string
	for _, id := range ids {
		m, ok := byID[id]
		if !ok {
			unknown = append(unknown, id)
			continue
		}
		if m.DownPolicy == DownIrreversible {
			irreversible = append(irreversible, id)
			continue
		}
		plan.Migrations = append(plan.Migrations, m)
	}

	if len(unknown) > 0 {
		return Plan{Direction: DirectionDown, Target: target}, fmt.Errorf("%w: %w: applied but not in source: %s",
			ErrPlanning, ErrNotFound, strings.Join(unknown, ", "))
	}
	if len(irreversible) > 0 {
		return Plan{Direction: DirectionDown, Target: target}, fmt.Errorf("%w: %w: %s",
			ErrPlanning, ErrIrreversible, strings.Join(irreversible, ", "))
	}

	return plan, nil
}

func containsID(all []Migration, id string) bool {
	i := sort.Search(len(all), func(i int) bool { return all[i].ID >= id })
	return i < len(all) && all[i].ID == id
}
