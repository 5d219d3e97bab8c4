package migrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type BatchState string

const (
	BatchIdle     BatchState = "idle"
	BatchRunning  BatchState = "running"
	BatchComplete BatchState = "complete"
	BatchFailed   BatchState = "failed"
)

// Report describes the outcome of one batch.
type Report struct {
	BatchID   string
	Direction Direction
	State     BatchState
	Planned   []string
	Completed []string
	// Failed is the id of the migration that failed, empty if none did.
	Failed string
}

func newReport(direction Direction) Report {
	return Report{
		BatchID:   uuid.NewString(),
		Direction: direction,
		State:     BatchIdle,
	}
}

func (r Report) fail(err error) (Report, error) {
	r.State = BatchFailed
	return r, err
}

// runPlan executes the plan one migration at a time and halts at the first failure.
// Cancellation is checked only between migrations; a started migration runs to commit
// or rollback.
func (m *MigrationManager) runPlan(ctx context.Context, plan Plan, report Report) (Report, error) {
	report.State = BatchRunning
	report.Planned = plan.IDs()

	log := m.logger.WithFields(logrus.Fields{
		"batch":     report.BatchID,
		"direction": plan.Direction,
	})
	log.Infof("Running %d migration(s)", len(plan.Migrations))

	for _, migration := range plan.Migrations {
		if err := ctx.Err(); err != nil {
			log.WithField("migration", migration.ID).Warn("batch cancelled before migration started")
			return report.fail(fmt.Errorf("batch cancelled before %s: %w", migration.ID, err))
		}

		if err := m.execute(context.WithoutCancel(ctx), plan.Direction, migration, log); err != nil {
			report.Failed = migration.ID
			log.WithField("completed", len(report.Completed)).Error("batch halted")
			return report.fail(err)
		}
		report.Completed = append(report.Completed, migration.ID)
	}

	report.State = BatchComplete
	return report, nil
}

func (m *MigrationManager) execute(ctx context.Context, direction Direction, migration Migration, batchLog logrus.FieldLogger) error {
	log := batchLog.WithFields(logrus.Fields{
		"migration": migration.ID,
		"name":      migration.Name,
	})
	start := time.Now()

	if direction == DirectionUp {
		log.Info("Executing migration")
	} else {
		log.Info("Reverting migration")
		if migration.DownPolicy == DownRetain {
			log.Info("down policy is retain, removing ledger entry only")
		}
	}

	record := func(tx *gorm.DB) error {
		if direction == DirectionUp {
			return m.ledger.MarkApplied(tx, migration, m.now())
		}
		return m.ledger.MarkReverted(tx, migration.ID)
	}

	steps := migration.steps(direction)
	db := m.db.WithContext(ctx)

	if migration.DisableTransaction {
		log.Warn("running without a transaction, a failure may leave the migration partially applied")

		if i, err := runSteps(db, steps, log); err != nil {
			log.WithError(err).Error("non-transactional migration failed")
			return &ExecutionError{MigrationID: migration.ID, Direction: direction, Step: i, NonTransactional: true, Err: err}
		}
		if err := db.Transaction(record); err != nil {
			log.WithError(err).Error("ledger update failed after non-transactional migration")
			return &ExecutionError{MigrationID: migration.ID, Direction: direction, Step: -1, NonTransactional: true, Err: err}
		}
	} else {
		failedStep := -1
		err := db.Transaction(func(tx *gorm.DB) error {
			i, err := runSteps(tx, steps, log)
			if err != nil {
				failedStep = i
				return err
			}
			return record(tx)
		})
		if err != nil {
			log.WithError(err).Error("migration failed, transaction rolled back")
			return &ExecutionError{MigrationID: migration.ID, Direction: direction, Step: failedStep, Err: err}
		}
	}

	log.WithField("elapsed", time.Since(start)).Info("Migration complete")
	return nil
}

// runSteps applies steps in order and returns the index of the failing one.
func runSteps(tx *gorm.DB, steps []Step, log logrus.FieldLogger) (int, error) {
	for i, step := range steps {
		skipped, err := step.apply(tx)
		if err != nil {
			return i, err
		}

		stepLog := log.WithField("step", i+1)
		if skipped {
			stepLog.Infof("already in place, skipping: %s", step.Describe())
		} else {
			stepLog.Debugf("applied: %s", step.Describe())
		}
	}
	return -1, nil
}
