package migrator

import (
	"context"
)

// Migrate applies pending migrations in ascending id order, up to and including target
// when target is non-empty.
//
// Each migration runs in its own transaction together with its ledger entry. The first
// failure rolls that migration back and halts the batch; migrations applied before it
// stay applied. An empty plan is not an error.
func (m *MigrationManager) Migrate(ctx context.Context, target string) (Report, error) {
	report := newReport(DirectionUp)

	release, err := m.acquireLock(ctx)
	if err != nil {
		return report.fail(err)
	}
	defer release()

	m.logger.WithField("batch", report.BatchID).Info("Preparing migrations execution")

	if err := m.ledger.Ensure(ctx); err != nil {
		return report.fail(err)
	}

	applied, err := m.ledger.ListApplied(ctx)
	if err != nil {
		return report.fail(err)
	}

	plan, err := planUp(m.source.ListAll(), applied, target)
	if err != nil {
		return report.fail(err)
	}

	if plan.IsEmpty() {
		m.logger.WithField("batch", report.BatchID).Info("No pending migrations, database is up to date")
		report.State = BatchComplete
		return report, nil
	}

	report, err = m.runPlan(ctx, plan, report)
	if err != nil {
		return report, err
	}

	m.logger.WithField("batch", report.BatchID).Info("Migrations completed, database is up to date")
	return report, nil
}
