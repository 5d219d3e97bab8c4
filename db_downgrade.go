package migrator

import (
	"context"
)

// Downgrade reverts applied migrations newer than target, most recent first. Use
// TargetInitial to revert everything.
//
// The plan is checked as a whole before anything runs: if any migration in range is
// DownIrreversible or missing from the source, nothing is reverted.
func (m *MigrationManager) Downgrade(ctx context.Context, target string) (Report, error) {
	report := newReport(DirectionDown)

	release, err := m.acquireLock(ctx)
	if err != nil {
		return report.fail(err)
	}
	defer release()

	m.logger.WithField("batch", report.BatchID).Info("Preparing downgrade execution")

	applied, err := m.ledger.ListApplied(ctx)
	if err != nil {
		return report.fail(err)
	}

	plan, err := planDown(m.source.ListAll(), applied, target)
	if err != nil {
		return report.fail(err)
	}

	if plan.IsEmpty() {
		m.logger.WithField("batch", report.BatchID).Info("Nothing to revert")
		report.State = BatchComplete
		return report, nil
	}

	report, err = m.runPlan(ctx, plan, report)
	if err != nil {
		return report, err
	}

	m.logger.WithField("batch", report.BatchID).Info("Downgrade completed")
	return report, nil
}
