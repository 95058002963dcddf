// Package backfill credits completed jobs that predate the KPI ledger.
package backfill

import (
	"context"

	"github.com/mozocode/On-The-Way-Rebuild/core/dispatch"
	"github.com/mozocode/On-The-Way-Rebuild/core/model"
	"github.com/mozocode/On-The-Way-Rebuild/core/store"
)

// Backfill hands every completed job in st to rec and returns how many were
// processed. rec must ignore jobs it has already credited.
func Backfill(ctx context.Context, st store.Store, rec dispatch.PayoutRecorder) (int, error) {
	jobs, err := st.QueryJobs(ctx, store.JobQuery{Statuses: []model.JobStatus{model.JobCompleted}})
	if err != nil {
		return 0, err
	}
	for i, j := range jobs {
		if err := rec.RecordPayout(ctx, j); err != nil {
			return i, err
		}
	}
	return len(jobs), nil
}
