package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-erp/meridian-erp/internal/observability"
	"github.com/meridian-erp/meridian-erp/internal/payables"
	"github.com/meridian-erp/meridian-erp/internal/receivables"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskFinanceSweep marks overdue installments and settles fully
	// paid entries on both the receivable and payable side.
	TaskFinanceSweep = "finance:sweep_overdue"
)

// FinanceSweepPayload records who or what triggered the sweep.
type FinanceSweepPayload struct {
	TriggeredBy string `json:"triggered_by"`
}

// NewFinanceSweepTask constructs the sweep task.
func NewFinanceSweepTask(triggeredBy string) (*asynq.Task, error) {
	data, err := json.Marshal(FinanceSweepPayload{TriggeredBy: triggeredBy})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskFinanceSweep, data), nil
}

// NewFinanceSweepHandler builds the handler that runs both sweeps. A
// failed receivable sweep does not stop the payable sweep; the task
// fails only when both sides error so Asynq retries the whole pass.
func NewFinanceSweepHandler(rec *receivables.Service, pay *payables.Service, metrics *observability.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload FinanceSweepPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		start := time.Now()

		recSummary, recErr := rec.SweepOverdue(ctx, logger)
		if recErr != nil {
			logger.Error("receivable sweep failed", slog.Any("error", recErr))
		}
		metrics.RecordSweep("receivable", recSummary.MarkedOverdue, recSummary.MarkedPaid, recErr != nil)

		paySummary, payErr := pay.SweepOverdue(ctx, logger)
		if payErr != nil {
			logger.Error("payable sweep failed", slog.Any("error", payErr))
		}
		metrics.RecordSweep("payable", paySummary.MarkedOverdue, paySummary.MarkedPaid, payErr != nil)
		if recErr != nil && payErr != nil {
			return recErr
		}

		logger.Info("finance sweep completed",
			slog.String("triggered_by", payload.TriggeredBy),
			slog.Int("receivables_overdue", recSummary.MarkedOverdue),
			slog.Int("receivables_settled", recSummary.MarkedPaid),
			slog.Int("payables_overdue", paySummary.MarkedOverdue),
			slog.Int("payables_settled", paySummary.MarkedPaid),
			slog.Duration("elapsed", time.Since(start)))
		return nil
	}
}
