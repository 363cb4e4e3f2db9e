package sync

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/metergrid/edgesync/internal/store"
	"github.com/metergrid/edgesync/internal/syncerr"
)

// UploadManager moves one batch of readings per cycle from LOCAL to REMOTE:
// fetch → validate → remote insert (one transaction) → flag synchronized →
// delete locally. A failure at any step leaves every remaining row eligible
// for the next cycle; nothing is lost, at worst re-attempted.
type UploadManager struct {
	local     ReadingSource
	remote    ReadingSink
	syncLog   SyncLogAppender
	validator *Validator // nil disables validation
	logger    *slog.Logger
	nowFunc   func() time.Time
}

// NewUploadManager wires the upload pipeline.
func NewUploadManager(local ReadingSource, remote ReadingSink, syncLog SyncLogAppender,
	validator *Validator, logger *slog.Logger,
) *UploadManager {
	return &UploadManager{
		local:     local,
		remote:    remote,
		syncLog:   syncLog,
		validator: validator,
		logger:    logger,
		nowFunc:   time.Now,
	}
}

// SyncReadings runs one upload pass with the given batch size.
func (m *UploadManager) SyncReadings(ctx context.Context, batchSize int) UploadResult {
	start := m.nowFunc()

	res := UploadResult{}
	defer func() { res.Duration = m.nowFunc().Sub(start) }()

	// Self-healing: rows flagged synchronized in an earlier cycle whose
	// delete never completed are committed on REMOTE already; remove them
	// before building the new batch.
	swept, err := m.local.SweepSynchronized(ctx)
	if err != nil {
		// Not fatal: the batch query below excludes flagged rows anyway.
		m.logger.Warn("sweep of synchronized leftovers failed",
			slog.String("error", err.Error()))
	} else if swept > 0 {
		res.RecordsDeleted += swept
		m.logger.Info("removed readings left over from interrupted delete",
			slog.Int64("count", swept))
	}

	var batch []store.Reading

	err = syncerr.DoQuery(ctx, "fetch reading batch", m.logger,
		func(ctx context.Context) error {
			var fetchErr error
			batch, fetchErr = m.local.FetchUnsynchronized(ctx, batchSize)

			return fetchErr
		})
	if err != nil {
		res.Err = err
		m.appendLog(ctx, store.OpUpload, 0, false, err)

		return res
	}

	if len(batch) == 0 {
		res.Success = true

		return res
	}

	batch = m.rejectInvalid(ctx, batch, &res)
	if len(batch) == 0 {
		res.Success = true
		m.appendLog(ctx, store.OpUpload, 0, true, nil)

		return res
	}

	ids := readingIDs(batch)

	uploaded, err := m.remote.InsertReadings(ctx, batch)
	if err != nil {
		// The REMOTE transaction rolled back; the batch stays on LOCAL with
		// is_synchronized=false, eligible for the next cycle.
		res.Err = syncerr.LogAndContinue(m.logger, syncerr.KindUpload, "insert readings", err)

		if retryErr := m.local.IncrementRetry(ctx, ids); retryErr != nil {
			m.logger.Warn("retry counter update failed", slog.String("error", retryErr.Error()))
		}

		m.appendLog(ctx, store.OpUpload, len(batch), false, res.Err)

		return res
	}

	res.RecordsUploaded = uploaded

	// REMOTE has committed; flag before deleting so a failure between the
	// two steps is recoverable (the flagged rows are swept next cycle, and
	// the conflict-ignoring insert makes an early re-upload harmless).
	if _, err := m.local.MarkSynchronized(ctx, ids); err != nil {
		res.Err = syncerr.LogAndContinue(m.logger, syncerr.KindDelete, "mark readings synchronized", err)
		m.appendLog(ctx, store.OpUpload, len(batch), false, res.Err)

		return res
	}

	deleted, err := m.local.DeleteSynchronized(ctx, ids)
	if err != nil {
		// Rows remain flagged; the next cycle's sweep removes them.
		res.Err = syncerr.LogAndContinue(m.logger, syncerr.KindDelete, "delete uploaded readings", err)
		m.appendLog(ctx, store.OpUpload, len(batch), false, res.Err)

		return res
	}

	res.RecordsDeleted += deleted
	res.Success = true

	m.logger.Info("upload pass complete",
		slog.Int64("uploaded", res.RecordsUploaded),
		slog.Int64("deleted", res.RecordsDeleted),
		slog.Duration("duration", m.nowFunc().Sub(start)),
	)
	m.appendLog(ctx, store.OpUpload, len(batch), true, nil)

	return res
}

// rejectInvalid filters the batch through the validator. Rows with
// error-severity issues are tagged failed_validation on LOCAL and dropped
// from the batch; warning-level issues are logged and the row proceeds.
func (m *UploadManager) rejectInvalid(ctx context.Context, batch []store.Reading, res *UploadResult) []store.Reading {
	if m.validator == nil {
		return batch
	}

	valid := batch[:0]

	var rejected []uuid.UUID

	for i := range batch {
		issues := m.validator.Validate(&batch[i])

		for _, issue := range issues {
			m.logger.Log(ctx, issue.Severity.LogLevel(), "reading validation issue",
				slog.String("reading_id", batch[i].ID.String()),
				slog.Int64("meter_id", batch[i].MeterID),
				slog.String("field", issue.Field),
				slog.String("message", issue.Message),
			)
		}

		if HasErrors(issues) {
			rejected = append(rejected, batch[i].ID)

			continue
		}

		valid = append(valid, batch[i])
	}

	if len(rejected) > 0 {
		res.RecordsRejected = int64(len(rejected))

		if _, err := m.local.MarkFailedValidation(ctx, rejected); err != nil {
			// Leave them in the pending set; they will be re-validated and
			// re-rejected next cycle.
			m.logger.Warn("marking rejected readings failed",
				slog.String("error", err.Error()))
		}
	}

	return valid
}

func (m *UploadManager) appendLog(ctx context.Context, op string, batchSize int, success bool, opErr error) {
	entry := store.SyncLogEntry{
		OperationType: op,
		BatchSize:     batchSize,
		Success:       success,
	}
	if opErr != nil {
		entry.ErrorMessage = opErr.Error()
	}

	if err := m.syncLog.AppendSyncLog(ctx, entry); err != nil {
		m.logger.Warn("sync log append failed", slog.String("error", err.Error()))
	}
}

func readingIDs(batch []store.Reading) []uuid.UUID {
	ids := make([]uuid.UUID, len(batch))
	for i := range batch {
		ids[i] = batch[i].ID
	}

	return ids
}
