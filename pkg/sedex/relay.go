package sedex

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lwgs/searchindex-client/pkg/broker"
	"github.com/lwgs/searchindex-client/pkg/metrics"
	"github.com/lwgs/searchindex-client/pkg/model"
	"github.com/lwgs/searchindex-client/pkg/store"
)

// StatePublisher publishes sedex-state events for the state processor.
type StatePublisher interface {
	PublishStateShadow(ctx context.Context, topic string, headers broker.CommonHeaders) error
}

// Relay watches the Sedex receipt directory, moves the matching
// SedexMessage row to its terminal state and publishes a sedex-state event
// so the owning job is reconciled. Handled files are moved to the archive
// directory. A periodic rescan picks up files that were dropped while the
// watcher was down.
type Relay struct {
	receiptDir   string
	archiveDir   string
	rescanPeriod time.Duration
	store        store.Store
	publisher    StatePublisher
	logger       *zap.Logger
}

func NewRelay(receiptDir, archiveDir string, rescanPeriod time.Duration, st store.Store, publisher StatePublisher, logger *zap.Logger) *Relay {
	if rescanPeriod <= 0 {
		rescanPeriod = time.Minute
	}
	return &Relay{
		receiptDir:   receiptDir,
		archiveDir:   archiveDir,
		rescanPeriod: rescanPeriod,
		store:        st,
		publisher:    publisher,
		logger:       logger,
	}
}

func (r *Relay) Run(ctx context.Context) error {
	if err := os.MkdirAll(r.receiptDir, 0o755); err != nil {
		return err
	}
	if err := os.MkdirAll(r.archiveDir, 0o755); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(r.receiptDir); err != nil {
		return err
	}

	ticker := time.NewTicker(r.rescanPeriod)
	defer ticker.Stop()

	r.scan(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Rename) {
				r.handleFile(ctx, event.Name)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("receipt watcher error", zap.Error(err))
		case <-ticker.C:
			r.scan(ctx)
		}
	}
}

func (r *Relay) scan(ctx context.Context) {
	entries, err := os.ReadDir(r.receiptDir)
	if err != nil {
		r.logger.Warn("failed to scan receipt directory", zap.Error(err))
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		r.handleFile(ctx, filepath.Join(r.receiptDir, entry.Name()))
	}
}

func (r *Relay) handleFile(ctx context.Context, path string) {
	if !strings.HasSuffix(strings.ToLower(path), ".xml") {
		return
	}

	receipt, err := ReadReceiptFromFile(path)
	if err != nil {
		r.logger.Warn("unreadable receipt file", zap.String("path", path), zap.Error(err))
		metrics.SedexReceiptsProcessed.WithLabelValues("malformed").Inc()
		r.archive(path)
		return
	}

	outcome := r.processReceipt(ctx, receipt)
	metrics.SedexReceiptsProcessed.WithLabelValues(outcome).Inc()
	r.archive(path)
}

func (r *Relay) processReceipt(ctx context.Context, receipt *Receipt) string {
	messageID, err := uuid.Parse(receipt.MessageID)
	if err != nil {
		r.logger.Warn("receipt without parsable message id",
			zap.String("message_id", receipt.MessageID),
		)
		return "malformed"
	}

	var jobID *uuid.UUID
	err = r.store.InTransaction(ctx, func(repos store.Repositories) error {
		message, err := repos.SedexMessages().FindByMessageID(ctx, messageID)
		if err != nil {
			return err
		}

		next := receipt.MessageState()
		if !message.SetStateWithTimestamp(next, time.Now()) {
			r.logger.Debug("sedex message already terminal",
				zap.String("message_id", messageID.String()),
				zap.String("state", string(message.State)),
			)
			jobID = message.JobID
			return nil
		}
		jobID = message.JobID
		return repos.SedexMessages().Save(ctx, message)
	})
	if errors.Is(err, store.ErrNotFound) {
		r.logger.Warn("receipt for unknown sedex message",
			zap.String("message_id", messageID.String()),
		)
		return "unknown"
	}
	if err != nil {
		r.logger.Error("failed to update sedex message", zap.Error(err))
		return "error"
	}

	if jobID != nil {
		headers := broker.CommonHeaders{
			JobID:           jobID,
			JobType:         model.JobTypeFull,
			MessageCategory: model.CategorySedexEvent,
			Timestamp:       time.Now(),
		}
		if err := r.publisher.PublishStateShadow(ctx, broker.QueueSedexState, headers); err != nil {
			r.logger.Error("failed to publish sedex state event", zap.Error(err))
			return "error"
		}
	}

	return "processed"
}

func (r *Relay) archive(path string) {
	target := filepath.Join(r.archiveDir, filepath.Base(path))
	if err := os.Rename(path, target); err != nil {
		r.logger.Warn("failed to archive receipt file",
			zap.String("path", path),
			zap.Error(err),
		)
	}
}
