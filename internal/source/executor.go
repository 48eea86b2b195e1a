package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"courier/internal/config"
	"courier/internal/logging"
	"courier/internal/queue"
	"courier/internal/session"
	"courier/internal/textutil"
	"courier/internal/transfer"
)

var errAttemptCancelled = errors.New("transfer cancelled")

// KindFilter decides whether a payload kind should be relayed. A nil filter
// accepts every relayable kind.
type KindFilter func(kind transfer.Kind) bool

// Executor relays one task's payload from the source chat to the destination
// chat, spooling the content through local disk.
type Executor struct {
	client   *Client
	spoolDir string
	maxBytes int64
	filter   KindFilter
	logger   *slog.Logger

	// OnProgress is invoked after each task progress update; the daemon wires
	// it to the progress reporter.
	OnProgress func(task *queue.Task)
}

// NewExecutor builds a transfer executor from configuration.
func NewExecutor(cfg *config.Config, client *Client, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Executor{
		client:   client,
		spoolDir: cfg.Paths.SpoolDir,
		maxBytes: cfg.MaxFileBytes(),
		logger:   logger.With(logging.String(logging.FieldComponent, "executor")),
	}
}

// SetFilter installs a payload kind policy.
func (e *Executor) SetFilter(filter KindFilter) {
	e.filter = filter
}

// Execute performs one relay attempt and classifies the result. It never
// returns a raw error; every failure maps into the outcome taxonomy.
func (e *Executor) Execute(ctx context.Context, task *queue.Task, sess session.Handle) transfer.Outcome {
	if task.Cancelled() {
		return transfer.Cancelled()
	}

	item, err := e.client.Message(ctx, sess.Token(), task.SourceID, task.MessageID)
	if err != nil {
		return e.classify(err, "resolve message")
	}

	if item.Kind == transfer.KindText {
		return e.relayText(ctx, task, sess, item)
	}
	if !item.Kind.Relayable() {
		return transfer.Skipped(fmt.Sprintf("unsupported payload kind %q", item.RawKind))
	}
	if e.filter != nil && !e.filter(item.Kind) {
		return transfer.Skipped(fmt.Sprintf("kind %s excluded by policy", item.Kind))
	}
	if reason, ok := e.oversized(item); ok {
		return transfer.Skipped(reason)
	}

	task.SetFile(e.fileName(item), string(item.Kind), item.Size)
	task.SetStatus(queue.StatusDownloading)

	spoolPath := filepath.Join(e.spoolDir, uuid.NewString()+item.Kind.Extension(item.MIMEType))
	defer os.Remove(spoolPath)

	written, err := e.client.Download(ctx, sess.Token(), task.SourceID, task.MessageID, spoolPath, e.progressFunc(task))
	if err != nil {
		return e.classify(err, "download")
	}

	task.SetStatus(queue.StatusUploading)
	if err := e.client.Upload(ctx, sess.Token(), task.DestChat, item, spoolPath, e.progressFunc(task)); err != nil {
		return e.classify(err, "upload")
	}

	e.logger.Debug("payload relayed",
		logging.Int64(logging.FieldUserID, task.UserID),
		logging.Int64(logging.FieldMessageID, task.MessageID),
		logging.String("kind", string(item.Kind)),
		logging.Int64("bytes", written))
	return transfer.Success(written)
}

func (e *Executor) relayText(ctx context.Context, task *queue.Task, sess session.Handle, item *Item) transfer.Outcome {
	if item.Text == "" {
		return transfer.Skipped("empty text message")
	}
	task.SetFile("", string(transfer.KindText), int64(len(item.Text)))
	task.SetStatus(queue.StatusUploading)
	if err := e.client.SendText(ctx, sess.Token(), task.DestChat, item.Text); err != nil {
		return e.classify(err, "send text")
	}
	return transfer.Success(int64(len(item.Text)))
}

func (e *Executor) oversized(item *Item) (string, bool) {
	limit := item.Kind.MaxSizeBytes()
	if e.maxBytes > 0 && (limit == 0 || e.maxBytes < limit) {
		limit = e.maxBytes
	}
	if limit > 0 && item.Size > limit {
		return fmt.Sprintf("payload is %d bytes, limit for %s is %d", item.Size, item.Kind, limit), true
	}
	return "", false
}

// progressFunc returns the per-chunk callback for a task. The cancellation
// flag is polled here so a cancel lands at the next chunk boundary.
func (e *Executor) progressFunc(task *queue.Task) ProgressFunc {
	return func(transferred, total int64) error {
		if task.Cancelled() {
			return errAttemptCancelled
		}
		task.UpdateProgress(transferred, total, time.Now())
		if e.OnProgress != nil {
			e.OnProgress(task)
		}
		return nil
	}
}

func (e *Executor) fileName(item *Item) string {
	if name := textutil.SanitizeFileName(item.FileName); name != "" {
		return name
	}
	ext := item.Kind.Extension(item.MIMEType)
	if ext == "" {
		ext = ".bin"
	}
	return fmt.Sprintf("%s_%s%s", item.Kind, time.Now().Format("20060102_150405"), ext)
}

func (e *Executor) classify(err error, phase string) transfer.Outcome {
	var rateErr *RateLimitError
	switch {
	case errors.Is(err, errAttemptCancelled), errors.Is(err, context.Canceled):
		return transfer.Cancelled()
	case errors.As(err, &rateErr):
		return transfer.RateLimited(rateErr.Wait)
	case errors.Is(err, ErrExpiredReference):
		return transfer.ExpiredReference()
	case errors.Is(err, ErrNotFound):
		return transfer.Fatal(phase+": message not found", err)
	case errors.Is(err, ErrUnauthorized):
		return transfer.Fatal(phase+": credential rejected", err)
	default:
		return transfer.Fatal(phase+" failed", err)
	}
}
