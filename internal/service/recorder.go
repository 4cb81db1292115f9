package service

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/reelguard/reelguard/internal/models"
	"github.com/reelguard/reelguard/pkg/a11y"
)

const recorderBuffer = 64

// ActionWriter persists action logs
type ActionWriter interface {
	CreateActionLog(entry *models.ActionLog) error
}

// ActionRecorder writes dispatched actions to the database off the event
// path. When the buffer is full new entries are dropped, never blocked on.
type ActionRecorder struct {
	writer    ActionWriter
	sessionID string
	platform  string
	logger    *log.Logger
	now       func() time.Time

	queue   chan models.ActionLog
	dropped atomic.Uint64
	written atomic.Uint64
}

// NewActionRecorder creates a recorder with a fresh session ID
func NewActionRecorder(writer ActionWriter, platform string, logger *log.Logger) *ActionRecorder {
	if logger == nil {
		logger = log.Default()
	}
	return &ActionRecorder{
		writer:    writer,
		sessionID: uuid.NewString(),
		platform:  platform,
		logger:    logger,
		now:       time.Now,
		queue:     make(chan models.ActionLog, recorderBuffer),
	}
}

// SessionID identifies this run in the action log
func (r *ActionRecorder) SessionID() string {
	return r.sessionID
}

// ActionDispatched implements engine.Recorder
func (r *ActionRecorder) ActionDispatched(pkg string, action a11y.GlobalAction, ok bool) {
	entry := models.ActionLog{
		SessionID:   r.sessionID,
		Timestamp:   r.now(),
		PackageName: pkg,
		Action:      action.String(),
		Success:     ok,
		Platform:    r.platform,
	}
	select {
	case r.queue <- entry:
	default:
		r.dropped.Add(1)
		r.logger.Printf("Action log buffer full, dropped entry for %s", pkg)
	}
}

// Run writes queued entries until ctx is done, then drains what is left
func (r *ActionRecorder) Run(ctx context.Context) {
	for {
		select {
		case entry := <-r.queue:
			r.write(entry)
		case <-ctx.Done():
			for {
				select {
				case entry := <-r.queue:
					r.write(entry)
				default:
					return
				}
			}
		}
	}
}

func (r *ActionRecorder) write(entry models.ActionLog) {
	if err := r.writer.CreateActionLog(&entry); err != nil {
		r.logger.Printf("Failed to store action for %s: %v", entry.PackageName, err)
		return
	}
	r.written.Add(1)
}

// Dropped returns how many entries were discarded because the buffer was full
func (r *ActionRecorder) Dropped() uint64 {
	return r.dropped.Load()
}

// Written returns how many entries were stored
func (r *ActionRecorder) Written() uint64 {
	return r.written.Load()
}
