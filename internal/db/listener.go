package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"gorm.io/gorm"

	"github.com/docuvault/docuvault-backend/internal/logger"
)

// ExtractionJobsChannel is the pg_notify channel the extraction trigger fires
// on and the worker listens on. The payload is the job id, but listeners only
// use the notification as a wake-up; the claim query is the source of truth.
const ExtractionJobsChannel = "extraction_jobs"

// NotifyListener holds one dedicated Postgres connection in LISTEN mode and
// fans notifications out to a channel. gorm's pool cannot sit in LISTEN, so
// this goes through pgx directly.
type NotifyListener struct {
	dsn     string
	channel string
	log     *logger.Logger
	wake    chan string
}

func NewNotifyListener(dsn, channel string, log *logger.Logger) *NotifyListener {
	return &NotifyListener{
		dsn:     dsn,
		channel: channel,
		log:     log.With("component", "NotifyListener", "channel", channel),
		wake:    make(chan string, 16),
	}
}

// Wake delivers one payload per notification. Receivers must not block for
// long; late notifications are dropped when the buffer is full.
func (nl *NotifyListener) Wake() <-chan string {
	return nl.wake
}

// Start runs the listen loop until ctx is done, reconnecting with backoff
// after connection loss.
func (nl *NotifyListener) Start(ctx context.Context) {
	go func() {
		backoff := time.Second
		for {
			if ctx.Err() != nil {
				return
			}
			err := nl.listenOnce(ctx)
			if ctx.Err() != nil {
				return
			}
			nl.log.Warn("Listen connection lost, reconnecting", "error", err, "backoff", backoff)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
		}
	}()
}

func (nl *NotifyListener) listenOnce(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, nl.dsn)
	if err != nil {
		return fmt.Errorf("connect for LISTEN: %w", err)
	}
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, fmt.Sprintf(`LISTEN %q`, nl.channel)); err != nil {
		return fmt.Errorf("LISTEN %s: %w", nl.channel, err)
	}
	nl.log.Info("Listening for notifications")

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		select {
		case nl.wake <- notification.Payload:
		default:
			// Buffer full means the worker is already awake and busy.
		}
	}
}

// NotifyExtractionJobs nudges the worker after a job row is committed. The
// notify itself runs outside the enqueue transaction so that a listener can
// never wake before the row is visible.
func NotifyExtractionJobs(ctx context.Context, gdb *gorm.DB, payload string) error {
	return gdb.WithContext(ctx).Exec(`SELECT pg_notify(?, ?)`, ExtractionJobsChannel, payload).Error
}
