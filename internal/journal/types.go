package journal

import (
	"context"
	"time"
)

// Config configures the tick journal.
//
// Driver values:
//   - "file": dependency-free JSON Lines backend
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty or "none", the journal is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	MaxRecords  int           // retained history bound; 0 means default
}

// TickRecord is the per-tick observability record.
//
// It is never read back by the reconciliation logic; announcement state lives
// only in the content source's approvalRequested flag.
type TickRecord struct {
	At         time.Time `json:"at"`
	Pending    int       `json:"pending"`
	Eligible   int       `json:"eligible"`
	Recipients int       `json:"recipients"`
	Submitted  int       `json:"submitted"`
	Marked     int       `json:"marked"`
	MarkFailed int       `json:"mark_failed"`
	Stage      string    `json:"stage,omitempty"` // stage the tick ended early at
	Error      string    `json:"error,omitempty"`
	TookMS     int64     `json:"took_ms"`
}

// Store is the minimal journal API used by the announcer service.
type Store interface {
	RecordTick(ctx context.Context, rec TickRecord) error
	RecentTicks(ctx context.Context, limit int) ([]TickRecord, error)
	Close() error
}
