package interfaces

import (
	"context"
	"time"
)

type MonitorService interface {
	Run(ctx context.Context) error
	Stop() error
	Status() MonitorStatus
}

type MonitorStatus struct {
	State          string     `json:"state"`
	Folder         string     `json:"folder"`
	ConnectedAt    *time.Time `json:"connected_at,omitempty"`
	LastError      string     `json:"last_error,omitempty"`
	CurrentBackoff string     `json:"current_backoff,omitempty"`
	ProcessedTotal uint64     `json:"processed_total"`
}

// MailTransport is one authenticated IMAP connection with the selected folder
// as implicit state. Implementations are not safe for concurrent use; the
// monitor issues one command at a time.
type MailTransport interface {
	Select(folder string) error
	UnseenUIDs() ([]uint32, error)
	FetchRaw(uid uint32) ([]byte, error)
	// Wait blocks in IDLE until new mail arrives, the timeout elapses, or ctx
	// is cancelled. It reports whether a mailbox update was seen.
	Wait(ctx context.Context, timeout time.Duration) (bool, error)
	Noop() error
	Move(uid uint32, folder string) error
	Logout() error
}

// MailDialer produces a fresh authenticated transport. A transport that hits
// a protocol error is logged out and replaced, never repaired.
type MailDialer interface {
	Dial(ctx context.Context) (MailTransport, error)
}
