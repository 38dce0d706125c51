package audit

import (
	"context"
	"log/slog"
	"time"

	"lifelockr/internal/metrics"
)

const (
	ActionRegister         = "REGISTER"
	ActionLogin            = "LOGIN"
	ActionLoginMFA         = "LOGIN_MFA_VERIFIED"
	ActionCreateVaultItem  = "CREATE_VAULT_ITEM"
	ActionViewVaultItem    = "VIEW_VAULT_ITEM"
	ActionUpdateVaultItem  = "UPDATE_VAULT_ITEM"
	ActionDeleteVaultItem  = "DELETE_VAULT_ITEM"
	ActionEmergencyGranted = "EMERGENCY_ACCESS_GRANTED"
	ActionContactGranted   = "CONTACT_GRANTED"
	ActionContactRevoked   = "CONTACT_REVOKED"
	ActionContactRemoved   = "CONTACT_REMOVED"

	SourceNormal    = "normal"
	SourceEmergency = "emergency"

	writeTimeout = 5 * time.Second
)

// Entry is append-only; nothing in the application updates or deletes one.
type Entry struct {
	ID        string         `json:"id" bson:"_id,omitempty"`
	UserID    string         `json:"user" bson:"user"`
	Action    string         `json:"action" bson:"action"`
	Meta      map[string]any `json:"meta,omitempty" bson:"meta,omitempty"`
	Timestamp time.Time      `json:"timestamp" bson:"timestamp"`
	Seq       int64          `json:"seq" bson:"seq"`
	Hash      string         `json:"hash,omitempty" bson:"hash,omitempty"`
}

type Sink interface {
	AppendEntry(ctx context.Context, e Entry) error
}

// Filter selects entries newest first. An empty UserID means all users.
type Filter struct {
	UserID string
	Limit  int
}

type Reader interface {
	ListEntries(ctx context.Context, f Filter) ([]Entry, error)
}

// Verifier walks the whole log and reports ErrChainBroken on the first
// entry whose link does not hold.
type Verifier interface {
	Verify(ctx context.Context) error
}

// Recorder writes audit entries without ever failing the caller.
type Recorder struct {
	sink    Sink
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewRecorder(sink Sink, logger *slog.Logger, m *metrics.Metrics) *Recorder {
	return &Recorder{sink: sink, logger: logger, metrics: m, now: time.Now}
}

// Record appends one entry. A persistence failure is logged and counted,
// never returned. The write outlives a cancelled request context.
func (r *Recorder) Record(ctx context.Context, userID, action string, meta map[string]any) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	e := Entry{UserID: userID, Action: action, Meta: meta, Timestamp: r.now().UTC()}
	if err := r.sink.AppendEntry(wctx, e); err != nil {
		r.metrics.AuditWriteFailure()
		r.logger.Error("activity logging failed", "user_id", userID, "action", action, "err", err)
	}
}
