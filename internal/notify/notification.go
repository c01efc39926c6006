// Package notify implements the change fan-out and listener side of the
// session core: one notification per successful mutating statement,
// delivered redundantly over the direct hub channel, the shared marker
// file, and the in-process bus. No transport deduplicates; listeners treat
// every delivery as a hint to re-fetch.
package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kartikbazzad/bunbase/tabsync/internal/sqlhint"
)

// Synthetic actions alongside the sqlhint statement actions.
const (
	ActionRefresh    = "refresh"
	ActionPeerOnline = "peer_online"
)

// Transport labels as seen by listener callbacks and metrics.
const (
	TransportDirect  = "direct"
	TransportStorage = "storage"
	TransportLocal   = "local"
	TransportRefresh = "refresh"
)

// Notification is the immutable value describing one change. It is produced
// once per successful mutating statement (or process-online announcement)
// and consumed independently by any number of listeners in any process.
type Notification struct {
	Action    string `json:"action"`
	Statement string `json:"statement"`
	Table     string `json:"table,omitempty"`
	Timestamp int64  `json:"timestamp"` // unix milliseconds
	Origin    string `json:"origin"`
}

// NewNotification builds a notification for a successful statement. The
// table is the caller's hint when given, otherwise the sqlhint guess.
func NewNotification(stmt, tableHint, origin string) *Notification {
	table := tableHint
	if table == "" {
		table = sqlhint.Table(stmt)
	}
	return &Notification{
		Action:    sqlhint.Action(stmt),
		Statement: stmt,
		Table:     table,
		Timestamp: nowMillis(),
		Origin:    origin,
	}
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// Encode serializes the notification for the wire and the marker file.
func (n *Notification) Encode() ([]byte, error) {
	return json.Marshal(n)
}

// DecodeNotification parses a serialized notification.
func DecodeNotification(data []byte) (*Notification, error) {
	n := &Notification{}
	if err := json.Unmarshal(data, n); err != nil {
		return nil, fmt.Errorf("decode notification: %w", err)
	}
	return n, nil
}

// NewOriginID generates the per-process identifier carried by every
// notification: a timestamp plus a random suffix, so listeners can tell
// self-originated notifications from remote ones if they care to.
func NewOriginID() string {
	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), uuid.NewString()[:8])
}
