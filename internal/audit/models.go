package audit

import (
	"fmt"
	"time"

	id "consentd/pkg/domain"
)

// Event records a single consent lifecycle transition. Events are append-only
// and immutable once written; per-request events are totally ordered by
// timestamp with Seq breaking ties.
type Event struct {
	RequestID id.RequestID `json:"request_id"`
	Actor     string       `json:"actor"` // requester | target | admin | system
	Action    string       `json:"action"`
	Outcome   string       `json:"outcome"`
	Timestamp time.Time    `json:"timestamp"`
	Seq       int64        `json:"seq"` // assigned by the store at append time
}

// DedupKey identifies this event across at-least-once deliveries so replays
// do not double-count downstream.
func (e Event) DedupKey() string {
	return fmt.Sprintf("%s:%d", e.RequestID, e.Seq)
}
