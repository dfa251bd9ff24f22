// Package notifytest provides an in-memory notify.Notifier for ledger tests.
package notifytest

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/aldoetobex/legal-bid-backend/internal/notify"
	"github.com/aldoetobex/legal-bid-backend/pkg/apperr"
	"github.com/aldoetobex/legal-bid-backend/pkg/models"
)

// Broadcast is a recorded role broadcast.
type Broadcast struct {
	Role models.Role
	Type models.NotificationType
	Text string
}

// Recorder records every notification instead of delivering it. Dedupe keys are
// honoured the same way the dispatcher honours them.
type Recorder struct {
	mu         sync.Mutex
	Messages   []notify.Message
	Broadcasts []Broadcast
	Admin      []notify.Message

	// FailFor makes Notify report a delivery failure for these recipients.
	FailFor map[uuid.UUID]bool

	seen map[string]bool
}

func New() *Recorder { return &Recorder{FailFor: map[uuid.UUID]bool{}, seen: map[string]bool{}} }

func (r *Recorder) Notify(_ context.Context, m notify.Message) notify.Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m.DedupeKey != "" {
		if r.seen[m.DedupeKey] {
			return notify.Outcome{Duplicate: true}
		}
		r.seen[m.DedupeKey] = true
	}
	r.Messages = append(r.Messages, m)
	if r.FailFor[m.RecipientID] {
		err := apperr.Delivery("notifytest", context.DeadlineExceeded)
		return notify.Outcome{RealtimeErr: err, EmailErr: err}
	}
	return notify.Outcome{Notification: &models.Notification{ID: uuid.New(), Type: m.Type, Message: m.Text}}
}

func (r *Recorder) Broadcast(_ context.Context, role models.Role, typ models.NotificationType, text string, _ map[string]any) notify.Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Broadcasts = append(r.Broadcasts, Broadcast{Role: role, Type: typ, Text: text})
	return notify.Outcome{}
}

func (r *Recorder) NotifyAdmins(_ context.Context, typ models.NotificationType, text string, meta map[string]any) []notify.Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Admin = append(r.Admin, notify.Message{Type: typ, Text: text, Metadata: meta})
	return nil
}

// To returns the messages recorded for recipient, optionally filtered by type.
func (r *Recorder) To(recipient uuid.UUID, types ...models.NotificationType) []notify.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notify.Message
	for _, m := range r.Messages {
		if m.RecipientID != recipient {
			continue
		}
		if len(types) > 0 && !containsType(types, m.Type) {
			continue
		}
		out = append(out, m)
	}
	return out
}

// Count returns how many messages of typ were recorded.
func (r *Recorder) Count(typ models.NotificationType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.Messages {
		if m.Type == typ {
			n++
		}
	}
	return n
}

func containsType(ts []models.NotificationType, t models.NotificationType) bool {
	for _, x := range ts {
		if x == t {
			return true
		}
	}
	return false
}

var _ notify.Notifier = (*Recorder)(nil)
