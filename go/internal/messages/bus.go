// Package messages keeps a room's short-lived advisory messages.
package messages

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/mcdev12/cuetimer/go/internal/models"
)

const (
	DefaultHistorySize = 10
	MaxTextLength      = 280
)

var (
	ErrInvalidMessage  = errors.New("invalid message")
	ErrMessageNotFound = errors.New("message not found")
)

// Bus holds the active messages of one room plus a bounded history of
// everything sent, expired or not. It is not safe for concurrent use; the
// room actor owns it.
type Bus struct {
	active      []models.Message
	recent      []models.Message
	historySize int
}

// NewBus creates a bus that remembers the last historySize messages.
func NewBus(historySize int) *Bus {
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	return &Bus{historySize: historySize}
}

// Send appends a message that stays active for durationMs from now. A
// durationMs of zero or less makes it sticky.
func (b *Bus) Send(text string, typ models.MessageType, durationMs int64, now time.Time) (models.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Message{}, fmt.Errorf("%w: text is required", ErrInvalidMessage)
	}
	if utf8.RuneCountInString(text) > MaxTextLength {
		return models.Message{}, fmt.Errorf("%w: text longer than %d characters", ErrInvalidMessage, MaxTextLength)
	}
	if typ == "" {
		typ = models.MessageTypeInfo
	}
	if !typ.Valid() {
		return models.Message{}, fmt.Errorf("%w: unknown type %q", ErrInvalidMessage, typ)
	}

	msg := models.Message{
		ID:         uuid.New().String(),
		Text:       text,
		Type:       typ,
		SentAt:     now,
		DurationMs: min(max(durationMs, 0), models.MaxMessageDurationMs),
	}

	b.active = append(b.active, msg)
	b.recent = append(b.recent, msg)
	if over := len(b.recent) - b.historySize; over > 0 {
		b.recent = append(b.recent[:0:0], b.recent[over:]...)
	}
	return msg, nil
}

// Dismiss removes an active message before it expires.
func (b *Bus) Dismiss(id string) error {
	idx := -1
	for i, m := range b.active {
		if m.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrMessageNotFound, id)
	}
	b.active = append(b.active[:idx], b.active[idx+1:]...)
	b.markDismissed(id)
	return nil
}

// Clear dismisses every active message and returns how many there were.
func (b *Bus) Clear() int {
	n := len(b.active)
	for _, m := range b.active {
		b.markDismissed(m.ID)
	}
	b.active = b.active[:0]
	return n
}

// Expire drops messages whose display window has passed. It reports whether
// the active set changed.
func (b *Bus) Expire(now time.Time) bool {
	kept := b.active[:0]
	for _, m := range b.active {
		if m.ActiveAt(now) {
			kept = append(kept, m)
		}
	}
	changed := len(kept) != len(b.active)
	b.active = kept
	return changed
}

// Active returns the messages displayed at now, oldest first.
func (b *Bus) Active(now time.Time) []models.Message {
	out := make([]models.Message, 0, len(b.active))
	for _, m := range b.active {
		if m.ActiveAt(now) {
			out = append(out, m)
		}
	}
	return out
}

// Recent returns up to historySize of the latest messages, oldest first.
func (b *Bus) Recent() []models.Message {
	out := make([]models.Message, len(b.recent))
	copy(out, b.recent)
	return out
}

// NextExpiry returns the earliest time an active message expires.
func (b *Bus) NextExpiry() (time.Time, bool) {
	var next time.Time
	found := false
	for _, m := range b.active {
		at, ok := m.ExpiresAt()
		if !ok {
			continue
		}
		if !found || at.Before(next) {
			next, found = at, true
		}
	}
	return next, found
}

func (b *Bus) markDismissed(id string) {
	for i := range b.recent {
		if b.recent[i].ID == id {
			b.recent[i].Dismissed = true
		}
	}
}
