// Package presence tracks who is connected to a room and which participant
// holds the controller flag.
package presence

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/mcdev12/cuetimer/go/internal/models"
)

const (
	DefaultName   = "Guest"
	MaxNameLength = 64
)

var (
	ErrParticipantNotFound = errors.New("participant not found")
	ErrNotController       = errors.New("participant is not the controller")
	ErrInvalidTarget       = errors.New("invalid control transfer target")
	ErrInvalidToken        = errors.New("participant token does not match")
)

// JoinRequest describes a device joining a room. A known ParticipantID
// reconnects the existing record instead of creating a new one, provided
// Token is the one issued when the record was created.
type JoinRequest struct {
	ParticipantID string
	Token         string
	Name          string
	DeviceType    models.DeviceType
	AsController  bool
}

// Session is what a join hands back to the device that joined. Token is the
// participant's credential for later reconnects and commands; it is never
// part of the room state. Seq increases with every join of the same
// participant, so a connection can tell whether a newer one replaced it.
type Session struct {
	models.Participant
	Token       string
	Seq         uint64
	Reconnected bool
}

type credential struct {
	token string
	seq   uint64
}

// Tracker holds the participants of one room. At most one participant has
// IsController set. It is not safe for concurrent use; the room actor owns it.
type Tracker struct {
	participants map[string]*models.Participant
	credentials  map[string]*credential
	order        []string
	controllerID string
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		participants: make(map[string]*models.Participant),
		credentials:  make(map[string]*credential),
	}
}

// Join adds or reconnects a participant. Controller is granted only when no
// other connected participant holds it; a controller that has dropped off
// loses the flag to the new requester. Reconnecting a known participant
// without its token fails with ErrInvalidToken and changes nothing.
func (t *Tracker) Join(req JoinRequest, now time.Time) (Session, error) {
	if existing, ok := t.participants[req.ParticipantID]; ok {
		if err := t.Authenticate(existing.ID, req.Token); err != nil {
			return Session{}, err
		}
		if strings.TrimSpace(req.Name) != "" {
			existing.Name = cleanName(req.Name)
		}
		if req.DeviceType != "" {
			existing.DeviceType = req.DeviceType
		}
		existing.IsConnected = true
		existing.LastSeenAt = now
		existing.DisconnectedAt = nil
		if req.AsController {
			t.tryGrant(existing.ID)
		}
		cred := t.credentials[existing.ID]
		cred.seq++
		return Session{Participant: *existing, Token: cred.token, Seq: cred.seq, Reconnected: true}, nil
	}

	id := req.ParticipantID
	if _, err := uuid.Parse(id); err != nil {
		id = uuid.New().String()
	}
	deviceType := req.DeviceType
	if deviceType == "" {
		deviceType = models.DeviceTypeUnknown
	}

	participant := &models.Participant{
		ID:          id,
		Name:        cleanName(req.Name),
		DeviceType:  deviceType,
		IsConnected: true,
		JoinedAt:    now,
		LastSeenAt:  now,
	}
	cred := &credential{token: uuid.NewString(), seq: 1}
	t.participants[id] = participant
	t.credentials[id] = cred
	t.order = append(t.order, id)

	if req.AsController {
		t.tryGrant(id)
	}
	return Session{Participant: *participant, Token: cred.token, Seq: cred.seq}, nil
}

// Authenticate checks token against the one issued to participant id.
func (t *Tracker) Authenticate(id, token string) error {
	cred, ok := t.credentials[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrParticipantNotFound, id)
	}
	if token == "" || subtle.ConstantTimeCompare([]byte(cred.token), []byte(token)) != 1 {
		return ErrInvalidToken
	}
	return nil
}

// Current reports whether seq belongs to the latest join of participant id.
func (t *Tracker) Current(id string, seq uint64) bool {
	cred, ok := t.credentials[id]
	return ok && cred.seq == seq
}

// Leave removes a participant immediately, releasing the controller flag if
// it held it.
func (t *Tracker) Leave(id string) error {
	if _, ok := t.participants[id]; !ok {
		return fmt.Errorf("%w: %s", ErrParticipantNotFound, id)
	}
	t.remove(id)
	return nil
}

// MarkDisconnected keeps the record, and any controller flag, for the grace
// period so the device can reconnect.
func (t *Tracker) MarkDisconnected(id string, now time.Time) error {
	p, ok := t.participants[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrParticipantNotFound, id)
	}
	if p.IsConnected {
		p.IsConnected = false
		p.DisconnectedAt = &now
	}
	return nil
}

// Heartbeat records liveness. A disconnected participant is reconnected.
// It reports whether the participant's connection status changed.
func (t *Tracker) Heartbeat(id string, now time.Time) (bool, error) {
	p, ok := t.participants[id]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrParticipantNotFound, id)
	}
	p.LastSeenAt = now
	if p.IsConnected {
		return false, nil
	}
	p.IsConnected = true
	p.DisconnectedAt = nil
	return true, nil
}

// Sweep marks participants silent for heartbeatTimeout as disconnected and
// removes those disconnected for longer than grace. It reports whether
// anything changed.
func (t *Tracker) Sweep(now time.Time, heartbeatTimeout, grace time.Duration) bool {
	changed := false
	for _, id := range append([]string(nil), t.order...) {
		p := t.participants[id]
		switch {
		case p.IsConnected && heartbeatTimeout > 0 && now.Sub(p.LastSeenAt) >= heartbeatTimeout:
			p.IsConnected = false
			p.DisconnectedAt = &now
			changed = true
		case !p.IsConnected && p.DisconnectedAt != nil && now.Sub(*p.DisconnectedAt) >= grace:
			t.remove(id)
			changed = true
		}
	}
	return changed
}

// NextDeadline returns the earliest time Sweep could change something.
func (t *Tracker) NextDeadline(heartbeatTimeout, grace time.Duration) (time.Time, bool) {
	var next time.Time
	found := false
	consider := func(at time.Time) {
		if !found || at.Before(next) {
			next, found = at, true
		}
	}
	for _, p := range t.participants {
		switch {
		case p.IsConnected && heartbeatTimeout > 0:
			consider(p.LastSeenAt.Add(heartbeatTimeout))
		case !p.IsConnected && p.DisconnectedAt != nil:
			consider(p.DisconnectedAt.Add(grace))
		}
	}
	return next, found
}

// Transfer hands the controller flag from the current controller to another
// connected participant.
func (t *Tracker) Transfer(fromID, toID string) error {
	if !t.IsController(fromID) {
		return ErrNotController
	}
	target, ok := t.participants[toID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrParticipantNotFound, toID)
	}
	if !target.IsConnected || toID == fromID {
		return fmt.Errorf("%w: %s", ErrInvalidTarget, toID)
	}
	t.participants[fromID].IsController = false
	target.IsController = true
	t.controllerID = toID
	return nil
}

// IsController reports whether id currently holds the controller flag.
func (t *Tracker) IsController(id string) bool {
	return id != "" && id == t.controllerID
}

// Controller returns the current controller, connected or not.
func (t *Tracker) Controller() (models.Participant, bool) {
	p, ok := t.participants[t.controllerID]
	if !ok {
		return models.Participant{}, false
	}
	return *p, true
}

// Get returns a participant by id.
func (t *Tracker) Get(id string) (models.Participant, bool) {
	p, ok := t.participants[id]
	if !ok {
		return models.Participant{}, false
	}
	return *p, true
}

// ConnectedCount returns how many participants are currently connected.
func (t *Tracker) ConnectedCount() int {
	n := 0
	for _, p := range t.participants {
		if p.IsConnected {
			n++
		}
	}
	return n
}

// Len returns the number of retained participant records.
func (t *Tracker) Len() int {
	return len(t.participants)
}

// List returns the participants in join order.
func (t *Tracker) List() []models.Participant {
	out := make([]models.Participant, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, *t.participants[id])
	}
	return out
}

func (t *Tracker) tryGrant(id string) {
	if current, ok := t.participants[t.controllerID]; ok {
		if current.ID == id || current.IsConnected {
			return
		}
		current.IsController = false
	}
	t.participants[id].IsController = true
	t.controllerID = id
}

func (t *Tracker) remove(id string) {
	delete(t.participants, id)
	delete(t.credentials, id)
	for i, v := range t.order {
		if v == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	if t.controllerID == id {
		t.controllerID = ""
	}
}

func cleanName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultName
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		name = string([]rune(name)[:MaxNameLength])
	}
	return name
}
