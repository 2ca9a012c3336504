package models

import "time"

// CompletionAlert is the one-time side effect of a timer reaching zero.
// Rendering it (flash, sound) is up to the display.
type CompletionAlert struct {
	Flash bool      `json:"flash"`
	Sound bool      `json:"sound"`
	At    time.Time `json:"at"`
	Cycle int       `json:"cycle"`
}

// RoomState is the full snapshot broadcast to every subscriber on every change.
type RoomState struct {
	Room           Room             `json:"room"`
	Timer          TimerState       `json:"timer"`
	Participants   []Participant    `json:"participants"`
	Messages       []Message        `json:"messages"`
	RecentMessages []Message        `json:"recent_messages"`
	Alert          *CompletionAlert `json:"alert,omitempty"`
	// Version increases by one with every broadcast from the room.
	Version    uint64    `json:"version"`
	ServerTime time.Time `json:"server_time"`
}

// Controller returns the participant holding the controller flag, if any.
func (s RoomState) Controller() (Participant, bool) {
	for _, p := range s.Participants {
		if p.IsController {
			return p, true
		}
	}
	return Participant{}, false
}

// RoomSummary is a lightweight view of a live room.
type RoomSummary struct {
	Code           string      `json:"code"`
	CreatedAt      time.Time   `json:"created_at"`
	LastActivityAt time.Time   `json:"last_activity_at"`
	Participants   int         `json:"participants"`
	Connected      int         `json:"connected"`
	TimerStatus    TimerStatus `json:"timer_status"`
	// Ticking is true while the room holds a live tick loop.
	Ticking bool `json:"ticking"`
}
