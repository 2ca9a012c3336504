package models

import "time"

const (
	MinFontSize              = 8
	MaxFontSize              = 512
	DefaultFontSize          = 96
	DefaultMessageDurationMs = 10_000
	MaxMessageDurationMs     = 60 * 60 * 1000
)

// RoomSettings holds presentation preferences shared by every device in a room.
type RoomSettings struct {
	FontSize               int   `json:"font_size"`
	ShowMilliseconds       bool  `json:"show_milliseconds"`
	FlashOnComplete        bool  `json:"flash_on_complete"`
	SoundEnabled           bool  `json:"sound_enabled"`
	MessageAutoDismiss     bool  `json:"message_auto_dismiss"`
	MessageDefaultDuration int64 `json:"message_default_duration_ms"`
}

// DefaultRoomSettings returns the settings a new room starts with.
func DefaultRoomSettings() RoomSettings {
	return RoomSettings{
		FontSize:               DefaultFontSize,
		ShowMilliseconds:       false,
		FlashOnComplete:        true,
		SoundEnabled:           true,
		MessageAutoDismiss:     true,
		MessageDefaultDuration: DefaultMessageDurationMs,
	}
}

// SettingsPatch is a partial update; nil fields are left unchanged.
type SettingsPatch struct {
	FontSize               *int   `json:"font_size,omitempty"`
	ShowMilliseconds       *bool  `json:"show_milliseconds,omitempty"`
	FlashOnComplete        *bool  `json:"flash_on_complete,omitempty"`
	SoundEnabled           *bool  `json:"sound_enabled,omitempty"`
	MessageAutoDismiss     *bool  `json:"message_auto_dismiss,omitempty"`
	MessageDefaultDuration *int64 `json:"message_default_duration_ms,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p SettingsPatch) IsEmpty() bool {
	return p.FontSize == nil && p.ShowMilliseconds == nil && p.FlashOnComplete == nil &&
		p.SoundEnabled == nil && p.MessageAutoDismiss == nil && p.MessageDefaultDuration == nil
}

// Apply returns s with the patch applied. Out-of-range numbers are clamped.
func (s RoomSettings) Apply(p SettingsPatch) RoomSettings {
	if p.FontSize != nil {
		s.FontSize = min(max(*p.FontSize, MinFontSize), MaxFontSize)
	}
	if p.ShowMilliseconds != nil {
		s.ShowMilliseconds = *p.ShowMilliseconds
	}
	if p.FlashOnComplete != nil {
		s.FlashOnComplete = *p.FlashOnComplete
	}
	if p.SoundEnabled != nil {
		s.SoundEnabled = *p.SoundEnabled
	}
	if p.MessageAutoDismiss != nil {
		s.MessageAutoDismiss = *p.MessageAutoDismiss
	}
	if p.MessageDefaultDuration != nil {
		s.MessageDefaultDuration = min(max(*p.MessageDefaultDuration, 1000), MaxMessageDurationMs)
	}
	return s
}

// Room is an isolated timer and message session identified by a short code.
type Room struct {
	Code           string       `json:"code"`
	CreatedAt      time.Time    `json:"created_at"`
	LastActivityAt time.Time    `json:"last_activity_at"`
	Settings       RoomSettings `json:"settings"`
}
