package models

import (
	"strings"
	"time"
)

// DeviceType is a hint about what kind of screen a participant is.
type DeviceType string

const (
	DeviceTypeUnknown DeviceType = "unknown"
	DeviceTypeDesktop DeviceType = "desktop"
	DeviceTypeTablet  DeviceType = "tablet"
	DeviceTypeMobile  DeviceType = "mobile"
	DeviceTypeDisplay DeviceType = "display"
)

// Participant is a device connected to a room.
type Participant struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	DeviceType   DeviceType `json:"device_type"`
	IsController bool       `json:"is_controller"`
	IsConnected  bool       `json:"is_connected"`
	JoinedAt     time.Time  `json:"joined_at"`
	LastSeenAt   time.Time  `json:"last_seen_at"`
	// DisconnectedAt is set while IsConnected is false.
	DisconnectedAt *time.Time `json:"disconnected_at,omitempty"`
}

// ParseDeviceType maps a client-supplied hint to a known device type.
func ParseDeviceType(s string) DeviceType {
	switch d := DeviceType(strings.ToLower(strings.TrimSpace(s))); d {
	case DeviceTypeDesktop, DeviceTypeTablet, DeviceTypeMobile, DeviceTypeDisplay:
		return d
	}
	return DeviceTypeUnknown
}
