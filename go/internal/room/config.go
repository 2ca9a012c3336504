package room

import "time"

// Config controls room actors and the registry that owns them.
type Config struct {
	// TickInterval is the recompute period while a timer is running.
	TickInterval time.Duration
	// HeartbeatTimeout marks a silent participant disconnected.
	HeartbeatTimeout time.Duration
	// DisconnectGrace is how long a disconnected participant is retained.
	DisconnectGrace time.Duration
	// MessageHistory is how many recent messages a room remembers.
	MessageHistory int
	// SubscriberBuffer is the per-subscriber snapshot buffer.
	SubscriberBuffer int

	// IdleTTL is how long an empty room survives without activity.
	IdleTTL time.Duration
	// SweepInterval is how often the registry looks for idle rooms.
	SweepInterval time.Duration
	// CodeLength is the length of generated room codes.
	CodeLength int
}

// DefaultConfig returns the room defaults.
func DefaultConfig() Config {
	return Config{
		TickInterval:     250 * time.Millisecond,
		HeartbeatTimeout: 45 * time.Second,
		DisconnectGrace:  2 * time.Minute,
		MessageHistory:   10,
		SubscriberBuffer: 16,
		IdleTTL:          4 * time.Hour,
		SweepInterval:    time.Minute,
		CodeLength:       6,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.TickInterval <= 0 {
		c.TickInterval = d.TickInterval
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = d.HeartbeatTimeout
	}
	if c.DisconnectGrace <= 0 {
		c.DisconnectGrace = d.DisconnectGrace
	}
	if c.MessageHistory <= 0 {
		c.MessageHistory = d.MessageHistory
	}
	if c.SubscriberBuffer <= 0 {
		c.SubscriberBuffer = d.SubscriberBuffer
	}
	if c.IdleTTL <= 0 {
		c.IdleTTL = d.IdleTTL
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = d.SweepInterval
	}
	if c.CodeLength <= 0 {
		c.CodeLength = d.CodeLength
	}
	return c
}
