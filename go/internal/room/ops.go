package room

import "github.com/mcdev12/cuetimer/go/internal/models"

// OpKind names an intent a participant sends to its room.
type OpKind string

const (
	OpSetTimer        OpKind = "timer.set"
	OpStart           OpKind = "timer.start"
	OpPause           OpKind = "timer.pause"
	OpStop            OpKind = "timer.stop"
	OpReset           OpKind = "timer.reset"
	OpAddTime         OpKind = "timer.add"
	OpSendMessage     OpKind = "message.send"
	OpDismissMessage  OpKind = "message.dismiss"
	OpClearMessages   OpKind = "message.clear"
	OpUpdateSettings  OpKind = "settings.update"
	OpTransferControl OpKind = "control.transfer"
)

// Valid reports whether k is a known operation.
func (k OpKind) Valid() bool {
	switch k {
	case OpSetTimer, OpStart, OpPause, OpStop, OpReset, OpAddTime,
		OpSendMessage, OpDismissMessage, OpClearMessages,
		OpUpdateSettings, OpTransferControl:
		return true
	}
	return false
}

// Operation is an intent to change room state. Every operation is
// controller-only and must carry the sender's token; only the fields
// relevant to Kind are read.
type Operation struct {
	Kind          OpKind                `json:"kind"`
	ParticipantID string                `json:"participant_id"`
	Token         string                `json:"token,omitempty"`
	DurationMs    int64                 `json:"duration_ms,omitempty"`
	Label         string                `json:"label,omitempty"`
	TimerType     models.TimerType      `json:"timer_type,omitempty"`
	DeltaMs       int64                 `json:"delta_ms,omitempty"`
	Text          string                `json:"text,omitempty"`
	MessageType   models.MessageType    `json:"message_type,omitempty"`
	MessageID     string                `json:"message_id,omitempty"`
	Settings      *models.SettingsPatch `json:"settings,omitempty"`
	TargetID      string                `json:"target_id,omitempty"`
}

// WithToken returns op signed with the sender's token.
func (op Operation) WithToken(token string) Operation {
	op.Token = token
	return op
}

func SetTimer(participantID string, durationMs int64, label string) Operation {
	return Operation{Kind: OpSetTimer, ParticipantID: participantID, DurationMs: durationMs, Label: label}
}

func Start(participantID string) Operation {
	return Operation{Kind: OpStart, ParticipantID: participantID}
}

func Pause(participantID string) Operation {
	return Operation{Kind: OpPause, ParticipantID: participantID}
}

func Stop(participantID string) Operation {
	return Operation{Kind: OpStop, ParticipantID: participantID}
}

func Reset(participantID string) Operation {
	return Operation{Kind: OpReset, ParticipantID: participantID}
}

func AddTime(participantID string, deltaMs int64) Operation {
	return Operation{Kind: OpAddTime, ParticipantID: participantID, DeltaMs: deltaMs}
}

func SendMessage(participantID, text string, typ models.MessageType, durationMs int64) Operation {
	return Operation{Kind: OpSendMessage, ParticipantID: participantID, Text: text, MessageType: typ, DurationMs: durationMs}
}

func UpdateSettings(participantID string, patch models.SettingsPatch) Operation {
	return Operation{Kind: OpUpdateSettings, ParticipantID: participantID, Settings: &patch}
}

func DismissMessage(participantID, messageID string) Operation {
	return Operation{Kind: OpDismissMessage, ParticipantID: participantID, MessageID: messageID}
}

func ClearMessages(participantID string) Operation {
	return Operation{Kind: OpClearMessages, ParticipantID: participantID}
}

func TransferControl(participantID, targetID string) Operation {
	return Operation{Kind: OpTransferControl, ParticipantID: participantID, TargetID: targetID}
}
