package main

import (
	"flag"
	"fmt"
	"strconv"
	"time"

	"github.com/mcdev12/cuetimer/go/internal/models"
	"github.com/mcdev12/cuetimer/go/internal/room"
)

type opFlags struct {
	duration    time.Duration
	label       string
	timerType   string
	text        string
	messageType string
	messageID   string
	target      string
	sound       string
	flash       string
}

func bindOpFlags(fs *flag.FlagSet) *opFlags {
	o := &opFlags{}
	fs.DurationVar(&o.duration, "duration", 0, "timer duration, added time, or message lifetime")
	fs.StringVar(&o.label, "label", "", "timer label")
	fs.StringVar(&o.timerType, "timer-type", "", "countdown or countup")
	fs.StringVar(&o.text, "text", "", "message text")
	fs.StringVar(&o.messageType, "message-type", string(models.MessageTypeInfo), "info, warning, alert or success")
	fs.StringVar(&o.messageID, "message-id", "", "message to dismiss")
	fs.StringVar(&o.target, "to", "", "participant to hand control to")
	fs.StringVar(&o.sound, "sound", "", "settings: sound on completion (true/false)")
	fs.StringVar(&o.flash, "flash", "", "settings: flash on completion (true/false)")
	return o
}

// buildOperation maps a command word and its flags onto a room operation.
func buildOperation(name, participantID string, o *opFlags) (room.Operation, error) {
	switch name {
	case "set":
		op := room.SetTimer(participantID, o.duration.Milliseconds(), o.label)
		op.TimerType = models.TimerType(o.timerType)
		return op, nil
	case "start":
		return room.Start(participantID), nil
	case "pause":
		return room.Pause(participantID), nil
	case "stop":
		return room.Stop(participantID), nil
	case "reset":
		return room.Reset(participantID), nil
	case "add":
		return room.AddTime(participantID, o.duration.Milliseconds()), nil
	case "message":
		return room.SendMessage(participantID, o.text, models.MessageType(o.messageType), o.duration.Milliseconds()), nil
	case "dismiss":
		return room.DismissMessage(participantID, o.messageID), nil
	case "clear":
		return room.ClearMessages(participantID), nil
	case "transfer":
		return room.TransferControl(participantID, o.target), nil
	case "settings":
		var patch models.SettingsPatch
		var err error
		if patch.SoundEnabled, err = optionalBool(o.sound); err != nil {
			return room.Operation{}, fmt.Errorf("-sound: %w", err)
		}
		if patch.FlashOnComplete, err = optionalBool(o.flash); err != nil {
			return room.Operation{}, fmt.Errorf("-flash: %w", err)
		}
		return room.UpdateSettings(participantID, patch), nil
	default:
		return room.Operation{}, fmt.Errorf("unknown operation %q", name)
	}
}

func optionalBool(s string) (*bool, error) {
	if s == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return nil, err
	}
	return &b, nil
}
