// Command roomctl drives a cuetimer server from the terminal.
//
//	roomctl [-server URL] create
//	roomctl join -name host -controller [-code K7M2QX]
//	roomctl apply -code K7M2QX -as <participant> start
//	roomctl apply -code K7M2QX -as <participant> set -duration 5m -label Break
//	roomctl state -code K7M2QX
//	roomctl list
//	roomctl tail -code K7M2QX [-messages]
//	roomctl watch [-nats URL] [-code K7M2QX]
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/cuetimer/go/internal/models"
	"github.com/mcdev12/cuetimer/go/internal/room/relay"
	"github.com/mcdev12/cuetimer/go/internal/room/rpc"
)

func main() {
	_ = godotenv.Load()
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	server := flag.String("server", getEnv("CUETIMER_URL", "http://localhost:8080"), "cuetimer server base URL")
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := rpc.NewRoomServiceClient(&http.Client{}, *server)
	if err := run(ctx, client, flag.Arg(0), flag.Args()[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "roomctl: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: roomctl [-server URL] create|join|apply|leave|state|list|tail|watch [flags]\n")
	flag.PrintDefaults()
}

func run(ctx context.Context, client rpc.RoomServiceClient, cmd string, args []string) error {
	switch cmd {
	case "create":
		return create(ctx, client)
	case "join":
		return join(ctx, client, args)
	case "apply":
		return apply(ctx, client, args)
	case "leave":
		return leave(ctx, client, args)
	case "state":
		return state(ctx, client, args)
	case "list":
		return list(ctx, client)
	case "tail":
		return tail(ctx, client, args)
	case "watch":
		return watch(ctx, args)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func create(ctx context.Context, client rpc.RoomServiceClient) error {
	resp, err := client.CreateRoom(ctx, connect.NewRequest(&rpc.CreateRoomRequest{}))
	if err != nil {
		return err
	}
	return printJSON(resp.Msg.Room)
}

func join(ctx context.Context, client rpc.RoomServiceClient, args []string) error {
	fs := flag.NewFlagSet("join", flag.ContinueOnError)
	code := fs.String("code", "", "room code; empty creates a room")
	name := fs.String("name", "roomctl", "display name")
	controller := fs.Bool("controller", false, "request control")
	id := fs.String("id", "", "rejoin as this participant")
	token := fs.String("token", "", "token issued when the participant first joined")
	device := fs.String("device", "desktop", "device type")
	if err := fs.Parse(args); err != nil {
		return err
	}

	resp, err := client.JoinRoom(ctx, connect.NewRequest(&rpc.JoinRoomRequest{
		Code:          *code,
		Name:          *name,
		AsController:  *controller,
		ParticipantID: *id,
		Token:         *token,
		DeviceType:    models.ParseDeviceType(*device),
	}))
	if err != nil {
		return err
	}
	return printJSON(resp.Msg)
}

func apply(ctx context.Context, client rpc.RoomServiceClient, args []string) error {
	fs := flag.NewFlagSet("apply", flag.ContinueOnError)
	code := fs.String("code", "", "room code")
	as := fs.String("as", "", "controller participant id")
	token := fs.String("token", "", "controller participant token")
	opts := bindOpFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *code == "" || *as == "" || *token == "" || fs.NArg() != 1 {
		return errors.New("apply needs -code, -as, -token and one operation")
	}

	op, err := buildOperation(fs.Arg(0), *as, opts)
	if err != nil {
		return err
	}
	op = op.WithToken(*token)
	resp, err := client.Apply(ctx, connect.NewRequest(&rpc.ApplyRequest{Code: *code, Operation: op}))
	if err != nil {
		return err
	}
	printTimer(resp.Msg.State)
	return nil
}

func leave(ctx context.Context, client rpc.RoomServiceClient, args []string) error {
	fs := flag.NewFlagSet("leave", flag.ContinueOnError)
	code := fs.String("code", "", "room code")
	id := fs.String("id", "", "participant id")
	token := fs.String("token", "", "participant token")
	if err := fs.Parse(args); err != nil {
		return err
	}
	_, err := client.Leave(ctx, connect.NewRequest(&rpc.LeaveRequest{Code: *code, ParticipantID: *id, Token: *token}))
	return err
}

func state(ctx context.Context, client rpc.RoomServiceClient, args []string) error {
	fs := flag.NewFlagSet("state", flag.ContinueOnError)
	code := fs.String("code", "", "room code")
	if err := fs.Parse(args); err != nil {
		return err
	}
	resp, err := client.GetState(ctx, connect.NewRequest(&rpc.GetStateRequest{Code: *code}))
	if err != nil {
		return err
	}
	return printJSON(resp.Msg.State)
}

func list(ctx context.Context, client rpc.RoomServiceClient) error {
	resp, err := client.ListRooms(ctx, connect.NewRequest(&rpc.ListRoomsRequest{}))
	if err != nil {
		return err
	}
	for _, r := range resp.Msg.Rooms {
		fmt.Printf("%-12s %-9s %d/%d connected  idle since %s\n",
			r.Code, r.TimerStatus, r.Connected, r.Participants, r.LastActivityAt.Format(time.RFC3339))
	}
	return nil
}

func tail(ctx context.Context, client rpc.RoomServiceClient, args []string) error {
	fs := flag.NewFlagSet("tail", flag.ContinueOnError)
	code := fs.String("code", "", "room code")
	messages := fs.Bool("messages", false, "follow messages instead of snapshots")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *messages {
		stream, err := client.SubscribeMessages(ctx, connect.NewRequest(&rpc.SubscribeMessagesRequest{Code: *code}))
		if err != nil {
			return err
		}
		defer stream.Close()
		for stream.Receive() {
			m := stream.Msg().Message
			fmt.Printf("[%s] %s: %s\n", m.SentAt.Format(time.TimeOnly), m.Type, m.Text)
		}
		return streamErr(ctx, stream.Err())
	}

	stream, err := client.Subscribe(ctx, connect.NewRequest(&rpc.SubscribeRequest{Code: *code}))
	if err != nil {
		return err
	}
	defer stream.Close()
	for stream.Receive() {
		printTimer(stream.Msg().State)
	}
	return streamErr(ctx, stream.Err())
}

// watch follows the NATS relay rather than the server itself.
func watch(ctx context.Context, args []string) error {
	cfg := relay.DefaultJetStreamConfig()
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	fs.StringVar(&cfg.URL, "nats", getEnv("NATS_URL", cfg.URL), "NATS URL")
	fs.StringVar(&cfg.StreamName, "stream", cfg.StreamName, "relay stream name")
	fs.StringVar(&cfg.SubjectPrefix, "prefix", cfg.SubjectPrefix, "relay subject prefix")
	code := fs.String("code", "", "room code; empty follows every room")
	if err := fs.Parse(args); err != nil {
		return err
	}

	w, err := relay.NewWatcher(cfg)
	if err != nil {
		return err
	}
	defer w.Close()

	return w.Watch(ctx, *code, func(env relay.Envelope) error {
		switch env.EventType {
		case relay.EventTypeRoomState:
			var s models.RoomState
			if err := json.Unmarshal(env.Payload, &s); err != nil {
				return err
			}
			printTimer(s)
		case relay.EventTypeMessageSent:
			var m models.Message
			if err := json.Unmarshal(env.Payload, &m); err != nil {
				return err
			}
			fmt.Printf("%s  message %s: %s\n", env.RoomCode, m.Type, m.Text)
		}
		return nil
	})
}

func streamErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func printTimer(s models.RoomState) {
	t := s.Timer
	line := fmt.Sprintf("%s v%d  %-9s %s / %s", s.Room.Code, s.Version, t.Status,
		formatMs(t.RemainingMs), formatMs(t.DurationMs))
	if t.Label != "" {
		line += "  " + t.Label
	}
	if s.Alert != nil {
		line += "  (complete)"
	}
	fmt.Println(line)
}

func formatMs(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	return fmt.Sprintf("%02d:%02d:%02d", int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
