// Command sessionctl drives the console session and the realtime channel from
// the terminal.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"scribe-console/internal/app"
	"scribe-console/internal/config"
	"scribe-console/internal/domain"
	"scribe-console/internal/messaging"
	"scribe-console/internal/observability"
	"scribe-console/internal/realtime"
	"scribe-console/internal/service"
)

const usage = `usage: sessionctl <command> [flags]

commands:
  login    -email <email> [-password <password>]
  status   show the stored session without contacting the backend
  verify   check the session with the backend, renewing it when due
  renew    trade the current token for a fresh one
  logout   end the session
  watch    [-events a,b] [-rooms a,b] [-for 30s] print realtime events as they arrive
  publish  -event <name> [-data <json>] send an event over the realtime transport
`

const connectTimeout = 30 * time.Second

var errUsage = errors.New("invalid usage")

// sessions is the part of the token lifecycle the commands use.
type sessions interface {
	Login(ctx context.Context, email, password string) (domain.Session, error)
	Verify(ctx context.Context) service.VerifyResult
	Renew(ctx context.Context) (domain.Session, error)
	Logout(ctx context.Context) error
	Session(ctx context.Context) domain.Session
	IsExpiringSoon(ctx context.Context) bool
}

type sessionOutput struct {
	HasToken     bool          `json:"has_token"`
	ExpiresAt    *time.Time    `json:"expires_at,omitempty"`
	ExpiringSoon bool          `json:"expiring_soon"`
	Valid        *bool         `json:"valid,omitempty"`
	Reason       string        `json:"reason,omitempty"`
	Admin        *domain.Admin `json:"admin,omitempty"`
}

type eventOutput struct {
	Event      string          `json:"event"`
	Data       json.RawMessage `json:"data,omitempty"`
	ReceivedAt time.Time       `json:"received_at"`
}

func main() {
	cfg := config.Load()
	observability.InitLoggerTo(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		observability.Error("command failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, args := args[0], args[1:]

	var outbound realtime.Event
	switch cmd {
	case "publish":
		ev, err := parsePublish(args)
		if err != nil {
			return err
		}
		if cfg.RealtimeTransport == config.TransportAMQP {
			return publishAMQP(ctx, cfg, ev, out)
		}
		outbound = ev
	case "login", "status", "verify", "renew", "logout", "watch":
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}

	store, closeStore, err := app.OpenCredentialStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	tokens := app.NewTokenManager(cfg, store, app.NewBackendClient(cfg))

	switch cmd {
	case "watch":
		manager := app.NewManager(cfg, tokens.Token)
		defer manager.DisconnectAll()
		return watch(ctx, manager, args, out)
	case "publish":
		manager := app.NewManager(cfg, tokens.Token)
		defer manager.DisconnectAll()
		return emit(ctx, manager, outbound, out)
	}
	return runSession(ctx, tokens, cmd, args, out)
}

func runSession(ctx context.Context, s sessions, cmd string, args []string, out io.Writer) error {
	switch cmd {
	case "login":
		fs := flag.NewFlagSet("login", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		email := fs.String("email", os.Getenv("SCRIBE_EMAIL"), "admin email")
		password := fs.String("password", os.Getenv("SCRIBE_PASSWORD"), "admin password")
		if err := fs.Parse(args); err != nil {
			return fmt.Errorf("%w: %v", errUsage, err)
		}
		if *email == "" || *password == "" {
			return fmt.Errorf("%w: login needs an email and a password", errUsage)
		}
		if _, err := s.Login(ctx, *email, *password); err != nil {
			return err
		}
		return printJSON(out, describe(ctx, s))

	case "status":
		return printJSON(out, describe(ctx, s))

	case "verify":
		result := s.Verify(ctx)
		desc := describe(ctx, s)
		desc.Valid = &result.Valid
		desc.Reason = result.Reason
		desc.Admin = result.Admin
		return printJSON(out, desc)

	case "renew":
		if _, err := s.Renew(ctx); err != nil {
			return err
		}
		return printJSON(out, describe(ctx, s))

	case "logout":
		if err := s.Logout(ctx); err != nil {
			return err
		}
		return printJSON(out, describe(ctx, s))
	}
	return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
}

func describe(ctx context.Context, s sessions) sessionOutput {
	session := s.Session(ctx)
	desc := sessionOutput{
		HasToken:     session.HasToken(),
		ExpiringSoon: s.IsExpiringSoon(ctx),
	}
	if !session.ExpiresAt.IsZero() {
		desc.ExpiresAt = &session.ExpiresAt
	}
	return desc
}

func watch(ctx context.Context, manager *realtime.Manager, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	names := fs.String("events", strings.Join([]string{
		realtime.EventAnalyticsUpdate,
		realtime.EventUsersUpdate,
		realtime.EventNewNotification,
	}, ","), "comma-separated event names")
	rooms := fs.String("rooms", "", "comma-separated rooms to join")
	duration := fs.Duration("for", 0, "stop after this long (0 runs until interrupted)")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	events := make(chan realtime.Event, 64)
	for _, name := range splitList(*names) {
		unsubscribe := manager.Subscribe(ctx, name, func(ev realtime.Event) {
			select {
			case events <- ev:
			default:
				observability.Warn("dropping event, output is behind", slog.String("event", ev.Name))
			}
		})
		defer unsubscribe()
	}

	channel := manager.GetOrCreate(ctx)
	stopListening := channel.OnStateChange(func(s realtime.State) {
		observability.Debug("channel state changed", slog.String("state", s.String()))
	})
	defer stopListening()

	for _, room := range splitList(*rooms) {
		if err := channel.JoinRoom(ctx, room); err != nil {
			return fmt.Errorf("join room %s: %w", room, err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-channel.Done():
			return errors.New("realtime channel disconnected")
		case ev := <-events:
			if err := printJSON(out, eventOutput{Event: ev.Name, Data: ev.Data, ReceivedAt: time.Now()}); err != nil {
				return err
			}
		}
	}
}

func parsePublish(args []string) (realtime.Event, error) {
	fs := flag.NewFlagSet("publish", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	name := fs.String("event", "", "event name")
	data := fs.String("data", "", "JSON payload")
	if err := fs.Parse(args); err != nil {
		return realtime.Event{}, fmt.Errorf("%w: %v", errUsage, err)
	}
	if *name == "" {
		return realtime.Event{}, fmt.Errorf("%w: publish needs an event name", errUsage)
	}
	if *data != "" && !json.Valid([]byte(*data)) {
		return realtime.Event{}, fmt.Errorf("%w: data is not valid JSON", errUsage)
	}

	ev := realtime.Event{Name: *name}
	if *data != "" {
		ev.Data = json.RawMessage(*data)
	}
	return ev, nil
}

func publishAMQP(ctx context.Context, cfg *config.Config, ev realtime.Event, out io.Writer) error {
	rmq, err := messaging.NewRabbitMQ(cfg.AMQPURL, cfg.AMQPExchange)
	if err != nil {
		return err
	}
	defer rmq.Close()

	if err := rmq.Publish(ctx, ev); err != nil {
		return err
	}
	return printJSON(out, eventOutput{Event: ev.Name, Data: ev.Data, ReceivedAt: time.Now()})
}

// emit sends ev over the websocket channel once it is connected.
func emit(ctx context.Context, manager *realtime.Manager, ev realtime.Event, out io.Writer) error {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	channel := manager.GetOrCreate(ctx)
	if err := awaitConnected(ctx, channel); err != nil {
		return err
	}

	var payload any
	if len(ev.Data) > 0 {
		payload = ev.Data
	}
	if err := channel.Emit(ctx, ev.Name, payload); err != nil {
		return err
	}
	return printJSON(out, eventOutput{Event: ev.Name, Data: ev.Data, ReceivedAt: time.Now()})
}

func awaitConnected(ctx context.Context, channel *realtime.Channel) error {
	connected := make(chan struct{}, 1)
	stop := channel.OnStateChange(func(s realtime.State) {
		if s == realtime.StateConnected {
			select {
			case connected <- struct{}{}:
			default:
			}
		}
	})
	defer stop()

	if channel.State() == realtime.StateConnected {
		return nil
	}
	select {
	case <-connected:
		return nil
	case <-channel.Done():
		return errors.New("realtime channel disconnected")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
