package main

import (
	"carelink/auth"
	"carelink/channel"
	"carelink/directory"
	"carelink/domain"
	"carelink/infrastructure/pubsub"
	"carelink/infrastructure/rest"
	"carelink/infrastructure/storage"
	"carelink/internal"
	"carelink/observability"
	"carelink/runtime/workers"
	"carelink/search"
	"carelink/services"
	"carelink/stream"
	"carelink/unread"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run wires the whole client core and drives a small terminal session:
// resume or log in, list conversations, follow the most recent one.
// Everything is cleaned up through defers before main exits.
func run() error {
	email := flag.String("email", "", "Login email (skipped when a session is persisted)")
	password := flag.String("password", "", "Login password")
	flag.Parse()

	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Database (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Session gate over the REST backend
	backend := rest.NewClient(log, config.APIBaseURL, config.HTTPTimeout)
	sessionStore := storage.NewSessionStore(db)
	gate := auth.NewGate(log, backend, sessionStore, consoleNavigator{stop: stop})

	if err = gate.Resume(); err != nil {
		return fmt.Errorf("resuming session: %w", err)
	}
	if gate.UserID() == "" {
		if *email == "" || *password == "" {
			return fmt.Errorf("no persisted session: pass -email and -password to log in")
		}
		if err = gate.Login(ctx, *email, *password); err != nil {
			return fmt.Errorf("login failed: %w", err)
		}
	}

	// 5. Core components
	dir := directory.NewDirectory(log, gate, backend)
	broker := pubsub.NewBroker(log, config.ChannelURL)
	manager := channel.NewManager(log, gate, broker, config.EventBufferSize)
	messageStream := stream.NewStream(log, gate, backend, config.ReconcileWindow)
	tracker := unread.NewTracker(log, gate, backend, dir)
	searcher := search.NewSearcher(log, gate, backend, dir, manager,
		search.NewWallScheduler(), config.SearchQuietTime)
	telemetry := observability.NewTelemetry(log, config.MetricInterval)
	refreshSink := services.NewDirectoryRefreshSink(log, dir, config.SinkTimeout)

	dispatcher := channel.NewDispatcher(log, manager, manager.Events(),
		messageStream, telemetry, refreshSink)
	dispatcher.OnStale(telemetry.IncrDroppedStale)
	gate.OnRefresh(telemetry.IncrRefresh)
	messageStream.OnSendFailed(telemetry.IncrSendFailed)

	chat := services.NewChatService(log, gate, dir, manager, messageStream, tracker, searcher)

	// 6. Supervision
	sup := workers.NewSupervisor(log, config.RestartInterval)
	sup.Add(manager, dispatcher, telemetry)
	supDone := make(chan struct{})
	go func() {
		defer close(supDone)
		sup.Run(ctx)
	}()

	// 7. Load the directory and follow the freshest conversation
	conversations, err := chat.Conversations(ctx)
	if err != nil {
		return fmt.Errorf("listing conversations: %w", err)
	}
	renderConversations(conversations)

	if len(conversations) > 0 {
		current := conversations[0]
		color.Green.Printf("Following %s\n", current.Participant.DisplayName)
		if err = chat.SelectConversation(ctx, current.ID); err != nil {
			log.Warn("History load failed", "conversation", current.ID, "error", err)
		}
		if err = chat.MarkRead(ctx, current.ID); err != nil {
			log.Warn("Mark read failed", "conversation", current.ID, "error", err)
		}
		messageStream.OnChange(func() {
			printLatest(messageStream.Messages())
		})
		printLatest(messageStream.Messages())
	}

	// 8. Wait for Stop
	<-ctx.Done()
	log.Info("Shutting down gracefully...")

	chat.Release()
	sup.Stop()
	<-supDone

	snap := telemetry.GetLatest()
	log.Info("Session telemetry",
		"events_received", snap.EventsReceived,
		"events_dropped", snap.EventsDropped,
		"refreshes", snap.Refreshes,
	)
	log.Info("Program stopped cleanly")

	return nil
}

// consoleNavigator is the terminal stand-in for the login screen: it
// tells the user and stops the run loop.
type consoleNavigator struct {
	stop context.CancelFunc
}

func (n consoleNavigator) RequireLogin() {
	color.Red.Println("Session expired, please log in again")
	n.stop()
}

func renderConversations(conversations []domain.Conversation) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"With", "Role", "Last Message", "Unread", "Updated"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)

	for _, conv := range conversations {
		unreadCol := ""
		if conv.UnreadCount > 0 {
			unreadCol = color.Yellow.Sprintf("%d", conv.UnreadCount)
		}
		table.Append([]string{
			conv.Participant.DisplayName,
			string(conv.Participant.Role),
			truncate(conv.LastMessage, 48),
			unreadCol,
			conv.UpdatedAt.Format("15:04:05"),
		})
	}
	table.Render()
}

func printLatest(messages []domain.Message) {
	if len(messages) == 0 {
		return
	}
	last := messages[len(messages)-1]
	prefix := last.AuthorID
	if last.Mine {
		prefix = "me"
	}
	switch last.State {
	case domain.StatePending:
		color.Gray.Printf("[%s] %s: %s (sending...)\n", last.CreatedAt.Format("15:04:05"), prefix, last.Body)
	case domain.StateFailed:
		color.Red.Printf("[%s] %s: %s (failed)\n", last.CreatedAt.Format("15:04:05"), prefix, last.Body)
	default:
		fmt.Printf("[%s] %s: %s\n", last.CreatedAt.Format("15:04:05"), prefix, last.Body)
	}
}

// truncate cuts on runes so a multi-byte preview is never split mid-character.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}
