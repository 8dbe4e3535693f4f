package main

import (
	"chat-session/domain"
	"chat-session/internal"
	"chat-session/moderation"
	"chat-session/projection"
	"chat-session/protocol"
	"chat-session/repositories"
	"chat-session/runtime"
	"chat-session/runtime/workers"
	"chat-session/sink"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

const shutdownTimeout = 2 * time.Second

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
	}
	os.Exit(code)
}

// run wires the session engine to the configured transport and history source,
// then hands the terminal to the console until it quits or a signal arrives.
func run() (int, error) {
	// 1. Configuration & Logger
	config, err := internal.LoadConfig()
	if err != nil {
		return exitConfig, err
	}
	mask, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return exitConfig, err
	}
	log := logs.GetLoggerFromString(config.LogLevel)
	user := domain.User{ID: domain.UserID(config.UserID), Nickname: config.Nickname}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Optional local cache (BadgerDB)
	var repository repositories.IHistoryRepository
	var db *badger.DB
	words := config.Words()
	if config.BadgerFilepath != "" {
		db, err = badger.Open(badger.DefaultOptions(config.BadgerFilepath).WithLoggingLevel(badger.WARNING))
		if err != nil {
			return exitRuntime, fmt.Errorf("database opening failed: %w", err)
		}
		defer func() {
			log.Info("Closing BadgerDB...")
			_ = db.Close()
		}()
		repository = repositories.NewHistoryRepository(db, log, config.CacheTTL)
		stored, err := moderation.LoadWords(db)
		if err != nil {
			return exitRuntime, fmt.Errorf("censored words: %w", err)
		}
		words = append(words, stored...)
	}

	// 3. Transport & history collaborators
	dialer, err := buildDialer(log, config)
	if err != nil {
		return exitConfig, err
	}
	history, closeHistory, err := buildHistory(log, config, repository)
	if err != nil {
		return exitConfig, err
	}
	defer closeHistory()
	history = withCache(log, history, repository)

	// 4. Projections & sinks
	timeline := projection.NewTimeline()
	if len(words) > 0 {
		filter, err := moderation.NewFilter(log, words, mask)
		if err != nil {
			return exitConfig, fmt.Errorf("content filter: %w", err)
		}
		timeline.WithMasker(filter)
	}
	terminal := sink.NewTerminal(os.Stdout, user)
	fanout := workers.NewEventFanout(log, config.SinkBufferSize, config.SinkTimeout).Add(terminal)
	if repository != nil {
		fanout.Add(sink.NewCacheSink(repository))
	}

	// 5. Engine under supervision
	conn := runtime.NewConnectionManager(log, dialer, config.ReconnectDelay)
	registry := runtime.NewRegistry(log, conn, protocol.DefaultDestinations())
	console := NewConsole(os.Stdin, os.Stdout, terminal)
	engine := runtime.NewEngine(log, user, conn, registry, history, console, fanout, timeline,
		runtime.SessionConfig{HistoryLimit: config.HistoryLimit, HistoryTimeout: config.HistoryTimeout},
		config.InboxSize)
	console.Attach(engine)

	capacity := workers.NewChannelCapacityWorker(log, []workers.NamedChannel{
		{Name: "engine-inbox", Channel: engine.Inbox()},
		{Name: "event-fanout", Channel: fanout.Buffer()},
	}, config.MetricInterval)
	if db != nil && config.DebugPort > 0 && log.Enabled(ctx, slog.LevelDebug) {
		internal.StartDebugServer(ctx, log, config.DebugPort, "/inspect", internal.NewInspectHandler(db, nil, capacity.Stats))
	}

	supervisor := workers.NewSupervisor(log, config.RestartInterval)
	supervisor.Add(conn, engine, fanout, capacity)
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	supervised := make(chan struct{})
	go func() {
		supervisor.Run(runCtx)
		close(supervised)
	}()

	if err := engine.Connect(ctx); err != nil {
		log.Warn("First connection failed, retrying in background", "error", err)
	}

	// 6. Wait for the console or a signal
	consoleErr := make(chan error, 1)
	go func() { consoleErr <- console.Run(ctx) }()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case runErr = <-consoleErr:
	}

	// Leave the room while the engine still runs, then stop the workers
	shutdown, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := engine.Disconnect(shutdown); err != nil {
		_ = conn.Disconnect(shutdown)
	}
	cancelRun()
	<-supervised
	log.Info("Client stopped cleanly")
	if runErr != nil {
		return exitRuntime, runErr
	}
	return exitOK, nil
}
