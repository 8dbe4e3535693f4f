package main

import (
	"chat-session/contract"
	"chat-session/domain"
	"chat-session/infrastructure/history"
	"chat-session/infrastructure/transport/memory"
	"chat-session/infrastructure/transport/natsbus"
	"chat-session/infrastructure/transport/redisbus"
	"chat-session/infrastructure/transport/stompws"
	"chat-session/internal"
	"chat-session/repositories"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
)

const heartBeat = 10 * time.Second

func buildDialer(log *slog.Logger, config internal.Config) (contract.Dialer, error) {
	switch strings.ToLower(config.Transport) {
	case "stomp":
		return stompws.NewDialer(log, config.StompURL, stompws.WithHeartBeat(heartBeat)), nil
	case "nats":
		return natsbus.NewDialer(log, config.NatsURL, "chat-session-"+config.Nickname), nil
	case "redis":
		return redisbus.NewDialer(log, config.RedisAddr, heartBeat)
	case "memory":
		// Loopback only, useful to try the console without a room service
		return memory.NewBroker(), nil
	default:
		return nil, fmt.Errorf("unknown TRANSPORT %q, expected stomp, nats, redis or memory", config.Transport)
	}
}

// buildHistory returns the history source and a function releasing what it opened.
func buildHistory(log *slog.Logger, config internal.Config, repository repositories.IHistoryRepository) (contract.HistoryFetcher, func(), error) {
	noop := func() {}
	switch strings.ToLower(config.HistorySource) {
	case "cache":
		if repository == nil {
			return nil, noop, fmt.Errorf("HISTORY_SOURCE=cache needs BADGER_FILEPATH")
		}
		return history.NewLocal(repository), noop, nil
	case "http":
		return history.NewHTTPFetcher(log, config.HistoryBaseURL, config.HistoryTimeout), noop, nil
	case "redis":
		options := &redis.Options{Addr: config.RedisAddr}
		if strings.Contains(config.RedisAddr, "://") {
			parsed, err := redis.ParseURL(config.RedisAddr)
			if err != nil {
				return nil, noop, fmt.Errorf("redis url: %w", err)
			}
			options = parsed
		}
		client := redis.NewClient(options)
		return history.NewRedisStore(log, client, 0), func() { _ = client.Close() }, nil
	case "nats":
		nc, err := nats.Connect(config.NatsURL,
			nats.Name("chat-session-history"),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				log.Warn("NATS history disconnected", "error", err)
			}),
			nats.ReconnectHandler(func(nc *nats.Conn) {
				log.Info("NATS history reconnected", "url", nc.ConnectedUrl())
			}),
		)
		if err != nil {
			return nil, noop, fmt.Errorf("nats history: %w", err)
		}
		return history.NewNATSFetcher(log, nc, config.HistorySubject), nc.Close, nil
	case "none":
		return emptyHistory{}, noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown HISTORY_SOURCE %q, expected http, redis, nats, cache or none", config.HistorySource)
	}
}

func withCache(log *slog.Logger, fetcher contract.HistoryFetcher, repository repositories.IHistoryRepository) contract.HistoryFetcher {
	if _, local := fetcher.(*history.Local); local || repository == nil {
		return fetcher
	}
	return history.NewCached(log, fetcher, repository)
}

// emptyHistory is used when no history service exists, rooms start empty.
type emptyHistory struct{}

func (emptyHistory) FetchHistory(context.Context, domain.RoomID, int) ([]domain.TimelineEntry, error) {
	return nil, nil
}
