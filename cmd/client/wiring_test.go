package main

import (
	"chat-session/infrastructure/history"
	"chat-session/infrastructure/transport/memory"
	"chat-session/infrastructure/transport/stompws"
	"chat-session/internal"
	"chat-session/mocks"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestBuildDialer(t *testing.T) {
	req := require.New(t)
	log := slog.Default()

	dialer, err := buildDialer(log, internal.Config{Transport: "STOMP", StompURL: "ws://localhost:1/ws"})
	req.NoError(err)
	req.IsType(&stompws.Dialer{}, dialer)

	dialer, err = buildDialer(log, internal.Config{Transport: "memory"})
	req.NoError(err)
	req.IsType(&memory.Broker{}, dialer)

	_, err = buildDialer(log, internal.Config{Transport: "carrier-pigeon"})
	req.ErrorContains(err, "unknown TRANSPORT")
}

func TestBuildHistory(t *testing.T) {
	req := require.New(t)
	log := slog.Default()

	fetcher, release, err := buildHistory(log, internal.Config{HistorySource: "http", HistoryBaseURL: "http://localhost:1"}, nil)
	req.NoError(err)
	defer release()
	req.IsType(&history.HTTPFetcher{}, fetcher)

	fetcher, release, err = buildHistory(log, internal.Config{HistorySource: "none"}, nil)
	req.NoError(err)
	defer release()
	entries, err := fetcher.FetchHistory(context.Background(), 1, 10)
	req.NoError(err)
	req.Empty(entries)

	_, _, err = buildHistory(log, internal.Config{HistorySource: "cache"}, nil)
	req.ErrorContains(err, "BADGER_FILEPATH")

	_, _, err = buildHistory(log, internal.Config{HistorySource: "fax"}, nil)
	req.ErrorContains(err, "unknown HISTORY_SOURCE")
}

func TestWithCache(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	fetcher := mocks.NewMockHistoryFetcher(ctrl)

	req.Same(fetcher, withCache(slog.Default(), fetcher, nil))
	repository := mocks.NewMockIHistoryRepository(ctrl)
	req.IsType(&history.Cached{}, withCache(slog.Default(), fetcher, repository))

	local := history.NewLocal(repository)
	req.Same(local, withCache(slog.Default(), local, repository))
}
