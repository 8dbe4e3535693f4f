// Package history fetches the recent messages of a room from the history collaborator.
package history

import (
	"chat-session/contract"
	"chat-session/domain"
	"chat-session/protocol"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultLimit    = 50
	maxResponseSize = 4 << 20
)

// HTTPFetcher reads GET {base}/api/chat/rooms/{roomId}/messages?limit=N.
// The service answers with a JSON array, oldest first.
type HTTPFetcher struct {
	log     *slog.Logger
	baseURL string
	client  *http.Client
}

func NewHTTPFetcher(log *slog.Logger, baseURL string, timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{
		log:     log,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (f *HTTPFetcher) FetchHistory(ctx context.Context, roomID domain.RoomID, limit int) ([]domain.TimelineEntry, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	endpoint := fmt.Sprintf("%s/api/chat/rooms/%s/messages?%s", f.baseURL, url.PathEscape(roomID.String()),
		url.Values{"limit": {strconv.Itoa(limit)}}.Encode())
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	request.Header.Set("Accept", "application/json")

	response, err := f.client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("history of room %d: %w", roomID, err)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return nil, fmt.Errorf("history of room %d: unexpected status %s", roomID, response.Status)
	}
	body, err := io.ReadAll(io.LimitReader(response.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("history of room %d: %w", roomID, err)
	}
	entries, skipped, err := protocol.DecodeHistory(body, roomID)
	if err != nil {
		return nil, fmt.Errorf("history of room %d: %w", roomID, err)
	}
	if skipped > 0 {
		f.log.Warn("Skipped invalid history items", "room", roomID, "skipped", skipped)
	}
	return newest(entries, limit), nil
}

// newest keeps the last limit entries of an oldest first page.
func newest(entries []domain.TimelineEntry, limit int) []domain.TimelineEntry {
	if limit > 0 && len(entries) > limit {
		return entries[len(entries)-limit:]
	}
	return entries
}

var _ contract.HistoryFetcher = (*HTTPFetcher)(nil)
