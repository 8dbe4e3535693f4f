package internal

import (
	"chat-session/protocol"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

//go:embed inspect.html
var templatesFS embed.FS

const (
	defaultPrefix = "msg:"
	defaultLimit  = 500
)

type InspectRow struct {
	Key       string
	Room      string
	Timestamp string
	EntityID  string
	Sender    string
	Detail    string
}

type RowMapper func(key string, val []byte) InspectRow
type StatsProvider func() map[string]any

type PageData struct {
	Prefix string
	Limit  int
	Items  []InspectRow
	Stats  map[string]any
}

// NewInspectHandler serves an HTML page listing the keys of db under ?prefix=, at most ?limit= rows.
func NewInspectHandler(db *badger.DB, mapper RowMapper, stats StatsProvider) http.Handler {
	tmpl := template.Must(template.ParseFS(templatesFS, "inspect.html"))
	if mapper == nil {
		mapper = MessageMapper
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		prefix := r.URL.Query().Get("prefix")
		if prefix == "" {
			prefix = defaultPrefix
		}
		limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
		if err != nil || limit <= 0 {
			limit = defaultLimit
		}
		data := PageData{Prefix: prefix, Limit: limit, Stats: make(map[string]any)}
		if stats != nil {
			data.Stats = stats()
		}

		err = db.View(func(txn *badger.Txn) error {
			it := txn.NewIterator(badger.DefaultIteratorOptions)
			defer it.Close()
			for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)) && len(data.Items) < limit; it.Next() {
				item := it.Item()
				if err := item.Value(func(val []byte) error {
					data.Items = append(data.Items, mapper(string(item.Key()), val))
					return nil
				}); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = tmpl.Execute(w, data)
	})
}

// StartDebugServer serves handler on endpoint until ctx is done.
func StartDebugServer(ctx context.Context, log *slog.Logger, port int, endpoint string, handler http.Handler) {
	mux := http.NewServeMux()
	mux.Handle(endpoint, handler)
	server := &http.Server{Addr: fmt.Sprintf("localhost:%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = server.Shutdown(shutdown)
	}()
	go func() {
		log.Info("Debug cache inspector available", "url", fmt.Sprintf("http://localhost:%d%s", port, endpoint))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Debug server stopped", "error", err)
		}
	}()
}

// MessageMapper reads keys shaped "msg:{room}:{nanos}:{id}" holding a JSON chat message.
func MessageMapper(key string, val []byte) InspectRow {
	row := InspectRow{
		Key:       key,
		Room:      "-",
		Timestamp: "--:--:--",
		EntityID:  "--------",
		Detail:    "Size: " + strconv.Itoa(len(val)) + " bytes",
	}
	parts := strings.Split(key, ":")
	if len(parts) >= 4 {
		row.Room = parts[1]
		if nanos, err := strconv.ParseInt(parts[2], 10, 64); err == nil {
			row.Timestamp = time.Unix(0, nanos).Format("2006-01-02 15:04:05")
		}
		row.EntityID = parts[3]
		if len(row.EntityID) > 8 {
			row.EntityID = row.EntityID[:8]
		}
	}
	var p protocol.MessagePayload
	if err := json.Unmarshal(val, &p); err == nil && p.Sender != "" {
		row.Sender = p.Sender
		row.Detail = p.Message
	}
	return row
}
