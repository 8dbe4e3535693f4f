package main

import (
	"chat-session/domain"
	"chat-session/moderation"
	"chat-session/repositories"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/olekukonko/tablewriter"
)

func main() {
	dbPath := flag.String("db", "./data/cache", "Path to the history cache")
	room := flag.Int64("room", 0, "Only show this room, newest last")
	limit := flag.Int("limit", 200, "Maximum number of rows")
	words := flag.String("censor", "", "Comma separated words to add to the censored list, then exit")
	flag.Parse()

	db, err := openDB(*dbPath, *words == "")
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	if *words != "" {
		if err := moderation.StoreWords(db, strings.Split(*words, ",")...); err != nil {
			log.Fatal(err)
		}
		fmt.Println("Censored words stored")
		return
	}

	repository := repositories.NewHistoryRepository(db, slog.New(slog.NewTextHandler(io.Discard, nil)), 0)
	var rows []repositories.CachedMessage
	if *room != 0 {
		messages, err := repository.GetMessages(domain.RoomID(*room), *limit)
		if err != nil {
			log.Fatal(err)
		}
		for _, m := range messages {
			rows = append(rows, repositories.CachedMessage{Message: m})
		}
	} else {
		if rows, err = repository.Dump(*limit); err != nil {
			log.Fatal(err)
		}
	}
	render(os.Stdout, rows)
}

func render(out io.Writer, rows []repositories.CachedMessage) {
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Key", "Room", "Time", "ID", "Sender", "Message"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	for _, row := range rows {
		m := row.Message
		key := row.Key
		if len(key) > 40 {
			key = key[:40] + "…"
		}
		table.Append([]string{
			key,
			m.RoomID.String(),
			m.Timestamp.Format("2006-01-02 15:04:05"),
			m.ID,
			m.Sender,
			m.Message,
		})
	}
	table.Render()
}

func openDB(path string, readOnly bool) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(readOnly).
		WithLogger(nil).
		WithBypassLockGuard(readOnly)
	return badger.Open(opts)
}
