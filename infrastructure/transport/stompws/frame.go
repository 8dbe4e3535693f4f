package stompws

import (
	"chat-session/errors"
	"fmt"
	"io"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/gorilla/websocket"
)

// Every STOMP frame travels in its own WebSocket text message.

// readFrame decodes the next message. A heart-beat comes back as a nil frame.
func readFrame(ws *websocket.Conn) (*frame.Frame, error) {
	_, r, err := ws.NextReader()
	if err != nil {
		return nil, err
	}
	return decodeFrame(r)
}

func decodeFrame(r io.Reader) (*frame.Frame, error) {
	f, err := frame.NewReader(r).Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: stomp frame: %v", errors.ErrInvalidPayload, err)
	}
	return f, nil
}

// writeFrame encodes f as one message, a nil f is a heart-beat.
func writeFrame(ws *websocket.Conn, f *frame.Frame) error {
	w, err := ws.NextWriter(websocket.TextMessage)
	if err != nil {
		return err
	}
	if err := frame.NewWriter(w).Write(f); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

// negotiate applies the STOMP heart-beat rules: each side sends at the
// slowest of what it can do and what the other wants, zero disables.
func negotiate(want time.Duration, server string) (outgoing, incoming time.Duration) {
	if want <= 0 {
		return 0, 0
	}
	sx, sy, err := frame.ParseHeartBeat(server)
	if err != nil {
		return 0, 0
	}
	if sy > 0 {
		outgoing = max(want, sy)
	}
	if sx > 0 {
		incoming = max(want, sx)
	}
	return outgoing, incoming
}
