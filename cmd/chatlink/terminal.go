package main

import (
	"bufio"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"sync"

	"github.com/rickgao/chatlink/internal/connection"
)

// terminal renders connection events: frames to out, status lines to status.
type terminal struct {
	mu         sync.Mutex
	out        io.Writer
	status     io.Writer
	maxRetries int
}

func newTerminal(out, status io.Writer, maxRetries int) *terminal {
	return &terminal{out: out, status: status, maxRetries: maxRetries}
}

func (t *terminal) handlers() connection.Handlers {
	return connection.Handlers{
		OnOpen: func() {
			t.statusf("* connected")
		},
		OnMessage: func(msg connection.Message) {
			t.mu.Lock()
			defer t.mu.Unlock()
			fmt.Fprintln(t.out, formatMessage(msg))
		},
		OnClose: func(ev connection.CloseEvent) {
			if ev.Reason != "" {
				t.statusf("* disconnected (%d: %s)", ev.Code, ev.Reason)
			} else {
				t.statusf("* disconnected (%d)", ev.Code)
			}
		},
		OnError: func(err error) {
			t.statusf("* error: %v", err)
		},
		OnReconnect: func(attempt int) {
			t.statusf("* reconnecting (attempt %d/%d)", attempt, t.maxRetries)
		},
	}
}

func (t *terminal) statusf(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.status, format+"\n", args...)
}

// formatMessage renders text frames as-is and binary frames as hex.
func formatMessage(msg connection.Message) string {
	if msg.Type == connection.BinaryMessage {
		return fmt.Sprintf("[binary %d bytes] %s", len(msg.Data), hex.EncodeToString(msg.Data))
	}
	return string(msg.Data)
}

// sender is the part of the manager the stdin pump needs.
type sender interface {
	Send(data []byte) bool
}

// pump sends each non-empty line of in as a text frame until in ends or
// ctx is done. Lines that cannot be sent are reported, not queued.
func pump(ctx context.Context, in io.Reader, s sender, t *terminal) error {
	lines := make(chan string)
	errc := make(chan error, 1)

	// Reads block without a way to cancel them, so the scanner runs on
	// its own goroutine and is abandoned on ctx done.
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errc:
			if err != nil {
				return fmt.Errorf("read stdin: %w", err)
			}
			return nil
		case line := <-lines:
			if line == "" {
				continue
			}
			if !s.Send([]byte(line)) {
				t.statusf("* not connected, message dropped")
			}
		}
	}
}
