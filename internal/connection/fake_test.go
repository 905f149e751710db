package connection

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// recorder collects handler invocations in order.
type recorder struct {
	mu     sync.Mutex
	events []string
	msgs   []Message
	closes []CloseEvent
	errs   []error
}

func (r *recorder) add(e string) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) count(e string) int {
	n := 0
	for _, got := range r.snapshot() {
		if got == e {
			n++
		}
	}
	return n
}

func (r *recorder) handlers() Handlers {
	return Handlers{
		OnOpen: func() { r.add("open") },
		OnMessage: func(m Message) {
			r.mu.Lock()
			r.msgs = append(r.msgs, m)
			r.mu.Unlock()
			r.add("message:" + string(m.Data))
		},
		OnClose: func(ev CloseEvent) {
			r.mu.Lock()
			r.closes = append(r.closes, ev)
			r.mu.Unlock()
			r.add("close")
		},
		OnError: func(err error) {
			r.mu.Lock()
			r.errs = append(r.errs, err)
			r.mu.Unlock()
			r.add("error")
		},
		OnReconnect: func(n int) { r.add(fmt.Sprintf("reconnect(%d)", n)) },
	}
}

// fakeDialer hands out fakeTransports the test drives by hand.
type fakeDialer struct {
	mu         sync.Mutex
	transports []*fakeTransport
	urls       []string

	openErr   error     // returned by Open when set
	autoFail  bool      // each transport closes abnormally right away
	lazyClose bool      // Close only starts closing; the test calls finish
	onOpen    func()    // called at the start of every Open
	rec       *recorder // receives "attempt" per Open when set
}

func (d *fakeDialer) Open(rawURL string, ev Events) (Transport, error) {
	if d.rec != nil {
		d.rec.add("attempt")
	}
	if d.onOpen != nil {
		d.onOpen()
	}

	d.mu.Lock()
	d.urls = append(d.urls, rawURL)
	if d.openErr != nil {
		d.mu.Unlock()
		return nil, d.openErr
	}
	t := &fakeTransport{id: fmt.Sprintf("fake-%d", len(d.transports)+1), ev: ev, lazyClose: d.lazyClose}
	d.transports = append(d.transports, t)
	autoFail := d.autoFail
	d.mu.Unlock()

	if autoFail {
		go t.remoteClose(CloseAbnormal)
	}
	return t, nil
}

// count returns the number of Open calls, failed ones included.
func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.urls)
}

func (d *fakeDialer) transport(t *testing.T, i int) *fakeTransport {
	t.Helper()
	require.Eventually(t, func() bool {
		d.mu.Lock()
		defer d.mu.Unlock()
		return len(d.transports) > i
	}, time.Second, time.Millisecond, "transport %d never opened", i)

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.transports[i]
}

type fakeTransport struct {
	id        string
	ev        Events
	state     atomic.Int32
	lazyClose bool

	mu         sync.Mutex
	sent       [][]byte
	sentTypes  []MessageType
	sendErr    error
	closeCalls int
	closeOnce  sync.Once
}

func (t *fakeTransport) ID() string { return t.id }

func (t *fakeTransport) ReadyState() ReadyState { return ReadyState(t.state.Load()) }

func (t *fakeTransport) Send(mt MessageType, data []byte) error {
	if t.ReadyState() != ReadyOpen {
		return ErrNotConnected
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sendErr != nil {
		return t.sendErr
	}
	t.sent = append(t.sent, data)
	t.sentTypes = append(t.sentTypes, mt)
	return nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	t.closeCalls++
	t.mu.Unlock()
	if t.lazyClose {
		t.state.CompareAndSwap(int32(ReadyOpen), int32(ReadyClosing))
		t.state.CompareAndSwap(int32(ReadyConnecting), int32(ReadyClosing))
		return nil
	}
	t.finish(CloseEvent{Code: CloseNormal, WasClean: true})
	return nil
}

func (t *fakeTransport) closeCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closeCalls
}

func (t *fakeTransport) sentFrames() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.sent))
	for i, b := range t.sent {
		out[i] = string(b)
	}
	return out
}

func (t *fakeTransport) open() {
	t.state.Store(int32(ReadyOpen))
	t.ev.OnOpen()
}

func (t *fakeTransport) message(s string) {
	t.ev.OnMessage(Message{Type: TextMessage, Data: []byte(s), ReceivedAt: time.Now(), SessionID: t.id})
}

func (t *fakeTransport) fail(err error) {
	t.ev.OnError(err)
}

func (t *fakeTransport) remoteClose(code int) {
	ev := CloseEvent{Code: code, WasClean: code != CloseAbnormal}
	if code == CloseAbnormal {
		ev.Err = errors.New("connection refused")
	}
	t.finish(ev)
}

func (t *fakeTransport) finish(ev CloseEvent) {
	t.closeOnce.Do(func() {
		t.state.Store(int32(ReadyClosed))
		t.ev.OnClose(ev)
	})
}
