// Package live subscribes to the backend's stream of generated rows.
package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/keilerkonzept/sheetdash/internal/records"
)

var (
	ErrAlreadyStreaming = errors.New("live: already streaming")
	ErrNotStreaming     = errors.New("live: not streaming")
	ErrProtocol         = errors.New("live: protocol error")
	ErrStreamClosed     = errors.New("live: stream closed by server")
)

type State int

const (
	Idle State = iota
	Streaming
)

func (s State) String() string {
	if s == Streaming {
		return "streaming"
	}
	return "idle"
}

type EventKind int

const (
	// EventOpen is sent once the server accepted the stream.
	EventOpen EventKind = iota
	// EventRecord carries one decoded row with a fresh local identifier.
	EventRecord
	// EventError ends the stream. The subscriber is already idle when it is
	// delivered.
	EventError
)

type Event struct {
	Kind   EventKind
	Record records.Record
	Err    error
}

// StopFunc tells the backend to stop producing rows.
type StopFunc func(ctx context.Context) error

// Observer is notified of every pushed message; err is non-nil when the
// payload could not be decoded.
type Observer interface {
	ObserveMessage(err error)
}

type Subscriber struct {
	url      string
	http     *http.Client
	stop     StopFunc
	newID    func() string
	log      logrus.FieldLogger
	observer Observer
	buffer   int

	mu       sync.Mutex
	state    State
	stopping bool
	stopDone chan struct{} // closed when the running Stop returns
	stopErr  error
	conn     *conn
}

type Option func(*Subscriber)

// WithHTTPClient sets the client used for the stream. It must not carry an
// overall timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Subscriber) { s.http = c }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Subscriber) { s.log = l }
}

func WithObserver(o Observer) Option {
	return func(s *Subscriber) { s.observer = o }
}

// WithIDFunc replaces the generator of local record identifiers.
func WithIDFunc(fn func() string) Option {
	return func(s *Subscriber) { s.newID = fn }
}

// WithBuffer sets the event channel capacity.
func WithBuffer(n int) Option {
	return func(s *Subscriber) { s.buffer = max(0, n) }
}

// New returns an idle subscriber for the stream at url. stop is called by
// Stop after the local connection is closed.
func New(url string, stop StopFunc, opts ...Option) *Subscriber {
	s := &Subscriber{
		url:    url,
		http:   &http.Client{},
		stop:   stop,
		newID:  NewLocalID,
		log:    logrus.StandardLogger(),
		buffer: 64,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewLocalID returns a session-unique identifier for a streamed record.
func NewLocalID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return "live-" + id.String()
}

func (s *Subscriber) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connected reports whether a connection handle is held.
func (s *Subscriber) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Start opens the stream. Events are delivered on the returned channel, which
// is closed when the connection ends for any reason.
func (s *Subscriber) Start(ctx context.Context) (<-chan Event, error) {
	s.mu.Lock()
	if s.state != Idle {
		s.mu.Unlock()
		return nil, ErrAlreadyStreaming
	}
	cctx, cancel := context.WithCancel(ctx)
	c := &conn{cancel: cancel, local: make(chan struct{})}
	s.conn = c
	s.state = Streaming
	s.mu.Unlock()

	events := make(chan Event, s.buffer)
	go s.run(cctx, c, events)
	return events, nil
}

// Stop closes the local connection, then notifies the backend. The subscriber
// is idle when Stop returns, whatever the backend answered; the backend's
// error is returned for reporting.
func (s *Subscriber) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.state != Streaming || s.stopping {
		s.mu.Unlock()
		return ErrNotStreaming
	}
	s.stopping = true
	done := make(chan struct{})
	s.stopDone = done
	c := s.conn
	s.conn = nil
	s.mu.Unlock()

	if c != nil {
		c.closeLocal()
	}
	var err error
	if s.stop != nil {
		err = s.stop(ctx)
	}

	s.mu.Lock()
	s.state = Idle
	s.stopping = false
	s.stopErr = err
	s.mu.Unlock()
	close(done)
	return err
}

// Shutdown is the teardown path: it stops an open stream the same way Stop
// does, so the backend is told to stop producing. A Stop already in flight is
// waited for instead.
func (s *Subscriber) Shutdown(ctx context.Context) error {
	for {
		if done, stopping := s.inflightStop(); stopping {
			select {
			case <-done:
				s.mu.Lock()
				defer s.mu.Unlock()
				return s.stopErr
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		err := s.Stop(ctx)
		if !errors.Is(err, ErrNotStreaming) {
			return err
		}
		// Lost the race to a concurrent Stop: wait for it on the next pass.
		if _, stopping := s.inflightStop(); !stopping {
			return nil
		}
	}
}

func (s *Subscriber) inflightStop() (<-chan struct{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopDone, s.stopping
}

func (s *Subscriber) run(ctx context.Context, c *conn, events chan<- Event) {
	defer close(events)
	err := s.read(ctx, c, events)
	if c.isLocal() {
		return
	}

	s.mu.Lock()
	if s.conn == c {
		s.conn = nil
		if !s.stopping {
			s.state = Idle
		}
	}
	s.mu.Unlock()
	c.cancel()

	if err == nil {
		err = ErrStreamClosed
	}
	s.log.WithError(err).Error("live connection failed")
	select {
	case events <- Event{Kind: EventError, Err: err}:
	case <-c.local:
	}
}

func (s *Subscriber) read(ctx context.Context, c *conn, events chan<- Event) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrProtocol, resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		return fmt.Errorf("%w: content type %q", ErrProtocol, ct)
	}

	s.log.WithField("url", s.url).Info("live connection opened")
	if !send(ctx, events, Event{Kind: EventOpen}) {
		return ctx.Err()
	}

	return readEvents(resp.Body, func(data string) error {
		var rec records.Record
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			s.log.WithError(err).WithField("data", data).Warn("undecodable live message")
			if s.observer != nil {
				s.observer.ObserveMessage(err)
			}
			return nil
		}
		rec.Set(records.IDKey, s.newID())
		if s.observer != nil {
			s.observer.ObserveMessage(nil)
		}
		if !send(ctx, events, Event{Kind: EventRecord, Record: rec}) {
			return ctx.Err()
		}
		return nil
	})
}

func send(ctx context.Context, events chan<- Event, ev Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// conn is the handle of one open stream. closeLocal may be called any number
// of times.
type conn struct {
	cancel context.CancelFunc
	once   sync.Once
	local  chan struct{}
}

func (c *conn) closeLocal() {
	c.once.Do(func() {
		close(c.local)
		c.cancel()
	})
}

func (c *conn) isLocal() bool {
	select {
	case <-c.local:
		return true
	default:
		return false
	}
}
