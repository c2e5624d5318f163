package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"deleonpos/backend/internal/domain"
)

// EventReconnected is emitted locally after the stream comes back, so views can
// refetch whatever they may have missed while disconnected.
const EventReconnected = "connection.reconnected"

const (
	minReconnectDelay = time.Second
	maxReconnectDelay = 30 * time.Second
)

type EventHandler func(domain.Event)

type handlerEntry struct {
	id uint64
	fn EventHandler
}

// Connection keeps one realtime stream per client open and fans events out to
// handlers. Handlers run on the read goroutine; they must not block or call
// Disconnect.
type Connection struct {
	client *Client

	// connectMu serializes Connect and Disconnect so a stream is never replaced
	// before its cancel is stored.
	connectMu sync.Mutex

	mu        sync.Mutex
	nextID    uint64
	handlers  map[string][]handlerEntry
	tenantID  string
	cancel    context.CancelFunc
	done      chan struct{}
	connected bool
}

func NewConnection(c *Client) *Connection {
	return &Connection{client: c, handlers: make(map[string][]handlerEntry)}
}

// On registers fn for eventType, or every type when eventType is "*". The returned
// func removes it.
func (c *Connection) On(eventType string, fn EventHandler) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	c.handlers[eventType] = append(c.handlers[eventType], handlerEntry{id: id, fn: fn})
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		entries := c.handlers[eventType]
		for i, entry := range entries {
			if entry.id == id {
				c.handlers[eventType] = append(entries[:i:i], entries[i+1:]...)
				break
			}
		}
	}
}

func (c *Connection) dispatch(event domain.Event) {
	c.mu.Lock()
	targets := make([]EventHandler, 0, len(c.handlers[event.Type])+len(c.handlers["*"]))
	for _, entry := range c.handlers[event.Type] {
		targets = append(targets, entry.fn)
	}
	for _, entry := range c.handlers["*"] {
		targets = append(targets, entry.fn)
	}
	c.mu.Unlock()
	for _, fn := range targets {
		fn(event)
	}
}

// Connect opens the stream for tenantID. The first dial is synchronous so auth and
// scope errors reach the caller; after that the stream reconnects with backoff
// until Disconnect or ctx ends. Connecting again replaces the previous stream.
func (c *Connection) Connect(ctx context.Context, tenantID string) error {
	c.connectMu.Lock()
	defer c.connectMu.Unlock()
	c.stop()

	runCtx, cancel := context.WithCancel(ctx)
	body, err := c.dial(runCtx, tenantID)
	if err != nil {
		cancel()
		return err
	}

	done := make(chan struct{})
	c.mu.Lock()
	c.tenantID = tenantID
	c.cancel = cancel
	c.done = done
	c.connected = true
	c.mu.Unlock()

	go c.run(runCtx, tenantID, body, done)
	return nil
}

// Disconnect stops the stream and waits for the reader to exit.
func (c *Connection) Disconnect() {
	c.connectMu.Lock()
	defer c.connectMu.Unlock()
	c.stop()
}

func (c *Connection) stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.connected = false
	c.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

func (c *Connection) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Connection) TenantID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tenantID
}

func (c *Connection) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}

func (c *Connection) dial(ctx context.Context, tenantID string) (io.ReadCloser, error) {
	res, err := c.client.openEvents(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return res.Body, nil
}

func (c *Connection) run(ctx context.Context, tenantID string, body io.ReadCloser, done chan struct{}) {
	defer close(done)
	delay := minReconnectDelay
	for {
		err := c.read(ctx, body)
		body.Close()
		c.setConnected(false)
		if ctx.Err() != nil {
			return
		}
		log.Warn().Err(err).Str("tenant_id", tenantID).Dur("retry_in", delay).Msg("realtime: stream lost")

		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			body, err = c.dial(ctx, tenantID)
			if err == nil {
				break
			}
			if ctx.Err() != nil {
				return
			}
			var apiErr *APIError
			if errors.As(err, &apiErr) && !apiErr.Transient() {
				log.Error().Err(err).Str("tenant_id", tenantID).Msg("realtime: giving up on stream")
				return
			}
			delay = min(delay*2, maxReconnectDelay)
		}
		delay = minReconnectDelay
		c.setConnected(true)
		log.Info().Str("tenant_id", tenantID).Msg("realtime: stream reconnected")
		c.dispatch(domain.Event{Type: EventReconnected, TenantID: tenantID, At: time.Now().UTC()})
	}
}

// read consumes server-sent events until the body ends. Comment lines (heartbeats)
// are skipped; the JSON in "data" is the event, "event" only names it.
func (c *Connection) read(ctx context.Context, body io.Reader) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	var eventType string
	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if data.Len() > 0 {
				var event domain.Event
				if err := json.Unmarshal([]byte(data.String()), &event); err != nil {
					log.Warn().Err(err).Msg("realtime: dropping malformed event")
				} else {
					if event.Type == "" {
						event.Type = eventType
					}
					c.dispatch(event)
				}
			}
			eventType = ""
			data.Reset()
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return io.EOF
}
