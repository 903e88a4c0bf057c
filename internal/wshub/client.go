package wshub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"

	"doodlesync/internal/broadcast"
	"doodlesync/internal/events"
	"doodlesync/internal/messages"
	"doodlesync/internal/transport"
)

const DefaultRetryDelay = time.Second

// Client connects one replica to a Hub. Frames written while disconnected
// are held and sent, in order, once the connection is back; subscriptions
// are re-issued from the last entry handed to the replica.
type Client struct {
	endpoint   string
	id         string
	log        *logrus.Entry
	RetryDelay time.Duration

	mu        sync.Mutex
	conn      *websocket.Conn
	outbox    [][]byte
	subs      map[broadcast.Key]uint64
	connected chan struct{}
}

var _ transport.Transport = (*Client)(nil)

// NewClient prepares a client for relayURL (ws:// or wss://). Nothing is
// dialled until Run.
func NewClient(relayURL, id string, log *logrus.Entry) (*Client, error) {
	u, err := url.Parse(relayURL)
	if err != nil {
		return nil, fmt.Errorf("parsing relay url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("relay url %q: scheme must be ws or wss", relayURL)
	}
	q := u.Query()
	q.Set("replica", id)
	u.RawQuery = q.Encode()

	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Client{
		endpoint:   u.String(),
		id:         id,
		log:        log.WithField("component", "relay-client"),
		RetryDelay: DefaultRetryDelay,
		subs:       make(map[broadcast.Key]uint64),
		connected:  make(chan struct{}),
	}, nil
}

func (c *Client) ID() string {
	return c.id
}

// Connected is closed once the first connection is up.
func (c *Client) Connected() <-chan struct{} {
	return c.connected
}

// Run keeps the client connected and hands inbound traffic to in until ctx
// is cancelled.
func (c *Client) Run(ctx context.Context, in transport.Inbound) error {
	first := true
	for {
		err := c.session(ctx, in, &first)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.WithError(err).Warn("relay connection lost, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.RetryDelay):
		}
	}
}

func (c *Client) session(ctx context.Context, in transport.Inbound, first *bool) error {
	conn, _, err := websocket.Dial(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("dialling relay: %w", err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(readLimit)

	if err := c.attach(ctx, conn); err != nil {
		return err
	}
	defer c.detach(conn)
	if *first {
		*first = false
		close(c.connected)
	}
	c.log.Info("connected to relay")

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		var f ServerFrame
		if err := json.Unmarshal(data, &f); err != nil {
			c.log.WithError(err).Warn("malformed frame from relay")
			continue
		}
		c.dispatch(ctx, in, f)
	}
}

// attach resubscribes, flushes held frames and then makes conn current.
func (c *Client) attach(ctx context.Context, conn *websocket.Conn) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for k, from := range c.subs {
		data, err := json.Marshal(ClientFrame{Type: FrameSubscribe, Publisher: k.Publisher, Stream: k.Stream, From: from})
		if err != nil {
			return err
		}
		if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
			return fmt.Errorf("resubscribing: %w", err)
		}
	}
	for len(c.outbox) > 0 {
		if err := conn.Write(ctx, websocket.MessageText, c.outbox[0]); err != nil {
			return fmt.Errorf("flushing held frames: %w", err)
		}
		c.outbox = c.outbox[1:]
	}
	c.conn = conn
	return nil
}

func (c *Client) detach(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == conn {
		c.conn = nil
	}
}

func (c *Client) dispatch(ctx context.Context, in transport.Inbound, f ServerFrame) {
	switch f.Type {
	case FrameMessage:
		m, err := messages.Decode(f.Payload)
		if err != nil {
			c.log.WithError(err).WithField("from", f.From).Warn("undecodable message")
			return
		}
		if err := in.HandleMessage(ctx, f.From, m); err != nil {
			c.log.WithError(err).WithFields(logrus.Fields{"from": f.From, "message": m.Kind()}).Debug("message not applied")
		}
	case FrameUpdate:
		if f.Update == nil || len(f.Update.Entries) == 0 {
			return
		}
		if err := in.HandleStreamUpdate(ctx, *f.Update); err != nil {
			c.log.WithError(err).WithField("stream", f.Update.Stream).Warn("stream update not applied")
			return
		}
		c.advance(*f.Update)
	case FrameError:
		c.log.WithField("error", f.Error).Warn("relay reported an error")
	default:
		c.log.WithField("type", f.Type).Warn("unknown frame from relay")
	}
}

// advance moves the resubscribe point past entries the replica accepted.
func (c *Client) advance(u broadcast.Update) {
	key := broadcast.Key{Publisher: u.Publisher, Stream: u.Stream}
	next := u.Entries[len(u.Entries)-1].Seq + 1
	c.mu.Lock()
	defer c.mu.Unlock()
	if from, ok := c.subs[key]; ok && next > from {
		c.subs[key] = next
	}
}

// write sends f now if connected, or holds it for the next connection.
func (c *Client) write(ctx context.Context, f ClientFrame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		c.outbox = append(c.outbox, data)
		return nil
	}
	if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
		c.outbox = append(c.outbox, data)
		return fmt.Errorf("writing to relay: %w", err)
	}
	return nil
}

func (c *Client) Send(ctx context.Context, to string, m messages.Message) error {
	payload, err := messages.Encode(m)
	if err != nil {
		return err
	}
	return c.write(ctx, ClientFrame{Type: FrameSend, To: to, Payload: payload})
}

func (c *Client) Emit(ctx context.Context, stream string, env events.Envelope) error {
	data, err := events.Encode(env)
	if err != nil {
		return err
	}
	return c.write(ctx, ClientFrame{Type: FrameEmit, Stream: stream, Entry: &broadcast.Entry{Seq: env.Seq, Data: data}})
}

func (c *Client) Subscribe(ctx context.Context, publisher, stream string, from uint64) error {
	c.mu.Lock()
	c.subs[broadcast.Key{Publisher: publisher, Stream: stream}] = from
	c.mu.Unlock()
	return c.write(ctx, ClientFrame{Type: FrameSubscribe, Publisher: publisher, Stream: stream, From: from})
}

func (c *Client) Unsubscribe(ctx context.Context, publisher, stream string) error {
	c.mu.Lock()
	delete(c.subs, broadcast.Key{Publisher: publisher, Stream: stream})
	c.mu.Unlock()
	return c.write(ctx, ClientFrame{Type: FrameUnsubscribe, Publisher: publisher, Stream: stream})
}
