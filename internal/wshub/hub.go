// Package wshub relays replica traffic over websockets. The Hub routes
// direct messages between connected replicas and hosts the broadcast logs
// they publish; Client is the replica side of the connection.
package wshub

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"

	"doodlesync/internal/broadcast"
	"doodlesync/internal/transport"
)

const (
	FrameSend        = "send"
	FrameEmit        = "emit"
	FrameSubscribe   = "sub"
	FrameUnsubscribe = "unsub"

	FrameMessage = "msg"
	FrameUpdate  = "upd"
	FrameError   = "err"
)

const (
	sendBuffer  = 256
	mailboxSize = 256
	readLimit   = 1 << 20
)

// ClientFrame is the JSON structure received from replicas.
type ClientFrame struct {
	Type      string           `json:"t"`
	To        string           `json:"to,omitempty"`
	Publisher string           `json:"pub,omitempty"`
	Stream    string           `json:"s,omitempty"`
	From      uint64           `json:"from,omitempty"`
	Payload   json.RawMessage  `json:"d,omitempty"`
	Entry     *broadcast.Entry `json:"e,omitempty"`
}

// ServerFrame is the JSON structure sent to replicas.
type ServerFrame struct {
	Type    string            `json:"t"`
	From    string            `json:"from,omitempty"`
	Payload json.RawMessage   `json:"d,omitempty"`
	Update  *broadcast.Update `json:"u,omitempty"`
	Error   string            `json:"err,omitempty"`
}

// peer is one connected replica.
type peer struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	cancel context.CancelFunc
}

// writePump drains the send channel onto the connection.
func (p *peer) writePump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-p.send:
			if !ok {
				return
			}
			if err := p.conn.Write(ctx, websocket.MessageText, msg); err != nil {
				p.cancel()
				return
			}
		}
	}
}

type Hub struct {
	registry *broadcast.Registry
	log      *logrus.Entry

	mu      sync.Mutex
	peers   map[string]*peer
	mailbox map[string][][]byte
}

func NewHub(log *logrus.Entry) *Hub {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Hub{
		registry: broadcast.NewRegistry(),
		log:      log.WithField("component", "relay"),
		peers:    make(map[string]*peer),
		mailbox:  make(map[string][][]byte),
	}
}

// Connected reports whether replica id currently holds a connection.
func (h *Hub) Connected(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.peers[id]
	return ok
}

func (h *Hub) Peers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

// ServeHTTP upgrades the request and serves one replica until it
// disconnects. The replica names itself with the "replica" query parameter.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, err := transport.ParseAddress(r.URL.Query().Get("replica"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		h.log.WithError(err).Warn("accepting relay connection")
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(readLimit)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	p := &peer{id: id, conn: conn, send: make(chan []byte, sendBuffer), cancel: cancel}
	h.register(p)
	defer h.unregister(p)
	go p.writePump(ctx)

	log := h.log.WithField("replica", id)
	log.Info("replica connected")
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			log.WithError(err).Debug("relay read")
			break
		}
		var f ClientFrame
		if err := json.Unmarshal(data, &f); err != nil {
			h.reply(p, ServerFrame{Type: FrameError, Error: "malformed frame"})
			continue
		}
		h.handle(p, f)
	}
	log.Info("replica disconnected")
	conn.Close(websocket.StatusNormalClosure, "")
}

// register installs p, replacing an older connection from the same replica,
// and hands it any messages that arrived while it was away.
func (h *Hub) register(p *peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if old, ok := h.peers[p.id]; ok {
		close(old.send)
		old.cancel()
	}
	h.peers[p.id] = p
	for _, msg := range h.mailbox[p.id] {
		h.enqueueLocked(p, msg)
	}
	delete(h.mailbox, p.id)
}

// unregister removes p and closes its send channel. Subscriptions stay in
// the registry; a reconnecting replica resubscribes from its own cursor.
func (h *Hub) unregister(p *peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.peers[p.id] != p {
		return
	}
	close(p.send)
	delete(h.peers, p.id)
}

func (h *Hub) handle(p *peer, f ClientFrame) {
	switch f.Type {
	case FrameSend:
		to, err := transport.ParseAddress(f.To)
		if err != nil {
			h.reply(p, ServerFrame{Type: FrameError, Error: err.Error()})
			return
		}
		h.deliverMessage(to, ServerFrame{Type: FrameMessage, From: p.id, Payload: f.Payload})

	case FrameEmit:
		if f.Entry == nil || f.Stream == "" {
			h.reply(p, ServerFrame{Type: FrameError, Error: "emit without entry"})
			return
		}
		key := broadcast.Key{Publisher: p.id, Stream: f.Stream}
		subs, err := h.registry.Publish(key, *f.Entry)
		if err != nil {
			h.log.WithError(err).WithField("stream", key.String()).Warn("rejecting entry")
			h.reply(p, ServerFrame{Type: FrameError, Error: err.Error()})
			return
		}
		update := &broadcast.Update{Publisher: p.id, Stream: f.Stream, Entries: []broadcast.Entry{*f.Entry}}
		for _, sub := range subs {
			h.deliverUpdate(sub, update)
		}

	case FrameSubscribe:
		publisher, err := transport.ParseAddress(f.Publisher)
		if err != nil {
			h.reply(p, ServerFrame{Type: FrameError, Error: err.Error()})
			return
		}
		key := broadcast.Key{Publisher: publisher, Stream: f.Stream}
		if backlog := h.registry.Subscribe(key, p.id, f.From); len(backlog) > 0 {
			h.deliverUpdate(p.id, &broadcast.Update{Publisher: publisher, Stream: f.Stream, Entries: backlog})
		}

	case FrameUnsubscribe:
		h.registry.Unsubscribe(broadcast.Key{Publisher: f.Publisher, Stream: f.Stream}, p.id)

	default:
		h.reply(p, ServerFrame{Type: FrameError, Error: "unknown frame type " + f.Type})
	}
}

func (h *Hub) reply(p *peer, f ServerFrame) {
	data, err := json.Marshal(f)
	if err != nil {
		h.log.WithError(err).Error("encoding frame")
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.peers[p.id] == p {
		h.enqueueLocked(p, data)
	}
}

// deliverMessage forwards a direct message, holding it in a bounded mailbox
// while the recipient is offline.
func (h *Hub) deliverMessage(to string, f ServerFrame) {
	data, err := json.Marshal(f)
	if err != nil {
		h.log.WithError(err).Error("encoding frame")
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if p, ok := h.peers[to]; ok {
		h.enqueueLocked(p, data)
		return
	}
	box := append(h.mailbox[to], data)
	if over := len(box) - mailboxSize; over > 0 {
		h.log.WithField("replica", to).Warn("mailbox full, dropping oldest messages")
		box = box[over:]
	}
	h.mailbox[to] = box
}

// deliverUpdate forwards log entries to a connected subscriber. Offline
// subscribers catch up from the log when they resubscribe.
func (h *Hub) deliverUpdate(to string, u *broadcast.Update) {
	data, err := json.Marshal(ServerFrame{Type: FrameUpdate, Update: u})
	if err != nil {
		h.log.WithError(err).Error("encoding frame")
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if p, ok := h.peers[to]; ok {
		h.enqueueLocked(p, data)
	}
}

// enqueueLocked never blocks. A peer that cannot keep up is disconnected
// rather than silently losing entries.
func (h *Hub) enqueueLocked(p *peer, data []byte) {
	select {
	case p.send <- data:
	default:
		h.log.WithField("replica", p.id).Warn("send buffer full, disconnecting")
		p.cancel()
	}
}
