package wshub

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"doodlesync/internal/blobs"
	"doodlesync/internal/broadcast"
	"doodlesync/internal/kv"
	"doodlesync/internal/messages"
	"doodlesync/internal/replica"
	"doodlesync/internal/transport"
)

func quietLog() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	return logrus.NewEntry(l)
}

func newTestPeer(id string, buffer int) (*peer, *atomic.Bool) {
	var cancelled atomic.Bool
	return &peer{id: id, send: make(chan []byte, buffer), cancel: func() { cancelled.Store(true) }}, &cancelled
}

func receive(t *testing.T, p *peer) ServerFrame {
	t.Helper()
	select {
	case data := <-p.send:
		var f ServerFrame
		if err := json.Unmarshal(data, &f); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return f
	case <-time.After(100 * time.Millisecond):
		t.Fatalf("%s received nothing", p.id)
	}
	return ServerFrame{}
}

func expectNothing(t *testing.T, p *peer) {
	t.Helper()
	select {
	case data := <-p.send:
		t.Fatalf("%s should not receive anything, got %s", p.id, data)
	default:
	}
}

func TestHandle_SendRoutesToRecipient(t *testing.T) {
	h := NewHub(quietLog())
	a, _ := newTestPeer(transport.NewAddress(), 16)
	b, _ := newTestPeer(transport.NewAddress(), 16)
	h.register(a)
	h.register(b)

	payload, _ := messages.Encode(messages.FriendRequest{})
	h.handle(a, ClientFrame{Type: FrameSend, To: b.id, Payload: payload})

	got := receive(t, b)
	if got.Type != FrameMessage || got.From != a.id {
		t.Fatalf("unexpected frame: %+v", got)
	}
	m, err := messages.Decode(got.Payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.Kind() != messages.KindFriendRequest {
		t.Errorf("kind = %q, want %q", m.Kind(), messages.KindFriendRequest)
	}
	expectNothing(t, a)
}

func TestHandle_SendHeldWhileOffline(t *testing.T) {
	h := NewHub(quietLog())
	a, _ := newTestPeer(transport.NewAddress(), 16)
	h.register(a)
	offline := transport.NewAddress()

	payload, _ := messages.Encode(messages.FriendAccepted{})
	h.handle(a, ClientFrame{Type: FrameSend, To: offline, Payload: payload})

	b, _ := newTestPeer(offline, 16)
	h.register(b)
	if got := receive(t, b); got.Type != FrameMessage || got.From != a.id {
		t.Fatalf("unexpected frame: %+v", got)
	}
}

func TestHandle_SendToMalformedAddress(t *testing.T) {
	h := NewHub(quietLog())
	a, _ := newTestPeer(transport.NewAddress(), 16)
	h.register(a)

	h.handle(a, ClientFrame{Type: FrameSend, To: "nobody"})
	if got := receive(t, a); got.Type != FrameError {
		t.Fatalf("expected error frame, got %+v", got)
	}
}

func TestHandle_EmitFansOutToSubscribers(t *testing.T) {
	h := NewHub(quietLog())
	pub, _ := newTestPeer(transport.NewAddress(), 16)
	sub, _ := newTestPeer(transport.NewAddress(), 16)
	other, _ := newTestPeer(transport.NewAddress(), 16)
	h.register(pub)
	h.register(sub)
	h.register(other)

	h.handle(sub, ClientFrame{Type: FrameSubscribe, Publisher: pub.id, Stream: "game_events_r1"})
	h.handle(pub, ClientFrame{Type: FrameEmit, Stream: "game_events_r1", Entry: &broadcast.Entry{Seq: 0, Data: []byte(`{}`)}})

	got := receive(t, sub)
	if got.Type != FrameUpdate || got.Update == nil {
		t.Fatalf("unexpected frame: %+v", got)
	}
	if got.Update.Publisher != pub.id || len(got.Update.Entries) != 1 || got.Update.Entries[0].Seq != 0 {
		t.Errorf("unexpected update: %+v", got.Update)
	}
	expectNothing(t, other)
	expectNothing(t, pub)
}

func TestHandle_SubscribeReturnsBacklog(t *testing.T) {
	h := NewHub(quietLog())
	pub, _ := newTestPeer(transport.NewAddress(), 16)
	sub, _ := newTestPeer(transport.NewAddress(), 16)
	h.register(pub)
	h.register(sub)

	for seq := uint64(0); seq < 3; seq++ {
		h.handle(pub, ClientFrame{Type: FrameEmit, Stream: "s", Entry: &broadcast.Entry{Seq: seq, Data: []byte(`{}`)}})
	}
	h.handle(sub, ClientFrame{Type: FrameSubscribe, Publisher: pub.id, Stream: "s", From: 1})

	got := receive(t, sub)
	if got.Update == nil || len(got.Update.Entries) != 2 {
		t.Fatalf("backlog = %+v, want entries 1 and 2", got.Update)
	}
	if got.Update.Entries[0].Seq != 1 || got.Update.Entries[1].Seq != 2 {
		t.Errorf("backlog seqs = %d,%d", got.Update.Entries[0].Seq, got.Update.Entries[1].Seq)
	}
}

func TestHandle_EmitGapRejected(t *testing.T) {
	h := NewHub(quietLog())
	pub, _ := newTestPeer(transport.NewAddress(), 16)
	h.register(pub)

	h.handle(pub, ClientFrame{Type: FrameEmit, Stream: "s", Entry: &broadcast.Entry{Seq: 0}})
	h.handle(pub, ClientFrame{Type: FrameEmit, Stream: "s", Entry: &broadcast.Entry{Seq: 5}})

	got := receive(t, pub)
	if got.Type != FrameError || !strings.Contains(got.Error, "gap") {
		t.Fatalf("expected gap error, got %+v", got)
	}
}

func TestHandle_UnsubscribeStopsDelivery(t *testing.T) {
	h := NewHub(quietLog())
	pub, _ := newTestPeer(transport.NewAddress(), 16)
	sub, _ := newTestPeer(transport.NewAddress(), 16)
	h.register(pub)
	h.register(sub)

	h.handle(sub, ClientFrame{Type: FrameSubscribe, Publisher: pub.id, Stream: "s"})
	h.handle(sub, ClientFrame{Type: FrameUnsubscribe, Publisher: pub.id, Stream: "s"})
	h.handle(pub, ClientFrame{Type: FrameEmit, Stream: "s", Entry: &broadcast.Entry{Seq: 0}})

	expectNothing(t, sub)
}

func TestRegister_ReplacesOldConnection(t *testing.T) {
	h := NewHub(quietLog())
	id := transport.NewAddress()
	old, oldCancelled := newTestPeer(id, 16)
	h.register(old)
	fresh, _ := newTestPeer(id, 16)
	h.register(fresh)

	if _, ok := <-old.send; ok {
		t.Fatal("old send channel should be closed")
	}
	if !oldCancelled.Load() {
		t.Error("old connection should be cancelled")
	}
	h.unregister(old)
	if !h.Connected(id) {
		t.Error("unregistering the old connection must not drop the new one")
	}
}

func TestUnregister_ClosesSend(t *testing.T) {
	h := NewHub(quietLog())
	p, _ := newTestPeer(transport.NewAddress(), 16)
	h.register(p)
	h.unregister(p)

	if _, ok := <-p.send; ok {
		t.Fatal("send channel should be closed")
	}
	if h.Peers() != 0 {
		t.Errorf("Peers() = %d, want 0", h.Peers())
	}
}

func TestEnqueue_SlowPeerDisconnected(t *testing.T) {
	h := NewHub(quietLog())
	a, _ := newTestPeer(transport.NewAddress(), 16)
	slow, cancelled := newTestPeer(transport.NewAddress(), 1)
	h.register(a)
	h.register(slow)

	payload, _ := messages.Encode(messages.FriendRequest{})
	h.handle(a, ClientFrame{Type: FrameSend, To: slow.id, Payload: payload})
	h.handle(a, ClientFrame{Type: FrameSend, To: slow.id, Payload: payload})

	if !cancelled.Load() {
		t.Fatal("slow peer should be disconnected")
	}
}

func TestNewClient_RejectsHTTPURL(t *testing.T) {
	if _, err := NewClient("http://localhost:8080/relay", transport.NewAddress(), nil); err == nil {
		t.Fatal("expected an error for a non-websocket url")
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func startReplica(t *testing.T, ctx context.Context, h *Hub, relayURL string, store blobs.Store) *replica.Replica {
	t.Helper()
	id := transport.NewAddress()
	client, err := NewClient(relayURL, id, quietLog())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	client.RetryDelay = 10 * time.Millisecond
	r, err := replica.New(ctx, id, kv.NewMemory(), client, replica.Options{Logger: quietLog(), Blobs: store})
	if err != nil {
		t.Fatalf("replica.New: %v", err)
	}
	go client.Run(ctx, r)
	select {
	case <-client.Connected():
	case <-time.After(5 * time.Second):
		t.Fatal("client never connected")
	}
	waitFor(t, "hub registration", func() bool { return h.Connected(id) })
	return r
}

func TestClient_ReplicasPlayOverRelay(t *testing.T) {
	h := NewHub(quietLog())
	ts := httptest.NewServer(h)
	defer ts.Close()
	relayURL := "ws" + strings.TrimPrefix(ts.URL, "http")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := blobs.NewMemory()
	host := startReplica(t, ctx, h, relayURL, store)
	guest := startReplica(t, ctx, h, relayURL, store)

	if _, err := host.CreateRoom(ctx, "Alice", "", ""); err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if err := guest.JoinRoom(ctx, host.ID(), "Bob", ""); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}
	waitFor(t, "guest snapshot", func() bool { return guest.Room() != nil })

	if err := host.StartGame(ctx, 1, 30); err != nil {
		t.Fatalf("StartGame: %v", err)
	}
	if err := host.ChooseWord(ctx, "anchor"); err != nil {
		t.Fatalf("ChooseWord: %v", err)
	}
	waitFor(t, "word chosen on guest", func() bool { return guest.Room().WordChosenAt != nil })

	if err := guest.GuessWord(ctx, "anchor"); err != nil {
		t.Fatalf("GuessWord: %v", err)
	}
	waitFor(t, "score on guest", func() bool {
		p := guest.Room().Players.Get(guest.ID())
		return p != nil && p.Score == 100
	})
	if got := len(host.Room().ChatMessages); got != 1 {
		t.Errorf("host chat = %d messages, want 1", got)
	}
}
