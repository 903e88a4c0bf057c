package replica

import (
	"fmt"
	"strings"
	"time"

	"doodlesync/internal/broadcast"
	"doodlesync/internal/events"
	"doodlesync/internal/messages"
	"doodlesync/internal/transport"
)

type effectKind int

const (
	effectSend effectKind = iota
	effectEmit
	effectSubscribe
	effectUnsubscribe
)

// effect is an outbound action buffered until its unit of work commits.
type effect struct {
	kind      effectKind
	to        string
	msg       messages.Message
	stream    string
	env       events.Envelope
	publisher string
	from      uint64
}

func (e effect) String() string {
	switch e.kind {
	case effectSend:
		return fmt.Sprintf("send %s to %s", e.msg.Kind(), e.to)
	case effectEmit:
		return fmt.Sprintf("emit %s #%d on %s", e.env.Event.Kind(), e.env.Seq, e.stream)
	case effectSubscribe:
		return fmt.Sprintf("subscribe %s/%s from %d", e.publisher, e.stream, e.from)
	default:
		return fmt.Sprintf("unsubscribe %s/%s", e.publisher, e.stream)
	}
}

// txn is one unit of work: a private copy of the state plus an outbox.
type txn struct {
	r       *Replica
	st      *State
	now     time.Time
	effects []effect
	ignored string
}

func (tx *txn) self() string {
	return tx.r.id
}

// ignore marks the unit of work as a benign no-op. State changes made so far
// (a cursor advance, for instance) are still committed.
func (tx *txn) ignore(format string, args ...any) {
	tx.ignored = fmt.Sprintf(format, args...)
}

func (tx *txn) send(to string, m messages.Message) error {
	addr, err := transport.ParseAddress(to)
	if err != nil {
		return err
	}
	tx.effects = append(tx.effects, effect{kind: effectSend, to: addr, msg: m})
	return nil
}

// emit publishes ev on the room's stream as this replica.
func (tx *txn) emit(roomID string, ev events.Event) {
	tx.publish(roomID, tx.self(), ev)
}

// publish appends ev to this replica's stream for roomID. origin differs
// from self only when the host relays a drawer's event.
func (tx *txn) publish(roomID, origin string, ev events.Event) {
	stream := events.StreamName(roomID)
	seq := tx.st.Published[stream]
	tx.st.Published[stream] = seq + 1
	tx.effects = append(tx.effects, effect{
		kind:   effectEmit,
		stream: stream,
		env:    events.Envelope{Origin: origin, Seq: seq, Event: ev},
	})
}

// subscribe follows publisher's stream from the recorded cursor.
func (tx *txn) subscribe(publisher, stream string) error {
	addr, err := transport.ParseAddress(publisher)
	if err != nil {
		return err
	}
	key := broadcast.Key{Publisher: addr, Stream: stream}
	tx.effects = append(tx.effects, effect{
		kind:      effectSubscribe,
		publisher: addr,
		stream:    stream,
		from:      tx.st.Cursors[key.String()],
	})
	return nil
}

func (tx *txn) unsubscribe(publisher, stream string) {
	tx.effects = append(tx.effects, effect{kind: effectUnsubscribe, publisher: publisher, stream: stream})
}

// advanceCursor records seq as consumed. It returns false for entries below
// the cursor, which have already been applied.
func (tx *txn) advanceCursor(key broadcast.Key, seq uint64) bool {
	k := key.String()
	if seq < tx.st.Cursors[k] {
		return false
	}
	tx.st.Cursors[k] = seq + 1
	return true
}

// raiseCursor moves a cursor forward to seq without consuming anything.
func (tx *txn) raiseCursor(key broadcast.Key, seq uint64) {
	k := key.String()
	if tx.st.Cursors[k] < seq {
		tx.st.Cursors[k] = seq
	}
}

// forgetStream drops sequence bookkeeping for a room that no longer exists.
func (tx *txn) forgetStream(stream string) {
	delete(tx.st.Published, stream)
	suffix := "/" + stream
	for k := range tx.st.Cursors {
		if strings.HasSuffix(k, suffix) {
			delete(tx.st.Cursors, k)
		}
	}
}

// dropWordUnlessDrawing discards the secret word once this replica is no
// longer the drawer.
func (tx *txn) dropWordUnlessDrawing() {
	if tx.st.Room == nil || !tx.st.Room.IsDrawer(tx.self()) {
		tx.st.CurrentWord = ""
	}
}

// closeRoom clears the room after the host terminated it.
func (tx *txn) closeRoom() {
	if tx.st.Room != nil {
		tx.forgetStream(events.StreamName(tx.st.Room.ID))
	}
	tx.st.Room = nil
	tx.st.CurrentWord = ""
	tx.st.SubscribedToHost = ""
}
