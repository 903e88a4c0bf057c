// Package replica is the game session engine. A Replica owns one player's
// persisted state and applies local operations, direct messages and
// broadcast entries to it one at a time, each as a single unit of work.
package replica

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"doodlesync/internal/blobs"
	"doodlesync/internal/broadcast"
	"doodlesync/internal/events"
	"doodlesync/internal/kv"
	"doodlesync/internal/matchmaking"
	"doodlesync/internal/messages"
	"doodlesync/internal/metrics"
	"doodlesync/internal/social"
	"doodlesync/internal/transport"
)

type Options struct {
	InviteTTL            time.Duration
	MatchSize            int
	MatchRounds          uint32
	MatchSecondsPerRound uint32

	Clock   func() time.Time
	Logger  *logrus.Entry
	Metrics *metrics.Metrics
	Blobs   blobs.Store
}

func (o *Options) setDefaults() {
	if o.InviteTTL <= 0 {
		o.InviteTTL = social.DefaultInvitationTTL
	}
	if o.MatchSize <= 0 {
		o.MatchSize = matchmaking.DefaultBatchSize
	}
	if o.MatchRounds == 0 {
		o.MatchRounds = matchmaking.DefaultRounds
	}
	if o.MatchSecondsPerRound == 0 {
		o.MatchSecondsPerRound = matchmaking.DefaultSecondsPerRound
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.Logger == nil {
		o.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
}

type Replica struct {
	id    string
	opts  Options
	store kv.Store
	net   transport.Transport
	log   *logrus.Entry

	mu    sync.Mutex
	state *State
}

var _ transport.Inbound = (*Replica)(nil)

// New loads the replica's state from store, or starts empty.
func New(ctx context.Context, id string, store kv.Store, net transport.Transport, opts Options) (*Replica, error) {
	id, err := transport.ParseAddress(id)
	if err != nil {
		return nil, err
	}
	opts.setDefaults()

	r := &Replica{
		id:    id,
		opts:  opts,
		store: store,
		net:   net,
		log:   opts.Logger.WithField("replica", id),
	}
	st, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	r.state = st
	return r, nil
}

func (r *Replica) ID() string {
	return r.id
}

func stateKey(id string) string {
	return "replica/" + id + "/state"
}

func (r *Replica) load(ctx context.Context) (*State, error) {
	b, err := r.store.Get(ctx, stateKey(r.id))
	if errors.Is(err, kv.ErrNotFound) {
		return newState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: loading state: %v", ErrStorage, err)
	}
	st := newState()
	if err := json.Unmarshal(b, st); err != nil {
		return nil, fmt.Errorf("%w: decoding state: %v", ErrStorage, err)
	}
	if st.Published == nil {
		st.Published = make(map[string]uint64)
	}
	if st.Cursors == nil {
		st.Cursors = make(map[string]uint64)
	}
	return st, nil
}

// update runs fn against a copy of the state. The copy replaces the state,
// and fn's effects are flushed, only if fn succeeds and the copy is
// persisted.
func (r *Replica) update(ctx context.Context, fn func(tx *txn) error) (*txn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx := &txn{r: r, st: r.state.Clone(), now: r.opts.Clock()}
	if err := fn(tx); err != nil {
		return tx, err
	}

	b, err := json.Marshal(tx.st)
	if err != nil {
		return tx, fmt.Errorf("%w: encoding state: %v", ErrStorage, err)
	}
	if err := r.store.Set(ctx, stateKey(r.id), b); err != nil {
		r.log.WithError(err).Error("persisting state")
		return tx, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	r.state = tx.st
	r.flush(ctx, tx.effects)
	return tx, nil
}

func (r *Replica) flush(ctx context.Context, effects []effect) {
	for _, e := range effects {
		var err error
		switch e.kind {
		case effectSend:
			err = r.net.Send(ctx, e.to, e.msg)
		case effectEmit:
			err = r.net.Emit(ctx, e.stream, e.env)
		case effectSubscribe:
			err = r.net.Subscribe(ctx, e.publisher, e.stream, e.from)
		case effectUnsubscribe:
			err = r.net.Unsubscribe(ctx, e.publisher, e.stream)
		}
		if err != nil {
			r.log.WithError(err).WithField("effect", e.String()).Warn("flushing effect")
			r.opts.Metrics.Flush(metrics.OutcomeFailed)
			continue
		}
		r.opts.Metrics.Flush(metrics.OutcomeApplied)
	}
}

// operation runs a local operation and records its outcome.
func (r *Replica) operation(ctx context.Context, name string, fn func(tx *txn) error) error {
	tx, err := r.update(ctx, fn)
	log := r.log.WithField("operation", name)
	switch {
	case err == nil && tx.ignored == "":
		r.opts.Metrics.Operation(name, metrics.OutcomeApplied)
		return nil
	case err == nil || errors.Is(err, errIgnored):
		log.WithField("reason", tx.ignored).Debug("operation had no effect")
		r.opts.Metrics.Operation(name, metrics.OutcomeIgnored)
		return nil
	case errors.Is(err, ErrStorage):
		r.opts.Metrics.Operation(name, metrics.OutcomeFailed)
	default:
		log.WithError(err).Debug("operation rejected")
		r.opts.Metrics.Operation(name, metrics.OutcomeRejected)
	}
	return err
}

// HandleMessage applies one direct message from another replica.
func (r *Replica) HandleMessage(ctx context.Context, from string, m messages.Message) error {
	kind := string(m.Kind())
	from, err := transport.ParseAddress(from)
	if err != nil {
		r.opts.Metrics.Message(kind, metrics.OutcomeRejected)
		return err
	}

	tx, err := r.update(ctx, func(tx *txn) error {
		return messages.Dispatch(&messageHandler{tx: tx}, from, m)
	})
	log := r.log.WithFields(logrus.Fields{"message": kind, "from": from})
	switch {
	case err == nil && tx.ignored == "":
		r.opts.Metrics.Message(kind, metrics.OutcomeApplied)
		return nil
	case err == nil || errors.Is(err, errIgnored):
		log.WithField("reason", tx.ignored).Debug("message ignored")
		r.opts.Metrics.Message(kind, metrics.OutcomeIgnored)
		return nil
	case errors.Is(err, ErrStorage):
		r.opts.Metrics.Message(kind, metrics.OutcomeFailed)
	default:
		log.WithError(err).Warn("message rejected")
		r.opts.Metrics.Message(kind, metrics.OutcomeRejected)
	}
	return err
}

// HandleStreamUpdate applies broadcast entries in order. Each entry is its
// own unit of work; a failing entry stops the batch so it can be delivered
// again.
func (r *Replica) HandleStreamUpdate(ctx context.Context, u broadcast.Update) error {
	publisher, err := transport.ParseAddress(u.Publisher)
	if err != nil {
		return err
	}
	key := broadcast.Key{Publisher: publisher, Stream: u.Stream}

	for _, entry := range u.Entries {
		env, decodeErr := events.Decode(entry.Data)
		kind := "undecodable"
		if decodeErr == nil {
			env.Seq = entry.Seq
			kind = string(env.Event.Kind())
		}

		tx, err := r.update(ctx, func(tx *txn) error {
			if !tx.follows(publisher, u.Stream) || !tx.advanceCursor(key, entry.Seq) {
				return errIgnored
			}
			if decodeErr != nil {
				tx.ignore("undecodable entry: %v", decodeErr)
				return nil
			}
			return tx.applyEntry(env)
		})

		log := r.log.WithFields(logrus.Fields{"event": kind, "publisher": publisher, "seq": entry.Seq})
		switch {
		case err == nil && tx.ignored == "":
			r.opts.Metrics.Event(kind, metrics.OutcomeApplied)
		case err == nil || errors.Is(err, errIgnored):
			reason := tx.ignored
			if reason == "" {
				reason = "already applied"
			}
			log.WithField("reason", reason).Debug("entry ignored")
			r.opts.Metrics.Event(kind, metrics.OutcomeIgnored)
		default:
			log.WithError(err).Warn("applying entry")
			r.opts.Metrics.Event(kind, metrics.OutcomeFailed)
			return err
		}
	}
	return nil
}
