// Package memnet is an in-memory network for running several replicas in one
// process. Nothing moves until Pump is called, which makes multi-replica
// scenarios deterministic. Every payload crosses the network encoded, as it
// would on a real wire.
package memnet

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"doodlesync/internal/broadcast"
	"doodlesync/internal/events"
	"doodlesync/internal/messages"
	"doodlesync/internal/transport"
)

type delivery struct {
	from    string
	to      string
	payload []byte
	update  *broadcast.Update
}

type Network struct {
	mu        sync.Mutex
	registry  *broadcast.Registry
	nodes     map[string]transport.Inbound
	queue     []delivery
	wire      [][]byte
	duplicate bool
	errs      []error
	log       *logrus.Entry
}

func New() *Network {
	return &Network{
		registry: broadcast.NewRegistry(),
		nodes:    make(map[string]transport.Inbound),
		log:      logrus.WithField("component", "memnet"),
	}
}

// Attach routes traffic addressed to id to in.
func (n *Network) Attach(id string, in transport.Inbound) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nodes[id] = in
}

func (n *Network) Detach(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.nodes, id)
}

// SetDuplicate makes every subsequent delivery happen twice.
func (n *Network) SetDuplicate(on bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.duplicate = on
}

// Endpoint returns the Transport for replica id.
func (n *Network) Endpoint(id string) *Endpoint {
	return &Endpoint{net: n, id: id}
}

// Wire returns every payload that has crossed the network so far.
func (n *Network) Wire() [][]byte {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([][]byte(nil), n.wire...)
}

// Errors returns the errors receivers reported during Pump.
func (n *Network) Errors() []error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]error(nil), n.errs...)
}

func (n *Network) Pending() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.queue)
}

func (n *Network) enqueue(d delivery) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if d.update != nil {
		for _, e := range d.update.Entries {
			n.wire = append(n.wire, e.Data)
		}
	} else {
		n.wire = append(n.wire, d.payload)
	}
	n.queue = append(n.queue, d)
	if n.duplicate {
		n.queue = append(n.queue, d)
	}
}

func (n *Network) next() (delivery, transport.Inbound, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.queue) == 0 {
		return delivery{}, nil, false
	}
	d := n.queue[0]
	n.queue = n.queue[1:]
	return d, n.nodes[d.to], true
}

// Pump delivers queued traffic, including whatever the deliveries produce,
// until the network is idle. It returns the number of deliveries made.
func (n *Network) Pump(ctx context.Context) int {
	delivered := 0
	for {
		if ctx.Err() != nil {
			return delivered
		}
		d, in, ok := n.next()
		if !ok {
			return delivered
		}
		if in == nil {
			n.log.WithField("to", d.to).Debug("dropping delivery to detached node")
			continue
		}
		delivered++

		var err error
		if d.update != nil {
			err = in.HandleStreamUpdate(ctx, *d.update)
		} else {
			var m messages.Message
			m, err = messages.Decode(d.payload)
			if err == nil {
				err = in.HandleMessage(ctx, d.from, m)
			}
		}
		if err != nil {
			n.mu.Lock()
			n.errs = append(n.errs, fmt.Errorf("delivering to %s: %w", d.to, err))
			n.mu.Unlock()
		}
	}
}

// Endpoint is one replica's view of the network.
type Endpoint struct {
	net *Network
	id  string
}

var _ transport.Transport = (*Endpoint)(nil)

func (e *Endpoint) Send(_ context.Context, to string, m messages.Message) error {
	payload, err := messages.Encode(m)
	if err != nil {
		return err
	}
	e.net.enqueue(delivery{from: e.id, to: to, payload: payload})
	return nil
}

func (e *Endpoint) Emit(_ context.Context, stream string, env events.Envelope) error {
	data, err := events.Encode(env)
	if err != nil {
		return err
	}
	key := broadcast.Key{Publisher: e.id, Stream: stream}
	entry := broadcast.Entry{Seq: env.Seq, Data: data}
	subs, err := e.net.registry.Publish(key, entry)
	if err != nil {
		return err
	}
	for _, sub := range subs {
		e.net.enqueue(delivery{to: sub, update: &broadcast.Update{
			Publisher: e.id,
			Stream:    stream,
			Entries:   []broadcast.Entry{entry},
		}})
	}
	return nil
}

func (e *Endpoint) Subscribe(_ context.Context, publisher, stream string, from uint64) error {
	key := broadcast.Key{Publisher: publisher, Stream: stream}
	backlog := e.net.registry.Subscribe(key, e.id, from)
	if len(backlog) > 0 {
		e.net.enqueue(delivery{to: e.id, update: &broadcast.Update{
			Publisher: publisher,
			Stream:    stream,
			Entries:   backlog,
		}})
	}
	return nil
}

func (e *Endpoint) Unsubscribe(_ context.Context, publisher, stream string) error {
	e.net.registry.Unsubscribe(broadcast.Key{Publisher: publisher, Stream: stream}, e.id)
	return nil
}

// Subscriptions lists the logs this endpoint follows.
func (e *Endpoint) Subscriptions() []broadcast.Key {
	return e.net.registry.Subscriptions(e.id)
}
