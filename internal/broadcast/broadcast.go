// Package broadcast holds append-only, publisher-sequenced logs and the set
// of replicas subscribed to each one. Transports share it: they append what
// a replica emits and fan the new entries out to subscribers.
package broadcast

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var ErrSequenceGap = errors.New("broadcast: sequence gap")

// Key names one log: a stream as published by one replica.
type Key struct {
	Publisher string
	Stream    string
}

func (k Key) String() string {
	return k.Publisher + "/" + k.Stream
}

// Entry is one encoded log record. Seq is assigned by the publisher.
type Entry struct {
	Seq  uint64 `json:"seq"`
	Data []byte `json:"data"`
}

// Update is a batch of entries delivered to a subscriber.
type Update struct {
	Publisher string  `json:"publisher"`
	Stream    string  `json:"stream"`
	Entries   []Entry `json:"entries"`
}

// Log is one publisher's stream. A log that starts empty adopts the first
// sequence number it sees, which lets a relay restart without forcing
// publishers back to zero.
type Log struct {
	base    uint64
	entries []Entry
}

func (l *Log) Next() uint64 {
	return l.base + uint64(len(l.entries))
}

// Append stores the entry at its sequence number. Re-appending an existing
// sequence number is ignored so publishers may retry.
func (l *Log) Append(e Entry) (bool, error) {
	if len(l.entries) == 0 && e.Seq >= l.base {
		l.base = e.Seq
	}
	switch {
	case e.Seq < l.Next():
		return false, nil
	case e.Seq > l.Next():
		return false, fmt.Errorf("%w: got %d, want %d", ErrSequenceGap, e.Seq, l.Next())
	}
	l.entries = append(l.entries, Entry{Seq: e.Seq, Data: append([]byte(nil), e.Data...)})
	return true, nil
}

// Since returns every entry at or after seq.
func (l *Log) Since(seq uint64) []Entry {
	if seq >= l.Next() {
		return nil
	}
	if seq < l.base {
		seq = l.base
	}
	return append([]Entry(nil), l.entries[seq-l.base:]...)
}

type Registry struct {
	mu     sync.Mutex
	logs   map[Key]*Log
	subs   map[Key]map[string]bool
	topics map[string]map[Key]bool
}

func NewRegistry() *Registry {
	return &Registry{
		logs:   make(map[Key]*Log),
		subs:   make(map[Key]map[string]bool),
		topics: make(map[string]map[Key]bool),
	}
}

func (r *Registry) log(k Key) *Log {
	l, ok := r.logs[k]
	if !ok {
		l = &Log{}
		r.logs[k] = l
	}
	return l
}

// Publish appends e to the publisher's log and returns the subscribers the
// entry must be delivered to. A duplicate entry has no subscribers.
func (r *Registry) Publish(k Key, e Entry) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	added, err := r.log(k).Append(e)
	if err != nil || !added {
		return nil, err
	}
	return sortedKeys(r.subs[k]), nil
}

// Subscribe registers subscriber on k and returns the backlog from seq on.
func (r *Registry) Subscribe(k Key, subscriber string, from uint64) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.subs[k] == nil {
		r.subs[k] = make(map[string]bool)
	}
	r.subs[k][subscriber] = true
	if r.topics[subscriber] == nil {
		r.topics[subscriber] = make(map[Key]bool)
	}
	r.topics[subscriber][k] = true
	return r.log(k).Since(from)
}

func (r *Registry) Unsubscribe(k Key, subscriber string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.subs[k], subscriber)
	if len(r.subs[k]) == 0 {
		delete(r.subs, k)
	}
	delete(r.topics[subscriber], k)
	if len(r.topics[subscriber]) == 0 {
		delete(r.topics, subscriber)
	}
}

func (r *Registry) Subscribers(k Key) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return sortedKeys(r.subs[k])
}

// Subscriptions lists the logs subscriber follows.
func (r *Registry) Subscriptions(subscriber string) []Key {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := make([]Key, 0, len(r.topics[subscriber]))
	for k := range r.topics[subscriber] {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

func (r *Registry) Since(k Key, from uint64) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.logs[k]; ok {
		return l.Since(from)
	}
	return nil
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
