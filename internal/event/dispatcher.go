// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package event routes named host events to subscribed clients.
package event

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/holomush/scriptbox/pkg/errutil"
)

// Event is one host notification.
type Event struct {
	Name string
	Args []any
}

// Subscriber receives events it asked for.
type Subscriber interface {
	// SubscriberName identifies the client in logs.
	SubscriberName() string
	// WantsEvent reports whether the client handles the named event.
	WantsEvent(name string) bool
	// HandleEvent delivers one event.
	HandleEvent(ctx context.Context, ev Event) error
}

// Dispatcher tracks, per event name, the clients subscribed to it.
//
// Delivery is synchronous and follows subscription order. Dispatcher is
// safe for concurrent use; subscriber lists are copied before delivery so a
// handler may unsubscribe itself.
type Dispatcher struct {
	known map[string]bool
	subs  map[string][]Subscriber
	mu    sync.RWMutex
}

// NewDispatcher creates a dispatcher for the given event names.
func NewDispatcher(names []string) *Dispatcher {
	known := make(map[string]bool, len(names))
	for _, n := range names {
		known[n] = true
	}
	return &Dispatcher{
		known: known,
		subs:  make(map[string][]Subscriber),
	}
}

// Subscribe adds the client to every known event it wants and returns the
// event names it was added to.
func (d *Dispatcher) Subscribe(s Subscriber) []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	var added []string
	for name := range d.known {
		if !s.WantsEvent(name) || slices.Contains(d.subs[name], s) {
			continue
		}
		d.subs[name] = append(d.subs[name], s)
		added = append(added, name)
	}
	slices.Sort(added)
	return added
}

// Unsubscribe removes the client from one event. It reports whether the
// client was subscribed.
func (d *Dispatcher) Unsubscribe(s Subscriber, name string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	list := d.subs[name]
	idx := slices.Index(list, s)
	if idx < 0 {
		return false
	}
	d.subs[name] = slices.Delete(slices.Clone(list), idx, idx+1)
	return true
}

// RemoveSubscriber removes the client from every event.
func (d *Dispatcher) RemoveSubscriber(s Subscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for name, list := range d.subs {
		if idx := slices.Index(list, s); idx >= 0 {
			d.subs[name] = slices.Delete(slices.Clone(list), idx, idx+1)
		}
	}
}

// Subscribers returns the clients subscribed to name.
func (d *Dispatcher) Subscribers(name string) []Subscriber {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Clone(d.subs[name])
}

// Subscribed reports whether the client is subscribed to name.
func (d *Dispatcher) Subscribed(s Subscriber, name string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Contains(d.subs[name], s)
}

// Dispatch delivers ev to its subscribers and returns how many handled it
// without error. Handler errors are logged, never returned.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) int {
	delivered := 0
	for _, s := range d.Subscribers(ev.Name) {
		if err := s.HandleEvent(ctx, ev); err != nil {
			errutil.LogWarn(slog.Default().With("subscriber", s.SubscriberName(), "event", ev.Name),
				"event handler failed", err)
			continue
		}
		delivered++
	}
	return delivered
}
