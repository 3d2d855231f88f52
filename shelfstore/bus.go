// Copyright 2025 Athenaeum contributors
// SPDX-License-Identifier: Apache-2.0

package shelfstore

import "sync"

// ChangeBus is the table-change notification hub behind live queries. A UI
// observer subscribes to the tables its query reads and re-runs the query
// whenever a committed write touches one of them.
//
// Notifications are fire-and-forget: a slow subscriber coalesces (its channel
// holds at most one pending notification per table) rather than blocking the
// writer.
type ChangeBus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]*Subscription
}

// Subscription delivers the names of changed tables on C until Unsubscribe.
type Subscription struct {
	C chan string

	id     int
	tables map[string]bool
	bus    *ChangeBus
}

// NewChangeBus creates an empty bus.
func NewChangeBus() *ChangeBus {
	return &ChangeBus{subs: make(map[int]*Subscription)}
}

// Subscribe registers interest in the given tables. With no tables, the
// subscription receives every change.
func (b *ChangeBus) Subscribe(tables ...string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscription{
		C:      make(chan string, 16),
		id:     b.nextID,
		tables: make(map[string]bool, len(tables)),
		bus:    b,
	}
	for _, t := range tables {
		sub.tables[t] = true
	}
	b.nextID++
	b.subs[sub.id] = sub
	return sub
}

// Unsubscribe removes the subscription and closes its channel.
func (s *Subscription) Unsubscribe() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	if _, ok := s.bus.subs[s.id]; !ok {
		return
	}
	delete(s.bus.subs, s.id)
	close(s.C)
}

// Publish notifies all matching subscribers that the given tables changed.
// Called by the store after each committed write transaction.
func (b *ChangeBus) Publish(tables ...string) {
	if len(tables) == 0 {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		for _, table := range tables {
			if len(sub.tables) > 0 && !sub.tables[table] {
				continue
			}
			select {
			case sub.C <- table:
			default:
				// Subscriber is behind; it will re-query on the
				// notification already in flight.
			}
		}
	}
}
