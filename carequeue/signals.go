// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package carequeue

import "sync"

// Observable is a current value plus a stream of changes. The sync loop takes
// connectivity (bool) and identity (user id, "" when signed out) as observables.
type Observable[T any] interface {
	Get() T
	// Subscribe returns a channel receiving the latest value after each change,
	// and a function that ends the subscription.
	Subscribe() (<-chan T, func())
}

// Signal is a mutable Observable. Slow subscribers only see the most recent value.
type Signal[T comparable] struct {
	mu    sync.Mutex
	value T
	subs  map[int]chan T
	next  int
}

// NewSignal creates a signal holding initial.
func NewSignal[T comparable](initial T) *Signal[T] {
	return &Signal[T]{value: initial, subs: make(map[int]chan T)}
}

func (s *Signal[T]) Get() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// Set stores v and notifies subscribers. It reports whether the value changed.
func (s *Signal[T]) Set(v T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.value == v {
		return false
	}
	s.value = v
	for _, ch := range s.subs {
		select {
		case ch <- v:
		default:
			// Replace the stale pending value.
			select {
			case <-ch:
			default:
			}
			ch <- v
		}
	}
	return true
}

func (s *Signal[T]) Subscribe() (<-chan T, func()) {
	ch := make(chan T, 1)
	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}
