package store

import "time"

// Option defines a functional configuration type for the Store.
type Option func(*Store)

// WithCapacity bounds the history ring.
func WithCapacity(n int) Option {
	return func(s *Store) {
		s.config.capacity = n
	}
}

// WithClock replaces the wall clock used for receivedAt and staleness.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.config.now = now
		}
	}
}
