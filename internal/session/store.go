// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned for unknown or expired session ids.
var ErrNotFound = errors.New("session not found")

// Store keeps sessions by id.
type Store interface {
	// Get returns the live session with the id and refreshes its expiry.
	Get(id string) (*Session, bool)
	// Create starts a new session with a random id.
	Create() *Session
	// Update runs fn with the session locked.
	Update(id string, fn func(*Session)) error
	// Rekey moves the session to a new random id. The caller holds the
	// session lock.
	Rekey(s *Session)
	Delete(id string)
}

// MemoryStore is a process local Store with sliding expiry.
type MemoryStore struct {
	mu    sync.Mutex
	ttl   time.Duration
	items map[string]*Session
	now   func() time.Time
}

// NewMemoryStore returns a store expiring sessions idle for longer than ttl.
// A non positive ttl keeps sessions forever.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:   ttl,
		items: make(map[string]*Session),
		now:   time.Now,
	}
}

// WithClock replaces the time source; used by tests.
func (m *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	m.now = now
	return m
}

func (m *MemoryStore) expired(s *Session, now time.Time) bool {
	return m.ttl > 0 && now.Sub(s.LastSeen) > m.ttl
}

func (m *MemoryStore) Get(id string) (*Session, bool) {
	if id == "" {
		return nil, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.items[id]
	if !ok {
		return nil, false
	}
	now := m.now()
	if m.expired(s, now) {
		delete(m.items, id)
		return nil, false
	}
	s.LastSeen = now
	return s, true
}

func (m *MemoryStore) Create() *Session {
	s := New(uuid.NewString(), m.now())
	m.mu.Lock()
	m.items[s.ID] = s
	m.mu.Unlock()
	return s
}

func (m *MemoryStore) Update(id string, fn func(*Session)) error {
	m.mu.Lock()
	s, ok := m.items[id]
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	s.Lock()
	defer s.Unlock()
	fn(s)
	return nil
}

func (m *MemoryStore) Rekey(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, s.ID)
	s.ID = uuid.NewString()
	m.items[s.ID] = s
}

func (m *MemoryStore) Delete(id string) {
	m.mu.Lock()
	delete(m.items, id)
	m.mu.Unlock()
}

// Len returns the number of stored sessions, expired or not.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Cleanup removes expired sessions and returns how many were removed.
func (m *MemoryStore) Cleanup() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	removed := 0
	for id, s := range m.items {
		if m.expired(s, now) {
			delete(m.items, id)
			removed++
		}
	}
	return removed
}

// StartJanitor runs Cleanup every interval until ctx is done.
func (m *MemoryStore) StartJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := m.Cleanup(); n > 0 {
					slog.Debug("expired sessions removed", "count", n)
				}
			}
		}
	}()
}
