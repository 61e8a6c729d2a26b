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

// Package session holds the per-browser state of the dashboard on the server.
// A Session is created on the first request, found again through a cookie,
// initialised with defaults once the user has signed in, and dropped when its
// TTL expires or the user signs out.
package session

import (
	"slices"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/jaycherian/gcp-go-search-console-dashboard/internal/core/model"
)

// Selections are the values of the dashboard selectors.
type Selections struct {
	Property    string
	SearchType  model.SearchType
	DateRange   model.DateRange
	CustomStart time.Time
	CustomEnd   time.Time
	Dimensions  []model.Dimension
}

// Defaults seed the selections on first use.
type Defaults struct {
	SearchType model.SearchType
	DateRange  model.DateRange
	Dimensions []model.Dimension
}

// Session is the state of one browser session. Callers hold the lock while
// reading or writing fields; the HTTP middleware does so for the whole
// request.
type Session struct {
	mu sync.Mutex

	ID        string
	CreatedAt time.Time
	LastSeen  time.Time

	DisplayMode model.DisplayMode

	// Authorization code flow of the pending sign-in.
	AuthState    string
	AuthVerifier string
	AuthURL      string

	Credentials *oauth2.Token
	Account     *model.Account

	Initialized bool
	Selections  Selections

	Report  *model.Report
	Exports []*model.ExportResult
}

// New returns an empty session showing the table.
func New(id string, now time.Time) *Session {
	return &Session{
		ID:          id,
		CreatedAt:   now,
		LastSeen:    now,
		DisplayMode: model.DisplayTable,
	}
}

func (s *Session) Lock() {
	s.mu.Lock()
}

func (s *Session) Unlock() {
	s.mu.Unlock()
}

// HasCredentials reports whether the user has signed in.
func (s *Session) HasCredentials() bool {
	return s.Credentials != nil
}

// SetCredentials stores the exchanged token and discards the finished flow.
func (s *Session) SetCredentials(tok *oauth2.Token) {
	s.Credentials = tok
	s.AuthState = ""
	s.AuthVerifier = ""
	s.AuthURL = ""
}

// Init seeds the selections the first time it is called after sign-in and
// reports whether it did.
func (s *Session) Init(d Defaults) bool {
	if s.Initialized {
		return false
	}
	s.Selections = Selections{
		SearchType: d.SearchType,
		DateRange:  d.DateRange,
		Dimensions: slices.Clone(d.Dimensions),
	}
	s.Initialized = true
	return true
}

// SignOut forgets the credentials and everything fetched with them.
func (s *Session) SignOut() {
	s.Credentials = nil
	s.Account = nil
	s.Initialized = false
	s.Selections = Selections{}
	s.Report = nil
	s.Exports = nil
	s.AuthState = ""
	s.AuthVerifier = ""
	s.AuthURL = ""
}

// RecordExport inserts or replaces the export with the same id, newest first.
func (s *Session) RecordExport(res *model.ExportResult) {
	for i, e := range s.Exports {
		if e.ID == res.ID {
			s.Exports[i] = res
			return
		}
	}
	s.Exports = append([]*model.ExportResult{res}, s.Exports...)
}
