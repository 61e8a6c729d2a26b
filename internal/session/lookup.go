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
	"errors"

	"golang.org/x/oauth2"

	"github.com/jaycherian/gcp-go-search-console-dashboard/internal/core/model"
)

// ErrNoCredentials is returned when a signed out session is asked for its
// token.
var ErrNoCredentials = errors.New("session has no credentials")

// Credentials returns a copy of the session's token. Background work uses it
// to act on behalf of the user while the session lives.
func Credentials(store Store, id string) (*oauth2.Token, error) {
	var tok *oauth2.Token
	err := store.Update(id, func(s *Session) {
		if s.Credentials != nil {
			c := *s.Credentials
			tok = &c
		}
	})
	if err != nil {
		return nil, err
	}
	if tok == nil {
		return nil, ErrNoCredentials
	}
	return tok, nil
}

// RecordExport stores the export result on the session.
func RecordExport(store Store, id string, res *model.ExportResult) error {
	return store.Update(id, func(s *Session) {
		s.RecordExport(res)
	})
}

// SaveCredentials replaces the credentials of a signed in session, typically
// with a refreshed access token. A signed out session stays signed out.
func SaveCredentials(store Store, id string, tok *oauth2.Token) error {
	return store.Update(id, func(s *Session) {
		if s.Credentials != nil {
			s.Credentials = tok
		}
	})
}
