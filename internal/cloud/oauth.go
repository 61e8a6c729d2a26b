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

package cloud

import (
	"context"
	"errors"
	"fmt"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/searchconsole/v1"
)

// DefaultScopes are requested when the configuration does not list any.
var DefaultScopes = []string{
	searchconsole.WebmastersReadonlyScope,
	oauth2api.UserinfoEmailScope,
	oauth2api.OpenIDScope,
}

// ErrMissingOAuthClient is returned when neither a client secrets file nor an
// inline client id is configured.
var ErrMissingOAuthClient = errors.New("oauth client is not configured")

// NewOAuthConfig builds the authorization code flow configuration. A client
// secrets file, as downloaded from the Cloud console, wins over the inline
// client id and secret. The configured redirect URL always overrides the one
// found in the file.
func NewOAuthConfig(in OAuth) (*oauth2.Config, error) {
	scopes := in.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}

	var out *oauth2.Config
	switch {
	case in.ClientSecretsFile != "":
		raw, err := os.ReadFile(in.ClientSecretsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read client secrets %s: %w", in.ClientSecretsFile, err)
		}
		out, err = google.ConfigFromJSON(raw, scopes...)
		if err != nil {
			return nil, fmt.Errorf("failed to parse client secrets %s: %w", in.ClientSecretsFile, err)
		}
	case in.ClientID != "":
		out = &oauth2.Config{
			ClientID:     in.ClientID,
			ClientSecret: in.ClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       scopes,
		}
	default:
		return nil, ErrMissingOAuthClient
	}

	if in.RedirectURL != "" {
		out.RedirectURL = in.RedirectURL
	}
	return out, nil
}

type tokenObserverKey struct{}

// WithTokenObserver returns a context whose API clients call observe with
// every access token obtained by refreshing the one they were given.
func WithTokenObserver(ctx context.Context, observe func(*oauth2.Token)) context.Context {
	return context.WithValue(ctx, tokenObserverKey{}, observe)
}

// TokenObserver returns the observer set by WithTokenObserver, or nil.
func TokenObserver(ctx context.Context) func(*oauth2.Token) {
	observe, _ := ctx.Value(tokenObserverKey{}).(func(*oauth2.Token))
	return observe
}
