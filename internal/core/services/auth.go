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

package services

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"
)

// ErrEmptyCode is returned when an exchange is attempted without a code.
var ErrEmptyCode = errors.New("authorization code is empty")

// GoogleAuthenticator runs the authorization code flow with PKCE against the
// Google identity provider.
type GoogleAuthenticator struct {
	Config *oauth2.Config
}

func NewGoogleAuthenticator(config *oauth2.Config) *GoogleAuthenticator {
	return &GoogleAuthenticator{Config: config}
}

// AuthCodeURL returns the consent page URL. Offline access with a forced
// consent prompt makes Google return a refresh token on every sign-in.
func (a *GoogleAuthenticator) AuthCodeURL(state string, verifier string) string {
	return a.Config.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.S256ChallengeOption(verifier),
		oauth2.SetAuthURLParam("prompt", "consent"),
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
	)
}

// Exchange trades the authorization code for a token.
func (a *GoogleAuthenticator) Exchange(ctx context.Context, code string, verifier string) (*oauth2.Token, error) {
	if code == "" {
		return nil, ErrEmptyCode
	}
	tok, err := a.Config.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	return tok, nil
}
