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

package model

import "strings"

// Account is the Google identity the credentials belong to.
type Account struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
}

// DisplayName prefers the profile name and falls back to the email.
func (a *Account) DisplayName() string {
	if a == nil {
		return ""
	}
	if a.Name != "" {
		return a.Name
	}
	return a.Email
}

// Property is a Search Console property (a verified site or domain).
type Property struct {
	SiteURL         string `json:"site_url"`
	PermissionLevel string `json:"permission_level"`
}

// IsDomain reports whether the property is a "sc-domain:" property.
func (p Property) IsDomain() bool {
	return strings.HasPrefix(p.SiteURL, "sc-domain:")
}

// Label is the text shown in the property selector.
func (p Property) Label() string {
	if p.IsDomain() {
		return strings.TrimPrefix(p.SiteURL, "sc-domain:") + " (domain)"
	}
	return p.SiteURL
}

// Verified reports whether the user can read data of the property. Properties
// awaiting verification are listed by the API but cannot be queried.
func (p Property) Verified() bool {
	return p.PermissionLevel != "" && p.PermissionLevel != "siteUnverifiedUser"
}

// FindProperty returns the property with the site URL, if listed.
func FindProperty(properties []Property, siteURL string) (Property, bool) {
	for _, p := range properties {
		if p.SiteURL == siteURL {
			return p, true
		}
	}
	return Property{}, false
}
