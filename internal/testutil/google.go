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

package test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"golang.org/x/oauth2"

	"github.com/jaycherian/gcp-go-search-console-dashboard/internal/cloud"
)

// AnalyticsCall is one Search Analytics request received by FakeGoogle.
type AnalyticsCall struct {
	Site       string
	Type       string
	StartDate  string
	EndDate    string
	Dimensions []string
	RowLimit   int
	StartRow   int
}

// FakeGoogle serves the token, userinfo, sites and Search Analytics
// endpoints from one httptest server.
type FakeGoogle struct {
	Server *httptest.Server

	Email     string
	Sites     []string
	TotalRows int // Rows available for every query.

	mu        sync.Mutex
	calls     []AnalyticsCall
	verifiers []string
	refreshes int
}

// NewFakeGoogle starts the fake; it is closed when the test ends.
func NewFakeGoogle(t *testing.T) *FakeGoogle {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &FakeGoogle{
		Email:     "analyst@example.com",
		Sites:     []string{"sc-domain:example.com", "https://www.example.com/"},
		TotalRows: 3,
	}
	r := gin.New()
	// Site URLs arrive percent encoded, slashes included.
	r.UseRawPath = true
	r.POST("/token", f.token)
	r.GET("/oauth2/v2/userinfo", f.userinfo)
	r.GET("/webmasters/v3/sites", f.sites)
	r.POST("/webmasters/v3/sites/:site/searchAnalytics/query", f.query)

	f.Server = httptest.NewServer(r)
	t.Cleanup(f.Server.Close)
	return f
}

// Endpoint is the API root to configure as endpoint override.
func (f *FakeGoogle) Endpoint() string {
	return f.Server.URL + "/"
}

// OAuthConfig returns a client config exchanging codes with the fake.
func (f *FakeGoogle) OAuthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "http://localhost:8080/",
		Scopes:       cloud.DefaultScopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   f.Server.URL + "/auth",
			TokenURL:  f.Server.URL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// SearchConsoleConfig returns the search_console section pointing at the
// fake.
func (f *FakeGoogle) SearchConsoleConfig(rowLimit int, maxRows int) cloud.SearchConsole {
	return cloud.SearchConsole{
		Endpoint:          f.Endpoint(),
		UserInfoEndpoint:  f.Endpoint(),
		RowLimit:          rowLimit,
		MaxRows:           maxRows,
		RequestsPerSecond: 100,
		Burst:             100,
		DataState:         "all",
		TimeoutInSeconds:  10,
	}
}

// Calls returns the Search Analytics requests received so far.
func (f *FakeGoogle) Calls() []AnalyticsCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]AnalyticsCall(nil), f.calls...)
}

// Verifiers returns the PKCE verifiers sent with token exchanges.
func (f *FakeGoogle) Verifiers() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.verifiers...)
}

func bearer(c *gin.Context) bool {
	if !strings.HasPrefix(c.GetHeader("Authorization"), "Bearer ") {
		c.JSON(http.StatusUnauthorized, gin.H{"error": gin.H{"code": 401, "message": "missing token"}})
		return false
	}
	return true
}

// Refreshes returns how many refresh token grants were served.
func (f *FakeGoogle) Refreshes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshes
}

func (f *FakeGoogle) token(c *gin.Context) {
	if c.PostForm("grant_type") == "refresh_token" {
		f.refresh(c)
		return
	}
	code := c.PostForm("code")
	if code == "" || code == "bad-code" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_grant"})
		return
	}
	f.mu.Lock()
	f.verifiers = append(f.verifiers, c.PostForm("code_verifier"))
	f.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{
		"access_token":  "access-" + code,
		"refresh_token": "refresh-" + code,
		"token_type":    "Bearer",
		"expires_in":    3600,
	})
}

func (f *FakeGoogle) refresh(c *gin.Context) {
	rt := c.PostForm("refresh_token")
	if rt == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_grant"})
		return
	}
	f.mu.Lock()
	f.refreshes++
	n := f.refreshes
	f.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{
		"access_token": fmt.Sprintf("refreshed-%d", n),
		"token_type":   "Bearer",
		"expires_in":   3600,
	})
}

func (f *FakeGoogle) userinfo(c *gin.Context) {
	if !bearer(c) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": "1234", "email": f.Email, "name": "Search Analyst"})
}

func (f *FakeGoogle) sites(c *gin.Context) {
	if !bearer(c) {
		return
	}
	entries := make([]gin.H, 0, len(f.Sites))
	for _, s := range f.Sites {
		entries = append(entries, gin.H{"siteUrl": s, "permissionLevel": "siteOwner"})
	}
	c.JSON(http.StatusOK, gin.H{"siteEntry": entries})
}

func (f *FakeGoogle) query(c *gin.Context) {
	if !bearer(c) {
		return
	}
	var body struct {
		Type       string   `json:"type"`
		StartDate  string   `json:"startDate"`
		EndDate    string   `json:"endDate"`
		Dimensions []string `json:"dimensions"`
		RowLimit   int      `json:"rowLimit"`
		StartRow   int      `json:"startRow"`
	}
	if err := json.NewDecoder(c.Request.Body).Decode(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": 400, "message": err.Error()}})
		return
	}
	f.mu.Lock()
	f.calls = append(f.calls, AnalyticsCall{
		Site:       c.Param("site"),
		Type:       body.Type,
		StartDate:  body.StartDate,
		EndDate:    body.EndDate,
		Dimensions: body.Dimensions,
		RowLimit:   body.RowLimit,
		StartRow:   body.StartRow,
	})
	f.mu.Unlock()

	rows := make([]gin.H, 0)
	for i := body.StartRow; i < f.TotalRows && i < body.StartRow+body.RowLimit; i++ {
		keys := make([]string, len(body.Dimensions))
		for j, d := range body.Dimensions {
			if d == "date" {
				keys[j] = body.StartDate
			} else {
				keys[j] = fmt.Sprintf("%s-%d", d, i)
			}
		}
		rows = append(rows, gin.H{
			"keys":        keys,
			"clicks":      float64(i + 1),
			"impressions": float64(10 * (i + 1)),
			"ctr":         0.1,
			"position":    float64(i + 1),
		})
	}
	c.JSON(http.StatusOK, gin.H{"rows": rows, "responseAggregationType": "byPage"})
}
