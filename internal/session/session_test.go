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

package session_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/jaycherian/gcp-go-search-console-dashboard/internal/core/model"
	"github.com/jaycherian/gcp-go-search-console-dashboard/internal/session"
)

func TestSessionInitOnce(t *testing.T) {
	sess := session.New("sid", time.Now())
	defaults := session.Defaults{
		SearchType: model.SearchTypeWeb,
		DateRange:  model.DateRangeLast7Days,
		Dimensions: []model.Dimension{model.DimensionPage},
	}

	assert.True(t, sess.Init(defaults))
	sess.Selections.Dimensions[0] = model.DimensionQuery
	assert.Equal(t, model.DimensionPage, defaults.Dimensions[0])

	sess.Selections.SearchType = model.SearchTypeImage
	assert.False(t, sess.Init(defaults))
	assert.Equal(t, model.SearchTypeImage, sess.Selections.SearchType)
}

func TestSessionSignOut(t *testing.T) {
	sess := session.New("sid", time.Now())
	sess.AuthState = "state"
	sess.SetCredentials(&oauth2.Token{AccessToken: "a"})
	assert.Empty(t, sess.AuthState)
	assert.True(t, sess.HasCredentials())

	sess.Account = &model.Account{Email: "a@example.com"}
	sess.Init(session.Defaults{SearchType: model.SearchTypeWeb})
	sess.Report = &model.Report{Rows: []model.ReportRow{{Clicks: 1}}}
	sess.RecordExport(&model.ExportResult{ID: "e"})

	sess.SignOut()
	assert.False(t, sess.HasCredentials())
	assert.Nil(t, sess.Account)
	assert.Nil(t, sess.Report)
	assert.Empty(t, sess.Exports)
	assert.False(t, sess.Initialized)
	assert.Equal(t, model.DisplayTable, sess.DisplayMode)
}

func TestSessionRecordExport(t *testing.T) {
	sess := session.New("sid", time.Now())
	sess.RecordExport(&model.ExportResult{ID: "a", Status: model.ExportPending})
	sess.RecordExport(&model.ExportResult{ID: "b", Status: model.ExportPending})
	sess.RecordExport(&model.ExportResult{ID: "a", Status: model.ExportCompleted})

	require.Len(t, sess.Exports, 2)
	assert.Equal(t, "b", sess.Exports[0].ID)
	assert.Equal(t, model.ExportCompleted, sess.Exports[1].Status)
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := session.NewMemoryStore(time.Hour)
	r := gin.New()
	r.Use(session.Middleware(store, session.CookieOptions{Name: "gsc", MaxAge: time.Hour}))
	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, session.FromContext(c).ID)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, w.Code)
	id := w.Body.String()
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "gsc", cookies[0].Name)
	assert.Equal(t, id, cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookies[0].SameSite)
	assert.Equal(t, 3600, cookies[0].MaxAge)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "gsc", Value: id})
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, id, w.Body.String())
	assert.Equal(t, 1, store.Len())

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "gsc", Value: "expired-or-forged"})
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.NotEqual(t, "expired-or-forged", w.Body.String())
	assert.Equal(t, 2, store.Len())
}

func TestFromContextWithoutMiddleware(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Nil(t, session.FromContext(c))
}

func TestSaveCredentials(t *testing.T) {
	store := session.NewMemoryStore(time.Hour)
	sess := store.Create()
	refreshed := &oauth2.Token{AccessToken: "refreshed"}

	require.NoError(t, session.SaveCredentials(store, sess.ID, refreshed))
	assert.Nil(t, sess.Credentials)

	sess.SetCredentials(&oauth2.Token{AccessToken: "stale"})
	require.NoError(t, session.SaveCredentials(store, sess.ID, refreshed))
	assert.Same(t, refreshed, sess.Credentials)

	assert.ErrorIs(t, session.SaveCredentials(store, "gone", refreshed), session.ErrNotFound)
}

func TestRenewAndDiscard(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := session.NewMemoryStore(time.Hour)
	r := gin.New()
	r.Use(session.Middleware(store, session.CookieOptions{Name: "gsc", MaxAge: time.Hour}))
	r.GET("/renew", func(c *gin.Context) {
		session.Renew(c)
		c.String(http.StatusOK, session.FromContext(c).ID)
	})
	r.GET("/discard", func(c *gin.Context) {
		session.Discard(c)
		c.Status(http.StatusNoContent)
	})

	old := store.Create()
	oldID := old.ID
	old.SetCredentials(&oauth2.Token{AccessToken: "access"})

	req := httptest.NewRequest(http.MethodGet, "/renew", nil)
	req.AddCookie(&http.Cookie{Name: "gsc", Value: old.ID})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	renewed := w.Body.String()

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, renewed, cookies[0].Value)
	_, ok := store.Get(renewed)
	assert.True(t, ok)
	assert.NotEqual(t, oldID, renewed)
	_, ok = store.Get(oldID)
	assert.False(t, ok)
	assert.Equal(t, 1, store.Len())
	assert.Equal(t, renewed, old.ID)
	assert.True(t, old.HasCredentials())

	req = httptest.NewRequest(http.MethodGet, "/discard", nil)
	req.AddCookie(&http.Cookie{Name: "gsc", Value: renewed})
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	cookies = w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Empty(t, cookies[0].Value)
	assert.Less(t, cookies[0].MaxAge, 0)
	assert.Equal(t, 0, store.Len())
}

func TestRekeyDropsOldID(t *testing.T) {
	store := session.NewMemoryStore(time.Hour)
	sess := store.Create()
	oldID := sess.ID

	sess.Lock()
	store.Rekey(sess)
	sess.Unlock()

	assert.NotEqual(t, oldID, sess.ID)
	_, ok := store.Get(oldID)
	assert.False(t, ok)
	got, ok := store.Get(sess.ID)
	assert.True(t, ok)
	assert.Same(t, sess, got)
	assert.ErrorIs(t, session.RecordExport(store, oldID, &model.ExportResult{ID: "e"}), session.ErrNotFound)
}
