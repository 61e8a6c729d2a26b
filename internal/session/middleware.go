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
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// ContextKey is the gin context key of the current *Session.
const ContextKey = "session"

const storeContextKey = "session.store"

type binding struct {
	store Store
	opts  CookieOptions
}

// CookieOptions configure the session cookie.
type CookieOptions struct {
	Name   string
	MaxAge time.Duration
	Secure bool
}

// Middleware finds the caller's session from the cookie, creating one when
// it is missing or expired, and holds its lock until the request completes.
// Requests of one session therefore run one at a time.
func Middleware(store Store, opts CookieOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, _ := c.Cookie(opts.Name)
		sess, ok := store.Get(id)
		if !ok {
			sess = store.Create()
		}

		setCookie(c, opts, sess.ID, int(opts.MaxAge.Seconds()))

		sess.Lock()
		defer sess.Unlock()
		c.Set(ContextKey, sess)
		c.Set(storeContextKey, &binding{store: store, opts: opts})
		c.Next()
	}
}

// FromContext returns the session stored by Middleware, or nil.
func FromContext(c *gin.Context) *Session {
	v, ok := c.Get(ContextKey)
	if !ok {
		return nil
	}
	sess, _ := v.(*Session)
	return sess
}

// setCookie replaces any session cookie already set on the response.
func setCookie(c *gin.Context, opts CookieOptions, value string, maxAge int) {
	header := c.Writer.Header()
	var kept []string
	for _, v := range header.Values("Set-Cookie") {
		if !strings.HasPrefix(v, opts.Name+"=") {
			kept = append(kept, v)
		}
	}
	header.Del("Set-Cookie")
	for _, v := range kept {
		header.Add("Set-Cookie", v)
	}
	// Lax keeps the cookie on the redirect back from the consent page.
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(opts.Name, value, maxAge, "/", "", opts.Secure, true)
}

// Renew gives the request's session a new id and cookie, keeping its
// contents. Handlers call it when the session signs in so that an id known
// before sign-in stops working. It must run before the response is written.
func Renew(c *gin.Context) {
	sess := FromContext(c)
	v, _ := c.Get(storeContextKey)
	b, ok := v.(*binding)
	if sess == nil || !ok {
		return
	}
	b.store.Rekey(sess)
	setCookie(c, b.opts, sess.ID, int(b.opts.MaxAge.Seconds()))
}

// Discard removes the request's session from the store and expires its
// cookie; the next request starts a new session.
func Discard(c *gin.Context) {
	sess := FromContext(c)
	v, _ := c.Get(storeContextKey)
	b, ok := v.(*binding)
	if sess == nil || !ok {
		return
	}
	b.store.Delete(sess.ID)
	setCookie(c, b.opts, "", -1)
}
