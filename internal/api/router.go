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

// Package api contains the HTTP routes of the dashboard server.
package api

import (
	"embed"
	"html/template"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/jaycherian/gcp-go-search-console-dashboard/internal/core/model"
	"github.com/jaycherian/gcp-go-search-console-dashboard/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

var templateFuncs = template.FuncMap{
	"comma": comma,
	"date": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Format(model.DateLayout)
	},
}

// comma formats n with thousands separators.
func comma(n int) string {
	s := strconv.Itoa(n)
	neg := n < 0
	if neg {
		s = s[1:]
	}
	out := make([]byte, 0, len(s)+len(s)/3)
	for i := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, s[i])
	}
	if neg {
		return "-" + string(out)
	}
	return string(out)
}

// Templates parses the embedded page templates.
func Templates() *template.Template {
	return template.Must(template.New("").Funcs(templateFuncs).ParseFS(templateFS, "templates/*.html"))
}

// NewRouter returns the gin engine serving the dashboard.
func NewRouter(serviceName string, h *Handler, store session.Store, cookie session.CookieOptions) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(otelgin.Middleware(serviceName))
	r.Use(cors.Default())
	r.SetHTMLTemplate(Templates())

	r.GET("/healthz", Health)

	pages := r.Group("")
	pages.Use(session.Middleware(store, cookie))
	Dashboard(pages, h)
	return r
}
