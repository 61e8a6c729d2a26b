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

package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"

	"github.com/jaycherian/gcp-go-search-console-dashboard/internal/cloud"
	"github.com/jaycherian/gcp-go-search-console-dashboard/internal/core/dashboard"
	"github.com/jaycherian/gcp-go-search-console-dashboard/internal/core/model"
	"github.com/jaycherian/gcp-go-search-console-dashboard/internal/session"
)

// ExportRequester queues report exports; see services.ExportService.
type ExportRequester interface {
	Request(ctx context.Context, req *model.ExportRequest) (*model.ExportResult, error)
}

// ExportHistory reads archived exports; see services.ExportService.
type ExportHistory interface {
	History(ctx context.Context, account string, limit int) ([]*model.ExportRecord, error)
}

// Handler holds what the routes need. Exports, History and Signer are nil
// when the export pipeline is disabled.
type Handler struct {
	Dashboard    *dashboard.Dashboard
	Exports      ExportRequester
	History      ExportHistory
	Signer       cloud.URLSigner
	HistoryLimit int
}

// Dashboard registers the page routes on r, which must carry the session
// middleware.
func Dashboard(r *gin.RouterGroup, h *Handler) {
	r.GET("/", h.Page)
	r.GET("/report.csv", h.ReportCSV)
	r.GET("/signout", h.SignOut)
	r.POST("/export", h.Export)
	r.GET("/exports", h.ExportList)
}

// Health answers liveness checks.
func Health(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

func renderError(c *gin.Context, status int, message string) {
	c.HTML(status, "error.html", gin.H{"Title": http.StatusText(status), "Message": message})
}

// Page runs the dashboard for the request.
func (h *Handler) Page(c *gin.Context) {
	sess := session.FromContext(c)
	req := dashboard.ParseRequest(c.Request.URL.Query())
	signedIn := sess.HasCredentials()

	view, err := h.Dashboard.Render(c.Request.Context(), sess, req)
	if !signedIn && sess.HasCredentials() {
		session.Renew(c)
	}
	if err != nil {
		slog.ErrorContext(c.Request.Context(), "failed to render dashboard", "session", sess.ID, "error", err)
		if errors.Is(err, dashboard.ErrStateMismatch) {
			renderError(c, http.StatusBadRequest, "The sign-in response does not belong to this session. Please sign in again.")
			return
		}
		renderError(c, http.StatusInternalServerError, "Google Search Console could not be reached. Please try again.")
		return
	}
	c.HTML(http.StatusOK, "dashboard.html", view)
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// ReportFileName is the download name of a report.
func ReportFileName(q model.ReportQuery) string {
	return fmt.Sprintf("%s_%s_%s.csv",
		unsafeFileChars.ReplaceAllString(q.Property, "_"),
		q.StartDate.Format(model.DateLayout),
		q.EndDate.Format(model.DateLayout))
}

// ReportCSV downloads the last fetched report of the session.
func (h *Handler) ReportCSV(c *gin.Context) {
	sess := session.FromContext(c)
	if !sess.HasCredentials() || sess.Report.Empty() {
		c.String(http.StatusNotFound, "no report has been fetched")
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", ReportFileName(sess.Report.Query)))
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Status(http.StatusOK)
	if err := sess.Report.WriteCSV(c.Writer); err != nil {
		slog.ErrorContext(c.Request.Context(), "failed to write csv", "error", err)
	}
}

// SignOut clears the credentials and everything fetched with them, and drops
// the session.
func (h *Handler) SignOut(c *gin.Context) {
	session.FromContext(c).SignOut()
	session.Discard(c)
	c.Redirect(http.StatusFound, "/")
}

// Export queues a full export of the last fetched report.
func (h *Handler) Export(c *gin.Context) {
	if h.Exports == nil {
		c.String(http.StatusNotFound, "export is disabled")
		return
	}
	sess := session.FromContext(c)
	if !sess.HasCredentials() {
		c.Redirect(http.StatusSeeOther, "/")
		return
	}
	if sess.Report.Empty() {
		renderError(c, http.StatusBadRequest, "Fetch a report before exporting it.")
		return
	}

	account := ""
	if sess.Account != nil {
		account = sess.Account.Email
	}
	req := model.NewExportRequest(sess.ID, account, sess.Report.Query)
	res, err := h.Exports.Request(c.Request.Context(), req)
	if err != nil {
		slog.ErrorContext(c.Request.Context(), "failed to request export", "error", err)
		renderError(c, http.StatusInternalServerError, "The export could not be queued. Please try again.")
		return
	}
	sess.RecordExport(res)
	c.Redirect(http.StatusSeeOther, "/")
}

type exportList struct {
	Session []*model.ExportResult `json:"session"`
	History []*historyEntry       `json:"history,omitempty"`
}

type historyEntry struct {
	*model.ExportRecord
	DownloadURL string `json:"download_url,omitempty"`
}

// ExportList returns the exports of the session and, when available, the
// archived exports of the account with fresh download links.
func (h *Handler) ExportList(c *gin.Context) {
	sess := session.FromContext(c)
	if !sess.HasCredentials() {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not signed in"})
		return
	}
	out := exportList{Session: sess.Exports}
	if out.Session == nil {
		out.Session = []*model.ExportResult{}
	}

	if h.History != nil && sess.Account != nil {
		records, err := h.History.History(c.Request.Context(), sess.Account.Email, h.HistoryLimit)
		if err != nil {
			slog.ErrorContext(c.Request.Context(), "failed to read export history", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "export history is unavailable"})
			return
		}
		for _, r := range records {
			entry := &historyEntry{ExportRecord: r}
			if obj, err := cloud.ParseGCSURI(r.ObjectURI); err == nil && h.Signer != nil {
				if url, err := h.Signer.SignedURL(c.Request.Context(), obj); err == nil {
					entry.DownloadURL = url
				}
			}
			out.History = append(out.History, entry)
		}
	}
	c.JSON(http.StatusOK, out)
}
