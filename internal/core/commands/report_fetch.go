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

package commands

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/oauth2"

	"github.com/jaycherian/gcp-go-search-console-dashboard/internal/cloud"
	"github.com/jaycherian/gcp-go-search-console-dashboard/internal/core/cor"
	"github.com/jaycherian/gcp-go-search-console-dashboard/internal/core/model"
)

// ReportFetcher runs a Search Analytics query; see services.GoogleSearchConsole.
type ReportFetcher interface {
	FetchReport(ctx context.Context, tok *oauth2.Token, q model.ReportQuery) (*model.Report, error)
}

// TokenLookup returns the credentials of a session. Its errors are
// permanent: the session expired or signed out and will not sign in again
// under the same id.
type TokenLookup func(sessionID string) (*oauth2.Token, error)

// TokenSaver stores a refreshed token on a session.
type TokenSaver func(sessionID string, tok *oauth2.Token) error

// ReportFetch fetches the complete report of an export request.
type ReportFetch struct {
	cor.BaseCommand
	fetcher ReportFetcher
	tokens  TokenLookup
	save    TokenSaver
}

func NewReportFetch(name string, fetcher ReportFetcher, tokens TokenLookup) *ReportFetch {
	return &ReportFetch{BaseCommand: *cor.NewBaseCommand(name), fetcher: fetcher, tokens: tokens}
}

// WithTokenSaver makes the command write refreshed tokens back to the
// requesting session. A nil saver is ignored.
func (c *ReportFetch) WithTokenSaver(save TokenSaver) *ReportFetch {
	c.save = save
	return c
}

func (c *ReportFetch) Execute(context cor.Context) {
	req, ok := context.Get(c.GetInputParam()).(*model.ExportRequest)
	if !ok {
		c.Fail(context, fmt.Errorf("unexpected input %T", context.Get(c.GetInputParam())))
		return
	}

	tok, err := c.tokens(req.SessionID)
	if err != nil {
		c.Fail(context, cor.Permanent(fmt.Errorf("no credentials for export %s: %w", req.ID, err)))
		return
	}

	ctx := context.GetContext()
	if c.save != nil {
		ctx = cloud.WithTokenObserver(ctx, func(refreshed *oauth2.Token) {
			if err := c.save(req.SessionID, refreshed); err != nil {
				slog.WarnContext(ctx, "failed to save refreshed token", "export_id", req.ID, "error", err)
			}
		})
	}
	report, err := c.fetcher.FetchReport(ctx, tok, req.Query)
	if err != nil {
		c.Fail(context, err)
		return
	}
	// An empty export still produces a CSV with a header row.
	if report == nil {
		report = &model.Report{
			Query:      req.Query,
			Dimensions: slices.Clone(req.Query.Dimensions),
			FetchedAt:  time.Now().UTC(),
		}
	}
	slog.InfoContext(context.GetContext(), "fetched export report",
		"export_id", req.ID, "rows", report.Len(), "truncated", report.Truncated)

	c.Succeed(context)
	context.Add(ParamReport, report)
	context.Add(c.GetOutputParam(), report)
}
