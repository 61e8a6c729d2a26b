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

// Package services contains the clients of the external APIs used by the
// dashboard: the Google authorization flow, the Search Console API, Gemini
// insights and the export pipeline entry points.
package services

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/oauth2"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
	"google.golang.org/api/searchconsole/v1"

	"github.com/jaycherian/gcp-go-search-console-dashboard/internal/cloud"
	"github.com/jaycherian/gcp-go-search-console-dashboard/internal/core/model"
)

// GoogleSearchConsole reads account, property and Search Analytics data with
// the signed in user's token. All calls share one rate limited transport.
type GoogleSearchConsole struct {
	OAuth            *oauth2.Config    // Used to refresh expired access tokens.
	Transport        http.RoundTripper // Base transport below the OAuth transport.
	Endpoint         string            // Search Console API endpoint override.
	UserInfoEndpoint string            // OAuth2 API endpoint override.
	RowLimit         int               // Rows per page.
	MaxRows          int               // Rows per report; 0 means no cap.
	DataState        string
	Timeout          time.Duration // Per call deadline; 0 means none.
}

// NewGoogleSearchConsole configures the client from the search_console config
// section.
func NewGoogleSearchConsole(oauthConfig *oauth2.Config, config cloud.SearchConsole) *GoogleSearchConsole {
	return &GoogleSearchConsole{
		OAuth:            oauthConfig,
		Transport:        cloud.NewQuotaAwareTransport(http.DefaultTransport, config.RequestsPerSecond, config.Burst),
		Endpoint:         config.Endpoint,
		UserInfoEndpoint: config.UserInfoEndpoint,
		RowLimit:         config.RowLimit,
		MaxRows:          config.MaxRows,
		DataState:        config.DataState,
		Timeout:          time.Duration(config.TimeoutInSeconds) * time.Second,
	}
}

func (s *GoogleSearchConsole) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.Timeout)
}

// observedTokenSource hands refreshed tokens to the observer of the context.
type observedTokenSource struct {
	mu      sync.Mutex
	src     oauth2.TokenSource
	last    string
	observe func(*oauth2.Token)
}

func (o *observedTokenSource) Token() (*oauth2.Token, error) {
	tok, err := o.src.Token()
	if err != nil {
		return nil, err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if tok.AccessToken != o.last {
		o.last = tok.AccessToken
		o.observe(tok)
	}
	return tok, nil
}

// httpClient returns a client authorising requests with tok and refreshing
// it through the OAuth config when it expires. Refreshed tokens are passed to
// cloud.TokenObserver(ctx).
func (s *GoogleSearchConsole) httpClient(ctx context.Context, tok *oauth2.Token) *http.Client {
	base := &http.Client{Transport: s.Transport}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	src := s.OAuth.TokenSource(ctx, tok)
	if observe := cloud.TokenObserver(ctx); observe != nil {
		src = &observedTokenSource{src: src, last: tok.AccessToken, observe: observe}
	}
	return oauth2.NewClient(ctx, src)
}

func (s *GoogleSearchConsole) searchConsole(ctx context.Context, tok *oauth2.Token) (*searchconsole.Service, error) {
	opts := []option.ClientOption{option.WithHTTPClient(s.httpClient(ctx, tok))}
	if s.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(s.Endpoint))
	}
	svc, err := searchconsole.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create search console service: %w", err)
	}
	return svc, nil
}

// Account returns the Google identity of the token.
func (s *GoogleSearchConsole) Account(ctx context.Context, tok *oauth2.Token) (*model.Account, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	opts := []option.ClientOption{option.WithHTTPClient(s.httpClient(ctx, tok))}
	if s.UserInfoEndpoint != "" {
		opts = append(opts, option.WithEndpoint(s.UserInfoEndpoint))
	}
	svc, err := oauth2api.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create oauth2 service: %w", err)
	}
	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get user info: %w", err)
	}
	return &model.Account{ID: info.Id, Email: info.Email, Name: info.Name, Picture: info.Picture}, nil
}

// ListProperties returns the properties of the account sorted by site URL.
func (s *GoogleSearchConsole) ListProperties(ctx context.Context, tok *oauth2.Token) ([]model.Property, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	svc, err := s.searchConsole(ctx, tok)
	if err != nil {
		return nil, err
	}
	resp, err := svc.Sites.List().Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list sites: %w", err)
	}
	out := make([]model.Property, 0, len(resp.SiteEntry))
	for _, site := range resp.SiteEntry {
		out = append(out, model.Property{SiteURL: site.SiteUrl, PermissionLevel: site.PermissionLevel})
	}
	slices.SortFunc(out, func(a, b model.Property) int {
		return strings.Compare(a.SiteURL, b.SiteURL)
	})
	return out, nil
}

// FetchReport runs the Search Analytics query, paging with startRow until a
// short page is returned or MaxRows rows were read. A report without rows is
// returned as nil.
func (s *GoogleSearchConsole) FetchReport(ctx context.Context, tok *oauth2.Token, q model.ReportQuery) (*model.Report, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report query: %w", err)
	}

	ctx, span := otel.Tracer("search-console").Start(ctx, "fetch-report")
	defer span.End()
	span.SetAttributes(
		attribute.String("property", q.Property),
		attribute.String("search_type", string(q.SearchType)),
		attribute.StringSlice("dimensions", q.DimensionNames()),
	)

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	svc, err := s.searchConsole(ctx, tok)
	if err != nil {
		return nil, err
	}

	report := &model.Report{
		Query:      q,
		Dimensions: slices.Clone(q.Dimensions),
		FetchedAt:  time.Now().UTC(),
	}
	rowLimit := s.RowLimit
	if rowLimit <= 0 {
		rowLimit = 25000
	}

	for start := 0; ; {
		limit := rowLimit
		if s.MaxRows > 0 && s.MaxRows-start < limit {
			limit = s.MaxRows - start
		}
		req := &searchconsole.SearchAnalyticsQueryRequest{
			StartDate:  q.StartDate.Format(model.DateLayout),
			EndDate:    q.EndDate.Format(model.DateLayout),
			Dimensions: q.DimensionNames(),
			Type:       string(q.SearchType),
			DataState:  s.DataState,
			RowLimit:   int64(limit),
			StartRow:   int64(start),
		}
		resp, err := svc.Searchanalytics.Query(q.Property, req).Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("failed to query search analytics for %s at row %d: %w", q.Property, start, err)
		}
		for _, row := range resp.Rows {
			report.Rows = append(report.Rows, model.ReportRow{
				Keys:        row.Keys,
				Clicks:      row.Clicks,
				Impressions: row.Impressions,
				CTR:         row.Ctr,
				Position:    row.Position,
			})
		}
		start += len(resp.Rows)
		if len(resp.Rows) < limit {
			break
		}
		if s.MaxRows > 0 && start >= s.MaxRows {
			report.Truncated = true
			break
		}
	}

	span.SetAttributes(attribute.Int("rows", report.Len()))
	if report.Empty() {
		return nil, nil
	}
	return report, nil
}
