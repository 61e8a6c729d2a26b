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

// Package dashboard runs the dashboard for one interaction. Every request
// re-runs the whole flow against the caller's session:
//
//  1. Read the display mode.
//  2. Start an authorization flow when none is pending.
//  3. Exchange an authorization code, once, when the session has no
//     credentials yet.
//  4. Without credentials, show the sign-in prompt and stop.
//  5. Initialise the session, resolve the account and list its properties.
//  6. Without properties, stop.
//  7. Apply the selectors and either show the table (after "Fetch data") or
//     fetch the report once and chart it by date.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/oauth2"

	"github.com/jaycherian/gcp-go-search-console-dashboard/internal/cloud"
	"github.com/jaycherian/gcp-go-search-console-dashboard/internal/core/cor"
	"github.com/jaycherian/gcp-go-search-console-dashboard/internal/core/model"
	"github.com/jaycherian/gcp-go-search-console-dashboard/internal/session"
)

// ErrStateMismatch is returned when the state of an authorization response
// does not belong to the session's pending flow.
var ErrStateMismatch = errors.New("authorization state does not match the session")

// Authenticator runs the OAuth authorization code flow.
type Authenticator interface {
	AuthCodeURL(state string, verifier string) string
	Exchange(ctx context.Context, code string, verifier string) (*oauth2.Token, error)
}

// SearchConsole reads data on behalf of the signed in user.
type SearchConsole interface {
	Account(ctx context.Context, tok *oauth2.Token) (*model.Account, error)
	ListProperties(ctx context.Context, tok *oauth2.Token) ([]model.Property, error)
	// FetchReport returns nil when the query matched no rows.
	FetchReport(ctx context.Context, tok *oauth2.Token, q model.ReportQuery) (*model.Report, error)
}

// Insights summarises a report.
type Insights interface {
	Summarize(ctx context.Context, report *model.Report) (*model.Insights, error)
}

// Options tune the rendering.
type Options struct {
	MaxRows            int
	PreviewRows        int
	Defaults           session.Defaults
	Location           *time.Location // Zone defining "today".
	ChartMetrics       []string
	RequireDateInChart bool
	ExportEnabled      bool
}

// OptionsFromConfig validates the search console section and turns it into
// Options.
func OptionsFromConfig(config *cloud.Config) (Options, error) {
	sc := config.SearchConsole
	searchType, ok := model.ParseSearchType(sc.DefaultSearchType)
	if !ok {
		return Options{}, fmt.Errorf("unknown default search type %q", sc.DefaultSearchType)
	}
	dateRange, ok := model.ParseDateRange(sc.DefaultDateRange)
	if !ok {
		return Options{}, fmt.Errorf("unknown default date range %q", sc.DefaultDateRange)
	}
	loc, err := time.LoadLocation(sc.ChartTimeZone)
	if err != nil {
		return Options{}, fmt.Errorf("invalid chart time zone: %w", err)
	}
	for _, m := range sc.ChartMetrics {
		if !slices.Contains(model.Metrics, m) {
			return Options{}, fmt.Errorf("unknown chart metric %q", m)
		}
	}
	return Options{
		MaxRows:     sc.MaxRows,
		PreviewRows: sc.PreviewRows,
		Defaults: session.Defaults{
			SearchType: searchType,
			DateRange:  dateRange,
			Dimensions: model.FilterDimensions(searchType, sc.DefaultDimensions),
		},
		Location:           loc,
		ChartMetrics:       slices.Clone(sc.ChartMetrics),
		RequireDateInChart: sc.RequireDateInChart,
		ExportEnabled:      config.Export.Enabled,
	}, nil
}

// Dashboard holds the collaborators of Render.
type Dashboard struct {
	Auth     Authenticator
	Console  SearchConsole
	Insights Insights // Nil when insights are disabled.
	Page     cloud.Page
	Options  Options

	Now         func() time.Time
	NewState    func() string
	NewVerifier func() string

	exchanges metric.Int64Counter
	fetches   metric.Int64Counter
}

// New returns a Dashboard using the wall clock and random flow values.
func New(auth Authenticator, console SearchConsole, page cloud.Page, options Options) *Dashboard {
	meter := otel.Meter(cor.MeterName)
	exchanges, _ := meter.Int64Counter("dashboard.oauth.exchange")
	fetches, _ := meter.Int64Counter("dashboard.report.fetch")
	return &Dashboard{
		Auth:        auth,
		Console:     console,
		Page:        page,
		Options:     options,
		Now:         time.Now,
		NewState:    uuid.NewString,
		NewVerifier: oauth2.GenerateVerifier,
		exchanges:   exchanges,
		fetches:     fetches,
	}
}

// newFlow starts a new authorization flow on the session.
func (d *Dashboard) newFlow(sess *session.Session) {
	sess.AuthState = d.NewState()
	sess.AuthVerifier = d.NewVerifier()
	sess.AuthURL = d.Auth.AuthCodeURL(sess.AuthState, sess.AuthVerifier)
}

func (d *Dashboard) count(ctx context.Context, c metric.Int64Counter) {
	if c != nil {
		c.Add(ctx, 1)
	}
}

// Render runs one interaction. The caller holds the session lock. Errors of
// the exchange, the account and property lookups and the report fetch are
// returned as is.
func (d *Dashboard) Render(ctx context.Context, sess *session.Session, req Request) (*View, error) {
	view := &View{
		Page:            d.Page,
		MaxRows:         d.Options.MaxRows,
		Modes:           model.DisplayModes,
		ExportEnabled:   d.Options.ExportEnabled,
		InsightsEnabled: d.Insights != nil,
	}

	if mode, ok := model.ParseDisplayMode(req.Mode); ok {
		sess.DisplayMode = mode
	}
	view.Mode = sess.DisplayMode

	if !sess.HasCredentials() && sess.AuthState == "" {
		d.newFlow(sess)
	}

	if req.Code != "" && !sess.HasCredentials() {
		if req.State != sess.AuthState {
			d.newFlow(sess)
			return nil, ErrStateMismatch
		}
		d.count(ctx, d.exchanges)
		tok, err := d.Auth.Exchange(ctx, req.Code, sess.AuthVerifier)
		if err != nil {
			d.newFlow(sess)
			return nil, err
		}
		sess.SetCredentials(tok)
		slog.InfoContext(ctx, "signed in", "session", sess.ID)
	}

	if !sess.HasCredentials() {
		if req.AuthError != "" {
			view.Notices = append(view.Notices, fmt.Sprintf("Sign-in was not completed: %s", req.AuthError))
		}
		view.SignIn = &SignIn{URL: sess.AuthURL}
		return view, nil
	}

	// Refreshed access tokens replace the stored credentials.
	ctx = cloud.WithTokenObserver(ctx, func(tok *oauth2.Token) {
		sess.Credentials = tok
	})

	sess.Init(d.Options.Defaults)

	if sess.Account == nil {
		account, err := d.Console.Account(ctx, sess.Credentials)
		if err != nil {
			return nil, err
		}
		sess.Account = account
	}
	view.Account = sess.Account

	properties, err := d.Console.ListProperties(ctx, sess.Credentials)
	if err != nil {
		return nil, err
	}
	if len(properties) == 0 {
		return view, nil
	}

	selectors := d.applySelections(sess, req, properties, view)
	view.Selectors = selectors
	if selectors.StartDate.IsZero() {
		return view, nil
	}

	query := model.ReportQuery{
		Property:   selectors.Property,
		SearchType: selectors.SearchType,
		StartDate:  selectors.StartDate,
		EndDate:    selectors.EndDate,
		Dimensions: slices.Clone(selectors.Dimensions),
	}

	switch sess.DisplayMode {
	case model.DisplayChart:
		if err := d.renderChart(ctx, sess, query, view); err != nil {
			return nil, err
		}
	default:
		if err := d.renderTable(ctx, sess, req, query, view); err != nil {
			return nil, err
		}
	}

	shown := view.Table != nil || view.Chart != nil
	if req.Insights && d.Insights != nil && shown && !sess.Report.Empty() {
		insights, err := d.Insights.Summarize(ctx, sess.Report)
		if err != nil {
			slog.WarnContext(ctx, "insights failed", "error", err)
			view.Notices = append(view.Notices, "Insights are not available right now.")
		} else {
			view.Insights = insights
		}
	}

	view.Exports = sess.Exports
	return view, nil
}

// applySelections merges the submitted selector values into the session and
// returns the resulting selectors. Unknown values keep the session's value;
// a property missing from the list falls back to the first property.
func (d *Dashboard) applySelections(sess *session.Session, req Request, properties []model.Property, view *View) *Selectors {
	sel := &sess.Selections

	if _, ok := model.FindProperty(properties, req.Property); ok {
		sel.Property = req.Property
	}
	if _, ok := model.FindProperty(properties, sel.Property); !ok {
		sel.Property = properties[0].SiteURL
	}
	if t, ok := model.ParseSearchType(req.SearchType); ok {
		sel.SearchType = t
	}
	if r, ok := model.ParseDateRange(req.DateRange); ok {
		sel.DateRange = r
	}

	if req.Submitted || len(req.Dimensions) > 0 {
		sel.Dimensions = model.FilterDimensions(sel.SearchType, req.Dimensions)
	} else {
		sel.Dimensions = model.FilterDimensions(sel.SearchType, dimensionNames(sel.Dimensions))
	}

	today := Today(d.Now(), d.Options.Location)
	if start, err := ParseDate(req.StartDate); err != nil {
		view.Notices = append(view.Notices, err.Error())
	} else if !start.IsZero() {
		sel.CustomStart = start
	}
	if end, err := ParseDate(req.EndDate); err != nil {
		view.Notices = append(view.Notices, err.Error())
	} else if !end.IsZero() {
		sel.CustomEnd = end
	}
	if sel.CustomStart.IsZero() {
		sel.CustomStart = today.AddDate(0, 0, -7)
	}
	if sel.CustomEnd.IsZero() {
		sel.CustomEnd = today
	}

	out := &Selectors{
		Properties:          properties,
		Property:            sel.Property,
		SearchTypes:         model.SearchTypes,
		SearchType:          sel.SearchType,
		DateRanges:          model.DateRanges,
		DateRange:           sel.DateRange,
		AvailableDimensions: model.DimensionsFor(sel.SearchType),
		Dimensions:          sel.Dimensions,
		CustomStart:         sel.CustomStart,
		CustomEnd:           sel.CustomEnd,
	}
	start, end, err := CalcDateRange(sel.DateRange, today, sel.CustomStart, sel.CustomEnd)
	if err != nil {
		// Left zero so that Render does not query.
		view.Notices = append(view.Notices, err.Error())
		return out
	}
	out.StartDate, out.EndDate = start, end
	return out
}

func dimensionNames(dims []model.Dimension) []string {
	out := make([]string, len(dims))
	for i, d := range dims {
		out[i] = string(d)
	}
	return out
}

// fetch is the single point where reports are requested.
func (d *Dashboard) fetch(ctx context.Context, sess *session.Session, q model.ReportQuery) (*model.Report, error) {
	d.count(ctx, d.fetches)
	report, err := d.Console.FetchReport(ctx, sess.Credentials, q)
	if err != nil {
		return nil, err
	}
	sess.Report = report
	return report, nil
}

// renderTable shows the report after "Fetch data" was pressed. Without a
// press, a report fetched earlier for the same query stays on screen.
func (d *Dashboard) renderTable(ctx context.Context, sess *session.Session, req Request, q model.ReportQuery, view *View) error {
	view.FetchButton = true
	if req.Fetch {
		if _, err := d.fetch(ctx, sess, q); err != nil {
			return err
		}
		if sess.Report.Empty() {
			view.Notices = append(view.Notices, "No data found for the selected filters.")
			return nil
		}
	}
	if !sess.Report.Empty() && sess.Report.Query.Equal(q) {
		view.Table = newTable(sess.Report, d.Options.PreviewRows)
	}
	return nil
}

// renderChart fetches the report once and charts it by date.
func (d *Dashboard) renderChart(ctx context.Context, sess *session.Session, q model.ReportQuery, view *View) error {
	if d.Options.RequireDateInChart {
		q = q.WithDimension(model.DimensionDate)
	}
	report, err := d.fetch(ctx, sess, q)
	if err != nil {
		return err
	}
	if report == nil {
		return nil
	}
	data, err := report.ByDate(d.Options.ChartMetrics...)
	if err != nil {
		view.Notices = append(view.Notices, "Add the date dimension to chart the report.")
		return nil
	}
	view.Chart = &Chart{Title: q.String(), Data: data}
	return nil
}
