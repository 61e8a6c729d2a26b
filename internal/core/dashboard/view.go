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

package dashboard

import (
	"slices"
	"time"

	"github.com/jaycherian/gcp-go-search-console-dashboard/internal/cloud"
	"github.com/jaycherian/gcp-go-search-console-dashboard/internal/core/model"
)

// View is everything the page template renders for one request. Nil
// sections are not shown.
type View struct {
	Page    cloud.Page
	MaxRows int

	Mode  model.DisplayMode
	Modes []model.DisplayMode

	SignIn  *SignIn
	Account *model.Account

	Selectors *Selectors
	// FetchButton is shown in table mode.
	FetchButton bool
	Table       *Table
	Chart       *Chart
	Insights    *model.Insights

	ExportEnabled   bool
	InsightsEnabled bool
	Exports         []*model.ExportResult

	Notices []string
}

// SignIn is the prompt shown to signed out users.
type SignIn struct {
	URL string
}

// Selectors holds the option lists and current values of the form.
type Selectors struct {
	Properties          []model.Property
	Property            string
	SearchTypes         []model.SearchType
	SearchType          model.SearchType
	DateRanges          []model.DateRange
	DateRange           model.DateRange
	CustomStart         time.Time
	CustomEnd           time.Time
	StartDate           time.Time // Resolved range; zero when invalid.
	EndDate             time.Time
	AvailableDimensions []model.Dimension
	Dimensions          []model.Dimension
}

// Selected reports whether d is one of the chosen dimensions.
func (s *Selectors) Selected(d model.Dimension) bool {
	return slices.Contains(s.Dimensions, d)
}

// Table is the preview of a report.
type Table struct {
	Columns   []string
	Rows      [][]string
	Totals    []string
	Shown     int
	TotalRows int
	Truncated bool
}

// Chart is a date indexed line chart.
type Chart struct {
	Title string
	Data  *model.ChartData
}

func newTable(report *model.Report, previewRows int) *Table {
	preview := report.Preview(previewRows)
	out := &Table{
		Columns:   report.Columns(),
		Rows:      make([][]string, 0, preview.Len()),
		Shown:     preview.Len(),
		TotalRows: report.Len(),
		Truncated: report.Truncated,
	}
	for _, row := range preview.Rows {
		out.Rows = append(out.Rows, report.Cells(row))
	}
	totals := report.Totals()
	out.Totals = report.Cells(totals)
	for i := range report.Dimensions {
		out.Totals[i] = ""
	}
	if len(report.Dimensions) > 0 {
		out.Totals[0] = "Total"
	}
	return out
}
