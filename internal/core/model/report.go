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

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"
	"sort"
	"strconv"
	"time"
)

// Metric column names, in report order.
const (
	MetricClicks      = "clicks"
	MetricImpressions = "impressions"
	MetricCTR         = "ctr"
	MetricPosition    = "position"
)

// Metrics lists the metric columns in report order.
var Metrics = []string{MetricClicks, MetricImpressions, MetricCTR, MetricPosition}

// ErrNoDateColumn is returned when a date indexed view is requested from a
// report that was not grouped by date.
var ErrNoDateColumn = errors.New("report has no date column")

// ReportRow is one row of a Search Analytics response. Keys holds the
// dimension values in the order of Report.Dimensions.
type ReportRow struct {
	Keys        []string `json:"keys"`
	Clicks      float64  `json:"clicks"`
	Impressions float64  `json:"impressions"`
	CTR         float64  `json:"ctr"`
	Position    float64  `json:"position"`
}

// Metric returns the named metric of the row.
func (r ReportRow) Metric(name string) (float64, bool) {
	switch name {
	case MetricClicks:
		return r.Clicks, true
	case MetricImpressions:
		return r.Impressions, true
	case MetricCTR:
		return r.CTR, true
	case MetricPosition:
		return r.Position, true
	}
	return 0, false
}

// Report is the tabular result of a ReportQuery: one column per dimension
// followed by the metric columns.
type Report struct {
	Query      ReportQuery `json:"query"`
	Dimensions []Dimension `json:"dimensions"`
	Rows       []ReportRow `json:"rows"`
	FetchedAt  time.Time   `json:"fetched_at"`
	Truncated  bool        `json:"truncated"` // The row cap was hit before the API ran out of rows.
}

// Len returns the number of rows.
func (r *Report) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Rows)
}

// Empty reports whether the report is nil or has no rows.
func (r *Report) Empty() bool {
	return r.Len() == 0
}

// Columns returns the header of the table.
func (r *Report) Columns() []string {
	out := make([]string, 0, len(r.Dimensions)+len(Metrics))
	for _, d := range r.Dimensions {
		out = append(out, string(d))
	}
	return append(out, Metrics...)
}

// Cells renders a row as strings aligned with Columns.
func (r *Report) Cells(row ReportRow) []string {
	out := make([]string, 0, len(r.Dimensions)+len(Metrics))
	for i := range r.Dimensions {
		if i < len(row.Keys) {
			out = append(out, row.Keys[i])
		} else {
			out = append(out, "")
		}
	}
	return append(out,
		strconv.FormatFloat(row.Clicks, 'f', -1, 64),
		strconv.FormatFloat(row.Impressions, 'f', -1, 64),
		strconv.FormatFloat(row.CTR, 'f', -1, 64),
		strconv.FormatFloat(row.Position, 'f', -1, 64),
	)
}

// Preview returns a copy holding at most n rows.
func (r *Report) Preview(n int) *Report {
	if r == nil {
		return nil
	}
	out := *r
	if n >= 0 && n < len(r.Rows) {
		out.Rows = r.Rows[:n]
	}
	return &out
}

// WriteCSV writes the header and every row.
func (r *Report) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(r.Columns()); err != nil {
		return err
	}
	for _, row := range r.Rows {
		if err := cw.Write(r.Cells(row)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Totals sums clicks and impressions and derives ctr and the impression
// weighted average position.
func (r *Report) Totals() ReportRow {
	return aggregate(r.Rows)
}

func aggregate(rows []ReportRow) ReportRow {
	var out ReportRow
	var weighted float64
	for _, row := range rows {
		out.Clicks += row.Clicks
		out.Impressions += row.Impressions
		weighted += row.Position * row.Impressions
	}
	if out.Impressions > 0 {
		out.CTR = out.Clicks / out.Impressions
		out.Position = weighted / out.Impressions
	}
	return out
}

// Series is one line of a chart.
type Series struct {
	Name   string    `json:"name"`
	Values []float64 `json:"values"`
}

// ChartData is a set of series sharing the same index.
type ChartData struct {
	Index  []string `json:"index"`
	Series []Series `json:"series"`
}

// ByDate re-indexes the report on its date column. Rows sharing a date, which
// happens when other dimensions are requested too, are aggregated like
// Totals. The index is sorted ascending. Only the named metrics are kept; an
// empty list keeps all of them.
func (r *Report) ByDate(metrics ...string) (*ChartData, error) {
	col := slices.Index(r.Dimensions, DimensionDate)
	if col < 0 {
		return nil, ErrNoDateColumn
	}
	if len(metrics) == 0 {
		metrics = Metrics
	}
	for _, m := range metrics {
		if !slices.Contains(Metrics, m) {
			return nil, fmt.Errorf("unknown metric %q", m)
		}
	}

	groups := make(map[string][]ReportRow)
	for _, row := range r.Rows {
		if col >= len(row.Keys) {
			continue
		}
		groups[row.Keys[col]] = append(groups[row.Keys[col]], row)
	}
	index := make([]string, 0, len(groups))
	for k := range groups {
		index = append(index, k)
	}
	sort.Strings(index)

	out := &ChartData{Index: index, Series: make([]Series, len(metrics))}
	for i, m := range metrics {
		out.Series[i] = Series{Name: m, Values: make([]float64, len(index))}
	}
	for j, date := range index {
		sum := aggregate(groups[date])
		for i, m := range metrics {
			out.Series[i].Values[j], _ = sum.Metric(m)
		}
	}
	return out, nil
}
