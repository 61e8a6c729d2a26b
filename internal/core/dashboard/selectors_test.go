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
	"net/url"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaycherian/gcp-go-search-console-dashboard/internal/core/model"
)

func date(s string) time.Time {
	t, err := time.Parse(model.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestParseRequest(t *testing.T) {
	values, err := url.ParseQuery("mode=Chart&property=sc-domain%3Aexample.com&dimensions=page&dimensions=date" +
		"&selectors=1&fetch=1&insights=on&code=abc&state=xyz&date_range=Custom+Range&start_date=2024-10-01")
	require.NoError(t, err)

	req := ParseRequest(values)
	assert.Equal(t, Request{
		Mode:       "Chart",
		Code:       "abc",
		State:      "xyz",
		Property:   "sc-domain:example.com",
		DateRange:  "Custom Range",
		StartDate:  "2024-10-01",
		Dimensions: []string{"page", "date"},
		Submitted:  true,
		Fetch:      true,
		Insights:   true,
	}, req)

	req = ParseRequest(url.Values{"fetch": {"false"}})
	assert.False(t, req.Fetch)
	assert.False(t, req.Submitted)
}

func TestToday(t *testing.T) {
	now := time.Date(2024, 10, 8, 2, 30, 0, 0, time.UTC)
	la, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)

	assert.Equal(t, date("2024-10-08"), Today(now, time.UTC))
	assert.Equal(t, date("2024-10-07"), Today(now, la))
	assert.Equal(t, date("2024-10-08"), Today(now, nil))
}

func TestCalcDateRange(t *testing.T) {
	today := date("2024-10-08")
	tests := []struct {
		name      string
		selection model.DateRange
		start     string
		end       string
		wantStart string
		wantEnd   string
		wantErr   error
	}{
		{name: "last 7 days", selection: model.DateRangeLast7Days, wantStart: "2024-10-01", wantEnd: "2024-10-08"},
		{name: "last 30 days", selection: model.DateRangeLast30Days, wantStart: "2024-09-08", wantEnd: "2024-10-08"},
		{name: "last 3 months", selection: model.DateRangeLast3Months, wantStart: "2024-07-10", wantEnd: "2024-10-08"},
		{name: "last 16 months", selection: model.DateRangeLast16Months, wantStart: "2023-06-16", wantEnd: "2024-10-08"},
		{name: "custom", selection: model.DateRangeCustom, start: "2024-09-01", end: "2024-09-30", wantStart: "2024-09-01", wantEnd: "2024-09-30"},
		{name: "custom single day", selection: model.DateRangeCustom, start: "2024-09-01", end: "2024-09-01", wantStart: "2024-09-01", wantEnd: "2024-09-01"},
		{name: "custom missing end", selection: model.DateRangeCustom, start: "2024-09-01", wantErr: ErrCustomRangeRequired},
		{name: "custom reversed", selection: model.DateRangeCustom, start: "2024-09-30", end: "2024-09-01", wantErr: ErrInvalidRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var customStart, customEnd time.Time
			if tt.start != "" {
				customStart = date(tt.start)
			}
			if tt.end != "" {
				customEnd = date(tt.end)
			}
			start, end, err := CalcDateRange(tt.selection, today, customStart, customEnd)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStart, start.Format(model.DateLayout))
			assert.Equal(t, tt.wantEnd, end.Format(model.DateLayout))
		})
	}

	_, _, err := CalcDateRange("Last Decade", today, time.Time{}, time.Time{})
	assert.Error(t, err)
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("")
	require.NoError(t, err)
	assert.True(t, d.IsZero())

	d, err = ParseDate("2024-02-29")
	require.NoError(t, err)
	assert.Equal(t, date("2024-02-29"), d)

	_, err = ParseDate("29/02/2024")
	assert.Error(t, err)
}
