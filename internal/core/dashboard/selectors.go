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
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/jaycherian/gcp-go-search-console-dashboard/internal/core/model"
)

// Query parameters read by Render.
const (
	ParamMode        = "mode"
	ParamProperty    = "property"
	ParamSearchType  = "search_type"
	ParamDateRange   = "date_range"
	ParamStartDate   = "start_date"
	ParamEndDate     = "end_date"
	ParamDimensions  = "dimensions"
	ParamFetch       = "fetch"
	ParamInsights    = "insights"
	ParamCode        = "code"
	ParamState       = "state"
	ParamError       = "error"
	ParamSelectorsOn = "selectors" // Hidden field marking a submitted selector form.
)

var (
	ErrCustomRangeRequired = errors.New("custom range needs a start and an end date")
	ErrInvalidRange        = errors.New("end date is before start date")
)

// Request is one interaction with the dashboard, decoded from the URL.
type Request struct {
	Mode       string
	Code       string
	State      string
	AuthError  string
	Property   string
	SearchType string
	DateRange  string
	StartDate  string
	EndDate    string
	Dimensions []string
	// Submitted is set when the selector form was posted, so an empty
	// dimension list means "none" rather than "unchanged".
	Submitted bool
	Fetch     bool
	Insights  bool
}

// ParseRequest reads the dashboard query parameters.
func ParseRequest(values url.Values) Request {
	return Request{
		Mode:       values.Get(ParamMode),
		Code:       values.Get(ParamCode),
		State:      values.Get(ParamState),
		AuthError:  values.Get(ParamError),
		Property:   values.Get(ParamProperty),
		SearchType: values.Get(ParamSearchType),
		DateRange:  values.Get(ParamDateRange),
		StartDate:  values.Get(ParamStartDate),
		EndDate:    values.Get(ParamEndDate),
		Dimensions: values[ParamDimensions],
		Submitted:  values.Has(ParamSelectorsOn),
		Fetch:      flag(values.Get(ParamFetch)),
		Insights:   flag(values.Get(ParamInsights)),
	}
}

func flag(s string) bool {
	if s == "" {
		return false
	}
	b, err := strconv.ParseBool(s)
	return err != nil || b
}

// Today returns the calendar date of now in loc, as midnight UTC.
func Today(now time.Time, loc *time.Location) time.Time {
	if loc != nil {
		now = now.In(loc)
	}
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// CalcDateRange returns the inclusive start and end dates of the selection.
// Preset ranges end today and start the given number of days earlier. A
// custom range is returned as given once checked.
func CalcDateRange(selection model.DateRange, today time.Time, customStart time.Time, customEnd time.Time) (start time.Time, end time.Time, err error) {
	if days, ok := selection.Days(); ok {
		return today.AddDate(0, 0, -days), today, nil
	}
	if selection != model.DateRangeCustom {
		return time.Time{}, time.Time{}, fmt.Errorf("unknown date range %q", selection)
	}
	if customStart.IsZero() || customEnd.IsZero() {
		return time.Time{}, time.Time{}, ErrCustomRangeRequired
	}
	if customEnd.Before(customStart) {
		return time.Time{}, time.Time{}, ErrInvalidRange
	}
	return customStart, customEnd, nil
}

// ParseDate parses a YYYY-MM-DD value; empty input yields the zero time.
func ParseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(model.DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}
