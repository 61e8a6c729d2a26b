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
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// DateLayout is the date format of the Search Analytics API.
const DateLayout = "2006-01-02"

// ReportQuery describes one Search Analytics report.
type ReportQuery struct {
	Property   string      `json:"property"`
	SearchType SearchType  `json:"search_type"`
	StartDate  time.Time   `json:"start_date"`
	EndDate    time.Time   `json:"end_date"`
	Dimensions []Dimension `json:"dimensions"`
}

// Validate checks the query before it is sent.
func (q ReportQuery) Validate() error {
	var errs []error
	if q.Property == "" {
		errs = append(errs, errors.New("property is required"))
	}
	if _, ok := ParseSearchType(string(q.SearchType)); !ok {
		errs = append(errs, fmt.Errorf("unknown search type %q", q.SearchType))
	}
	if q.StartDate.IsZero() || q.EndDate.IsZero() {
		errs = append(errs, errors.New("start and end date are required"))
	} else if q.EndDate.Before(q.StartDate) {
		errs = append(errs, fmt.Errorf("end date %s is before start date %s",
			q.EndDate.Format(DateLayout), q.StartDate.Format(DateLayout)))
	}
	for _, d := range q.Dimensions {
		if !slices.Contains(DimensionsFor(q.SearchType), d) {
			errs = append(errs, fmt.Errorf("dimension %q is not available for search type %q", d, q.SearchType))
		}
	}
	return errors.Join(errs...)
}

// DimensionNames returns the dimensions as API strings.
func (q ReportQuery) DimensionNames() []string {
	out := make([]string, len(q.Dimensions))
	for i, d := range q.Dimensions {
		out[i] = string(d)
	}
	return out
}

// HasDimension reports whether d is requested.
func (q ReportQuery) HasDimension(d Dimension) bool {
	return slices.Contains(q.Dimensions, d)
}

// WithDimension returns a copy of the query that also groups by d.
func (q ReportQuery) WithDimension(d Dimension) ReportQuery {
	if q.HasDimension(d) {
		return q
	}
	q.Dimensions = append(slices.Clone(q.Dimensions), d)
	return q
}

// Equal compares two queries by value.
func (q ReportQuery) Equal(o ReportQuery) bool {
	return q.Property == o.Property &&
		q.SearchType == o.SearchType &&
		q.StartDate.Equal(o.StartDate) &&
		q.EndDate.Equal(o.EndDate) &&
		slices.Equal(q.Dimensions, o.Dimensions)
}

// String is a short human readable description used in logs and file names.
func (q ReportQuery) String() string {
	return fmt.Sprintf("%s %s %s..%s [%s]", q.Property, q.SearchType,
		q.StartDate.Format(DateLayout), q.EndDate.Format(DateLayout),
		strings.Join(q.DimensionNames(), ","))
}
