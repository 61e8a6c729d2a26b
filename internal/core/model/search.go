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

// Package model defines the data structures of the dashboard: the option
// values offered by the selectors, the Search Analytics query and its
// tabular report, and the records written by the export pipeline.
package model

import "slices"

// DisplayMode is the output format picked in the sidebar.
type DisplayMode string

const (
	DisplayTable DisplayMode = "Table"
	DisplayChart DisplayMode = "Chart"
)

// DisplayModes lists the modes in selector order; the first is the default.
var DisplayModes = []DisplayMode{DisplayTable, DisplayChart}

// ParseDisplayMode returns the mode named by s and whether it is known.
func ParseDisplayMode(s string) (DisplayMode, bool) {
	for _, m := range DisplayModes {
		if string(m) == s {
			return m, true
		}
	}
	return DisplayTable, false
}

// SearchType is the Search Analytics "type" filter.
type SearchType string

const (
	SearchTypeWeb        SearchType = "web"
	SearchTypeImage      SearchType = "image"
	SearchTypeVideo      SearchType = "video"
	SearchTypeNews       SearchType = "news"
	SearchTypeDiscover   SearchType = "discover"
	SearchTypeGoogleNews SearchType = "googleNews"
)

// SearchTypes lists the search types in selector order.
var SearchTypes = []SearchType{
	SearchTypeWeb,
	SearchTypeImage,
	SearchTypeVideo,
	SearchTypeNews,
	SearchTypeDiscover,
	SearchTypeGoogleNews,
}

// ParseSearchType returns the search type named by s and whether it is known.
func ParseSearchType(s string) (SearchType, bool) {
	for _, t := range SearchTypes {
		if string(t) == s {
			return t, true
		}
	}
	return SearchTypeWeb, false
}

// Dimension is a Search Analytics grouping key.
type Dimension string

const (
	DimensionPage    Dimension = "page"
	DimensionQuery   Dimension = "query"
	DimensionCountry Dimension = "country"
	DimensionDate    Dimension = "date"
	DimensionDevice  Dimension = "device"
)

// Dimensions lists every dimension in selector order.
var Dimensions = []Dimension{
	DimensionPage,
	DimensionQuery,
	DimensionCountry,
	DimensionDate,
	DimensionDevice,
}

// DimensionsFor returns the dimensions the API accepts for the search type.
// Discover and Google News traffic carries no query.
func DimensionsFor(t SearchType) []Dimension {
	if t == SearchTypeDiscover || t == SearchTypeGoogleNews {
		out := make([]Dimension, 0, len(Dimensions)-1)
		for _, d := range Dimensions {
			if d != DimensionQuery {
				out = append(out, d)
			}
		}
		return out
	}
	return slices.Clone(Dimensions)
}

// FilterDimensions keeps the known dimensions of in that are valid for the
// search type, dropping duplicates and preserving order.
func FilterDimensions(t SearchType, in []string) []Dimension {
	allowed := DimensionsFor(t)
	out := make([]Dimension, 0, len(in))
	for _, s := range in {
		d := Dimension(s)
		if slices.Contains(allowed, d) && !slices.Contains(out, d) {
			out = append(out, d)
		}
	}
	return out
}

// DateRange is one of the preset ranges of the date selector.
type DateRange string

const (
	DateRangeLast7Days    DateRange = "Last 7 Days"
	DateRangeLast30Days   DateRange = "Last 30 Days"
	DateRangeLast3Months  DateRange = "Last 3 Months"
	DateRangeLast6Months  DateRange = "Last 6 Months"
	DateRangeLast12Months DateRange = "Last 12 Months"
	DateRangeLast16Months DateRange = "Last 16 Months"
	DateRangeCustom       DateRange = "Custom Range"
)

// DateRanges lists the ranges in selector order.
var DateRanges = []DateRange{
	DateRangeLast7Days,
	DateRangeLast30Days,
	DateRangeLast3Months,
	DateRangeLast6Months,
	DateRangeLast12Months,
	DateRangeLast16Months,
	DateRangeCustom,
}

// rangeDays is the look-back of each preset range.
var rangeDays = map[DateRange]int{
	DateRangeLast7Days:    7,
	DateRangeLast30Days:   30,
	DateRangeLast3Months:  90,
	DateRangeLast6Months:  180,
	DateRangeLast12Months: 365,
	DateRangeLast16Months: 480,
}

// Days returns the look-back of a preset range; false for Custom Range and
// unknown values.
func (r DateRange) Days() (int, bool) {
	d, ok := rangeDays[r]
	return d, ok
}

// ParseDateRange returns the range named by s and whether it is known.
func ParseDateRange(s string) (DateRange, bool) {
	for _, r := range DateRanges {
		if string(r) == s {
			return r, true
		}
	}
	return DateRangeLast7Days, false
}
