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

// Insights is the structured summary Gemini produces for a report.
type Insights struct {
	Summary       string   `json:"summary"`
	Highlights    []string `json:"highlights"`
	Opportunities []string `json:"opportunities"`
}

// GetExampleInsights is the few-shot example embedded in the insights prompt
// so the model answers with the same JSON shape.
func GetExampleInsights() *Insights {
	return &Insights{
		Summary: "Clicks grew 12% week over week while impressions stayed flat, " +
			"so the gain comes from a better click-through rate rather than more visibility.",
		Highlights: []string{
			"/pricing gained 340 clicks, mostly from the query \"acme pricing\".",
			"Average position for branded queries improved from 2.4 to 1.6.",
		},
		Opportunities: []string{
			"\"acme alternatives\" has 8,200 impressions at position 11; a comparison page could reach page one.",
			"Mobile CTR is half of desktop CTR on /blog pages; review the mobile titles.",
		},
	}
}
