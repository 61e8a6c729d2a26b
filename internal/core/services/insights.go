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

package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"text/template"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"google.golang.org/genai"

	"github.com/jaycherian/gcp-go-search-console-dashboard/internal/cloud"
	"github.com/jaycherian/gcp-go-search-console-dashboard/internal/core/cor"
	"github.com/jaycherian/gcp-go-search-console-dashboard/internal/core/model"
)

// DefaultInsightsPrompt is used when no insights prompt is configured.
const DefaultInsightsPrompt = `You are an SEO analyst. Review the Google Search Console report below
for the property {{ .Query.Property }} ({{ .Query.SearchType }} search,
{{ .StartDate }} to {{ .EndDate }}), grouped by {{ .Dimensions }}.

Totals: {{ .Totals.Clicks }} clicks, {{ .Totals.Impressions }} impressions,
CTR {{ printf "%.4f" .Totals.CTR }}, average position {{ printf "%.1f" .Totals.Position }}.

The first {{ .Shown }} of {{ .Total }} rows as CSV:
{{ .CSV }}
Answer with JSON only, in exactly this shape:
{{ .Example }}
`

// ErrNoInsights is returned when the model produced no text.
var ErrNoInsights = errors.New("model returned no insights")

// InsightsService asks Gemini for a short analysis of a report.
type InsightsService struct {
	Model     *cloud.QuotaAwareGenerativeAIModel
	Prompt    *template.Template
	MaxRows   int // Rows of the report included in the prompt.
	MaxLength int // Summary is cut to this many bytes.

	inputTokens  metric.Int64Counter
	outputTokens metric.Int64Counter
	retries      metric.Int64Counter
}

// NewInsightsService parses the prompt template, falling back to
// DefaultInsightsPrompt when it is empty.
func NewInsightsService(agent *cloud.QuotaAwareGenerativeAIModel, prompt string, maxRows int, maxLength int) (*InsightsService, error) {
	if strings.TrimSpace(prompt) == "" {
		prompt = DefaultInsightsPrompt
	}
	tmpl, err := template.New("insights").Parse(prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse insights prompt: %w", err)
	}

	meter := otel.Meter(cor.MeterName)
	in, _ := meter.Int64Counter("insights.token.input")
	out, _ := meter.Int64Counter("insights.token.output")
	retries, _ := meter.Int64Counter("insights.retry")

	return &InsightsService{
		Model:        agent,
		Prompt:       tmpl,
		MaxRows:      maxRows,
		MaxLength:    maxLength,
		inputTokens:  in,
		outputTokens: out,
		retries:      retries,
	}, nil
}

type promptData struct {
	Query      model.ReportQuery
	StartDate  string
	EndDate    string
	Dimensions string
	Totals     model.ReportRow
	Shown      int
	Total      int
	CSV        string
	Example    string
}

// BuildPrompt renders the prompt for the report.
func (s *InsightsService) BuildPrompt(report *model.Report) (string, error) {
	preview := report.Preview(s.MaxRows)
	var csvBuf bytes.Buffer
	if err := preview.WriteCSV(&csvBuf); err != nil {
		return "", fmt.Errorf("failed to encode report: %w", err)
	}
	example, err := json.MarshalIndent(model.GetExampleInsights(), "", "  ")
	if err != nil {
		return "", err
	}

	data := promptData{
		Query:      report.Query,
		StartDate:  report.Query.StartDate.Format(model.DateLayout),
		EndDate:    report.Query.EndDate.Format(model.DateLayout),
		Dimensions: strings.Join(report.Query.DimensionNames(), ", "),
		Totals:     report.Totals(),
		Shown:      preview.Len(),
		Total:      report.Len(),
		CSV:        csvBuf.String(),
		Example:    string(example),
	}
	var out bytes.Buffer
	if err := s.Prompt.Execute(&out, data); err != nil {
		return "", fmt.Errorf("failed to render insights prompt: %w", err)
	}
	return out.String(), nil
}

// Summarize returns Gemini's analysis of the report.
func (s *InsightsService) Summarize(ctx context.Context, report *model.Report) (*model.Insights, error) {
	if report.Empty() {
		return nil, nil
	}
	prompt, err := s.BuildPrompt(report)
	if err != nil {
		return nil, err
	}
	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
	text, err := cloud.GenerateTextResponse(ctx, s.inputTokens, s.outputTokens, s.retries, 0, s.Model, contents)
	if err != nil {
		return nil, fmt.Errorf("failed to generate insights: %w", err)
	}
	return ParseInsights(text, s.MaxLength)
}

// ParseInsights decodes the model answer. Answers that are not the expected
// JSON are kept as a plain summary.
func ParseInsights(text string, maxLength int) (*model.Insights, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrNoInsights
	}

	out := &model.Insights{}
	if err := json.Unmarshal([]byte(text), out); err != nil {
		slog.Warn("insights are not valid json, keeping raw text", "error", err)
		out = &model.Insights{Summary: text}
	}
	if maxLength > 0 && len(out.Summary) > maxLength {
		out.Summary = strings.ToValidUTF8(out.Summary[:maxLength], "") + "..."
	}
	return out, nil
}
