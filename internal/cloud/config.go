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

// Package cloud defines the data structures for application configuration,
// loaded from TOML files, and the Google Cloud clients built from it.
//
// Structs:
//   - Page: Chrome of the dashboard page (title, heading, links).
//   - OAuth: Client configuration for the Google authorization code flow.
//   - SearchConsole: Paging, limits and defaults for Search Analytics queries.
//   - Session: Cookie and expiry settings of the server side session store.
//   - Export: Settings for the asynchronous report export pipeline.
//   - BigQueryDataSource: Dataset and table that archive exported reports.
//   - TopicSubscription: Configuration for a single Pub/Sub subscription.
//   - Insights / VertexAiLLMModel / PromptTemplates: Gemini report insights.
//   - Config: The top-level struct that aggregates all of the above.
package cloud

import (
	"time"

	"google.golang.org/genai"
)

// DefaultSafetySettings relaxes the Gemini safety filters. Report insights only
// ever contain search queries and URLs taken from the user's own property.
var DefaultSafetySettings = []*genai.SafetySetting{
	{
		Category:  genai.HarmCategoryDangerousContent,
		Threshold: genai.HarmBlockThresholdBlockOnlyHigh,
	},
	{
		Category:  genai.HarmCategoryHarassment,
		Threshold: genai.HarmBlockThresholdBlockOnlyHigh,
	},
	{
		Category:  genai.HarmCategoryHateSpeech,
		Threshold: genai.HarmBlockThresholdBlockOnlyHigh,
	},
	{
		Category:  genai.HarmCategorySexuallyExplicit,
		Threshold: genai.HarmBlockThresholdBlockOnlyHigh,
	},
}

// Link is an anchor rendered under the page heading.
type Link struct {
	Text string `toml:"text"`
	URL  string `toml:"url"`
}

// Page holds the static chrome of the dashboard.
type Page struct {
	Title   string `toml:"title"`   // The browser title of the page.
	Heading string `toml:"heading"` // The H1 heading.
	Layout  string `toml:"layout"`  // "wide" or "centered".
	Links   []Link `toml:"links"`   // Author links shown below the heading.
}

// OAuth holds the Google OAuth client configuration. When ClientSecretsFile is
// set it takes precedence over the inline client id and secret.
type OAuth struct {
	ClientSecretsFile string   `toml:"client_secrets_file"` // Path to a client_secret.json downloaded from the Cloud console.
	ClientID          string   `toml:"client_id"`
	ClientSecret      string   `toml:"client_secret"`
	RedirectURL       string   `toml:"redirect_url"` // Must match an authorized redirect URI of the client.
	Scopes            []string `toml:"scopes"`
}

// SearchConsole configures the Search Analytics API access.
type SearchConsole struct {
	Endpoint           string   `toml:"endpoint"`            // Optional API endpoint override.
	UserInfoEndpoint   string   `toml:"userinfo_endpoint"`   // Optional userinfo endpoint override.
	RowLimit           int      `toml:"row_limit"`           // Rows requested per page (the API caps this at 25,000).
	MaxRows            int      `toml:"max_rows"`            // Upper bound on rows fetched for one report.
	PreviewRows        int      `toml:"preview_rows"`        // Rows shown in the table preview.
	RequestsPerSecond  float64  `toml:"requests_per_second"` // Client side rate limit for API calls.
	Burst              int      `toml:"burst"`
	DataState          string   `toml:"data_state"` // "final" or "all".
	DefaultSearchType  string   `toml:"default_search_type"`
	DefaultDateRange   string   `toml:"default_date_range"`
	DefaultDimensions  []string `toml:"default_dimensions"`
	TimeoutInSeconds   int      `toml:"timeout_in_seconds"`
	ChartTimeZone      string   `toml:"chart_time_zone"` // IANA zone used to compute "today".
	ChartMetrics       []string `toml:"chart_metrics"`   // Metrics plotted in chart mode.
	RequireDateInChart bool     `toml:"require_date_in_chart"`
}

// Session configures the server side session store.
type Session struct {
	CookieName   string `toml:"cookie_name"`
	TTLInMinutes int    `toml:"ttl_in_minutes"`
	SecureCookie bool   `toml:"secure_cookie"`
}

// TTL returns the session lifetime.
func (s Session) TTL() time.Duration {
	return time.Duration(s.TTLInMinutes) * time.Minute
}

// Export configures the asynchronous export pipeline.
type Export struct {
	Enabled          bool   `toml:"enabled"`
	Topic            string `toml:"topic"`              // Topic export requests are published to.
	Bucket           string `toml:"bucket"`             // Bucket receiving the CSV objects.
	ObjectPrefix     string `toml:"object_prefix"`      // Prefix of the exported object names.
	SignedURLMinutes int    `toml:"signed_url_minutes"` // Lifetime of the download links.
}

// BigQueryDataSource holds the dataset and tables used for archived reports.
type BigQueryDataSource struct {
	DatasetName string `toml:"dataset"`      // The name of the BigQuery dataset.
	ReportTable string `toml:"report_table"` // Rows of every exported report.
	ExportTable string `toml:"export_table"` // One row per completed export.
}

// TopicSubscription is the configuration of a single Pub/Sub subscription.
type TopicSubscription struct {
	Name             string `toml:"name"`               // The name of the Pub/Sub subscription.
	DeadLetterTopic  string `toml:"dead_letter_topic"`  // The name of the dead-letter topic for the subscription.
	TimeoutInSeconds int    `toml:"timeout_in_seconds"` // The timeout for the subscription in seconds.
}

// Insights switches the Gemini report summary on and selects its model.
type Insights struct {
	Enabled   bool   `toml:"enabled"`
	Model     string `toml:"model"`      // Key into Config.AgentModels.
	MaxRows   int    `toml:"max_rows"`   // Rows of the report included in the prompt.
	MaxLength int    `toml:"max_length"` // Upper bound on the rendered summary length.
}

// PromptTemplates holds the text/template prompts sent to Gemini.
type PromptTemplates struct {
	InsightsPrompt string `toml:"insights"`
}

// VertexAiLLMModel is the configuration of a Vertex AI LLM.
type VertexAiLLMModel struct {
	Model              string  `toml:"model"`
	SystemInstructions string  `toml:"system_instructions"`
	Temperature        float32 `toml:"temperature"`
	TopP               float32 `toml:"top_p"`
	TopK               float32 `toml:"top_k"`
	MaxTokens          int32   `toml:"max_tokens"`
	OutputFormat       string  `toml:"output_format"`
	RateLimit          int     `toml:"rate_limit"` // Requests per second.
}

// Config is the top-level configuration.
type Config struct {
	Application struct {
		Name                      string `toml:"name"`
		GoogleProjectId           string `toml:"google_project_id"`
		GoogleLocation            string `toml:"location"`
		ListenAddress             string `toml:"listen_address"`
		TelemetryEnabled          bool   `toml:"telemetry_enabled"`
		LogFile                   string `toml:"log_file"`
		SignerServiceAccountEmail string `toml:"signer_service_account_email"`
	} `toml:"application"`
	Page               Page                         `toml:"page"`
	OAuth              OAuth                        `toml:"oauth"`
	SearchConsole      SearchConsole                `toml:"search_console"`
	Session            Session                      `toml:"session"`
	Export             Export                       `toml:"export"`
	BigQueryDataSource BigQueryDataSource           `toml:"big_query_data_source"`
	TopicSubscriptions map[string]TopicSubscription `toml:"topic_subscriptions"` // Keyed by a logical name (e.g., "ExportTopic").
	Insights           Insights                     `toml:"insights"`
	PromptTemplates    PromptTemplates              `toml:"prompt_templates"`
	AgentModels        map[string]VertexAiLLMModel  `toml:"agent_models"` // Keyed by a logical name (e.g., "insights-flash").
}

// NewConfig returns a Config carrying the defaults that the TOML files may
// override.
func NewConfig() *Config {
	c := &Config{
		TopicSubscriptions: make(map[string]TopicSubscription),
		AgentModels:        make(map[string]VertexAiLLMModel),
	}
	c.Application.Name = "gsc-dashboard"
	c.Application.ListenAddress = ":8080"
	c.Page = Page{
		Title:   "Simple Google Search Console Data",
		Heading: "Simple Google Search Console Data",
		Layout:  "wide",
	}
	c.SearchConsole = SearchConsole{
		RowLimit:           25000,
		MaxRows:            250000,
		PreviewRows:        100,
		RequestsPerSecond:  5,
		Burst:              5,
		DataState:          "all",
		DefaultSearchType:  "web",
		DefaultDateRange:   "Last 7 Days",
		DefaultDimensions:  []string{"page", "query"},
		TimeoutInSeconds:   120,
		ChartTimeZone:      "UTC",
		ChartMetrics:       []string{"clicks", "impressions"},
		RequireDateInChart: true,
	}
	c.Session = Session{CookieName: "gsc_session", TTLInMinutes: 60}
	c.Export.SignedURLMinutes = 15
	c.Export.ObjectPrefix = "exports/"
	c.Insights.MaxRows = 50
	c.Insights.MaxLength = 4000
	return c
}
