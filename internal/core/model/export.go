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
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"
)

// ExportStatus tracks an export through the pipeline.
type ExportStatus string

const (
	ExportPending   ExportStatus = "pending"
	ExportCompleted ExportStatus = "completed"
	ExportFailed    ExportStatus = "failed"
)

// ExportRequest is the Pub/Sub payload asking for a full report export. The
// credentials stay in the session store; only its id travels.
type ExportRequest struct {
	ID          string      `json:"id"`
	SessionID   string      `json:"session_id"`
	Account     string      `json:"account"`
	Query       ReportQuery `json:"query"`
	RequestedAt time.Time   `json:"requested_at"`
}

// NewExportRequest stamps a new request with a random id.
func NewExportRequest(sessionID string, account string, query ReportQuery) *ExportRequest {
	return &ExportRequest{
		ID:          uuid.NewString(),
		SessionID:   sessionID,
		Account:     account,
		Query:       query,
		RequestedAt: time.Now().UTC(),
	}
}

// ExportResult is what the session shows for an export.
type ExportResult struct {
	ID          string       `json:"id"`
	Status      ExportStatus `json:"status"`
	Query       ReportQuery  `json:"query"`
	Rows        int          `json:"rows"`
	ObjectURI   string       `json:"object_uri,omitempty"`
	DownloadURL string       `json:"download_url,omitempty"`
	Error       string       `json:"error,omitempty"`
	RequestedAt time.Time    `json:"requested_at"`
	CompletedAt time.Time    `json:"completed_at,omitempty"`
}

// ReportRecord is one archived report row in BigQuery.
type ReportRecord struct {
	ExportID    string    `bigquery:"export_id"`
	Account     string    `bigquery:"account"`
	Property    string    `bigquery:"property"`
	SearchType  string    `bigquery:"search_type"`
	StartDate   string    `bigquery:"start_date"`
	EndDate     string    `bigquery:"end_date"`
	Page        string    `bigquery:"page"`
	Query       string    `bigquery:"query"`
	Country     string    `bigquery:"country"`
	Date        string    `bigquery:"date"`
	Device      string    `bigquery:"device"`
	Clicks      float64   `bigquery:"clicks"`
	Impressions float64   `bigquery:"impressions"`
	CTR         float64   `bigquery:"ctr"`
	Position    float64   `bigquery:"position"`
	ExportedAt  time.Time `bigquery:"exported_at"`
}

// NewReportRecords flattens the report rows into BigQuery records. Dimensions
// that were not requested stay empty.
func NewReportRecords(req *ExportRequest, report *Report) []*ReportRecord {
	now := time.Now().UTC()
	out := make([]*ReportRecord, 0, report.Len())
	for _, row := range report.Rows {
		rec := &ReportRecord{
			ExportID:    req.ID,
			Account:     req.Account,
			Property:    req.Query.Property,
			SearchType:  string(req.Query.SearchType),
			StartDate:   req.Query.StartDate.Format(DateLayout),
			EndDate:     req.Query.EndDate.Format(DateLayout),
			Clicks:      row.Clicks,
			Impressions: row.Impressions,
			CTR:         row.CTR,
			Position:    row.Position,
			ExportedAt:  now,
		}
		for i, d := range report.Dimensions {
			if i >= len(row.Keys) {
				break
			}
			switch d {
			case DimensionPage:
				rec.Page = row.Keys[i]
			case DimensionQuery:
				rec.Query = row.Keys[i]
			case DimensionCountry:
				rec.Country = row.Keys[i]
			case DimensionDate:
				rec.Date = row.Keys[i]
			case DimensionDevice:
				rec.Device = row.Keys[i]
			}
		}
		out = append(out, rec)
	}
	return out
}

// ExportRecord is one completed export in BigQuery.
type ExportRecord struct {
	ExportID    string                 `bigquery:"export_id"`
	Account     string                 `bigquery:"account"`
	Property    string                 `bigquery:"property"`
	SearchType  string                 `bigquery:"search_type"`
	StartDate   string                 `bigquery:"start_date"`
	EndDate     string                 `bigquery:"end_date"`
	Dimensions  []string               `bigquery:"dimensions"`
	Rows        int64                  `bigquery:"rows"`
	ObjectURI   string                 `bigquery:"object_uri"`
	RequestedAt time.Time              `bigquery:"requested_at"`
	CompletedAt bigquery.NullTimestamp `bigquery:"completed_at"`
	Error       bigquery.NullString    `bigquery:"error"`
}

var (
	reportRecordSchema = sync.OnceValues(func() (bigquery.Schema, error) {
		return bigquery.InferSchema(ReportRecord{})
	})
	exportRecordSchema = sync.OnceValues(func() (bigquery.Schema, error) {
		return bigquery.InferSchema(ExportRecord{})
	})
)

// InsertID identifies the row for BigQuery's insert deduplication. It is
// derived from the export id and the dimension values, which are unique
// within one report, so a redelivered export streams the same ids again.
func (r *ReportRecord) InsertID() string {
	key := strings.Join([]string{r.ExportID, r.Page, r.Query, r.Country, r.Date, r.Device}, "\x1f")
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(key)).String()
}

// ReportRecordSavers wraps the records for an idempotent streaming insert.
func ReportRecordSavers(records []*ReportRecord) ([]*bigquery.StructSaver, error) {
	schema, err := reportRecordSchema()
	if err != nil {
		return nil, err
	}
	out := make([]*bigquery.StructSaver, len(records))
	for i, r := range records {
		out[i] = &bigquery.StructSaver{Struct: r, Schema: schema, InsertID: r.InsertID()}
	}
	return out, nil
}

// Saver wraps the record for a streaming insert deduplicated on the export
// id.
func (r *ExportRecord) Saver() (*bigquery.StructSaver, error) {
	schema, err := exportRecordSchema()
	if err != nil {
		return nil, err
	}
	return &bigquery.StructSaver{Struct: r, Schema: schema, InsertID: r.ExportID}, nil
}
