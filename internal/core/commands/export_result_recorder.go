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

package commands

import (
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"

	"github.com/jaycherian/gcp-go-search-console-dashboard/internal/cloud"
	"github.com/jaycherian/gcp-go-search-console-dashboard/internal/core/cor"
	"github.com/jaycherian/gcp-go-search-console-dashboard/internal/core/model"
)

// ResultRecorder hands an export result to the session that asked for it.
type ResultRecorder func(sessionID string, res *model.ExportResult) error

// ExportResultRecorder writes the completed export to the export table and
// to the requesting session.
type ExportResultRecorder struct {
	cor.BaseCommand
	inserter Inserter // May be nil to skip the archive.
	record   ResultRecorder
}

func NewExportResultRecorder(name string, inserter Inserter, record ResultRecorder) *ExportResultRecorder {
	return &ExportResultRecorder{BaseCommand: *cor.NewBaseCommand(name), inserter: inserter, record: record}
}

func (c *ExportResultRecorder) IsExecutable(context cor.Context) bool {
	return context != nil && context.Get(ParamExportRequest) != nil && context.Get(ParamReport) != nil
}

func (c *ExportResultRecorder) Execute(context cor.Context) {
	req := context.Get(ParamExportRequest).(*model.ExportRequest)
	report := context.Get(ParamReport).(*model.Report)

	res := &model.ExportResult{
		ID:          req.ID,
		Status:      model.ExportCompleted,
		Query:       req.Query,
		Rows:        report.Len(),
		RequestedAt: req.RequestedAt,
		CompletedAt: time.Now().UTC(),
	}
	if obj, ok := context.Get(ParamExportObject).(*cloud.GCSObject); ok {
		res.ObjectURI = obj.URI()
	}
	if url, ok := context.Get(ParamDownloadURL).(string); ok {
		res.DownloadURL = url
	}

	if c.inserter != nil {
		saver, err := NewExportRecord(req, res).Saver()
		if err != nil {
			c.Fail(context, cor.Permanent(fmt.Errorf("invalid export schema: %w", err)))
			return
		}
		if err := c.inserter.Put(context.GetContext(), saver); err != nil {
			c.Fail(context, fmt.Errorf("failed to archive export %s: %w", req.ID, err))
			return
		}
	}
	if err := c.record(req.SessionID, res); err != nil {
		c.Fail(context, fmt.Errorf("failed to record export %s: %w", req.ID, err))
		return
	}

	c.Succeed(context)
	context.Add(c.GetOutputParam(), res)
}

// FailedResult is the result recorded when the workflow stops on err.
func FailedResult(req *model.ExportRequest, err error) *model.ExportResult {
	return &model.ExportResult{
		ID:          req.ID,
		Status:      model.ExportFailed,
		Query:       req.Query,
		Error:       err.Error(),
		RequestedAt: req.RequestedAt,
		CompletedAt: time.Now().UTC(),
	}
}

// NewExportRecord converts a result into its archive row.
func NewExportRecord(req *model.ExportRequest, res *model.ExportResult) *model.ExportRecord {
	out := &model.ExportRecord{
		ExportID:    req.ID,
		Account:     req.Account,
		Property:    req.Query.Property,
		SearchType:  string(req.Query.SearchType),
		StartDate:   req.Query.StartDate.Format(model.DateLayout),
		EndDate:     req.Query.EndDate.Format(model.DateLayout),
		Dimensions:  req.Query.DimensionNames(),
		Rows:        int64(res.Rows),
		ObjectURI:   res.ObjectURI,
		RequestedAt: req.RequestedAt,
	}
	if !res.CompletedAt.IsZero() {
		out.CompletedAt = bigquery.NullTimestamp{Timestamp: res.CompletedAt, Valid: true}
	}
	if res.Error != "" {
		out.Error = bigquery.NullString{StringVal: res.Error, Valid: true}
	}
	return out
}
