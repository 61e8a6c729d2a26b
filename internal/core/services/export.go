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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"

	"github.com/jaycherian/gcp-go-search-console-dashboard/internal/cloud"
	"github.com/jaycherian/gcp-go-search-console-dashboard/internal/core/model"
)

// ExportService is the synchronous side of the export pipeline: it queues
// export requests and reads the archive. The work itself is done by the
// report export workflow listening on the subscription.
type ExportService struct {
	Publisher   cloud.Publisher
	BigQuery    *bigquery.Client
	Dataset     string
	ReportTable string
	ExportTable string
}

// Request validates and publishes the export request and returns the pending
// result to show until the workflow reports back.
func (s *ExportService) Request(ctx context.Context, req *model.ExportRequest) (*model.ExportResult, error) {
	if err := req.Query.Validate(); err != nil {
		return nil, fmt.Errorf("invalid export query: %w", err)
	}
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode export request: %w", err)
	}
	msgID, err := s.Publisher.Publish(ctx, data, map[string]string{"export_id": req.ID})
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "export requested", "export_id", req.ID, "message_id", msgID, "query", req.Query.String())
	return &model.ExportResult{
		ID:          req.ID,
		Status:      model.ExportPending,
		Query:       req.Query,
		RequestedAt: req.RequestedAt,
	}, nil
}

func (s *ExportService) tableName(table string) string {
	return strings.Replace(s.BigQuery.Dataset(s.Dataset).Table(table).FullyQualifiedName(), ":", ".", -1)
}

// History returns the latest completed or failed exports of the account.
func (s *ExportService) History(ctx context.Context, account string, limit int) (out []*model.ExportRecord, err error) {
	out = make([]*model.ExportRecord, 0)
	q := s.BigQuery.Query(fmt.Sprintf(QryExportHistory, s.tableName(s.ExportTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "account", Value: account},
		{Name: "limit", Value: limit},
	}
	itr, err := q.Read(ctx)
	if err != nil {
		return out, fmt.Errorf("failed to read export history: %w", err)
	}
	for {
		r := &model.ExportRecord{}
		err := itr.Next(r)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return out, fmt.Errorf("failed to iterate export history: %w", err)
		}
		out = append(out, r)
	}
	return out, nil
}

// EnsureTables creates the report and export tables when they are missing,
// with schemas inferred from the record types. The dataset must exist.
func (s *ExportService) EnsureTables(ctx context.Context) error {
	tables := []struct {
		name   string
		record interface{}
	}{
		{s.ReportTable, model.ReportRecord{}},
		{s.ExportTable, model.ExportRecord{}},
	}
	for _, t := range tables {
		handle := s.BigQuery.Dataset(s.Dataset).Table(t.name)
		_, err := handle.Metadata(ctx)
		if err == nil {
			continue
		}
		var apiErr *googleapi.Error
		if !errors.As(err, &apiErr) || apiErr.Code != http.StatusNotFound {
			return fmt.Errorf("failed to read table %s: %w", t.name, err)
		}
		schema, err := bigquery.InferSchema(t.record)
		if err != nil {
			return fmt.Errorf("failed to infer schema of %s: %w", t.name, err)
		}
		if err := handle.Create(ctx, &bigquery.TableMetadata{Schema: schema}); err != nil {
			return fmt.Errorf("failed to create table %s: %w", t.name, err)
		}
		slog.InfoContext(ctx, "created table", "dataset", s.Dataset, "table", t.name)
	}
	return nil
}
