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
	"context"
	"fmt"

	"github.com/jaycherian/gcp-go-search-console-dashboard/internal/core/cor"
	"github.com/jaycherian/gcp-go-search-console-dashboard/internal/core/model"
)

// DefaultInsertBatchSize keeps each streaming insert well below the request
// size limit of BigQuery.
const DefaultInsertBatchSize = 5000

// Inserter streams rows into a table; *bigquery.Inserter satisfies it.
type Inserter interface {
	Put(ctx context.Context, src interface{}) error
}

// ReportPersistToBigQuery archives the rows of the exported report. Rows carry
// insert ids, so a retried export does not duplicate them.
type ReportPersistToBigQuery struct {
	cor.BaseCommand
	inserter  Inserter
	batchSize int
}

func NewReportPersistToBigQuery(name string, inserter Inserter, batchSize int) *ReportPersistToBigQuery {
	if batchSize <= 0 {
		batchSize = DefaultInsertBatchSize
	}
	return &ReportPersistToBigQuery{BaseCommand: *cor.NewBaseCommand(name), inserter: inserter, batchSize: batchSize}
}

// IsExecutable requires the request and the report.
func (s *ReportPersistToBigQuery) IsExecutable(context cor.Context) bool {
	return context != nil && context.Get(ParamExportRequest) != nil && context.Get(ParamReport) != nil
}

func (s *ReportPersistToBigQuery) Execute(context cor.Context) {
	req := context.Get(ParamExportRequest).(*model.ExportRequest)
	report := context.Get(ParamReport).(*model.Report)

	savers, err := model.ReportRecordSavers(model.NewReportRecords(req, report))
	if err != nil {
		s.Fail(context, cor.Permanent(fmt.Errorf("invalid report schema: %w", err)))
		return
	}
	for start := 0; start < len(savers); start += s.batchSize {
		end := min(start+s.batchSize, len(savers))
		if err := s.inserter.Put(context.GetContext(), savers[start:end]); err != nil {
			s.Fail(context, fmt.Errorf("bigquery insert failed for export %s at row %d: %w", req.ID, start, err))
			return
		}
	}

	s.Succeed(context)
	context.Add(s.GetOutputParam(), report)
}
