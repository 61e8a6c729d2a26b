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

// Package workflow combines commands into the pipelines run by the Pub/Sub
// listeners.
package workflow

import (
	"log/slog"

	"github.com/jaycherian/gcp-go-search-console-dashboard/internal/cloud"
	"github.com/jaycherian/gcp-go-search-console-dashboard/internal/core/commands"
	"github.com/jaycherian/gcp-go-search-console-dashboard/internal/core/cor"
	"github.com/jaycherian/gcp-go-search-console-dashboard/internal/core/model"
)

// ExportDependencies are the collaborators of the report export workflow.
type ExportDependencies struct {
	Fetcher     commands.ReportFetcher
	Tokens      commands.TokenLookup
	SaveToken   commands.TokenSaver // May be nil.
	ReportTable commands.Inserter
	ExportTable commands.Inserter // May be nil.
	Objects     cloud.ObjectWriter
	Signer      cloud.URLSigner
	Record      commands.ResultRecorder
}

// ReportExportWorkflow turns an export request message into an archived,
// downloadable CSV and reports the outcome to the requesting session.
type ReportExportWorkflow struct {
	cor.BaseCommand
	config *cloud.Config
	deps   ExportDependencies
	chain  cor.Chain
}

// NewReportExportWorkflow builds the workflow and its command chain.
func NewReportExportWorkflow(config *cloud.Config, deps ExportDependencies) *ReportExportWorkflow {
	out := &ReportExportWorkflow{
		BaseCommand: *cor.NewBaseCommand("report-export-workflow"),
		config:      config,
		deps:        deps,
	}
	out.initializeChain()
	return out
}

func (w *ReportExportWorkflow) initializeChain() {
	out := cor.NewBaseChain(w.GetName())
	out.AddCommand(commands.NewExportTriggerReader("export-trigger-reader"))
	out.AddCommand(commands.NewReportFetch("report-fetch", w.deps.Fetcher, w.deps.Tokens).WithTokenSaver(w.deps.SaveToken))
	out.AddCommand(commands.NewReportPersistToBigQuery("report-persist-to-bigquery", w.deps.ReportTable, commands.DefaultInsertBatchSize))
	out.AddCommand(commands.NewReportCSVUpload("report-csv-upload", w.deps.Objects, w.config.Export.Bucket, w.config.Export.ObjectPrefix))
	out.AddCommand(commands.NewExportSignedURL("export-signed-url", w.deps.Signer))
	out.AddCommand(commands.NewExportResultRecorder("export-result-recorder", w.deps.ExportTable, w.deps.Record))
	w.chain = out
}

// Execute runs the chain. When it fails after the request was decoded, the
// session is told so it can stop showing the export as pending.
func (w *ReportExportWorkflow) Execute(context cor.Context) {
	w.chain.Execute(context)
	if !context.HasErrors() {
		return
	}
	req, ok := context.Get(commands.ParamExportRequest).(*model.ExportRequest)
	if !ok {
		return
	}
	if err := w.deps.Record(req.SessionID, commands.FailedResult(req, cor.Err(context))); err != nil {
		slog.WarnContext(context.GetContext(), "failed to record export failure", "export_id", req.ID, "error", err)
	}
}
