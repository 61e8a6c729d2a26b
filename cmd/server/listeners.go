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

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/oauth2"

	"github.com/jaycherian/gcp-go-search-console-dashboard/internal/cloud"
	"github.com/jaycherian/gcp-go-search-console-dashboard/internal/core/model"
	"github.com/jaycherian/gcp-go-search-console-dashboard/internal/core/workflow"
	"github.com/jaycherian/gcp-go-search-console-dashboard/internal/session"
)

// ExportListenerKey names the subscription of the export workflow in
// [topic_subscriptions].
const ExportListenerKey = "ExportTopic"

// SetupListeners attaches the export workflow to its subscription and starts
// receiving.
func SetupListeners(ctx context.Context, config *cloud.Config, cloudClients *cloud.ServiceClients, signer cloud.URLSigner) error {
	listener, ok := cloudClients.PubSubListeners[ExportListenerKey]
	if !ok {
		return fmt.Errorf("no subscription configured for %s", ExportListenerKey)
	}

	dataset := cloudClients.BiqQueryClient.Dataset(config.BigQueryDataSource.DatasetName)
	exportWorkflow := workflow.NewReportExportWorkflow(config, workflow.ExportDependencies{
		Fetcher: state.console,
		Tokens: func(sessionID string) (*oauth2.Token, error) {
			return session.Credentials(state.store, sessionID)
		},
		SaveToken: func(sessionID string, tok *oauth2.Token) error {
			return session.SaveCredentials(state.store, sessionID, tok)
		},
		ReportTable: dataset.Table(config.BigQueryDataSource.ReportTable).Inserter(),
		ExportTable: dataset.Table(config.BigQueryDataSource.ExportTable).Inserter(),
		Objects:     &cloud.GCSObjectStore{Client: cloudClients.StorageClient},
		Signer:      signer,
		Record:      recordExport,
	})

	listener.SetCommand(exportWorkflow)
	listener.Listen(ctx)
	return nil
}

// recordExport stores the outcome on the requesting session. The session may
// have expired or signed out meanwhile; the archive still has the export.
func recordExport(sessionID string, res *model.ExportResult) error {
	err := session.RecordExport(state.store, sessionID, res)
	if errors.Is(err, session.ErrNotFound) {
		slog.Info("export finished after its session ended", "export_id", res.ID, "status", res.Status)
		return nil
	}
	return err
}
