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
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jaycherian/gcp-go-search-console-dashboard/internal/api"
	"github.com/jaycherian/gcp-go-search-console-dashboard/internal/cloud"
	"github.com/jaycherian/gcp-go-search-console-dashboard/internal/core/dashboard"
	"github.com/jaycherian/gcp-go-search-console-dashboard/internal/core/services"
	"github.com/jaycherian/gcp-go-search-console-dashboard/internal/session"
)

const (
	sessionCleanupInterval = 5 * time.Minute
	exportHistoryLimit     = 20
)

// StateManager holds the shared components of the application.
type StateManager struct {
	config  *cloud.Config
	cloud   *cloud.ServiceClients
	store   *session.MemoryStore
	console *services.GoogleSearchConsole
	exports *services.ExportService
	handler *api.Handler
}

var state = &StateManager{}

// SetupOS points the config loader at the configs directory. GCP_RUNTIME
// defaults to "local" unless the environment already sets it.
func SetupOS() (err error) {
	if os.Getenv(cloud.EnvConfigFilePrefix) == "" {
		if err = os.Setenv(cloud.EnvConfigFilePrefix, "configs"); err != nil {
			return err
		}
	}
	if os.Getenv(cloud.EnvConfigRuntime) == "" {
		err = os.Setenv(cloud.EnvConfigRuntime, "local")
	}
	return err
}

// GetConfig loads the configuration once.
func GetConfig() (*cloud.Config, error) {
	if state.config == nil {
		if err := SetupOS(); err != nil {
			return nil, fmt.Errorf("failed to setup os: %w", err)
		}
		config := cloud.NewConfig()
		if err := cloud.LoadConfig(config); err != nil {
			return nil, err
		}
		state.config = config
	}
	return state.config, nil
}

// InitState builds the dashboard, the session store and, when enabled, the
// export pipeline and the insights model.
func InitState(ctx context.Context, config *cloud.Config) error {
	oauthConfig, err := cloud.NewOAuthConfig(config.OAuth)
	if err != nil {
		return err
	}
	options, err := dashboard.OptionsFromConfig(config)
	if err != nil {
		return err
	}

	cloudClients, err := cloud.NewCloudServiceClients(ctx, config)
	if err != nil {
		return err
	}
	state.cloud = cloudClients

	state.store = session.NewMemoryStore(config.Session.TTL())
	state.store.StartJanitor(ctx, sessionCleanupInterval)

	state.console = services.NewGoogleSearchConsole(oauthConfig, config.SearchConsole)
	board := dashboard.New(services.NewGoogleAuthenticator(oauthConfig), state.console, config.Page, options)

	if config.Insights.Enabled {
		agent, ok := cloudClients.AgentModels[config.Insights.Model]
		if !ok {
			return fmt.Errorf("insights model %q is not configured", config.Insights.Model)
		}
		insights, err := services.NewInsightsService(agent, config.PromptTemplates.InsightsPrompt,
			config.Insights.MaxRows, config.Insights.MaxLength)
		if err != nil {
			return err
		}
		board.Insights = insights
	}

	state.handler = &api.Handler{
		Dashboard:    board,
		HistoryLimit: exportHistoryLimit,
	}

	if config.Export.Enabled {
		state.exports = &services.ExportService{
			Publisher:   &cloud.TopicPublisher{Topic: cloudClients.ExportTopic},
			BigQuery:    cloudClients.BiqQueryClient,
			Dataset:     config.BigQueryDataSource.DatasetName,
			ReportTable: config.BigQueryDataSource.ReportTable,
			ExportTable: config.BigQueryDataSource.ExportTable,
		}
		if err := state.exports.EnsureTables(ctx); err != nil {
			return err
		}
		signer := newURLSigner(config, cloudClients)
		state.handler.Exports = state.exports
		state.handler.History = state.exports
		state.handler.Signer = signer

		if err := SetupListeners(ctx, config, cloudClients, signer); err != nil {
			return err
		}
	}

	slog.Info("state initialized",
		"export", config.Export.Enabled,
		"insights", config.Insights.Enabled)
	return nil
}

func newURLSigner(config *cloud.Config, cloudClients *cloud.ServiceClients) *cloud.GCSURLSigner {
	return &cloud.GCSURLSigner{
		Storage:        cloudClients.StorageClient,
		IAM:            cloudClients.IAMClient,
		ServiceAccount: config.Application.SignerServiceAccountEmail,
		Expiry:         time.Duration(config.Export.SignedURLMinutes) * time.Minute,
	}
}
