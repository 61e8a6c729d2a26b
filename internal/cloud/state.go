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

// This file builds the Google Cloud clients used by the optional features of
// the dashboard. The dashboard itself only talks to the Search Console API
// with the signed in user's token, so a local run with export and insights
// disabled needs no Cloud project at all.
//
// Logic Flow:
//  1. NewCloudServiceClients is called at application startup with the config.
//  2. When export is enabled it creates the Storage, Pub/Sub, BigQuery and IAM
//     credentials clients, the export topic and one listener per configured
//     subscription.
//  3. When insights are enabled it creates the GenAI client and wraps every
//     configured agent model in a QuotaAwareGenerativeAIModel.
//  4. Close releases whatever was created.

package cloud

import (
	"context"
	"fmt"
	"log/slog"

	"cloud.google.com/go/bigquery"
	credentials "cloud.google.com/go/iam/credentials/apiv1"
	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"google.golang.org/genai"
)

// ServiceClients is the container of every Cloud client of the application.
// Fields of disabled features are nil.
type ServiceClients struct {
	StorageClient   *storage.Client                   // Client for Google Cloud Storage (GCS).
	PubsubClient    *pubsub.Client                    // Client for Google Cloud Pub/Sub.
	GenAIClient     *genai.Client                     // Client for Gemini on Vertex AI.
	BiqQueryClient  *bigquery.Client                  // Client for Google Cloud BigQuery.
	IAMClient       *credentials.IamCredentialsClient // Client for IAM to sign GCS URLs.
	ExportTopic     *pubsub.Topic                     // Topic export requests are published to.
	PubSubListeners map[string]*PubSubListener        // Keyed by the logical name from the config.
	AgentModels     map[string]*QuotaAwareGenerativeAIModel
}

// Close shuts down the client connections that were opened.
func (c *ServiceClients) Close() {
	if c.ExportTopic != nil {
		c.ExportTopic.Stop()
	}
	if c.StorageClient != nil {
		_ = c.StorageClient.Close()
	}
	if c.PubsubClient != nil {
		_ = c.PubsubClient.Close()
	}
	if c.BiqQueryClient != nil {
		_ = c.BiqQueryClient.Close()
	}
	if c.IAMClient != nil {
		_ = c.IAMClient.Close()
	}
}

// NewCloudServiceClients creates the clients required by the enabled
// features. On error the clients created so far are closed.
func NewCloudServiceClients(ctx context.Context, config *Config) (cloud *ServiceClients, err error) {
	cloud = &ServiceClients{
		PubSubListeners: make(map[string]*PubSubListener),
		AgentModels:     make(map[string]*QuotaAwareGenerativeAIModel),
	}
	defer func() {
		if err != nil {
			cloud.Close()
			cloud = nil
		}
	}()

	if config.Export.Enabled {
		if err = cloud.openExportClients(ctx, config); err != nil {
			return cloud, err
		}
	}

	if config.Insights.Enabled {
		if err = cloud.openInsightsClients(ctx, config); err != nil {
			return cloud, err
		}
	}

	return cloud, nil
}

func (c *ServiceClients) openExportClients(ctx context.Context, config *Config) (err error) {
	projectID := config.Application.GoogleProjectId
	if c.StorageClient, err = storage.NewClient(ctx); err != nil {
		return fmt.Errorf("failed to create storage client: %w", err)
	}
	if c.PubsubClient, err = pubsub.NewClient(ctx, projectID); err != nil {
		return fmt.Errorf("failed to create pubsub client: %w", err)
	}
	if c.BiqQueryClient, err = bigquery.NewClient(ctx, projectID); err != nil {
		return fmt.Errorf("failed to create bigquery client: %w", err)
	}
	if c.IAMClient, err = credentials.NewIamCredentialsClient(ctx); err != nil {
		return fmt.Errorf("failed to create iam credentials client: %w", err)
	}

	c.ExportTopic = c.PubsubClient.Topic(config.Export.Topic)

	// The command is attached later, when the workflows are built.
	for subKey, values := range config.TopicSubscriptions {
		listener, err := NewPubSubListener(c.PubsubClient, values.Name, nil)
		if err != nil {
			return err
		}
		c.PubSubListeners[subKey] = listener
	}
	return nil
}

func (c *ServiceClients) openInsightsClients(ctx context.Context, config *Config) (err error) {
	slog.Debug("creating genai client",
		"project", config.Application.GoogleProjectId,
		"location", config.Application.GoogleLocation)
	c.GenAIClient, err = genai.NewClient(ctx, &genai.ClientConfig{
		Project:  config.Application.GoogleProjectId,
		Location: config.Application.GoogleLocation,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		return fmt.Errorf("failed to create genai client: %w", err)
	}

	for amKey, values := range config.AgentModels {
		cfg := &genai.GenerateContentConfig{
			Temperature:       genai.Ptr[float32](values.Temperature),
			TopP:              genai.Ptr[float32](values.TopP),
			TopK:              genai.Ptr[float32](values.TopK),
			MaxOutputTokens:   values.MaxTokens,
			SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: values.SystemInstructions}}},
			SafetySettings:    DefaultSafetySettings,
			ResponseMIMEType:  values.OutputFormat,
		}
		c.AgentModels[amKey] = NewQuotaAwareModel(cfg, values.Model, c.GenAIClient.Models, values.RateLimit)
	}
	return nil
}
