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

// Package test provides helpers shared by the test suites: the test
// configuration, sample Pub/Sub payloads and a fake of the Google APIs the
// dashboard talks to.
package test

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/jaycherian/gcp-go-search-console-dashboard/internal/cloud"
)

// StateManager caches the test configuration between tests.
type StateManager struct {
	config *cloud.Config
}

var state = &StateManager{}

// HandleErr fails the test when err is not nil.
func HandleErr(err error, t *testing.T) {
	t.Helper()
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

// ConfigDir returns the absolute path of the configs directory, so tests
// load the same files whatever package they run from.
func ConfigDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "configs")
}

// SetupOS points the configuration loader at configs/.env.test.toml.
func SetupOS() (err error) {
	err = os.Setenv(cloud.EnvConfigFilePrefix, ConfigDir())
	if err != nil {
		return err
	}
	err = os.Setenv(cloud.EnvConfigRuntime, "test")
	return err
}

// GetConfig loads the test configuration once.
func GetConfig() *cloud.Config {
	if state.config == nil {
		err := SetupOS()
		if err != nil {
			log.Fatalf("failed to setup environment for test: %v\n", err)
		}
		config := cloud.NewConfig()
		if err := cloud.LoadConfig(config); err != nil {
			log.Fatalf("failed to load test configuration: %v\n", err)
		}
		state.config = config
	}
	return state.config
}

// GetTestExportMessageText returns an export request as published by the
// dashboard for the session.
func GetTestExportMessageText(exportID string, sessionID string) string {
	return fmt.Sprintf(`{
  "id": %q,
  "session_id": %q,
  "account": "analyst@example.com",
  "query": {
    "property": "sc-domain:example.com",
    "search_type": "web",
    "start_date": "2024-10-01T00:00:00Z",
    "end_date": "2024-10-07T00:00:00Z",
    "dimensions": ["date", "query"]
  },
  "requested_at": "2024-10-08T09:30:00Z"
}`, exportID, sessionID)
}
