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

package workflow_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"golang.org/x/oauth2"

	"github.com/jaycherian/gcp-go-search-console-dashboard/internal/cloud"
	"github.com/jaycherian/gcp-go-search-console-dashboard/internal/core/cor"
	"github.com/jaycherian/gcp-go-search-console-dashboard/internal/core/model"
	"github.com/jaycherian/gcp-go-search-console-dashboard/internal/core/workflow"
	"github.com/jaycherian/gcp-go-search-console-dashboard/internal/session"
	"github.com/jaycherian/gcp-go-search-console-dashboard/internal/telemetry"
	test "github.com/jaycherian/gcp-go-search-console-dashboard/internal/testutil"
)

const tName = "github.com/jaycherian/gcp-go-search-console-dashboard/tests/workflow"

var (
	config *cloud.Config
	logger = otelslog.NewLogger(tName)
)

func TestMain(m *testing.M) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	config = test.GetConfig()

	shutdown, err := telemetry.SetupOpenTelemetry(ctx, config)
	if err != nil {
		panic(err)
	}
	logger.Info("completed test setup")

	exitCode := m.Run()

	if err := shutdown(ctx); err != nil {
		logger.Error("failed to shutdown telemetry", "error", err)
	}
	os.Exit(exitCode)
}

type fetcher struct {
	report *model.Report
	err    error
}

func (f *fetcher) FetchReport(_ context.Context, _ *oauth2.Token, q model.ReportQuery) (*model.Report, error) {
	if f.report != nil {
		f.report.Query = q
		f.report.Dimensions = q.Dimensions
	}
	return f.report, f.err
}

type inserter struct {
	mu   sync.Mutex
	puts []interface{}
}

func (i *inserter) Put(_ context.Context, src interface{}) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.puts = append(i.puts, src)
	return nil
}

type object struct{ bytes.Buffer }

func (o *object) Close() error { return nil }

type objects map[string]*object

func (o objects) NewWriter(_ context.Context, obj *cloud.GCSObject) io.WriteCloser {
	w := &object{}
	o[obj.URI()] = w
	return w
}

type signer struct{ err error }

func (s signer) SignedURL(_ context.Context, obj *cloud.GCSObject) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return "https://storage.example.com/" + obj.Name, nil
}

type recorder struct {
	results map[string][]*model.ExportResult
}

func (r *recorder) record(sessionID string, res *model.ExportResult) error {
	r.results[sessionID] = append(r.results[sessionID], res)
	return nil
}

type harness struct {
	deps     workflow.ExportDependencies
	reports  *inserter
	exports  *inserter
	objects  objects
	recorder *recorder
}

func newHarness(f *fetcher, tokenErr error) *harness {
	h := &harness{
		reports:  &inserter{},
		exports:  &inserter{},
		objects:  objects{},
		recorder: &recorder{results: map[string][]*model.ExportResult{}},
	}
	h.deps = workflow.ExportDependencies{
		Fetcher: f,
		Tokens: func(string) (*oauth2.Token, error) {
			if tokenErr != nil {
				return nil, tokenErr
			}
			return &oauth2.Token{AccessToken: "access"}, nil
		},
		ReportTable: h.reports,
		ExportTable: h.exports,
		Objects:     h.objects,
		Signer:      signer{},
		Record:      h.recorder.record,
	}
	return h
}

func run(w cor.Command, message string) cor.Context {
	chainCtx := cor.NewBaseContext()
	chainCtx.Add(cor.CtxIn, message)
	w.Execute(chainCtx)
	return chainCtx
}

func TestReportExportWorkflow(t *testing.T) {
	report := &model.Report{Rows: []model.ReportRow{
		{Keys: []string{"2024-10-01", "shoes"}, Clicks: 4, Impressions: 40},
		{Keys: []string{"2024-10-02", "boots"}, Clicks: 1, Impressions: 25},
	}}
	h := newHarness(&fetcher{report: report}, nil)
	w := workflow.NewReportExportWorkflow(config, h.deps)

	chainCtx := run(w, test.GetTestExportMessageText("exp-1", "sid"))
	require.NoError(t, cor.Err(chainCtx))

	uri := "gs://" + config.Export.Bucket + "/" + config.Export.ObjectPrefix +
		"sc-domain_example.com/2024-10-01_2024-10-07_exp-1.csv"
	require.Contains(t, h.objects, uri)
	assert.Contains(t, h.objects[uri].String(), "date,query,clicks,impressions,ctr,position\n")

	require.Len(t, h.reports.puts, 1)
	assert.Len(t, h.reports.puts[0], 2)
	require.Len(t, h.exports.puts, 1)

	results := h.recorder.results["sid"]
	require.Len(t, results, 1)
	assert.Equal(t, model.ExportCompleted, results[0].Status)
	assert.Equal(t, 2, results[0].Rows)
	assert.Equal(t, uri, results[0].ObjectURI)
	assert.NotEmpty(t, results[0].DownloadURL)
}

func TestReportExportWorkflowRecordsFailure(t *testing.T) {
	h := newHarness(&fetcher{}, errors.New("session expired"))
	w := workflow.NewReportExportWorkflow(config, h.deps)

	chainCtx := run(w, test.GetTestExportMessageText("exp-2", "sid"))
	assert.ErrorContains(t, cor.Err(chainCtx), "session expired")

	results := h.recorder.results["sid"]
	require.Len(t, results, 1)
	assert.Equal(t, model.ExportFailed, results[0].Status)
	assert.Contains(t, results[0].Error, "session expired")
	assert.Empty(t, h.objects)
	assert.Empty(t, h.reports.puts)
}

func TestReportExportWorkflowFetchError(t *testing.T) {
	h := newHarness(&fetcher{err: errors.New("403 forbidden")}, nil)
	w := workflow.NewReportExportWorkflow(config, h.deps)

	chainCtx := run(w, test.GetTestExportMessageText("exp-3", "sid"))
	assert.True(t, chainCtx.HasErrors())
	assert.False(t, cor.Terminal(chainCtx))
	require.Len(t, h.recorder.results["sid"], 1)
	assert.Equal(t, model.ExportFailed, h.recorder.results["sid"][0].Status)
}

func TestReportExportWorkflowIgnoresGarbage(t *testing.T) {
	h := newHarness(&fetcher{}, nil)
	w := workflow.NewReportExportWorkflow(config, h.deps)

	chainCtx := run(w, "not an export request")
	assert.True(t, chainCtx.HasErrors())
	assert.True(t, cor.Terminal(chainCtx))
	assert.Empty(t, h.recorder.results)
}

func TestReportExportWorkflowNeedsMessage(t *testing.T) {
	w := workflow.NewReportExportWorkflow(config, newHarness(&fetcher{}, nil).deps)
	assert.Equal(t, "report-export-workflow", w.GetName())
	assert.False(t, w.IsExecutable(cor.NewBaseContext()))
}

func TestReportExportWorkflowLostSessionIsTerminal(t *testing.T) {
	store := session.NewMemoryStore(time.Hour)
	signedOut := store.Create()

	for name, sessionID := range map[string]string{
		"expired":    "gone",
		"signed out": signedOut.ID,
	} {
		t.Run(name, func(t *testing.T) {
			h := newHarness(&fetcher{report: &model.Report{}}, nil)
			h.deps.Tokens = func(id string) (*oauth2.Token, error) {
				return session.Credentials(store, id)
			}
			w := workflow.NewReportExportWorkflow(config, h.deps)

			for range 3 {
				chainCtx := run(w, test.GetTestExportMessageText("exp-4", sessionID))
				require.True(t, chainCtx.HasErrors())
				assert.True(t, cor.Terminal(chainCtx))
			}
			assert.Empty(t, h.reports.puts)
			assert.Empty(t, h.objects)
		})
	}
}

func TestReportExportWorkflowRetryReusesInsertIDs(t *testing.T) {
	report := &model.Report{Rows: []model.ReportRow{
		{Keys: []string{"2024-10-01", "shoes"}, Clicks: 4, Impressions: 40},
		{Keys: []string{"2024-10-02", "boots"}, Clicks: 1, Impressions: 25},
	}}
	h := newHarness(&fetcher{report: report}, nil)
	h.deps.Signer = signer{err: errors.New("iam unavailable")}
	w := workflow.NewReportExportWorkflow(config, h.deps)

	for range 3 {
		chainCtx := run(w, test.GetTestExportMessageText("exp-5", "sid"))
		require.ErrorContains(t, cor.Err(chainCtx), "iam unavailable")
		assert.False(t, cor.Terminal(chainCtx))
	}

	require.Len(t, h.reports.puts, 3)
	ids := map[string]int{}
	for _, put := range h.reports.puts {
		for _, saver := range put.([]*bigquery.StructSaver) {
			require.NotEmpty(t, saver.InsertID)
			ids[saver.InsertID]++
		}
	}
	assert.Len(t, ids, 2)
	for _, n := range ids {
		assert.Equal(t, 3, n)
	}
	assert.Empty(t, h.exports.puts)
}
