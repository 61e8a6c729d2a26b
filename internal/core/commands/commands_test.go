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
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/jaycherian/gcp-go-search-console-dashboard/internal/cloud"
	"github.com/jaycherian/gcp-go-search-console-dashboard/internal/core/cor"
	"github.com/jaycherian/gcp-go-search-console-dashboard/internal/core/model"
	test "github.com/jaycherian/gcp-go-search-console-dashboard/internal/testutil"
)

type recordingInserter struct {
	puts []interface{}
	err  error
}

func (r *recordingInserter) Put(_ context.Context, src interface{}) error {
	if r.err != nil {
		return r.err
	}
	r.puts = append(r.puts, src)
	return nil
}

type memoryObject struct {
	bytes.Buffer
	closeErr error
	closed   bool
}

func (m *memoryObject) Close() error {
	m.closed = true
	return m.closeErr
}

type memoryObjects struct {
	objects  map[string]*memoryObject
	closeErr error
}

func (m *memoryObjects) NewWriter(_ context.Context, obj *cloud.GCSObject) io.WriteCloser {
	if m.objects == nil {
		m.objects = make(map[string]*memoryObject)
	}
	w := &memoryObject{closeErr: m.closeErr}
	m.objects[obj.URI()] = w
	return w
}

func exportRequest() *model.ExportRequest {
	return &model.ExportRequest{
		ID:        "exp-1",
		SessionID: "sid",
		Account:   "analyst@example.com",
		Query: model.ReportQuery{
			Property:   "https://www.example.com/",
			SearchType: model.SearchTypeWeb,
			StartDate:  time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC),
			EndDate:    time.Date(2024, 10, 7, 0, 0, 0, 0, time.UTC),
			Dimensions: []model.Dimension{model.DimensionQuery, model.DimensionDevice},
		},
		RequestedAt: time.Date(2024, 10, 8, 9, 30, 0, 0, time.UTC),
	}
}

func reportOf(n int) *model.Report {
	req := exportRequest()
	out := &model.Report{Query: req.Query, Dimensions: req.Query.Dimensions}
	for i := 0; i < n; i++ {
		out.Rows = append(out.Rows, model.ReportRow{
			Keys:        []string{fmt.Sprintf("q%d", i), "MOBILE"},
			Clicks:      float64(i),
			Impressions: 10,
		})
	}
	return out
}

func chainContext(values map[string]interface{}) cor.Context {
	ctx := cor.NewBaseContext()
	for k, v := range values {
		ctx.Add(k, v)
	}
	return ctx
}

func TestExportObjectName(t *testing.T) {
	assert.Equal(t, "exports/https_www.example.com_/2024-10-01_2024-10-07_exp-1.csv",
		ExportObjectName("exports/", exportRequest()))

	req := exportRequest()
	req.Query.Property = "sc-domain:example.com"
	assert.Equal(t, "sc-domain_example.com/2024-10-01_2024-10-07_exp-1.csv", ExportObjectName("", req))
}

func TestExportTriggerReader(t *testing.T) {
	cmd := NewExportTriggerReader("reader")

	ctx := chainContext(map[string]interface{}{cor.CtxIn: test.GetTestExportMessageText("exp-9", "sid-9")})
	cmd.Execute(ctx)
	require.False(t, ctx.HasErrors())
	req := ctx.Get(ParamExportRequest).(*model.ExportRequest)
	assert.Equal(t, "exp-9", req.ID)
	assert.Equal(t, "sid-9", req.SessionID)
	assert.Equal(t, "sc-domain:example.com", req.Query.Property)
	assert.Equal(t, []model.Dimension{model.DimensionDate, model.DimensionQuery}, req.Query.Dimensions)
	assert.NoError(t, req.Query.Validate())

	for name, in := range map[string]interface{}{
		"not json":   "{",
		"no session": `{"id":"exp-1"}`,
		"not string": 42,
	} {
		t.Run(name, func(t *testing.T) {
			ctx := chainContext(map[string]interface{}{cor.CtxIn: in})
			cmd.Execute(ctx)
			assert.True(t, cor.Terminal(ctx))
			assert.Nil(t, ctx.Get(ParamExportRequest))
		})
	}
}

type stubFetcher struct {
	report *model.Report
	err    error
	tok    *oauth2.Token
}

func (s *stubFetcher) FetchReport(_ context.Context, tok *oauth2.Token, _ model.ReportQuery) (*model.Report, error) {
	s.tok = tok
	return s.report, s.err
}

func TestReportFetch(t *testing.T) {
	tok := &oauth2.Token{AccessToken: "access"}
	tokens := func(id string) (*oauth2.Token, error) {
		if id != "sid" {
			return nil, errors.New("unknown session")
		}
		return tok, nil
	}

	fetcher := &stubFetcher{report: reportOf(2)}
	ctx := chainContext(map[string]interface{}{cor.CtxIn: exportRequest()})
	NewReportFetch("fetch", fetcher, tokens).Execute(ctx)
	require.False(t, ctx.HasErrors())
	assert.Same(t, tok, fetcher.tok)
	assert.Equal(t, 2, ctx.Get(ParamReport).(*model.Report).Len())

	// No rows still yields a report carrying the requested columns.
	ctx = chainContext(map[string]interface{}{cor.CtxIn: exportRequest()})
	NewReportFetch("fetch", &stubFetcher{}, tokens).Execute(ctx)
	require.False(t, ctx.HasErrors())
	empty := ctx.Get(ParamReport).(*model.Report)
	assert.True(t, empty.Empty())
	assert.Equal(t, []string{"query", "device", "clicks", "impressions", "ctr", "position"}, empty.Columns())

	req := exportRequest()
	req.SessionID = "gone"
	ctx = chainContext(map[string]interface{}{cor.CtxIn: req})
	NewReportFetch("fetch", fetcher, tokens).Execute(ctx)
	assert.ErrorContains(t, cor.Err(ctx), "no credentials for export exp-1")
	assert.True(t, cor.Terminal(ctx))

	// A failing API call may succeed on redelivery.
	ctx = chainContext(map[string]interface{}{cor.CtxIn: exportRequest()})
	NewReportFetch("fetch", &stubFetcher{err: errors.New("500 backend error")}, tokens).Execute(ctx)
	assert.True(t, ctx.HasErrors())
	assert.False(t, cor.Terminal(ctx))
}

func TestReportPersistToBigQueryBatches(t *testing.T) {
	inserter := &recordingInserter{}
	ctx := chainContext(map[string]interface{}{
		ParamExportRequest: exportRequest(),
		ParamReport:        reportOf(5),
	})
	cmd := NewReportPersistToBigQuery("persist", inserter, 2)
	require.True(t, cmd.IsExecutable(ctx))
	cmd.Execute(ctx)

	require.False(t, ctx.HasErrors())
	require.Len(t, inserter.puts, 3)
	assert.Len(t, inserter.puts[0], 2)
	assert.Len(t, inserter.puts[2], 1)
	ids := map[string]bool{}
	for _, put := range inserter.puts {
		for _, saver := range put.([]*bigquery.StructSaver) {
			ids[saver.InsertID] = true
		}
	}
	assert.Len(t, ids, 5)

	saver := inserter.puts[0].([]*bigquery.StructSaver)[0]
	first := saver.Struct.(*model.ReportRecord)
	assert.Equal(t, first.InsertID(), saver.InsertID)
	assert.NotEmpty(t, saver.Schema)
	assert.Equal(t, "exp-1", first.ExportID)
	assert.Equal(t, "q0", first.Query)
	assert.Equal(t, "MOBILE", first.Device)
	assert.Empty(t, first.Page)
	assert.Equal(t, "2024-10-01", first.StartDate)
}

func TestReportPersistToBigQueryError(t *testing.T) {
	ctx := chainContext(map[string]interface{}{
		ParamExportRequest: exportRequest(),
		ParamReport:        reportOf(1),
	})
	NewReportPersistToBigQuery("persist", &recordingInserter{err: errors.New("quota")}, 0).Execute(ctx)
	assert.ErrorContains(t, cor.Err(ctx), "bigquery insert failed for export exp-1 at row 0")
}

func TestReportCSVUpload(t *testing.T) {
	objects := &memoryObjects{}
	ctx := chainContext(map[string]interface{}{
		ParamExportRequest: exportRequest(),
		ParamReport:        reportOf(2),
	})
	NewReportCSVUpload("upload", objects, "bucket", "exports/").Execute(ctx)
	require.False(t, ctx.HasErrors())

	obj := ctx.Get(ParamExportObject).(*cloud.GCSObject)
	assert.Equal(t, "text/csv", obj.MIMEType)
	uri := "gs://bucket/exports/https_www.example.com_/2024-10-01_2024-10-07_exp-1.csv"
	assert.Equal(t, uri, obj.URI())
	written := objects.objects[uri]
	require.NotNil(t, written)
	assert.True(t, written.closed)
	assert.Equal(t, "query,device,clicks,impressions,ctr,position\nq0,MOBILE,0,10,0,0\nq1,MOBILE,1,10,0,0\n", written.String())
}

func TestReportCSVUploadCloseError(t *testing.T) {
	ctx := chainContext(map[string]interface{}{
		ParamExportRequest: exportRequest(),
		ParamReport:        reportOf(1),
	})
	NewReportCSVUpload("upload", &memoryObjects{closeErr: errors.New("precondition failed")}, "bucket", "").Execute(ctx)
	assert.ErrorContains(t, cor.Err(ctx), "precondition failed")
	assert.Nil(t, ctx.Get(ParamExportObject))
}

type stubSigner struct{ err error }

func (s stubSigner) SignedURL(_ context.Context, obj *cloud.GCSObject) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return "https://storage.example.com/" + obj.Name + "?sig=1", nil
}

func TestExportResultRecorder(t *testing.T) {
	inserter := &recordingInserter{}
	var recorded *model.ExportResult
	var recordedFor string
	record := func(sessionID string, res *model.ExportResult) error {
		recordedFor, recorded = sessionID, res
		return nil
	}
	obj := &cloud.GCSObject{Bucket: "bucket", Name: "a.csv"}
	ctx := chainContext(map[string]interface{}{
		ParamExportRequest: exportRequest(),
		ParamReport:        reportOf(3),
		ParamExportObject:  obj,
	})
	NewExportSignedURL("sign", stubSigner{}).Execute(ctx)
	NewExportResultRecorder("record", inserter, record).Execute(ctx)
	require.False(t, ctx.HasErrors())

	assert.Equal(t, "sid", recordedFor)
	assert.Equal(t, model.ExportCompleted, recorded.Status)
	assert.Equal(t, 3, recorded.Rows)
	assert.Equal(t, "gs://bucket/a.csv", recorded.ObjectURI)
	assert.Equal(t, "https://storage.example.com/a.csv?sig=1", recorded.DownloadURL)
	assert.False(t, recorded.CompletedAt.IsZero())

	require.Len(t, inserter.puts, 1)
	saver := inserter.puts[0].(*bigquery.StructSaver)
	assert.Equal(t, "exp-1", saver.InsertID)
	archived := saver.Struct.(*model.ExportRecord)
	assert.Equal(t, int64(3), archived.Rows)
	assert.Equal(t, []string{"query", "device"}, archived.Dimensions)
	assert.True(t, archived.CompletedAt.Valid)
	assert.False(t, archived.Error.Valid)
}

func TestExportSignedURLError(t *testing.T) {
	ctx := chainContext(map[string]interface{}{ParamExportObject: &cloud.GCSObject{Bucket: "b", Name: "a.csv"}})
	NewExportSignedURL("sign", stubSigner{err: errors.New("permission denied")}).Execute(ctx)
	assert.ErrorContains(t, cor.Err(ctx), "failed to sign gs://b/a.csv")
}

func TestFailedResult(t *testing.T) {
	res := FailedResult(exportRequest(), errors.New("boom"))
	assert.Equal(t, model.ExportFailed, res.Status)
	assert.Equal(t, "boom", res.Error)

	rec := NewExportRecord(exportRequest(), res)
	assert.True(t, rec.Error.Valid)
	assert.Equal(t, "boom", rec.Error.StringVal)
}

type refreshingFetcher struct {
	refreshed *oauth2.Token
}

func (f *refreshingFetcher) FetchReport(ctx context.Context, _ *oauth2.Token, _ model.ReportQuery) (*model.Report, error) {
	if observe := cloud.TokenObserver(ctx); observe != nil {
		observe(f.refreshed)
	}
	return reportOf(1), nil
}

func TestReportFetchSavesRefreshedToken(t *testing.T) {
	tokens := func(string) (*oauth2.Token, error) { return &oauth2.Token{AccessToken: "stale"}, nil }
	fetcher := &refreshingFetcher{refreshed: &oauth2.Token{AccessToken: "fresh"}}

	saved := map[string]*oauth2.Token{}
	save := func(sessionID string, tok *oauth2.Token) error {
		saved[sessionID] = tok
		return nil
	}
	ctx := chainContext(map[string]interface{}{cor.CtxIn: exportRequest()})
	NewReportFetch("fetch", fetcher, tokens).WithTokenSaver(save).Execute(ctx)
	require.False(t, ctx.HasErrors())
	assert.Same(t, fetcher.refreshed, saved["sid"])

	// A failing save does not fail the export.
	ctx = chainContext(map[string]interface{}{cor.CtxIn: exportRequest()})
	NewReportFetch("fetch", fetcher, tokens).WithTokenSaver(func(string, *oauth2.Token) error {
		return errors.New("session not found")
	}).Execute(ctx)
	assert.False(t, ctx.HasErrors())
}
