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

// Package commands provides the steps of the report export workflow. Each
// step is a cor.Command; the values shared between steps are stored in the
// cor.Context under the Param* keys below.
//
// Logic Flow:
//  1. ExportTriggerReader parses the Pub/Sub message into a model.ExportRequest.
//  2. ReportFetch runs the full query with the requesting session's token.
//  3. ReportPersistToBigQuery archives every row.
//  4. ReportCSVUpload writes the CSV object to Cloud Storage.
//  5. ExportSignedURL signs a download link for the object.
//  6. ExportResultRecorder stores the result in the archive and the session.
package commands

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jaycherian/gcp-go-search-console-dashboard/internal/core/cor"
	"github.com/jaycherian/gcp-go-search-console-dashboard/internal/core/model"
)

// Context keys shared by the export commands.
const (
	ParamExportRequest = "__export_request__"
	ParamReport        = "__report__"
	ParamExportObject  = "__export_object__"
	ParamDownloadURL   = "__download_url__"
)

// ExportTriggerReader decodes the export request published by the web API.
// A message it cannot decode fails permanently.
type ExportTriggerReader struct {
	cor.BaseCommand
}

func NewExportTriggerReader(name string) *ExportTriggerReader {
	return &ExportTriggerReader{BaseCommand: *cor.NewBaseCommand(name)}
}

func (c *ExportTriggerReader) Execute(context cor.Context) {
	in, ok := context.Get(c.GetInputParam()).(string)
	if !ok {
		c.Fail(context, cor.Permanent(fmt.Errorf("unexpected input %T", context.Get(c.GetInputParam()))))
		return
	}

	out := &model.ExportRequest{}
	if err := json.Unmarshal([]byte(in), out); err != nil {
		c.Fail(context, cor.Permanent(fmt.Errorf("failed to unmarshal export request: %w", err)))
		return
	}
	if out.ID == "" || out.SessionID == "" {
		c.Fail(context, cor.Permanent(errors.New("export request without id or session")))
		return
	}

	c.Succeed(context)
	context.Add(ParamExportRequest, out)
	context.Add(c.GetOutputParam(), out)
}
