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
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/jaycherian/gcp-go-search-console-dashboard/internal/cloud"
	"github.com/jaycherian/gcp-go-search-console-dashboard/internal/core/cor"
	"github.com/jaycherian/gcp-go-search-console-dashboard/internal/core/model"
)

var unsafeObjectChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// ExportObjectName returns "<prefix><property>/<start>_<end>_<id>.csv" with
// the property reduced to characters safe in object names.
func ExportObjectName(prefix string, req *model.ExportRequest) string {
	property := unsafeObjectChars.ReplaceAllString(req.Query.Property, "_")
	return fmt.Sprintf("%s%s/%s_%s_%s.csv", prefix, property,
		req.Query.StartDate.Format(model.DateLayout),
		req.Query.EndDate.Format(model.DateLayout),
		req.ID)
}

// ReportCSVUpload writes the report as a CSV object.
type ReportCSVUpload struct {
	cor.BaseCommand
	objects cloud.ObjectWriter
	bucket  string
	prefix  string
}

func NewReportCSVUpload(name string, objects cloud.ObjectWriter, bucket string, prefix string) *ReportCSVUpload {
	return &ReportCSVUpload{BaseCommand: *cor.NewBaseCommand(name), objects: objects, bucket: bucket, prefix: prefix}
}

func (c *ReportCSVUpload) IsExecutable(context cor.Context) bool {
	return context != nil && context.Get(ParamExportRequest) != nil && context.Get(ParamReport) != nil
}

func (c *ReportCSVUpload) Execute(context cor.Context) {
	req := context.Get(ParamExportRequest).(*model.ExportRequest)
	report := context.Get(ParamReport).(*model.Report)

	obj := &cloud.GCSObject{Bucket: c.bucket, Name: ExportObjectName(c.prefix, req), MIMEType: "text/csv"}
	writer := c.objects.NewWriter(context.GetContext(), obj)

	// The object is only committed by a successful Close.
	writeErr := report.WriteCSV(writer)
	if err := errors.Join(writeErr, writer.Close()); err != nil {
		c.Fail(context, fmt.Errorf("failed to write %s: %w", obj.URI(), err))
		return
	}

	c.Succeed(context)
	slog.InfoContext(context.GetContext(), "uploaded export", "export_id", req.ID, "object", obj.URI())
	context.Add(ParamExportObject, obj)
	context.Add(c.GetOutputParam(), obj)
}
