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
	"fmt"

	"github.com/jaycherian/gcp-go-search-console-dashboard/internal/cloud"
	"github.com/jaycherian/gcp-go-search-console-dashboard/internal/core/cor"
)

// ExportSignedURL issues a download link for the uploaded object.
type ExportSignedURL struct {
	cor.BaseCommand
	signer cloud.URLSigner
}

func NewExportSignedURL(name string, signer cloud.URLSigner) *ExportSignedURL {
	return &ExportSignedURL{BaseCommand: *cor.NewBaseCommand(name), signer: signer}
}

func (c *ExportSignedURL) IsExecutable(context cor.Context) bool {
	return context != nil && context.Get(ParamExportObject) != nil
}

func (c *ExportSignedURL) Execute(context cor.Context) {
	obj := context.Get(ParamExportObject).(*cloud.GCSObject)
	url, err := c.signer.SignedURL(context.GetContext(), obj)
	if err != nil {
		c.Fail(context, fmt.Errorf("failed to sign %s: %w", obj.URI(), err))
		return
	}
	c.Succeed(context)
	context.Add(ParamDownloadURL, url)
	context.Add(c.GetOutputParam(), url)
}
