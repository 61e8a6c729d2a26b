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

package cloud

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	credentials "cloud.google.com/go/iam/credentials/apiv1"
	"cloud.google.com/go/iam/credentials/apiv1/credentialspb"
	"cloud.google.com/go/storage"
)

const gcsScheme = "gs://"

// GCSObject identifies an object in Cloud Storage.
type GCSObject struct {
	Bucket   string // The name of the GCS bucket.
	Name     string // The name of the object.
	MIMEType string // The MIME type of the object (e.g., "text/csv").
}

// URI returns the gs:// form of the object.
func (o *GCSObject) URI() string {
	return gcsScheme + o.Bucket + "/" + o.Name
}

// ParseGCSURI splits a gs://bucket/object URI.
func ParseGCSURI(uri string) (*GCSObject, error) {
	if !strings.HasPrefix(uri, gcsScheme) {
		return nil, fmt.Errorf("invalid GCS URI format: %s", uri)
	}
	parts := strings.SplitN(strings.TrimPrefix(uri, gcsScheme), "/", 2)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("invalid GCS URI: unable to determine bucket and object from %s", uri)
	}
	return &GCSObject{Bucket: parts[0], Name: parts[1]}, nil
}

// ObjectWriter opens writers for new objects.
type ObjectWriter interface {
	NewWriter(ctx context.Context, obj *GCSObject) io.WriteCloser
}

// URLSigner issues time limited download links.
type URLSigner interface {
	SignedURL(ctx context.Context, obj *GCSObject) (string, error)
}

// GCSObjectStore writes objects with the storage client.
type GCSObjectStore struct {
	Client *storage.Client
}

func (s *GCSObjectStore) NewWriter(ctx context.Context, obj *GCSObject) io.WriteCloser {
	w := s.Client.Bucket(obj.Bucket).Object(obj.Name).NewWriter(ctx)
	w.ContentType = obj.MIMEType
	return w
}

// GCSURLSigner signs V4 URLs through the IAM credentials API, so the server
// needs no private key; its identity only needs the Service Account Token
// Creator role on ServiceAccount.
type GCSURLSigner struct {
	Storage        *storage.Client
	IAM            *credentials.IamCredentialsClient
	ServiceAccount string
	Expiry         time.Duration
}

func (s *GCSURLSigner) SignedURL(ctx context.Context, obj *GCSObject) (string, error) {
	opts := &storage.SignedURLOptions{
		Scheme:         storage.SigningSchemeV4,
		Method:         http.MethodGet,
		Expires:        time.Now().Add(s.Expiry),
		GoogleAccessID: s.ServiceAccount,
		SignBytes: func(payload []byte) ([]byte, error) {
			resp, err := s.IAM.SignBlob(ctx, &credentialspb.SignBlobRequest{
				Name:    "projects/-/serviceAccounts/" + s.ServiceAccount,
				Payload: payload,
			})
			if err != nil {
				return nil, fmt.Errorf("failed to sign blob as %s: %w", s.ServiceAccount, err)
			}
			return resp.SignedBlob, nil
		},
	}
	return s.Storage.Bucket(obj.Bucket).SignedURL(obj.Name, opts)
}
