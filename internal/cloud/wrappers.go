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

// This file contains quota aware wrappers. Both the Gemini model and the
// Search Console API are subject to per-minute quotas, so every call made
// through these wrappers waits on a token bucket first.

package cloud

import (
	"context"
	"net/http"

	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// QuotaAwareGenerativeAIModel pairs a Gemini model with its generation config
// and a rate limiter.
type QuotaAwareGenerativeAIModel struct {
	GenerativeContentConfig *genai.GenerateContentConfig
	ModelName               string
	ModelHandle             *genai.Models
	RateLimit               *rate.Limiter
}

// NewQuotaAwareModel wraps the model handle with a limiter allowing
// requestsPerSecond calls per second.
func NewQuotaAwareModel(wrapped *genai.GenerateContentConfig, name string, modelHandle *genai.Models, requestsPerSecond int) *QuotaAwareGenerativeAIModel {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 1
	}
	return &QuotaAwareGenerativeAIModel{
		GenerativeContentConfig: wrapped,
		ModelName:               name,
		ModelHandle:             modelHandle,
		RateLimit:               rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond),
	}
}

// GenerateContent blocks until the limiter admits the call, then generates.
func (q *QuotaAwareGenerativeAIModel) GenerateContent(ctx context.Context, content []*genai.Content) (*genai.GenerateContentResponse, error) {
	if err := q.RateLimit.Wait(ctx); err != nil {
		return nil, err
	}
	return q.ModelHandle.GenerateContent(ctx, q.ModelName, content, q.GenerativeContentConfig)
}

// QuotaAwareTransport is an http.RoundTripper that waits on a shared limiter
// before every request.
type QuotaAwareTransport struct {
	Base    http.RoundTripper
	Limiter *rate.Limiter
}

// NewQuotaAwareTransport returns a transport limited to requestsPerSecond with
// the given burst. A non positive rate disables limiting.
func NewQuotaAwareTransport(base http.RoundTripper, requestsPerSecond float64, burst int) *QuotaAwareTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	if burst <= 0 {
		burst = 1
	}
	return &QuotaAwareTransport{Base: base, Limiter: rate.NewLimiter(limit, burst)}
}

func (t *QuotaAwareTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.Limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return t.Base.RoundTrip(req)
}
