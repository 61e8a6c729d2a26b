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

	"cloud.google.com/go/pubsub"
)

// Publisher sends a message and returns its server assigned id.
type Publisher interface {
	Publish(ctx context.Context, data []byte, attributes map[string]string) (string, error)
}

// TopicPublisher publishes to a Pub/Sub topic and waits for the ack.
type TopicPublisher struct {
	Topic *pubsub.Topic
}

func (p *TopicPublisher) Publish(ctx context.Context, data []byte, attributes map[string]string) (string, error) {
	id, err := p.Topic.Publish(ctx, &pubsub.Message{Data: data, Attributes: attributes}).Get(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to publish to %s: %w", p.Topic.ID(), err)
	}
	return id, nil
}
