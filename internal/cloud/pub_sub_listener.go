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

// This file defines the Pub/Sub listener that hands every received message to
// a cor.Command. A message is acknowledged when the command completes without
// errors or fails only with permanent errors (see cor.Terminal); otherwise it
// is left to expire and be redelivered according to the subscription's retry
// policy.

package cloud

import (
	"context"
	"log/slog"

	"cloud.google.com/go/pubsub"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/jaycherian/gcp-go-search-console-dashboard/internal/core/cor"
)

// PubSubListener connects a subscription to the command processing its
// messages.
type PubSubListener struct {
	client       *pubsub.Client
	subscription *pubsub.Subscription
	command      cor.Command
}

// NewPubSubListener returns a listener for the subscription id. The command
// may be nil and set later with SetCommand.
func NewPubSubListener(
	pubsubClient *pubsub.Client,
	subscriptionID string,
	command cor.Command,
) (cmd *PubSubListener, err error) {
	cmd = &PubSubListener{
		client:       pubsubClient,
		subscription: pubsubClient.Subscription(subscriptionID),
		command:      command,
	}
	return cmd, nil
}

// SetCommand attaches the command unless one is already set.
func (m *PubSubListener) SetCommand(command cor.Command) {
	if m.command == nil {
		m.command = command
	}
}

// acknowledge reports whether the message is done with: it either succeeded
// or failed in a way a redelivery would repeat.
func acknowledge(chainCtx cor.Context) bool {
	return !chainCtx.HasErrors() || cor.Terminal(chainCtx)
}

// Listen receives messages in a background goroutine until ctx is done.
func (m *PubSubListener) Listen(ctx context.Context) {
	slog.Info("listening", "subscription", m.subscription.String())

	go func() {
		tracer := otel.Tracer("message-listener")

		err := m.subscription.Receive(ctx, func(_ context.Context, msg *pubsub.Message) {
			spanCtx, span := tracer.Start(ctx, "receive-message")
			defer span.End()
			span.SetAttributes(attribute.String("msg_id", msg.ID))
			slog.DebugContext(spanCtx, "received message", "id", msg.ID)

			chainCtx := cor.NewBaseContext()
			chainCtx.SetContext(spanCtx)
			chainCtx.Add(cor.CtxIn, string(msg.Data))

			m.command.Execute(chainCtx)

			if !chainCtx.HasErrors() {
				span.SetStatus(codes.Ok, "success")
			} else {
				span.SetStatus(codes.Error, "failed")
				for _, e := range chainCtx.GetErrors() {
					slog.ErrorContext(spanCtx, "error executing chain", "id", msg.ID, "error", e)
				}
			}
			if acknowledge(chainCtx) {
				msg.Ack()
			}
		})
		if err != nil {
			slog.Error("error receiving data", "subscription", m.subscription.String(), "error", err)
		}
	}()
}
