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

// Package cor is a small chain of responsibility. A Chain runs Commands in
// order over a shared Context; the output a command stores under CtxOut is
// handed to the next command under CtxIn. Commands report failures by adding
// errors to the Context, after which the chain stops unless configured to
// continue.
package cor

import (
	"context"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	// CtxIn is the key holding the primary input of the running command.
	CtxIn = "__IN__"
	// CtxOut is the key where a command places its primary output.
	CtxOut = "__OUT__"
)

// Context carries values, errors and the Go context through a chain.
type Context interface {
	SetContext(ctx context.Context)
	GetContext() context.Context

	// Add stores a value and returns the Context for chaining.
	Add(key string, value interface{}) Context
	Get(key string) interface{}
	Remove(key string)

	// AddError records err under key, normally the failing command's name.
	AddError(key string, err error)
	GetErrors() map[string]error
	HasErrors() bool
}

// Executable is anything that can run against a Context.
type Executable interface {
	Execute(context Context)
}

// Command is a named, instrumented step of a chain.
type Command interface {
	Executable

	GetName() string
	GetInputParam() string
	GetOutputParam() string

	// IsExecutable reports whether the Context holds what Execute needs.
	IsExecutable(context Context) bool

	GetTracer() trace.Tracer
	GetMeter() metric.Meter
	GetSuccessCounter() metric.Int64Counter
	GetErrorCounter() metric.Int64Counter
}

// Chain is a Command made of Commands.
type Chain interface {
	Command

	ContinueOnFailure(bool) Chain
	AddCommand(command Command) Chain
}
