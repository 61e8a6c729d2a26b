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

package cor_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaycherian/gcp-go-search-console-dashboard/internal/core/cor"
)

// upper turns the string input into upper case.
type upper struct {
	cor.BaseCommand
	runs int
}

func newUpper(name string) *upper {
	return &upper{BaseCommand: *cor.NewBaseCommand(name)}
}

func (c *upper) Execute(context cor.Context) {
	c.runs++
	context.Add(c.GetOutputParam(), strings.ToUpper(context.Get(c.GetInputParam()).(string)))
	c.Succeed(context)
}

type failing struct {
	cor.BaseCommand
	err error
}

func (c *failing) Execute(context cor.Context) {
	c.Fail(context, c.err)
}

func TestChainPassesOutputToNextInput(t *testing.T) {
	first, second := newUpper("first"), newUpper("second")
	chain := cor.NewBaseChain("chain").AddCommand(first).AddCommand(second)

	ctx := cor.NewBaseContext()
	ctx.Add(cor.CtxIn, "report")
	chain.Execute(ctx)

	require.False(t, ctx.HasErrors())
	assert.Equal(t, 1, first.runs)
	assert.Equal(t, 1, second.runs)
	assert.Equal(t, "REPORT", ctx.Get(cor.CtxIn))
	assert.Nil(t, ctx.Get(cor.CtxOut))
}

func TestChainStopsOnFailure(t *testing.T) {
	boom := errors.New("boom")
	after := newUpper("after")
	chain := cor.NewBaseChain("chain").
		AddCommand(&failing{BaseCommand: *cor.NewBaseCommand("failing"), err: boom}).
		AddCommand(after)

	ctx := cor.NewBaseContext()
	ctx.Add(cor.CtxIn, "report")
	chain.Execute(ctx)

	assert.True(t, ctx.HasErrors())
	assert.ErrorIs(t, cor.Err(ctx), boom)
	assert.Equal(t, 0, after.runs)
}

func TestChainContinueOnFailure(t *testing.T) {
	after := newUpper("after")
	chain := cor.NewBaseChain("chain").
		ContinueOnFailure(true).
		AddCommand(&failing{BaseCommand: *cor.NewBaseCommand("failing"), err: errors.New("boom")}).
		AddCommand(after)

	ctx := cor.NewBaseContext()
	ctx.Add(cor.CtxIn, "report")
	chain.Execute(ctx)

	assert.True(t, ctx.HasErrors())
	assert.Equal(t, 1, after.runs)
}

func TestChainRecordsNotExecutableCommand(t *testing.T) {
	cmd := newUpper("needs-input")
	chain := cor.NewBaseChain("chain").AddCommand(cmd)

	ctx := cor.NewBaseContext()
	chain.Execute(ctx)

	require.Contains(t, ctx.GetErrors(), "needs-input")
	assert.EqualError(t, ctx.GetErrors()["needs-input"], "command not executable: needs-input")
	assert.Equal(t, 0, cmd.runs)
}

func TestErrIsNilWithoutErrors(t *testing.T) {
	assert.NoError(t, cor.Err(cor.NewBaseContext()))
}

func TestTerminal(t *testing.T) {
	ctx := cor.NewBaseContext()
	assert.False(t, cor.Terminal(ctx))

	cause := errors.New("bad payload")
	ctx.AddError("reader", cor.Permanent(fmt.Errorf("decode: %w", cause)))
	assert.True(t, cor.Terminal(ctx))
	assert.ErrorIs(t, cor.Err(ctx), cause)
	assert.Equal(t, "decode: bad payload", cor.Err(ctx).Error())

	ctx.AddError("upload", errors.New("timeout"))
	assert.False(t, cor.Terminal(ctx))

	assert.Nil(t, cor.Permanent(nil))
	assert.False(t, cor.IsPermanent(errors.New("x")))
	assert.True(t, cor.IsPermanent(fmt.Errorf("wrapped: %w", cor.Permanent(cause))))
}
