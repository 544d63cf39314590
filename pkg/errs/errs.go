// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package errs defines the typed error kinds shared across the runtime.
//
// Most fallible operations in loom return one of these kinds (wrapped
// around an underlying cause); the provider factories, the registries and
// the expr parser/evaluator return plain fmt errors instead. Callers use
// errors.Is/errors.As to discriminate fatal errors (ConfigError,
// RouterMisconfigured) from ones the runtime is expected to recover from
// (ValidationError, DecayError, ToolDenied).
package errs

import (
	"errors"
	"fmt"
)

// Kind identifies the category of a loom error.
type Kind string

const (
	// KindConfig marks a malformed manifest or missing artifact. Fatal at
	// load time; prevents the workspace from being used.
	KindConfig Kind = "config_error"

	// KindValidation marks an agent output that failed schema validation.
	// Logged; the agent yields an empty output and the stage still advances.
	KindValidation Kind = "validation_error"

	// KindStore marks a store backend failure. Propagated to the caller.
	KindStore Kind = "store_error"

	// KindDecay marks a failed summarization/decay pass. Logged, never
	// propagated.
	KindDecay Kind = "decay_error"

	// KindToolDenied marks a policy rejection. Logged; callers get an
	// empty result rather than an error.
	KindToolDenied Kind = "tool_denied"

	// KindTool marks a tool body failure. Propagated to the calling agent.
	KindTool Kind = "tool_error"

	// KindModel marks a chat model invocation failure. Propagated; the
	// agent may yield an empty output.
	KindModel Kind = "model_error"

	// KindCancellation marks a session cancelled at a yield point.
	KindCancellation Kind = "cancellation_error"

	// KindRouterMisconfigured marks a stage with no allowed agents, or a
	// stage whose declared successor does not exist. Fatal at build time.
	KindRouterMisconfigured Kind = "router_misconfigured"
)

// Error is the concrete typed error used throughout loom.
type Error struct {
	Kind      Kind
	Component string
	Message   string
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Kind, e.Component, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Kind, e.Component, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is allows errors.Is(err, errs.New(kind, "", "")) to match on Kind alone.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == e.Kind
	}
	return false
}

// New builds a new typed error.
func New(kind Kind, component, message string) *Error {
	return &Error{Kind: kind, Component: component, Message: message}
}

// Wrap builds a new typed error wrapping an underlying cause.
func Wrap(kind Kind, component, message string, err error) *Error {
	return &Error{Kind: kind, Component: component, Message: message, Err: err}
}

// Of reports whether err carries the given Kind anywhere in its chain.
func Of(err error, kind Kind) bool {
	return errors.Is(err, &Error{Kind: kind})
}
