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

package agent

import (
	"fmt"

	"github.com/loomrun/loom/pkg/errs"
)

var errTextToSQLUnimplemented = errs.New(errs.KindValidation, "agent", "text_to_sql context entries have no resolver body")

func errUnknownExternalFunc(name string) error {
	return errs.New(errs.KindValidation, "agent", fmt.Sprintf("external function %q is not registered", name))
}

func errUnknownContextKind(kind ContextKind) error {
	return errs.New(errs.KindValidation, "agent", fmt.Sprintf("unknown context kind %q", kind))
}
