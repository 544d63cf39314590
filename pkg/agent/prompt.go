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
	"regexp"
	"strings"

	"github.com/loomrun/loom/pkg/errs"
)

// placeholderPattern matches the {name} slots a prompt.md declares (spec
// §6 workspace contract: "free text with {placeholder} slots").
var placeholderPattern = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// renderPrompt substitutes resolved context values into tmpl by name (spec
// §4.C7 step 3). A placeholder with no matching entry in values fails the
// invocation rather than rendering silently with a blank.
func renderPrompt(tmpl string, values map[string]any) (string, error) {
	var missing []string

	rendered := placeholderPattern.ReplaceAllStringFunc(tmpl, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		val, ok := values[name]
		if !ok {
			missing = append(missing, name)
			return match
		}
		if val == nil {
			return ""
		}
		return fmt.Sprint(val)
	})

	if len(missing) > 0 {
		return "", errs.Wrap(errs.KindValidation, "agent",
			"prompt template references unresolved placeholders: "+strings.Join(missing, ", "), errs.New(errs.KindValidation, "agent", "missing placeholder"))
	}
	return rendered, nil
}
