/*
 * Copyright 2023 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package structurizer

import (
	"github.com/cloudwego/structurizer/internal/cfg"
)

// UnsupportedTerminatorError occurs when a host block terminates with an
// opcode the structurizer does not know. Fatal, no recovery.
type UnsupportedTerminatorError = cfg.UnsupportedTerminatorError

// NonConvergentError occurs when the CFG fails to stabilize within the
// iteration budget; Irreducible is set when the cause is an irreducible
// region that node duplication could not untangle.
type NonConvergentError = cfg.NonConvergentError

// MalformedPhiError describes a Phi entry referencing a block outside the
// predecessor set. Such entries are dropped at import and replaced with
// undef where load-bearing; the error type exists for callers that inspect
// the warning counters.
type MalformedPhiError = cfg.MalformedPhiError
