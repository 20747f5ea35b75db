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

package cfg

import (
    `fmt`
)

// UnsupportedTerminatorError occurs when a host block terminates with an
// opcode the structurizer does not know. Fatal, no recovery.
type UnsupportedTerminatorError struct {
    Func  string
    Block string
}

func (self UnsupportedTerminatorError) Error() string {
    return fmt.Sprintf("UnsupportedTerminator(%s): block %s", self.Func, self.Block)
}

// NonConvergentError occurs when the CFG fails to stabilize within the
// iteration budget, including the case of an irreducible remainder that
// duplication could not untangle.
type NonConvergentError struct {
    Func        string
    Passes      int
    Irreducible bool
}

func (self NonConvergentError) Error() string {
    if self.Irreducible {
        return fmt.Sprintf("NonConvergent(%s): irreducible control flow remains after %d passes", self.Func, self.Passes)
    }
    return fmt.Sprintf("NonConvergent(%s): no stable shape after %d passes", self.Func, self.Passes)
}

// MalformedPhiError describes a Phi entry that referenced a block outside
// the predecessor set. It is recovered locally with an undef replacement
// and only surfaces as a warning through the counters.
type MalformedPhiError struct {
    Func  string
    Block string
    Value string
}

func (self MalformedPhiError) Error() string {
    return fmt.Sprintf("MalformedPhi(%s): %s in block %s", self.Func, self.Value, self.Block)
}
