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

// Structurize runs the bounded fixed-point driver. Each pass is a fixed,
// deterministic sequence of rewrites; analyses are recomputed after every
// step that changed edges, so the following step always sees a consistent
// CFG. A pass without rewrites means the shape is stable.
func (self *CFG) Structurize() error {
    self.Recompute()

    /* restore the single-continue invariant once, up front */
    if self.RewriteMultipleBackEdges() {
        self.Recompute()
    }

    for pass := 0; pass < self.Options.MaxPasses; pass++ {
        countPass()
        dirty := false

        /* loops first: merge and continue per header */
        self.FindLoops()
        self.debugPass(pass, "find_loops")

        if self.RewriteTransposedLoops() {
            dirty = true
            self.Recompute()
            self.FindLoops()
            self.debugPass(pass, "transposed_loops")
        }

        /* selection and switch merges */
        if self.FindSelectionMerges(pass) {
            dirty = true
            self.Recompute()
            self.debugPass(pass, "selection_merges")
        }
        if self.FindSwitchBlocks(pass) {
            dirty = true
            self.Recompute()
            self.debugPass(pass, "switch_blocks")
        }

        /* structural repairs */
        if self.DuplicateImpossibleMergeConstructs() {
            dirty = true
            self.Recompute()
            self.debugPass(pass, "duplicate_constructs")
        }
        if self.RewriteInvalidLoopBreaks() {
            dirty = true
            self.Recompute()
            self.debugPass(pass, "invalid_breaks")
        }
        if self.SplitMergeScopes() {
            dirty = true
            self.Recompute()
            self.debugPass(pass, "split_merge_scopes")
        }
        if self.EliminateDegenerateBlocks() {
            dirty = true
            self.Recompute()
            self.debugPass(pass, "degenerate_blocks")
        }

        /* repair Phis over whatever control flow this pass created */
        self.FixupPhis()

        if !dirty {
            if len(self.irreducible) != 0 {
                return NonConvergentError {
                    Func        : self.Name,
                    Passes      : pass + 1,
                    Irreducible : true,
                }
            }
            self.PruneDeadPreds()
            self.Recompute()
            self.FixupPhis()
            for _, h := range self.PostOrder {
                if h.Merge == MergeLoop {
                    h.State = LoopFinalized
                }
            }
            if self.Options.GraphvizDump != "" {
                self.DumpGraphviz(self.Options.GraphvizDump)
            }
            return nil
        }
    }

    return NonConvergentError {
        Func   : self.Name,
        Passes : self.Options.MaxPasses,
    }
}
