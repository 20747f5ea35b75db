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
    `testing`

    `github.com/cloudwego/structurizer/debug`
    `github.com/cloudwego/structurizer/hir`
    `github.com/stretchr/testify/require`
)

func TestStructurize_PublicAPI(t *testing.T) {
    p := hir.CreateBuilder("kernel")
    p.Label("entry")
    cv := p.Op("cmp")
    p.BR(cv, "then", "else")
    p.Label("then")
    p.Stmt("a")
    p.JMP("join")
    p.Label("else")
    p.Stmt("b")
    p.JMP("join")
    p.Label("join")
    p.RET(nil)
    fn := p.Build()

    before := debug.GetStats()
    require.NoError(t, Structurize(fn))
    after := debug.GetStats()
    require.Greater(t, after.Passes, before.Passes)

    /* the header was annotated */
    var sm *hir.Instr
    for _, ins := range fn.Entry.Ins {
        if ins.Op == hir.OP_selection_merge {
            sm = ins
        }
    }
    require.NotNil(t, sm)
    require.Equal(t, "join", sm.Blocks[0].Name)
}

func TestStructurize_BudgetExhausted(t *testing.T) {
    p := hir.CreateBuilder("loopy")
    p.Label("h")
    p.JMP("q")
    p.Label("q")
    cv := p.Op("done")
    p.BR(cv, "e", "l")
    p.Label("l")
    p.JMP("h")
    p.Label("e")
    p.RET(nil)
    fn := p.Build()

    /* one pass is never enough for a loop that needs a break ladder */
    err := Structurize(fn, WithMaxPasses(1))
    require.Error(t, err)
    require.IsType(t, NonConvergentError{}, err)
}
