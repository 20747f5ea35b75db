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
    `testing`

    `github.com/cloudwego/structurizer/hir`
    `github.com/stretchr/testify/require`
)

func TestRewrite_LadderPhiFunnel(t *testing.T) {
    pool := NewPool()
    n := mknodes(pool, "a", "b", "c", "d")
    termCond(n["a"], n["b"], n["c"])
    termBranch(n["b"], n["d"])
    termBranch(n["c"], n["d"])
    termReturn(n["d"])

    vb := &hir.Value { Name: "vb" }
    vc := &hir.Value { Name: "vc" }
    n["d"].Phi = []*Phi {{
        Def      : &hir.Value { Name: "m" },
        Incoming : []Incoming {{ Block: n["b"], Value: vb }, { Block: n["c"], Value: vc }},
    }}

    g := testCFG(pool, n["a"])
    g.Recompute()
    ladder := g.CreateLadderBlock(n["a"], n["d"], ".ladder")

    /* both edges funnel through the ladder */
    require.Equal(t, []*Node { ladder }, n["b"].Succ)
    require.Equal(t, []*Node { ladder }, n["c"].Succ)
    require.Equal(t, []*Node { n["d"] }, ladder.Succ)

    /* the merged value materialized at the ladder tail */
    require.Equal(t, 1, len(ladder.Phi))
    lp := ladder.Phi[0]
    require.Equal(t, 2, len(lp.Incoming))
    bv, _ := lp.incomingFor(n["b"])
    cv, _ := lp.incomingFor(n["c"])
    require.Equal(t, vb, bv)
    require.Equal(t, vc, cv)

    /* and the original phi now sees only the ladder */
    require.Equal(t, 1, len(n["d"].Phi[0].Incoming))
    require.Equal(t, ladder, n["d"].Phi[0].Incoming[0].Block)
    require.Equal(t, lp.Def, n["d"].Phi[0].Incoming[0].Value)
}

func TestRewrite_HelperBlocks(t *testing.T) {
    pool := NewPool()
    n := mknodes(pool, "a", "b", "c")
    termCond(n["a"], n["b"], n["c"])
    termBranch(n["b"], n["c"])
    termReturn(n["c"])

    g := testCFG(pool, n["a"])
    g.Recompute()

    /* pred helper takes over all forward in-edges */
    pred := g.CreateHelperPredBlock(n["c"])
    require.Equal(t, []*Node { pred }, n["c"].Pred)
    require.True(t, pred.HasPred(n["a"]))
    require.True(t, pred.HasPred(n["b"]))

    /* succ helper takes over the terminator and flags the override */
    succ := g.CreateHelperSuccBlock(n["a"])
    require.Equal(t, []*Node { succ }, n["a"].Succ)
    require.IsType(t, &TermBranch{}, n["a"].Term)
    require.IsType(t, &TermCondition{}, succ.Term)
    require.Equal(t, succ, n["a"].PhiOverride)
    require.True(t, n["b"].HasPred(succ))
    require.False(t, n["b"].HasPred(n["a"]))
}

func TestRewrite_TraverseDominatedRewrite(t *testing.T) {
    pool := NewPool()
    n := mknodes(pool, "a", "b", "c", "d", "x")
    termCond(n["a"], n["b"], n["c"])
    termBranch(n["b"], n["d"])
    termBranch(n["c"], n["d"])
    termReturn(n["d"])
    termReturn(n["x"])

    g := testCFG(pool, n["a"])
    g.Recompute()

    /* only branches inside b's dominated region move */
    g.TraverseDominatedBlocksAndRewriteBranch(n["b"], n["d"], n["x"])
    require.Equal(t, []*Node { n["x"] }, n["b"].Succ)
    require.Equal(t, []*Node { n["d"] }, n["c"].Succ)
    require.False(t, n["d"].HasPred(n["b"]))
    require.True(t, n["x"].HasPred(n["b"]))
}

func TestRewrite_DegenerateElimination(t *testing.T) {
    pool := NewPool()
    n := mknodes(pool, "a", "x", "b")
    termBranch(n["a"], n["x"])
    termBranch(n["x"], n["b"])
    termReturn(n["b"])

    g := testCFG(pool, n["a"])
    g.Recompute()
    require.True(t, g.EliminateDegenerateBlocks())

    /* x folded into its successor */
    require.Equal(t, []*Node { n["b"] }, n["a"].Succ)
    require.Equal(t, []*Node { n["a"] }, n["b"].Pred)
    cnt := 0
    pool.ForEachNode(func(*Node) { cnt++ })
    require.Equal(t, 2, cnt)
}

func TestRewrite_DuplicateNode(t *testing.T) {
    pool := NewPool()
    n := mknodes(pool, "a", "b", "s", "e")
    termCond(n["a"], n["b"], n["s"])
    termBranch(n["b"], n["s"])
    termBranch(n["s"], n["e"])
    termReturn(n["e"])

    def := &hir.Value { Name: "v" }
    n["s"].Ops = []*hir.Instr {{ Op: hir.OP_generic, Def: def, Text: "compute" }}

    g := testCFG(pool, n["a"])
    g.Recompute()
    require.True(t, g.CanDuplicatePhis(n["s"]))

    d := g.DuplicateNode(n["s"], []*Node { n["a"] })

    /* a goes to the clone, b keeps the original */
    require.True(t, d.HasPred(n["a"]))
    require.False(t, n["s"].HasPred(n["a"]))
    require.True(t, n["s"].HasPred(n["b"]))
    require.Equal(t, []*Node { n["e"] }, d.Succ)

    /* operations were cloned with renamed definitions */
    require.Equal(t, 1, len(d.Ops))
    require.Equal(t, "compute", d.Ops[0].Text)
    require.NotEqual(t, def, d.Ops[0].Def)
}

func TestRewrite_CanDuplicatePhis(t *testing.T) {
    pool := NewPool()
    n := mknodes(pool, "a", "b", "c")
    termCond(n["a"], n["b"], n["c"])
    termBranch(n["b"], n["c"])
    termReturn(n["c"])

    /* a phi consuming a value defined in the same node blocks duplication */
    def := &hir.Value { Name: "self" }
    n["c"].Ops = []*hir.Instr {{ Op: hir.OP_generic, Def: def, Text: "mk" }}
    n["c"].Phi = []*Phi {{
        Def      : &hir.Value { Name: "m" },
        Incoming : []Incoming {{ Block: n["a"], Value: def }, { Block: n["b"], Value: hir.Undef }},
    }}

    g := testCFG(pool, n["a"])
    g.Recompute()
    require.False(t, g.CanDuplicatePhis(n["c"]))
}

func TestRewrite_PhiRepairUndef(t *testing.T) {
    pool := NewPool()
    n := mknodes(pool, "a", "b", "c", "d")
    termCond(n["a"], n["b"], n["c"])
    termBranch(n["b"], n["d"])
    termBranch(n["c"], n["d"])
    termReturn(n["d"])

    /* the phi only knows about one arm */
    vb := &hir.Value { Name: "vb" }
    n["d"].Phi = []*Phi {{
        Def      : &hir.Value { Name: "m" },
        Incoming : []Incoming {{ Block: n["b"], Value: vb }},
    }}

    g := testCFG(pool, n["a"])
    g.Recompute()
    g.FixupPhis()

    ph := n["d"].Phi[0]
    require.Equal(t, 2, len(ph.Incoming))
    v, ok := ph.incomingFor(n["c"])
    require.True(t, ok)
    require.Equal(t, hir.Undef, v)
}
