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
    `strings`
    `testing`

    `github.com/stretchr/testify/require`
)

func TestStructurize_Diamond(t *testing.T) {
    pool := NewPool()
    n := mknodes(pool, "a", "b", "c", "d")
    termCond(n["a"], n["b"], n["c"])
    termBranch(n["b"], n["d"])
    termBranch(n["c"], n["d"])
    termReturn(n["d"])

    g := testCFG(pool, n["a"])
    require.NoError(t, g.Structurize())

    require.Equal(t, MergeSelection, n["a"].Merge)
    require.Equal(t, n["d"], n["a"].SelMerge)
    require.False(t, n["a"].SelMergeExit)

    /* no new nodes */
    cnt := 0
    pool.ForEachNode(func(*Node) { cnt++ })
    require.Equal(t, 4, cnt)
    validateStructured(t, g)
}

func TestStructurize_EarlyExitLoop(t *testing.T) {
    pool := NewPool()
    n := mknodes(pool, "h", "q", "r", "l", "e")
    termBranch(n["h"], n["q"])
    termCond(n["q"], n["r"], n["l"])
    termBranch(n["r"], n["e"])
    termBranch(n["l"], n["h"])
    termReturn(n["e"])

    g := testCFG(pool, n["h"])
    require.NoError(t, g.Structurize())

    require.Equal(t, MergeLoop, n["h"].Merge)
    require.Equal(t, n["e"], n["h"].LoopMerge)
    require.Equal(t, n["l"], n["h"].LoopContinue)

    /* the early exit turns q into a selection whose merge funnels to e */
    require.Equal(t, MergeSelection, n["q"].Merge)
    require.NotNil(t, n["q"].SelMerge)
    require.Equal(t, n["e"], seeThroughLadder(n["q"].SelMerge))
    validateStructured(t, g)
}

func TestStructurize_DirectLoopBreak(t *testing.T) {
    pool := NewPool()
    n := mknodes(pool, "h", "q", "l", "e")
    termBranch(n["h"], n["q"])
    termCond(n["q"], n["e"], n["l"])
    termBranch(n["l"], n["h"])
    termReturn(n["e"])

    g := testCFG(pool, n["h"])
    require.NoError(t, g.Structurize())

    require.Equal(t, MergeLoop, n["h"].Merge)
    require.Equal(t, n["e"], n["h"].LoopMerge)
    require.Equal(t, n["l"], n["h"].LoopContinue)

    /* the break edge was funnelled through a fresh ladder */
    require.Equal(t, MergeSelection, n["q"].Merge)
    ladder := n["q"].SelMerge
    require.NotNil(t, ladder)
    require.NotEqual(t, n["e"], ladder)
    require.True(t, strings.Contains(ladder.Name, ".ladder"))
    require.Equal(t, n["e"], seeThroughLadder(ladder))
    validateStructured(t, g)
}

func TestStructurize_Irreducible(t *testing.T) {
    pool := NewPool()
    n := mknodes(pool, "a", "b", "c")
    termCond(n["a"], n["b"], n["c"])
    termBranch(n["b"], n["c"])
    termBranch(n["c"], n["b"])

    g := testCFG(pool, n["a"])
    require.NoError(t, g.Structurize())

    /* the side entry was resolved by duplication; the loop is headed by
     * b, the target of the DFS back edge, not by c, which has the lower
     * forward post-visit index, and is now dominated */
    require.Equal(t, MergeLoop, n["b"].Merge)
    require.Equal(t, 1, len(g.backPreds[n["b"].Id]))
    require.True(t, n["b"].Dominates(g.backPreds[n["b"].Id][0]))
    validateStructured(t, g)
}

func TestStructurize_InfiniteLoop(t *testing.T) {
    pool := NewPool()
    n := mknodes(pool, "h")
    termBranch(n["h"], n["h"])

    g := testCFG(pool, n["h"])
    require.NoError(t, g.Structurize())

    require.Equal(t, MergeLoop, n["h"].Merge)
    require.Equal(t, n["h"], n["h"].LoopContinue)

    /* the merge is a synthesized unreachable target */
    m := n["h"].LoopMerge
    require.NotNil(t, m)
    require.True(t, strings.Contains(m.Name, ".unreachable"))
    require.IsType(t, &TermUnreachable{}, m.Term)
    require.Empty(t, m.Pred)
    validateStructured(t, g)
}

func TestStructurize_MultiBackEdge(t *testing.T) {
    pool := NewPool()
    n := mknodes(pool, "h", "a", "l1", "l2")
    termBranch(n["h"], n["a"])
    termCond(n["a"], n["l1"], n["l2"])
    termBranch(n["l1"], n["h"])
    termBranch(n["l2"], n["h"])

    g := testCFG(pool, n["h"])
    require.NoError(t, g.Structurize())

    /* one synthetic continue funnels both back edges */
    require.Equal(t, MergeLoop, n["h"].Merge)
    c := n["h"].LoopContinue
    require.NotNil(t, c)
    require.NotEqual(t, n["l1"], c)
    require.NotEqual(t, n["l2"], c)
    require.Equal(t, []*Node { c }, g.backPreds[n["h"].Id])
    require.True(t, c.HasPred(n["l1"]))
    require.True(t, c.HasPred(n["l2"]))
    require.Equal(t, []*Node { n["h"] }, c.Succ)
    validateStructured(t, g)
}

func TestStructurize_SwitchCommonMerge(t *testing.T) {
    pool := NewPool()
    n := mknodes(pool, "s", "m", "e")
    termSwitch(n["s"], n["m"], n["m"], n["m"], n["m"])
    termBranch(n["m"], n["e"])
    termReturn(n["e"])

    g := testCFG(pool, n["s"])
    require.NoError(t, g.Structurize())

    require.Equal(t, MergeSelection, n["s"].Merge)
    require.Equal(t, n["m"], n["s"].SelMerge)

    /* no ladder inserted */
    cnt := 0
    pool.ForEachNode(func(*Node) { cnt++ })
    require.Equal(t, 3, cnt)
    validateStructured(t, g)
}

func TestStructurize_SwitchFallthrough(t *testing.T) {
    pool := NewPool()
    n := mknodes(pool, "s", "c1", "c2", "m", "e")
    termSwitch(n["s"], n["m"], n["c1"], n["c2"])
    termBranch(n["c1"], n["c2"])
    termBranch(n["c2"], n["m"])
    termBranch(n["m"], n["e"])
    termReturn(n["e"])

    g := testCFG(pool, n["s"])
    require.NoError(t, g.Structurize())

    require.Equal(t, MergeSelection, n["s"].Merge)
    require.Equal(t, n["m"], n["s"].SelMerge)

    /* the fallthrough edge goes through an intermediate block now */
    require.False(t, n["c1"].HasSucc(n["c2"]))
    step := n["c1"].Succ[0]
    require.True(t, strings.Contains(step.Name, ".ladder"))
    require.Equal(t, []*Node { n["c2"] }, step.Succ)
    validateStructured(t, g)
}

func TestStructurize_NestedLoops(t *testing.T) {
    pool := NewPool()
    n := mknodes(pool, "h1", "h2", "b", "l2", "m2", "l1", "e")
    termBranch(n["h1"], n["h2"])
    termBranch(n["h2"], n["b"])
    termCond(n["b"], n["m2"], n["l2"])
    termBranch(n["l2"], n["h2"])
    termCond(n["m2"], n["e"], n["l1"])
    termBranch(n["l1"], n["h1"])
    termReturn(n["e"])

    g := testCFG(pool, n["h1"])
    require.NoError(t, g.Structurize())

    require.Equal(t, MergeLoop, n["h1"].Merge)
    require.Equal(t, MergeLoop, n["h2"].Merge)
    require.Equal(t, n["l1"], n["h1"].LoopContinue)
    require.Equal(t, n["l2"], n["h2"].LoopContinue)
    require.Equal(t, n["e"], n["h1"].LoopMerge)
    require.Equal(t, n["m2"], n["h2"].LoopMerge)
    validateStructured(t, g)
}

func TestStructurize_Idempotent(t *testing.T) {
    pool := NewPool()
    n := mknodes(pool, "h", "q", "l", "e")
    termBranch(n["h"], n["q"])
    termCond(n["q"], n["e"], n["l"])
    termBranch(n["l"], n["h"])
    termReturn(n["e"])

    g := testCFG(pool, n["h"])
    require.NoError(t, g.Structurize())
    first := dumpShape(g)

    /* a second run over the already-structured graph is a no-op */
    require.NoError(t, g.Structurize())
    require.Equal(t, first, dumpShape(g))
}
