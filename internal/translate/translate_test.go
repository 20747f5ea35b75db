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

package translate

import (
    `strings`
    `testing`

    `github.com/cloudwego/structurizer/hir`
    `github.com/cloudwego/structurizer/internal/cfg`
    `github.com/cloudwego/structurizer/internal/opts`
    `github.com/stretchr/testify/require`
)

func structurize(t *testing.T, fn *hir.Func) *cfg.CFG {
    g, err := Import(fn, cfg.NewPool(), opts.GetDefaultOptions())
    require.NoError(t, err)
    require.NoError(t, g.Structurize())
    Emit(g, fn)
    return g
}

func findBlock(fn *hir.Func, name string) *hir.Block {
    for _, bb := range fn.Blocks {
        if bb.Name == name {
            return bb
        }
    }
    return nil
}

func findBlockSuffix(fn *hir.Func, suffix string) *hir.Block {
    for _, bb := range fn.Blocks {
        if strings.HasSuffix(bb.Name, suffix) {
            return bb
        }
    }
    return nil
}

func findMarker(bb *hir.Block, op hir.OpCode) *hir.Instr {
    for _, p := range bb.Ins {
        if p.Op == op {
            return p
        }
    }
    return nil
}

func TestTranslate_DiamondMarkers(t *testing.T) {
    p := hir.CreateBuilder("diamond")
    p.Label("a")
    cv := p.Op("cmp")
    p.BR(cv, "b", "c")
    p.Label("b")
    p.Stmt("left")
    p.JMP("d")
    p.Label("c")
    p.Stmt("right")
    p.JMP("d")
    p.Label("d")
    p.RET(nil)
    fn := p.Build()

    structurize(t, fn)

    /* the header carries a selection_merge to d */
    a := findBlock(fn, "a")
    require.NotNil(t, a)
    sm := findMarker(a, hir.OP_selection_merge)
    require.NotNil(t, sm)
    require.Equal(t, findBlock(fn, "d"), sm.Blocks[0])

    /* d starts with the merge_block marker, the branch ops survived */
    d := findBlock(fn, "d")
    require.Equal(t, hir.OP_merge_block, d.Ins[0].Op)
    require.Equal(t, "left", findBlock(fn, "b").Ins[0].Text)
    require.Equal(t, "right", findBlock(fn, "c").Ins[0].Text)
    require.Equal(t, 4, len(fn.Blocks))
}

func TestTranslate_LoopMarkers(t *testing.T) {
    p := hir.CreateBuilder("loop")
    p.Label("h")
    p.Stmt("work")
    p.JMP("q")
    p.Label("q")
    cv := p.Op("done")
    p.BR(cv, "e", "l")
    p.Label("l")
    p.JMP("h")
    p.Label("e")
    p.RET(nil)
    fn := p.Build()

    structurize(t, fn)

    h := findBlock(fn, "h")
    lm := findMarker(h, hir.OP_loop_merge)
    require.NotNil(t, lm)
    require.Equal(t, findBlock(fn, "e"), lm.Blocks[0])
    require.Equal(t, findBlock(fn, "l"), lm.Blocks[1])
    require.Equal(t, hir.OP_merge_block, findBlock(fn, "e").Ins[0].Op)
    require.Equal(t, hir.OP_continue_block, findBlock(fn, "l").Ins[0].Op)

    /* the break edge goes through a ladder now */
    q := findBlock(fn, "q")
    sm := findMarker(q, hir.OP_selection_merge)
    require.NotNil(t, sm)
    require.True(t, strings.Contains(sm.Blocks[0].Name, ".ladder"))
}

func TestTranslate_InfiniteSelfLoop(t *testing.T) {
    p := hir.CreateBuilder("spin")
    p.Label("h")
    p.Stmt("spin")
    p.JMP("h")
    fn := p.Build()

    structurize(t, fn)

    /* a synthesized unreachable merge block exists */
    h := findBlock(fn, "h")
    lm := findMarker(h, hir.OP_loop_merge)
    require.NotNil(t, lm)
    require.True(t, strings.Contains(lm.Blocks[0].Name, ".unreachable"))
    require.Equal(t, hir.OP_unreachable, lm.Blocks[0].Term.Op)
    require.NotNil(t, findBlockSuffix(fn, ".unreachable"))

    /* the header doubles as its own continue */
    require.Equal(t, h, lm.Blocks[1])
    require.Equal(t, hir.OP_continue_block, h.Ins[0].Op)
}

func TestTranslate_FakeSelection(t *testing.T) {
    p := hir.CreateBuilder("fsel")
    p.Label("h")
    cv := p.Op("pick")
    p.BR(cv, "a", "b")
    p.Label("a")
    p.Stmt("one")
    p.JMP("l")
    p.Label("b")
    p.Stmt("two")
    p.JMP("l")
    p.Label("l")
    ev := p.Op("done")
    p.BR(ev, "e", "h")
    p.Label("e")
    p.RET(nil)
    fn := p.Build()

    structurize(t, fn)

    /* the header's conditional moved into a fake selection block */
    h := findBlock(fn, "h")
    require.Equal(t, hir.OP_br, h.Term.Op)
    fs := findBlockSuffix(fn, ".fake_selection")
    require.NotNil(t, fs)
    require.Equal(t, fs, h.Term.Blocks[0])
    require.Equal(t, hir.OP_cond_br, fs.Term.Op)

    /* its merge is a synthetic unreachable */
    sm := findMarker(fs, hir.OP_selection_merge)
    require.NotNil(t, sm)
    require.Equal(t, hir.OP_unreachable, sm.Blocks[0].Term.Op)

    /* the loop annotation stays on the header */
    require.NotNil(t, findMarker(h, hir.OP_loop_merge))
}

func TestTranslate_KillAndUnreachable(t *testing.T) {
    p := hir.CreateBuilder("kill")
    p.Label("a")
    cv := p.Op("cmp")
    p.BR(cv, "b", "c")
    p.Label("b")
    p.KILL()
    p.Label("c")
    p.RET(nil)
    fn := p.Build()

    structurize(t, fn)

    /* both arms exit: discard joins the virtual exit like unreachable */
    a := findBlock(fn, "a")
    require.NotNil(t, a)
    require.Equal(t, hir.OP_discard, findBlock(fn, "b").Term.Op)
    require.Equal(t, hir.OP_ret, findBlock(fn, "c").Term.Op)
}

func TestTranslate_MalformedPhiDropped(t *testing.T) {
    p := hir.CreateBuilder("badphi")
    p.Label("a")
    av := p.Op("x")
    p.JMP("c")
    p.Label("b")
    bv := p.Op("y")
    p.JMP("c")
    p.Label("c")
    p.Phi("m", map[string]*hir.Value { "a": av, "b": bv })
    p.RET(nil)
    fn := p.Build()

    /* b is unreachable: its phi entry must not survive */
    structurize(t, fn)
    c := findBlock(fn, "c")
    require.NotNil(t, c)
    require.Equal(t, 1, len(c.Phi))
    require.Equal(t, 1, len(c.Phi[0].Incoming))
    require.Equal(t, findBlock(fn, "a"), c.Phi[0].Incoming[0].Block)
    require.Nil(t, findBlock(fn, "b"))
}

func TestTranslate_PhiThroughLadder(t *testing.T) {
    p := hir.CreateBuilder("phis")
    p.Label("h")
    p.JMP("q")
    p.Label("q")
    cv := p.Op("cmp")
    p.BR(cv, "x", "y")
    p.Label("x")
    xv := p.Op("one")
    p.JMP("e")
    p.Label("y")
    p.Op("two")
    p.JMP("l")
    p.Label("l")
    p.JMP("h")
    p.Label("e")
    p.Phi("m", map[string]*hir.Value { "x": xv })
    p.RET(nil)
    fn := p.Build()

    g := structurize(t, fn)
    require.NotNil(t, g)

    /* the merged value still arrives at e, possibly via a ladder */
    e := findBlock(fn, "e")
    require.NotNil(t, e)
    require.Equal(t, 1, len(e.Phi))
    require.Equal(t, 1, len(e.Phi[0].Incoming))
    require.Equal(t, xv, e.Phi[0].Incoming[0].Value)
}

func TestTranslate_UnsupportedTerminator(t *testing.T) {
    fn := &hir.Func {
        Name: "broken",
        Entry: &hir.Block {
            Name: "a",
            Term: &hir.Instr { Op: hir.OP_phi },
        },
    }
    fn.Blocks = []*hir.Block { fn.Entry }

    _, err := Import(fn, cfg.NewPool(), opts.GetDefaultOptions())
    require.Error(t, err)
    require.IsType(t, cfg.UnsupportedTerminatorError{}, err)
}

func TestTranslate_Idempotent(t *testing.T) {
    p := hir.CreateBuilder("twice")
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

    structurize(t, fn)
    nb := len(fn.Blocks)
    names := make([]string, 0, nb)
    for _, bb := range fn.Blocks {
        names = append(names, bb.Name)
    }

    /* structurizing the structured output again changes nothing */
    structurize(t, fn)
    require.Equal(t, nb, len(fn.Blocks))
    for i, bb := range fn.Blocks {
        require.Equal(t, names[i], bb.Name)
    }
}
