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
    `github.com/cloudwego/structurizer/hir`
    `github.com/cloudwego/structurizer/internal/cfg`
    `github.com/cloudwego/structurizer/internal/opts`
)

func isMarker(op hir.OpCode) bool {
    switch op {
        case hir.OP_selection_merge : return true
        case hir.OP_loop_merge      : return true
        case hir.OP_merge_block     : return true
        case hir.OP_continue_block  : return true
        default                     : return false
    }
}

// Import builds the structurizer's CFG from a host function: one node per
// block, tagged terminators, Phi records with duplicate incoming blocks
// collapsed to their first occurrence. Stale merge markers from a previous
// emission are stripped so that re-structurizing is idempotent.
func Import(fn *hir.Func, pool *cfg.Pool, options opts.Options) (*cfg.CFG, error) {
    nm := make(map[*hir.Block]*cfg.Node, len(fn.Blocks))
    for _, bb := range fn.Blocks {
        nm[bb] = pool.CreateNode(bb.Name, bb)
    }

    /* translate content and connect the edges */
    for _, bb := range fn.Blocks {
        n := nm[bb]

        /* operations pass through, markers do not */
        for _, p := range bb.Ins {
            if !isMarker(p.Op) {
                n.Ops = append(n.Ops, p)
            }
        }

        /* tagged terminator */
        if bb.Term == nil {
            return nil, cfg.UnsupportedTerminatorError { Func: fn.Name, Block: bb.Name }
        }
        switch bb.Term.Op {
            case hir.OP_br: {
                to := nm[bb.Term.Blocks[0]]
                n.Term = &cfg.TermBranch { To: to }
                n.AddBranch(to)
            }
            case hir.OP_cond_br: {
                t := nm[bb.Term.Blocks[0]]
                f := nm[bb.Term.Blocks[1]]
                n.Term = &cfg.TermCondition { Cond: bb.Term.Args[0], Then: t, Else: f }
                n.AddBranch(t)
                n.AddBranch(f)
            }
            case hir.OP_switch: {
                sw := &cfg.TermSwitch { Selector: bb.Term.Args[0] }
                def := nm[bb.Term.Blocks[0]]
                sw.Cases = append(sw.Cases, cfg.SwitchCase { IsDefault: true, To: def })
                n.Term = sw
                n.AddBranch(def)
                for i, t := range bb.Term.Blocks[1:] {
                    to := nm[t]
                    sw.Cases = append(sw.Cases, cfg.SwitchCase { Value: bb.Term.Cases[i], To: to })
                    n.AddBranch(to)
                }
            }
            case hir.OP_ret: {
                if len(bb.Term.Args) == 0 {
                    n.Term = new(cfg.TermReturn)
                } else {
                    n.Term = &cfg.TermReturn { Value: bb.Term.Args[0] }
                }
            }
            case hir.OP_unreachable : n.Term = new(cfg.TermUnreachable)
            case hir.OP_discard     : n.Term = new(cfg.TermKill)
            default: {
                return nil, cfg.UnsupportedTerminatorError { Func: fn.Name, Block: bb.Name }
            }
        }
    }

    /* Phi records, once the predecessor lists exist */
    for _, bb := range fn.Blocks {
        n := nm[bb]
        for _, hp := range bb.Phi {
            ph := &cfg.Phi { Def: hp.Def }
            seen := make(map[*cfg.Node]bool)
            for _, in := range hp.Incoming {
                q := nm[in.Block]

                /* only the first occurrence of a duplicate incoming block
                 * is kept; duplicates are re-materialized at emission */
                if q == nil || seen[q] {
                    continue
                }
                seen[q] = true

                /* silently drop entries of non-predecessors */
                if !n.HasPred(q) {
                    cfg.CountDroppedPhi()
                    continue
                }
                ph.Incoming = append(ph.Incoming, cfg.Incoming { Block: q, Value: in.Value })
            }
            n.Phi = append(n.Phi, ph)
        }
    }

    g := cfg.NewCFG(pool, nm[fn.Entry], options)
    g.Name = fn.Name
    return g, nil
}

// _Emitter carries the per-emission state: host blocks created on the fly,
// the Phi override map for blocks that were split at emission time, and the
// fake continue bookkeeping.
type _Emitter struct {
    g        *cfg.CFG
    fn       *hir.Func
    extra    []*hir.Block
    override map[*cfg.Node]*hir.Block
    fakeCont map[*cfg.Node]*hir.Block
    newEntry *hir.Block
    marked   map[*hir.Block]map[hir.OpCode]bool
}

// Emit writes the structured CFG back into the host function: terminators
// are rewritten where the structurizer changed them, merge annotations are
// injected, Phi incomings are routed through the override map, and blocks
// that did not survive pruning disappear from the function.
func Emit(g *cfg.CFG, fn *hir.Func) {
    e := &_Emitter {
        g        : g,
        fn       : fn,
        override : make(map[*cfg.Node]*hir.Block),
        fakeCont : make(map[*cfg.Node]*hir.Block),
        marked   : make(map[*hir.Block]map[hir.OpCode]bool),
    }

    /* synthesized nodes materialize host blocks now */
    g.Pool.ForEachNode(func(n *cfg.Node) {
        if n.Bb == nil {
            n.Bb = &hir.Block { Name: n.Name }
        }
    })

    /* content and terminators; stale markers vanish with the rebuild */
    g.Pool.ForEachNode(func(n *cfg.Node) {
        n.Bb.Ins = append([]*hir.Instr(nil), n.Ops...)
        e.terminator(n)
    })

    /* merge annotations */
    g.Pool.ForEachNode(func(n *cfg.Node) {
        e.annotate(n)
    })

    /* Phis */
    g.Pool.ForEachNode(func(n *cfg.Node) {
        e.phis(n)
    })

    /* function body: entry first, then pool order, then emission helpers */
    var blocks []*hir.Block
    if e.newEntry != nil {
        blocks = append(blocks, e.newEntry)
    }
    blocks = append(blocks, g.Entry.Bb)
    g.Pool.ForEachNode(func(n *cfg.Node) {
        if n.Bb != g.Entry.Bb {
            blocks = append(blocks, n.Bb)
        }
    })
    blocks = append(blocks, e.extra...)
    fn.Blocks = blocks
    fn.Entry = blocks[0]
}

// needsFakeSelection: a loop header whose conditional branches to two
// targets that are neither the merge nor the continue needs its condition
// wrapped in a helper construct of its own.
func needsFakeSelection(n *cfg.Node) bool {
    t, ok := n.Term.(*cfg.TermCondition)
    if !ok || n.Merge != cfg.MergeLoop {
        return false
    }
    return t.Then != n.LoopMerge && t.Then != n.LoopContinue &&
        t.Else != n.LoopMerge && t.Else != n.LoopContinue
}

func (self *_Emitter) terminator(n *cfg.Node) {
    switch t := n.Term.(type) {
        case *cfg.TermBranch: {
            self.setTerm(n, &hir.Instr { Op: hir.OP_br, Blocks: []*hir.Block { t.To.Bb } })
        }
        case *cfg.TermCondition: {
            if !needsFakeSelection(n) {
                self.setTerm(n, &hir.Instr {
                    Op     : hir.OP_cond_br,
                    Args   : []*hir.Value { t.Cond },
                    Blocks : []*hir.Block { t.Then.Bb, t.Else.Bb },
                })
                return
            }

            /* wrap the condition: header -> fake selection -> arms, with a
             * synthetic unreachable merge for the helper construct */
            fs := &hir.Block { Name: n.Name + ".fake_selection" }
            ur := &hir.Block { Name: n.Name + ".unreachable" }
            ur.Term = &hir.Instr { Op: hir.OP_unreachable }
            fs.Term = &hir.Instr {
                Op     : hir.OP_cond_br,
                Args   : []*hir.Value { t.Cond },
                Blocks : []*hir.Block { t.Then.Bb, t.Else.Bb },
            }
            fs.Ins = append(fs.Ins, &hir.Instr { Op: hir.OP_selection_merge, Blocks: []*hir.Block { ur } })
            self.mark(ur, hir.OP_merge_block)
            n.Bb.Term = &hir.Instr { Op: hir.OP_br, Blocks: []*hir.Block { fs } }
            self.override[n] = fs
            self.extra = append(self.extra, fs, ur)
        }
        case *cfg.TermSwitch: {
            p := &hir.Instr { Op: hir.OP_switch, Args: []*hir.Value { t.Selector } }
            for _, cs := range t.Cases {
                if cs.IsDefault {
                    p.Blocks = append([]*hir.Block { cs.To.Bb }, p.Blocks...)
                }
            }
            for _, cs := range t.Cases {
                if !cs.IsDefault {
                    p.Blocks = append(p.Blocks, cs.To.Bb)
                    p.Cases = append(p.Cases, cs.Value)
                }
            }
            self.setTerm(n, p)
        }
        case *cfg.TermReturn: {
            if t.Value == nil {
                self.setTerm(n, &hir.Instr { Op: hir.OP_ret })
            } else {
                self.setTerm(n, &hir.Instr { Op: hir.OP_ret, Args: []*hir.Value { t.Value } })
            }
        }
        case *cfg.TermUnreachable: {
            self.setTerm(n, &hir.Instr { Op: hir.OP_unreachable })
        }
        case *cfg.TermKill: {
            self.setTerm(n, &hir.Instr { Op: hir.OP_discard })
        }
        default: {
            panic("translate: invalid terminator")
        }
    }
}

// setTerm keeps the existing host terminator when type and operands are
// unchanged, otherwise replaces it.
func (self *_Emitter) setTerm(n *cfg.Node, p *hir.Instr) {
    if !sameTerm(n.Bb.Term, p) {
        n.Bb.Term = p
    }
}

func sameTerm(a *hir.Instr, b *hir.Instr) bool {
    if a == nil || a.Op != b.Op || len(a.Args) != len(b.Args) {
        return false
    }
    if len(a.Blocks) != len(b.Blocks) || len(a.Cases) != len(b.Cases) {
        return false
    }
    for i, v := range a.Args {
        if v != b.Args[i] {
            return false
        }
    }
    for i, v := range a.Blocks {
        if v != b.Blocks[i] {
            return false
        }
    }
    for i, v := range a.Cases {
        if v != b.Cases[i] {
            return false
        }
    }
    return true
}

// mark prepends a merge_block or continue_block marker to the target block,
// once.
func (self *_Emitter) mark(bb *hir.Block, op hir.OpCode) {
    if self.marked[bb][op] {
        return
    }
    if self.marked[bb] == nil {
        self.marked[bb] = make(map[hir.OpCode]bool)
    }
    self.marked[bb][op] = true
    bb.Ins = append([]*hir.Instr { { Op: op } }, bb.Ins...)
}

func (self *_Emitter) annotate(n *cfg.Node) {
    switch n.Merge {
        case cfg.MergeNone: {
            return
        }
        case cfg.MergeSelection: {
            self.annotateSelection(n)
        }
        case cfg.MergeLoop: {
            self.annotateLoop(n)
        }
    }
}

func (self *_Emitter) annotateSelection(n *cfg.Node) {
    if n.SelMerge == nil && n.SelMergeExit {
        /* both arms leave the construct; if exactly one arm is
         * unreachable, the other is the de-facto merge */
        if t, ok := n.Term.(*cfg.TermCondition); ok {
            tu := isUnreachableNode(t.Then)
            fu := isUnreachableNode(t.Else)
            if tu && !fu {
                self.selectionMerge(n, t.Else.Bb)
            } else if fu && !tu {
                self.selectionMerge(n, t.Then.Bb)
            }
        }
        return
    }
    if n.SelMerge != nil {
        self.selectionMerge(n, n.SelMerge.Bb)
        return
    }

    /* no merge block at all: synthesize a fake unreachable one */
    fm := &hir.Block { Name: n.Name + ".fake_merge" }
    fm.Term = &hir.Instr { Op: hir.OP_unreachable }
    self.extra = append(self.extra, fm)
    self.selectionMerge(n, fm)
}

func (self *_Emitter) annotateLoop(n *cfg.Node) {
    m := n.LoopMerge
    c := n.LoopContinue

    switch {
        case m != nil && c != nil: {
            cb := c.Bb
            if c == n && self.override[n] != nil {
                cb = self.override[n]
            }
            self.loopMerge(n, m.Bb, cb)
        }
        case m != nil: {
            /* no natural continue: fake one. A header that is also the
             * function entry first gets a fresh entry so the back edge
             * stays detectable. */
            if n == self.g.Entry {
                ne := &hir.Block { Name: n.Name + ".new_entry.fake_continue" }
                ne.Term = &hir.Instr { Op: hir.OP_br, Blocks: []*hir.Block { n.Bb } }
                self.newEntry = ne
            }
            fc := &hir.Block { Name: n.Name + ".fake_continue" }
            fc.Term = &hir.Instr { Op: hir.OP_br, Blocks: []*hir.Block { n.Bb } }
            self.extra = append(self.extra, fc)
            self.fakeCont[n] = fc
            self.loopMerge(n, m.Bb, fc)
        }
        case c != nil: {
            /* no merge: fake an unreachable one */
            fm := &hir.Block { Name: n.Name + ".fake_merge" }
            fm.Term = &hir.Instr { Op: hir.OP_unreachable }
            self.extra = append(self.extra, fm)
            cb := c.Bb
            if c == n && self.override[n] != nil {
                cb = self.override[n]
            }
            self.loopMerge(n, fm, cb)
        }
        default: {
            panic("translate: loop header without merge and continue")
        }
    }
}

func (self *_Emitter) selectionMerge(n *cfg.Node, merge *hir.Block) {
    n.Bb.Ins = append(n.Bb.Ins, &hir.Instr { Op: hir.OP_selection_merge, Blocks: []*hir.Block { merge } })
    self.mark(merge, hir.OP_merge_block)
}

func (self *_Emitter) loopMerge(n *cfg.Node, merge *hir.Block, cont *hir.Block) {
    n.Bb.Ins = append(n.Bb.Ins, &hir.Instr { Op: hir.OP_loop_merge, Blocks: []*hir.Block { merge, cont } })
    self.mark(merge, hir.OP_merge_block)
    self.mark(cont, hir.OP_continue_block)
}

func isUnreachableNode(p *cfg.Node) bool {
    _, ok := p.Term.(*cfg.TermUnreachable)
    return ok
}

// phis rebuilds the host Phi list from the records, applying the override
// map and re-materializing duplicate predecessor edges.
func (self *_Emitter) phis(n *cfg.Node) {
    if len(n.Phi) == 0 {
        n.Bb.Phi = nil
        return
    }

    var out []*hir.Phi
    for _, ph := range n.Phi {
        hp := &hir.Phi { Def: ph.Def }
        for _, in := range ph.Incoming {
            bb := in.Block.Bb
            if ov := self.override[in.Block]; ov != nil {
                bb = ov
            } else if in.Block.PhiOverride != nil && !n.HasPred(in.Block) {
                bb = in.Block.PhiOverride.Bb
            }
            hp.Incoming = append(hp.Incoming, hir.Incoming { Block: bb, Value: in.Value })
        }

        /* duplicate predecessor edges need one entry per edge */
        for _, in := range ph.Incoming {
            if k := predEdgeCount(n, in.Block); k > 1 {
                bb := in.Block.Bb
                if ov := self.override[in.Block]; ov != nil {
                    bb = ov
                }
                for i := 1; i < k; i++ {
                    hp.Incoming = append(hp.Incoming, hir.Incoming { Block: bb, Value: in.Value })
                }
            }
        }
        out = append(out, hp)
    }
    n.Bb.Phi = out

    /* a fake continue contributes an undef incoming on header Phis */
    if fc := self.fakeCont[n]; fc != nil {
        for _, hp := range n.Bb.Phi {
            hp.Incoming = append(hp.Incoming, hir.Incoming { Block: fc, Value: hir.Undef })
        }
    }
}

func predEdgeCount(n *cfg.Node, q *cfg.Node) int {
    k := 0
    for _, p := range n.Pred {
        if p == q {
            k++
        }
    }
    return k
}
