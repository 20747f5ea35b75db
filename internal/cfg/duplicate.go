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
    `github.com/cloudwego/structurizer/hir`
)

// CanDuplicatePhis reports whether the node's Phis may be split between two
// copies: none of them may consume a value defined inside the node itself.
func (self *CFG) CanDuplicatePhis(p *Node) bool {
    defs := make(map[*hir.Value]bool)
    for _, op := range p.Ops {
        if op.Def != nil {
            defs[op.Def] = true
        }
    }
    for _, ph := range p.Phi {
        defs[ph.Def] = true
    }
    for _, ph := range p.Phi {
        for _, in := range ph.Incoming {
            if defs[in.Value] {
                return false
            }
        }
    }
    return true
}

// DuplicateNode clones p's operations and terminator into a fresh node and
// rewires the given predecessors onto the clone. Values defined inside the
// clone are renamed through a local remap, exactly like the operations
// themselves; Phi entries carried by the moved predecessors migrate to the
// clone.
func (self *CFG) DuplicateNode(p *Node, moved []*Node) *Node {
    d := self.Pool.CreateNode(p.Name + ".ladder", nil)
    remap := make(map[*hir.Value]*hir.Value)

    /* split the Phis first so operation operands can pick up the defs */
    for _, ph := range p.Phi {
        var ins []Incoming
        for _, q := range moved {
            if v, ok := ph.incomingFor(q); ok {
                ins = append(ins, Incoming { Block: q, Value: v })
                ph.removeIncoming(q)
            }
        }
        if len(ins) != 0 {
            def := &hir.Value { Name: ph.Def.Name + ".dup" }
            remap[ph.Def] = def
            d.Phi = append(d.Phi, &Phi { Def: def, Incoming: ins })
        }
    }

    /* clone the operations with progressive renaming */
    for _, op := range p.Ops {
        c := &hir.Instr {
            Op     : op.Op,
            Blocks : op.Blocks,
            Cases  : op.Cases,
            Text   : op.Text,
        }
        for _, a := range op.Args {
            if r, ok := remap[a]; ok {
                c.Args = append(c.Args, r)
            } else {
                c.Args = append(c.Args, a)
            }
        }
        if op.Def != nil {
            c.Def = &hir.Value { Name: op.Def.Name + ".dup" }
            remap[op.Def] = c.Def
        }
        d.Ops = append(d.Ops, c)
    }

    /* clone the terminator, edge by edge */
    switch t := p.Term.(type) {
        case *TermBranch: {
            d.Term = &TermBranch { To: t.To }
        }
        case *TermCondition: {
            cond := t.Cond
            if r, ok := remap[cond]; ok {
                cond = r
            }
            d.Term = &TermCondition { Cond: cond, Then: t.Then, Else: t.Else }
        }
        case *TermSwitch: {
            sel := t.Selector
            if r, ok := remap[sel]; ok {
                sel = r
            }
            d.Term = &TermSwitch { Selector: sel, Cases: append([]SwitchCase(nil), t.Cases...) }
        }
        case *TermReturn: {
            rv := t.Value
            if r, ok := remap[rv]; ok {
                rv = r
            }
            d.Term = &TermReturn { Value: rv }
        }
        case *TermUnreachable: {
            d.Term = new(TermUnreachable)
        }
        case *TermKill: {
            d.Term = new(TermKill)
        }
        default: {
            panic("cfg: invalid terminator")
        }
    }
    d.Term.forEachTarget(func(s *Node) {
        d.AddBranch(s)
    })

    /* the clone's successors see a new incoming value per Phi */
    seen := make(map[*Node]bool)
    for _, s := range d.Succ {
        if seen[s] {
            continue
        }
        seen[s] = true
        for _, ph := range s.Phi {
            if v, ok := ph.incomingFor(p); ok {
                if r, has := remap[v]; has {
                    v = r
                }
                ph.Incoming = append(ph.Incoming, Incoming { Block: d, Value: v })
            }
        }
    }

    /* rewire the moved predecessors */
    for _, q := range moved {
        q.RetargetBranch(p, d)
    }
    countDuplicate()
    return d
}

// DuplicateImpossibleMergeConstructs resolves the two shapes that cannot be
// annotated as-is: irreducible side entries into a loop, and a merge block
// shared by two constructs where neither header dominates the other. Both
// are repaired by node duplication, one rewrite per pass.
func (self *CFG) DuplicateImpossibleMergeConstructs() bool {
    /* irreducible side entries queued by FindLoops */
    for _, h := range self.irreducible {
        preds := self.backPreds[h.Id]
        if len(preds) != 1 {
            continue
        }

        /* earliest side-entered node on the cycle, by post order */
        for _, n := range self.PostOrder {
            if n == h || !self.QueryReachability(h, n) || !self.QueryReachabilityThroughBackEdges(n, h) {
                continue
            }
            if h.Dominates(n) || !self.CanDuplicatePhis(n) {
                continue
            }
            moved := uniquePreds(n, func(q *Node) bool {
                return q.FwdVisit >= 0 && !h.Dominates(q) && !self.isBackEdge(q, n)
            })
            if len(moved) == 0 {
                continue
            }
            self.DuplicateNode(n, moved)
            return true
        }
    }

    /* merge blocks shared between unordered constructs */
    owners := make(map[*Node][]*Node)
    for i := len(self.PostOrder) - 1; i >= 0; i-- {
        h := self.PostOrder[i]
        switch h.Merge {
            case MergeLoop      : if h.LoopMerge != nil { owners[h.LoopMerge] = append(owners[h.LoopMerge], h) }
            case MergeSelection : if h.SelMerge != nil { owners[h.SelMerge] = append(owners[h.SelMerge], h) }
        }
    }
    for _, m := range self.PostOrder {
        hs := owners[m]
        if len(hs) < 2 || !self.CanDuplicatePhis(m) {
            continue
        }
        for a := 0; a < len(hs); a++ {
            for b := a + 1; b < len(hs); b++ {
                ha, hb := hs[a], hs[b]
                if ha.Dominates(hb) || hb.Dominates(ha) {
                    continue
                }

                /* give hb its own copy of the merge */
                moved := uniquePreds(m, func(q *Node) bool {
                    return q.FwdVisit >= 0 && hb.Dominates(q) && !self.isBackEdge(q, m)
                })
                if len(moved) == 0 || len(moved) == len(uniquePreds(m, func(q *Node) bool { return true })) {
                    continue
                }
                d := self.DuplicateNode(m, moved)
                if hb.Merge == MergeLoop {
                    hb.LoopMerge = d
                } else {
                    hb.SelMerge = d
                }
                return true
            }
        }
    }
    return false
}
