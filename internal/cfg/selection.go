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

// controlFlowIsEscaping reports whether the natural convergence point of a
// construct headed at n lies outside the construct: it coincides with an
// enclosing loop's merge or continue block.
func (self *CFG) controlFlowIsEscaping(n *Node, merge *Node) bool {
    eh := self.innermostLoopHeaderFor(n)
    if eh == nil {
        return false
    }
    return merge == eh.LoopMerge || merge == eh.LoopContinue
}

// selectionAlreadyFunnelled recognizes a previously built break ladder so
// that repeated passes leave it alone: a single-branch node we dominate
// whose sole successor is the break target.
func (self *CFG) selectionAlreadyFunnelled(n *Node, target *Node) bool {
    m := n.SelMerge
    if n.Merge != MergeSelection || m == nil || m.FwdVisit < 0 {
        return false
    }
    if !n.Dominates(m) {
        return false
    }
    br, ok := m.Term.(*TermBranch)
    return ok && br.To == target
}

// hasDirectBreakEdge reports whether any block dominated by n branches to
// the target directly; a break ladder without such an edge would funnel
// nothing and never converge.
func (self *CFG) hasDirectBreakEdge(n *Node, target *Node) bool {
    for _, p := range target.Pred {
        if p.FwdVisit >= 0 && n.Dominates(p) && !self.isBackEdge(p, target) {
            return true
        }
    }
    return false
}

// FindSelectionMerges assigns a merge to every conditional branch that is
// not a loop header. A construct whose post-dominator escapes into an
// enclosing loop gets a break ladder instead; a construct whose arms never
// converge is flagged as an exit selection.
func (self *CFG) FindSelectionMerges(pass int) bool {
    rt := false
    for i := len(self.PostOrder) - 1; i >= 0; i-- {
        n := self.PostOrder[i]
        if _, ok := n.Term.(*TermCondition); !ok {
            continue
        }
        if n.Merge == MergeLoop || len(self.backPreds[n.Id]) != 0 {
            continue
        }

        /* no convergence at all: both arms exit */
        ipdom := self.ImmediatePostDominator(n)
        if ipdom == nil {
            n.Merge = MergeSelection
            n.SelMerge = nil
            n.SelMergeExit = true
            continue
        }

        /* break constructs funnel through a ladder the header dominates */
        if self.controlFlowIsEscaping(n, ipdom) && self.hasDirectBreakEdge(n, ipdom) {
            if !self.selectionAlreadyFunnelled(n, ipdom) {
                ladder := self.CreateLadderBlock(n, ipdom, ".ladder")
                n.Merge = MergeSelection
                n.SelMerge = ladder
                n.SelMergeExit = false
                rt = true
            }
            continue
        }

        n.Merge = MergeSelection
        n.SelMerge = ipdom
        n.SelMergeExit = false
    }
    return rt
}

// FindSwitchBlocks assigns switch merges. Case-to-case fallthrough edges
// are first detached through intermediate blocks so that the dispatch edge
// and the fallthrough edge into a shared arm stay distinct.
func (self *CFG) FindSwitchBlocks(pass int) bool {
    rt := false
    for i := len(self.PostOrder) - 1; i >= 0; i-- {
        n := self.PostOrder[i]
        sw, ok := n.Term.(*TermSwitch)
        if !ok || n.Merge == MergeLoop {
            continue
        }

        /* detach fallthrough between case arms */
        if self.createSwitchMergeLadder(n, sw) {
            rt = true
            continue
        }

        /* pick the merge */
        if ipdom := self.ImmediatePostDominator(n); ipdom == nil {
            n.Merge = MergeSelection
            n.SelMerge = nil
            n.SelMergeExit = true
        } else if self.controlFlowIsEscaping(n, ipdom) && self.hasDirectBreakEdge(n, ipdom) {
            if !self.selectionAlreadyFunnelled(n, ipdom) {
                ladder := self.CreateLadderBlock(n, ipdom, ".ladder")
                n.Merge = MergeSelection
                n.SelMerge = ladder
                n.SelMergeExit = false
                rt = true
            }
        } else {
            n.Merge = MergeSelection
            n.SelMerge = ipdom
            n.SelMergeExit = false
        }
    }
    return rt
}

// createSwitchMergeLadder splits every direct edge between two distinct
// case arms through a passthrough block. Returns whether anything changed.
func (self *CFG) createSwitchMergeLadder(n *Node, sw *TermSwitch) bool {
    rt := false
    arms := make(map[*Node]bool, len(sw.Cases))
    for _, cs := range sw.Cases {
        arms[cs.To] = true
    }
    for _, cs := range sw.Cases {
        ci := cs.To
        for _, cj := range append([]*Node(nil), ci.Succ...) {
            if cj == ci || !arms[cj] || self.isBackEdge(ci, cj) {
                continue
            }

            /* route the fallthrough through an intermediate block */
            step := self.Pool.CreateNode(n.Name + ".ladder", nil)
            step.IsLadder = true
            funnelPhiEntries(cj, step, []*Node { ci })
            ci.RetargetBranch(cj, step)
            step.Term = &TermBranch { To: cj }
            step.AddBranch(cj)
            countLadder()
            rt = true
        }
    }
    return rt
}

// SplitMergeScopes separates nested constructs that share one merge block:
// the inner construct's edges are funnelled through a ladder of its own, so
// each header keeps a unique merge.
func (self *CFG) SplitMergeScopes() bool {
    owners := make(map[*Node][]*Node)

    /* merge target -> annotated headers, in deterministic order */
    for i := len(self.PostOrder) - 1; i >= 0; i-- {
        h := self.PostOrder[i]
        switch h.Merge {
            case MergeLoop      : if h.LoopMerge != nil { owners[h.LoopMerge] = append(owners[h.LoopMerge], h) }
            case MergeSelection : if h.SelMerge != nil { owners[h.SelMerge] = append(owners[h.SelMerge], h) }
        }
    }

    /* one split per pass keeps the rewrites serialized */
    for _, m := range self.PostOrder {
        hs := owners[m]
        if len(hs) < 2 {
            continue
        }
        for a := 0; a < len(hs); a++ {
            for b := a + 1; b < len(hs); b++ {
                outer, inner := hs[a], hs[b]
                if !outer.Dominates(inner) || outer == inner {
                    continue
                }
                ladder := self.CreateLadderBlock(inner, m, ".ladder")
                if inner.Merge == MergeLoop {
                    inner.LoopMerge = ladder
                } else {
                    inner.SelMerge = ladder
                }
                return true
            }
        }
    }
    return false
}
