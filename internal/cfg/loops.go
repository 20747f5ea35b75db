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
    `hash/fnv`
    `sort`
)

// _LoopAnalysis classifies the out-edges of one loop body.
type _LoopAnalysis struct {
    body                  map[*Node]bool
    directExits           []*Node
    innerDirectExits      []*Node
    dominatedExit         []*Node
    innerDominatedExit    []*Node
    nonDominatedExit      []*Node
    dominatedContinueExit []*Node
}

func nameHash(p *Node) uint32 {
    h := fnv.New32a()
    h.Write([]byte(p.Name))
    return h.Sum32()
}

// pickMergeCandidate breaks ties deterministically: earliest post-order
// position first, then the smaller name hash, then the id.
func pickMergeCandidate(nodes []*Node) *Node {
    buf := append([]*Node(nil), nodes...)
    sort.Slice(buf, func(i int, j int) bool {
        a, b := buf[i], buf[j]
        if a.FwdVisit != b.FwdVisit {
            return a.FwdVisit < b.FwdVisit
        }
        if ha, hb := nameHash(a), nameHash(b); ha != hb {
            return ha < hb
        }
        return a.Id < b.Id
    })
    return buf[0]
}

// RewriteMultipleBackEdges restores the single-continue-candidate invariant:
// a header with more than one back edge gets a fresh node that funnels all
// of them and branches to the header alone.
func (self *CFG) RewriteMultipleBackEdges() bool {
    rt := false
    for _, h := range self.PostOrder {
        preds := self.backPreds[h.Id]
        if len(preds) <= 1 {
            continue
        }

        /* funnel every back edge through one continue node */
        cont := self.Pool.CreateNode(h.Name + ".ladder", nil)
        cont.IsLadder = true
        funnelPhiEntries(h, cont, preds)
        for _, p := range preds {
            p.RetargetBranch(h, cont)
        }
        cont.Term = &TermBranch { To: h }
        cont.AddBranch(h)
        countLadder()
        rt = true
    }
    return rt
}

// FindLoops locates every loop header, classifies its body and assigns the
// merge and continue blocks. Irreducible headers (the back-edge source is
// not dominated by the header) are queued for duplication instead.
func (self *CFG) FindLoops() {
    self.irreducible = nil
    self.loopTargets = make(map[*Node]bool)

    /* outer headers first: reverse post order */
    for i := len(self.PostOrder) - 1; i >= 0; i-- {
        h := self.PostOrder[i]
        preds := self.backPreds[h.Id]

        /* drop stale loop annotations of former headers */
        if len(preds) == 0 {
            if h.Merge == MergeLoop {
                h.Merge = MergeNone
                h.LoopMerge = nil
                h.LoopContinue = nil
            }
            continue
        }
        if len(preds) > 1 {
            panic(fmt.Sprintf("cfg: header %s still has multiple back edges", h.Name))
        }

        /* side entries make the loop irreducible */
        c := preds[0]
        if !h.Dominates(c) {
            self.irreducible = append(self.irreducible, h)
            continue
        }

        /* classify and choose the merge */
        h.State = LoopAnalyzed
        la := self.analyzeLoop(h, c)
        m := self.analyzeLoopMerge(h, c, la)
        h.Merge = MergeLoop
        h.LoopMerge = m
        h.LoopContinue = c
        h.State = LoopMergeChosen
        self.loopTargets[m] = true
        self.loopTargets[c] = true
    }
}

// analyzeLoop computes the loop body (nodes dominated by the header that
// can still reach the continue block) and classifies every edge leaving it.
func (self *CFG) analyzeLoop(h *Node, c *Node) *_LoopAnalysis {
    la := &_LoopAnalysis {
        body: make(map[*Node]bool),
    }
    for _, p := range self.PostOrder {
        if h.Dominates(p) && (p == h || self.QueryReachability(p, c)) {
            la.body[p] = true
        }
    }

    /* walk the body in post order so classification is deterministic */
    seen := make(map[*Node]bool)
    for _, p := range self.PostOrder {
        if !la.body[p] {
            continue
        }
        inner := self.innermostLoopHeaderFor(p)
        for _, s := range p.Succ {
            if self.isBackEdge(p, s) || la.body[s] || seen[s] {
                continue
            }
            seen[s] = true
            la.directExits = append(la.directExits, s)
            if inner != nil && inner != h {
                la.innerDirectExits = append(la.innerDirectExits, s)
            }
            if h.Dominates(s) {
                la.dominatedExit = append(la.dominatedExit, s)
                if ih := self.innermostLoopHeaderFor(s); ih != nil && ih != h {
                    la.innerDominatedExit = append(la.innerDominatedExit, s)
                }
            } else {
                la.nonDominatedExit = append(la.nonDominatedExit, s)
            }
            if self.QueryReachabilityThroughBackEdges(s, c) {
                la.dominatedContinueExit = append(la.dominatedContinueExit, s)
            }
        }
    }
    return la
}

// isPlainLadder recognizes a pure passthrough block: no operations, no
// Phis, a single predecessor and a single unconditional branch.
func isPlainLadder(p *Node) bool {
    if len(p.Ops) != 0 || len(p.Phi) != 0 || len(p.Pred) != 1 {
        return false
    }
    _, ok := p.Term.(*TermBranch)
    return ok
}

// seeThroughLadder resolves a plain passthrough chain (single pred, single
// branch, no operations, no Phis) to its target, so that break ladders
// inserted by the selection engine do not mask the real merge candidate.
func seeThroughLadder(s *Node) *Node {
    for i := 0; i < 64 && isPlainLadder(s); i++ {
        s = s.Term.(*TermBranch).To
    }
    return s
}

// analyzeLoopMerge picks the loop merge: the common post-dominator of all
// exits with the continue block ignored. A loop without one is infinite and
// receives a synthesized unreachable merge target.
func (self *CFG) analyzeLoopMerge(h *Node, c *Node, la *_LoopAnalysis) *Node {
    cands := make([]*Node, 0, len(la.directExits))
    for _, s := range la.directExits {
        cands = append(cands, seeThroughLadder(s))
    }
    if m := self.FindCommonPostDominatorWithIgnoredBreak(cands, c); m != nil && m != h {
        return m
    }

    /* exits exist but never converge: break the tie deterministically */
    if len(cands) != 0 {
        if m := pickMergeCandidate(cands); m != c && m != h {
            return m
        }
    }

    /* infinite loop: reuse a previously synthesized merge if there is one */
    if m := h.LoopMerge; m != nil && m.FwdVisit < 0 {
        if _, ok := m.Term.(*TermUnreachable); ok {
            return m
        }
    }
    u := self.Pool.CreateNode(h.Name + ".unreachable", nil)
    u.Term = &TermUnreachable{}
    return u
}

// RewriteTransposedLoops handles loops whose exit branch sits on the
// continue path: the branch to the merge is funnelled through a ladder
// dominated by the continue block, with the merged values materialized at
// the ladder tail. Post-dominance is invalidated, so affected headers drop
// back to LoopUnclassified at the next Recompute.
func (self *CFG) RewriteTransposedLoops() bool {
    rt := false
    for i := len(self.PostOrder) - 1; i >= 0; i-- {
        h := self.PostOrder[i]
        if h.State != LoopMergeChosen || h.Merge != MergeLoop {
            continue
        }

        m := h.LoopMerge
        c := h.LoopContinue
        if m == nil || c == nil || c == h || m.FwdVisit < 0 {
            continue
        }
        if !self.QueryReachability(c, m) {
            continue
        }

        /* only rewrite when the continue region proper branches to the
         * merge. The continue block itself choosing between header and
         * merge is the canonical bottom-exit loop, and a ladder from an
         * earlier rewrite must not be funnelled again. */
        direct := false
        for _, p := range m.Pred {
            if p == c || p.FwdVisit < 0 || self.isBackEdge(p, m) {
                continue
            }
            if c.Dominates(p) && !isPlainLadder(p) {
                direct = true
                break
            }
        }
        if !direct {
            continue
        }

        self.CreateLadderBlock(c, m, ".ladder")
        h.State = LoopLadderMaterialized
        rt = true
    }
    return rt
}

// innermostLoopHeaderFor returns the nearest dominating loop header whose
// loop still contains p, or nil. Membership means p reaches the back-edge
// source over forward edges; reaching the header through an outer loop's
// back edge does not count.
func (self *CFG) innermostLoopHeaderFor(p *Node) *Node {
    for q := p.Idom; q != nil; {
        if q != p && len(self.backPreds[q.Id]) == 1 && q.Dominates(p) {
            if cb := self.backPreds[q.Id][0]; p == cb || self.QueryReachability(p, cb) {
                return q
            }
        }
        if q == q.Idom {
            break
        }
        q = q.Idom
    }
    return nil
}

// legalBreakTargets collects the merge and continue blocks of every loop
// enclosing h, which break edges may legally target.
func (self *CFG) legalBreakTargets(h *Node) map[*Node]bool {
    rt := make(map[*Node]bool)
    for e := self.innermostLoopHeaderFor(h); e != nil; e = self.innermostLoopHeaderFor(e) {
        if e.LoopMerge != nil {
            rt[e.LoopMerge] = true
        }
        if e.LoopContinue != nil {
            rt[e.LoopContinue] = true
        }
    }
    return rt
}

// RewriteInvalidLoopBreaks repairs loop exits that neither target the loop
// merge or continue nor a legal enclosing break target. The offending exit
// target is pulled into the construct by duplication, so that the
// duplicated path is dominated by the header and converges at the merge.
func (self *CFG) RewriteInvalidLoopBreaks() bool {
    for i := len(self.PostOrder) - 1; i >= 0; i-- {
        h := self.PostOrder[i]
        if h.Merge != MergeLoop || h.FwdVisit < 0 {
            continue
        }

        m := h.LoopMerge
        c := h.LoopContinue
        legal := self.legalBreakTargets(h)
        la := self.analyzeLoop(h, c)

        for _, s := range la.nonDominatedExit {
            st := seeThroughLadder(s)
            if s == m || s == c || legal[s] || st == m || st == c || legal[st] {
                continue
            }
            if s.FwdVisit < 0 || !self.CanDuplicatePhis(s) {
                continue
            }

            /* duplicate for the in-construct predecessors only */
            moved := uniquePreds(s, func(p *Node) bool {
                return p.FwdVisit >= 0 && h.Dominates(p) && !self.isBackEdge(p, s)
            })
            if len(moved) == 0 || len(moved) == len(uniquePreds(s, func(p *Node) bool { return true })) {
                continue
            }
            self.DuplicateNode(s, moved)
            h.State = LoopUnclassified
            return true
        }
    }
    return false
}
