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

    `github.com/cloudwego/structurizer/hir`
    `github.com/oleiade/lane`
)

// funnelPhiEntries moves the Phi incoming entries of target that belong to
// the moved predecessors onto via. More than one moved value materializes a
// fresh Phi at the funnel point whose definition feeds the original Phi.
// Must run before the edges themselves are retargeted.
func funnelPhiEntries(target *Node, via *Node, moved []*Node) {
    for _, ph := range target.Phi {
        var ins []Incoming

        /* collect and detach the moved entries */
        for _, p := range moved {
            if v, ok := ph.incomingFor(p); ok {
                ins = append(ins, Incoming { Block: p, Value: v })
                ph.removeIncoming(p)
            }
        }

        /* re-attach through the funnel */
        if len(ins) == 1 {
            ph.Incoming = append(ph.Incoming, Incoming { Block: via, Value: ins[0].Value })
        } else if len(ins) > 1 {
            def := &hir.Value { Name: fmt.Sprintf("%s.%s", via.Name, ph.Def.Name) }
            via.Phi = append(via.Phi, &Phi { Def: def, Incoming: ins })
            ph.Incoming = append(ph.Incoming, Incoming { Block: via, Value: def })
        }
    }
}

func uniquePreds(target *Node, pick func(p *Node) bool) []*Node {
    var out []*Node
    seen := make(map[*Node]bool)
    for _, p := range target.Pred {
        if !seen[p] && pick(p) {
            seen[p] = true
            out = append(out, p)
        }
    }
    return out
}

// CreateLadderBlock rewrites every branch to node coming from a block
// dominated by header through a fresh passthrough block, so that the
// construct owns a single choke point into node. Phi values carried by the
// rewritten edges are materialized at the ladder tail.
func (self *CFG) CreateLadderBlock(header *Node, node *Node, tag string) *Node {
    ladder := self.Pool.CreateNode(header.Name + tag, nil)
    ladder.IsLadder = true

    /* everything dominated by the header, back edges excluded */
    moved := uniquePreds(node, func(p *Node) bool {
        return p.FwdVisit >= 0 && header.Dominates(p) && !self.isBackEdge(p, node)
    })

    /* carry the merged values through the ladder, then rewire */
    funnelPhiEntries(node, ladder, moved)
    for _, p := range moved {
        p.RetargetBranch(node, ladder)
    }
    ladder.Term = &TermBranch { To: node }
    ladder.AddBranch(node)
    countLadder()
    return ladder
}

// CreateHelperPredBlock gives node a unique forward predecessor. All normal
// in-edges are routed through the helper; a back edge predecessor stays on
// the node itself. The Phi entries of the rerouted edges are funnelled onto
// the helper; the node's own Phis stay in place.
func (self *CFG) CreateHelperPredBlock(node *Node) *Node {
    pred := self.Pool.CreateNode(node.Name + ".pred", nil)
    pred.IsLadder = true

    /* all forward predecessors */
    moved := uniquePreds(node, func(p *Node) bool {
        return !self.isBackEdge(p, node)
    })

    funnelPhiEntries(node, pred, moved)
    for _, p := range moved {
        p.RetargetBranch(node, pred)
    }
    pred.Term = &TermBranch { To: node }
    pred.AddBranch(node)

    /* entry splits shift the entry itself */
    if node == self.Entry {
        self.Entry = pred
    }
    countHelper()
    return pred
}

// CreateHelperSuccBlock splits node after its body: the helper takes over
// the terminator and all out-edges, node falls through to the helper.
// Downstream Phi records are rewritten eagerly; the host-side Phis are
// redirected later through the PhiOverride map at emission.
func (self *CFG) CreateHelperSuccBlock(node *Node) *Node {
    succ := self.Pool.CreateNode(node.Name + ".succ", nil)
    succ.IsLadder = true

    /* hand the terminator over */
    succ.Term = node.Term
    succ.Succ = node.Succ
    node.Term = nil
    node.Succ = nil

    /* repoint the successor side */
    seen := make(map[*Node]bool)
    for _, s := range succ.Succ {
        s.ReplacePred(node, succ)
        if !seen[s] {
            seen[s] = true
            for _, ph := range s.Phi {
                for i, in := range ph.Incoming {
                    if in.Block == node {
                        ph.Incoming[i].Block = succ
                    }
                }
            }
        }
    }

    /* fall through, and remember the split for host Phi emission */
    node.Term = &TermBranch { To: succ }
    node.AddBranch(succ)
    node.PhiOverride = succ
    countHelper()
    return succ
}

// TraverseDominatedBlocksAndRewriteBranch retargets every edge to from that
// originates inside the dominated region of dominator. Phi maintenance is
// the caller's business.
func (self *CFG) TraverseDominatedBlocksAndRewriteBranch(dominator *Node, from *Node, to *Node) {
    q := lane.NewQueue()
    vis := map[*Node]bool { dominator: true }
    for q.Enqueue(dominator); !q.Empty(); {
        p := q.Dequeue().(*Node)
        if p.HasSucc(from) {
            p.RetargetBranch(from, to)
        }
        for _, s := range p.Succ {
            if !vis[s] && s != from && s != to && dominator.Dominates(s) {
                vis[s] = true
                q.Enqueue(s)
            }
        }
    }
}

// MergeToSucc folds a degenerate node into its single successor. The caller
// has already verified eligibility.
func (self *CFG) MergeToSucc(node *Node) {
    pr := node.Pred[0]
    sc := node.Succ[0]

    /* keep the carried Phi values alive on the new edge; if pr already
     * feeds the successor the duplicate entry is dropped instead */
    for _, ph := range sc.Phi {
        if _, ok := ph.incomingFor(pr); ok {
            ph.removeIncoming(node)
            continue
        }
        for i, in := range ph.Incoming {
            if in.Block == node {
                ph.Incoming[i].Block = pr
            }
        }
    }
    pr.RetargetBranch(node, sc)
    node.unlink()
    self.Pool.RemoveNode(node)
}

// EliminateDegenerateBlocks removes passthrough blocks that carry no
// operations, no Phis and no structural role. Returns whether the CFG
// changed.
func (self *CFG) EliminateDegenerateBlocks() bool {
    rt := false
    keep := self.loadBearingSet()

    for _, p := range append([]*Node(nil), self.PostOrder...) {
        if keep[p] || p.IsLadder || len(p.Ops) != 0 || len(p.Phi) != 0 {
            continue
        }
        if len(p.Pred) != 1 || len(p.Succ) != 1 {
            continue
        }

        pr := p.Pred[0]
        sc := p.Succ[0]
        if pr == p || sc == p {
            continue
        }
        if self.isBackEdge(pr, p) || self.isBackEdge(p, sc) {
            continue
        }

        /* the arms of an annotated header shape its construct; a switch
         * header is still unannotated in the pass that detached its
         * fallthrough edges */
        if pr.Merge != MergeNone {
            continue
        }
        if _, ok := pr.Term.(*TermSwitch); ok {
            continue
        }

        /* a second edge pr -> sc must agree on every Phi value */
        if sc.HasPred(pr) {
            ok := true
            for _, ph := range sc.Phi {
                vp, okp := ph.incomingFor(p)
                vq, okq := ph.incomingFor(pr)
                if okp && okq && vp != vq {
                    ok = false
                    break
                }
            }
            if !ok {
                continue
            }
        }

        self.MergeToSucc(p)
        rt = true
    }
    return rt
}

// loadBearingSet collects nodes that must not be eliminated: the entry,
// annotated headers, and every merge or continue target.
func (self *CFG) loadBearingSet() map[*Node]bool {
    keep := map[*Node]bool { self.Entry: true }
    self.Pool.ForEachNode(func(p *Node) {
        if p.Merge != MergeNone {
            keep[p] = true
        }
        if p.LoopMerge != nil {
            keep[p.LoopMerge] = true
        }
        if p.LoopContinue != nil {
            keep[p.LoopContinue] = true
        }
        if p.SelMerge != nil {
            keep[p.SelMerge] = true
        }
        if p.PredBackEdge != nil {
            keep[p] = true
            keep[p.PredBackEdge] = true
        }
    })
    for p := range self.loopTargets {
        keep[p] = true
    }
    return keep
}

// PruneDeadPreds removes predecessors not reachable from the entry along
// with their Phi entries, then releases nodes that are neither reachable
// nor referenced as a synthesized merge or continue target.
func (self *CFG) PruneDeadPreds() {
    keep := make(map[*Node]bool)

    /* synthesized merge targets of reachable headers stay */
    self.Pool.ForEachNode(func(p *Node) {
        if p.FwdVisit < 0 {
            return
        }
        if p.LoopMerge != nil {
            keep[p.LoopMerge] = true
        }
        if p.LoopContinue != nil {
            keep[p.LoopContinue] = true
        }
        if p.SelMerge != nil {
            keep[p.SelMerge] = true
        }
    })

    /* drop unreachable in-edges */
    self.Pool.ForEachNode(func(p *Node) {
        if p.FwdVisit < 0 {
            return
        }
        out := p.Pred[:0]
        for _, q := range p.Pred {
            if q.FwdVisit >= 0 {
                out = append(out, q)
            } else {
                for _, ph := range p.Phi {
                    ph.removeIncoming(q)
                }
            }
        }
        p.Pred = out
    })

    /* release what is provably dead */
    self.Pool.ForEachNode(func(p *Node) {
        if p.FwdVisit < 0 && !keep[p] {
            p.unlink()
            self.Pool.RemoveNode(p)
        }
    })
}
