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
    `github.com/cloudwego/structurizer/internal/opts`
)

type _Edge struct {
    from int
    to   int
}

// CFG couples a node pool with an entry node and the analysis caches
// computed over them. The caches are read-only between rewrites and are
// invalidated explicitly: every pass that changes edges calls Recompute()
// before the next analysis-dependent step runs.
type CFG struct {
    Pool    *Pool
    Entry   *Node
    Options opts.Options

    /* forward post order of the reachable nodes, and the exit set */
    PostOrder []*Node
    BwdOrder  []*Node
    Exits     []*Node

    /* virtual exit joining all Return/Kill/Unreachable nodes */
    vexit *Node

    backEdges map[_Edge]bool
    backPreds map[int][]*Node

    reach     *_BitMatrix
    reachBack *_BitMatrix

    DomFrontier  map[int][]*Node
    PdomFrontier map[int][]*Node

    /* loop bookkeeping, rebuilt by FindLoops */
    irreducible []*Node
    loopTargets map[*Node]bool

    /* diagnostic function name, set by the translator */
    Name string
}

func NewCFG(pool *Pool, entry *Node, options opts.Options) *CFG {
    return &CFG {
        Pool    : pool,
        Entry   : entry,
        Options : options,
    }
}

// ResetTraversal drops all per-node analysis state. Merge annotations are
// kept; the next pass either confirms or replaces them.
func (self *CFG) ResetTraversal() {
    self.PostOrder = nil
    self.BwdOrder = nil
    self.Exits = nil
    self.vexit = nil
    self.backEdges = make(map[_Edge]bool)
    self.backPreds = make(map[int][]*Node)
    self.reach = nil
    self.reachBack = nil
    self.DomFrontier = nil
    self.PdomFrontier = nil
    self.Pool.ForEachNode(func(p *Node) {
        p.Idom = nil
        p.Ipdom = nil
        p.FwdVisit = -1
        p.BwdVisit = -1
        p.PredBackEdge = nil
        p.State = LoopUnclassified
    })
}

// Recompute re-runs every analysis from scratch over the current edges.
func (self *CFG) Recompute() {
    self.ResetTraversal()
    self.visitForward()
    self.visitBackward()
    self.buildImmediateDominators()
    self.buildImmediatePostDominators()
    self.buildReachability()
    self.computeDominanceFrontier()
    self.computePostDominanceFrontier()
}

func (self *CFG) isBackEdge(from *Node, to *Node) bool {
    return self.backEdges[_Edge { from: from.Id, to: to.Id }]
}

// visitForward runs the forward DFS: post-visit indices, the forward post
// order, and back-edge classification (an edge to a node still on the DFS
// stack targets an ancestor).
func (self *CFG) visitForward() {
    idx := 0
    vis := make(map[*Node]bool)
    act := make(map[*Node]bool)

    /* recursive DFS, bounded by the node count */
    var visit func(p *Node)
    visit = func(p *Node) {
        vis[p] = true
        act[p] = true

        /* classify each out-edge */
        for _, s := range p.Succ {
            if act[s] {
                if !self.backEdges[_Edge { from: p.Id, to: s.Id }] {
                    self.backEdges[_Edge { from: p.Id, to: s.Id }] = true
                    self.backPreds[s.Id] = append(self.backPreds[s.Id], p)
                }
            } else if !vis[s] {
                visit(s)
            }
        }

        /* post-visit numbering */
        act[p] = false
        p.FwdVisit = idx
        idx++
        self.PostOrder = append(self.PostOrder, p)
    }
    visit(self.Entry)

    /* link the unique back-edge predecessor where there is one */
    for id, preds := range self.backPreds {
        if len(preds) == 1 {
            for _, p := range self.PostOrder {
                if p.Id == id {
                    p.PredBackEdge = preds[0]
                    break
                }
            }
        }
    }
}

// visitBackward runs the DFS over reversed edges from every exit node. The
// virtual exit joining them is materialized as a sentinel that sorts above
// all real post-visit indices.
func (self *CFG) visitBackward() {
    idx := 0
    vis := make(map[*Node]bool)

    var visit func(p *Node)
    visit = func(p *Node) {
        vis[p] = true
        for _, q := range p.Pred {
            if !vis[q] && q.FwdVisit >= 0 {
                visit(q)
            }
        }
        p.BwdVisit = idx
        idx++
        self.BwdOrder = append(self.BwdOrder, p)
    }

    /* exits in forward post order, so numbering is deterministic */
    for _, p := range self.PostOrder {
        if isExitTerm(p.Term) {
            self.Exits = append(self.Exits, p)
        }
    }
    for _, p := range self.Exits {
        if !vis[p] {
            visit(p)
        }
    }

    /* sentinel above everything */
    self.vexit = &Node {
        Name     : "<exit>",
        Id       : -1,
        FwdVisit : -1,
        BwdVisit : idx,
    }
    self.vexit.Ipdom = self.vexit
}
