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
    `sort`

    `github.com/cloudwego/structurizer/hir`
    `github.com/oleiade/lane`
)

// phiFrontierMakesForwardProgress reports whether the value carried from
// src can still flow to the new predecessor dst: a path must exist that
// does not cross any other incoming block of the Phi, since those act as
// redefinition points.
func (self *CFG) phiFrontierMakesForwardProgress(ph *Phi, src *Node, dst *Node) bool {
    if src == dst {
        return true
    }

    /* redefinition points */
    stop := make(map[*Node]bool)
    for _, in := range ph.Incoming {
        if in.Block != src {
            stop[in.Block] = true
        }
    }

    /* worklist search over all edges, back edges included */
    q := lane.NewQueue()
    vis := map[*Node]bool { src: true }
    for q.Enqueue(src); !q.Empty(); {
        p := q.Dequeue().(*Node)
        for _, s := range p.Succ {
            if s == dst {
                return true
            }
            if !vis[s] && !stop[s] {
                vis[s] = true
                q.Enqueue(s)
            }
        }
    }
    return false
}

// propagatePhiValue picks the incoming value that reaches the new
// predecessor, if any, with the usual deterministic tie-break.
func (self *CFG) propagatePhiValue(ph *Phi, dst *Node) *hir.Value {
    cand := append([]Incoming(nil), ph.Incoming...)
    sort.Slice(cand, func(i int, j int) bool {
        a, b := cand[i].Block, cand[j].Block
        if a.FwdVisit != b.FwdVisit {
            return a.FwdVisit < b.FwdVisit
        }
        if ha, hb := nameHash(a), nameHash(b); ha != hb {
            return ha < hb
        }
        return a.Id < b.Id
    })
    for _, in := range cand {
        if self.phiFrontierMakesForwardProgress(ph, in.Block, dst) {
            return in.Value
        }
    }
    return nil
}

// FixupPhis restores the Phi invariant on every reachable node: the
// incoming domain equals the predecessor set. Entries of vanished
// predecessors are dropped; fresh predecessors receive the reaching value
// or undef when no definition can reach them.
func (self *CFG) FixupPhis() {
    for _, p := range self.PostOrder {
        preds := uniquePreds(p, func(q *Node) bool { return q.FwdVisit >= 0 })
        for _, ph := range p.Phi {

            /* drop stale and duplicate entries, first occurrence wins */
            seen := make(map[*Node]bool)
            out := ph.Incoming[:0]
            for _, in := range ph.Incoming {
                if !seen[in.Block] && in.Block.FwdVisit >= 0 && p.HasPred(in.Block) {
                    seen[in.Block] = true
                    out = append(out, in)
                }
            }
            ph.Incoming = out

            /* fill in missing predecessors */
            for _, q := range preds {
                if _, ok := ph.incomingFor(q); ok {
                    continue
                }
                if v := self.propagatePhiValue(ph, q); v != nil {
                    ph.Incoming = append(ph.Incoming, Incoming { Block: q, Value: v })
                } else {
                    ph.Incoming = append(ph.Incoming, Incoming { Block: q, Value: hir.Undef })
                    countUndefPhi()
                }
            }
        }
    }
}
