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

func appendFrontier(df map[int][]*Node, id int, p *Node) {
    for _, v := range df[id] {
        if v == p {
            return
        }
    }
    df[id] = append(df[id], p)
}

// computeDominanceFrontier walks every join point up the idom chains of its
// predecessors; each node passed before reaching idom(join) has the join in
// its frontier.
func (self *CFG) computeDominanceFrontier() {
    self.DomFrontier = make(map[int][]*Node)
    for _, b := range self.PostOrder {
        np := 0
        for _, p := range b.Pred {
            if p.FwdVisit >= 0 {
                np++
            }
        }
        if np < 2 {
            continue
        }
        for _, p := range b.Pred {
            if p.FwdVisit < 0 {
                continue
            }
            for r := p; r != nil && r != b.Idom; {
                appendFrontier(self.DomFrontier, r.Id, b)
                if r == r.Idom {
                    break
                }
                r = r.Idom
            }
        }
    }
}

// computePostDominanceFrontier is the symmetric walk on the reversed CFG.
func (self *CFG) computePostDominanceFrontier() {
    self.PdomFrontier = make(map[int][]*Node)
    for _, b := range self.BwdOrder {
        ns := 0
        for _, s := range b.Succ {
            if s.BwdVisit >= 0 {
                ns++
            }
        }
        if ns < 2 {
            continue
        }
        for _, s := range b.Succ {
            if s.BwdVisit < 0 {
                continue
            }
            for r := s; r != nil && r != self.vexit && r != b.Ipdom; r = r.Ipdom {
                appendFrontier(self.PdomFrontier, r.Id, b)
            }
        }
    }
}

// DominanceFrontierOf and PostDominanceFrontierOf expose the cached
// frontiers; both are recomputed wholesale by Recompute().
func (self *CFG) DominanceFrontierOf(p *Node) []*Node {
    return self.DomFrontier[p.Id]
}

func (self *CFG) PostDominanceFrontierOf(p *Node) []*Node {
    return self.PdomFrontier[p.Id]
}
