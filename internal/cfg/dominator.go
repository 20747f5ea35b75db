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

/** Immediate dominators and post-dominators via the Cooper-Harvey-Kennedy
 *  iteration (https://www.cs.rice.edu/~keith/EMBED/dom.pdf): reverse
 *  post-order sweeps with an intersection walk over post-visit indices.
 *  Post-dominance runs on the reversed CFG, rooted at the virtual exit.
 */

package cfg

func intersectDom(a *Node, b *Node) *Node {
    for a != b {
        for a.FwdVisit < b.FwdVisit {
            a = a.Idom
        }
        for b.FwdVisit < a.FwdVisit {
            b = b.Idom
        }
    }
    return a
}

func intersectPdom(a *Node, b *Node) *Node {
    for a != b {
        for a.BwdVisit < b.BwdVisit {
            a = a.Ipdom
        }
        for b.BwdVisit < a.BwdVisit {
            b = b.Ipdom
        }
    }
    return a
}

func (self *CFG) buildImmediateDominators() {
    self.Entry.Idom = self.Entry

    /* iterate in reverse post order until stable */
    for changed := true; changed; {
        changed = false
        for i := len(self.PostOrder) - 1; i >= 0; i-- {
            b := self.PostOrder[i]
            if b == self.Entry {
                continue
            }

            /* intersect all processed predecessors */
            var idom *Node
            for _, p := range b.Pred {
                if p.FwdVisit < 0 || p.Idom == nil {
                    continue
                }
                if idom == nil {
                    idom = p
                } else {
                    idom = intersectDom(idom, p)
                }
            }
            if idom != nil && b.Idom != idom {
                b.Idom = idom
                changed = true
            }
        }
    }
}

func (self *CFG) buildImmediatePostDominators() {
    for changed := true; changed; {
        changed = false
        for i := len(self.BwdOrder) - 1; i >= 0; i-- {
            b := self.BwdOrder[i]

            /* exit nodes hang off the virtual exit directly */
            if isExitTerm(b.Term) {
                if b.Ipdom != self.vexit {
                    b.Ipdom = self.vexit
                    changed = true
                }
                continue
            }

            /* intersect all processed successors */
            var ipdom *Node
            for _, s := range b.Succ {
                if s.BwdVisit < 0 || s.Ipdom == nil {
                    continue
                }
                if ipdom == nil {
                    ipdom = s
                } else {
                    ipdom = intersectPdom(ipdom, s)
                }
            }
            if ipdom != nil && b.Ipdom != ipdom {
                b.Ipdom = ipdom
                changed = true
            }
        }
    }
}

// ImmediatePostDominator resolves the virtual exit to nil, so that callers
// see "post-dominated by nothing but the exit" as the absence of a merge
// candidate.
func (self *CFG) ImmediatePostDominator(p *Node) *Node {
    if p.Ipdom == self.vexit {
        return nil
    } else {
        return p.Ipdom
    }
}

// FindCommonPostDominator returns the nearest node post-dominating every
// candidate, or nil when the candidates only converge at the virtual exit
// (or when one of them cannot reach an exit at all).
func (self *CFG) FindCommonPostDominator(candidates []*Node) *Node {
    var r *Node
    for _, c := range candidates {
        if c.BwdVisit < 0 {
            return nil
        } else if r == nil {
            r = c
        } else {
            r = intersectPdom(r, c)
        }
    }
    if r == nil || r == self.vexit {
        return nil
    }
    return r
}

// FindCommonPostDominatorWithIgnoredBreak is the merge-selection variant:
// the break node (a loop continue, typically) neither participates as a
// candidate nor terminates the intersection walk.
func (self *CFG) FindCommonPostDominatorWithIgnoredBreak(candidates []*Node, brk *Node) *Node {
    cs := make([]*Node, 0, len(candidates))
    for _, c := range candidates {
        if c != brk {
            cs = append(cs, c)
        }
    }
    r := self.FindCommonPostDominator(cs)
    for r != nil && r == brk {
        if r = r.Ipdom; r == self.vexit {
            r = nil
        }
    }
    return r
}
