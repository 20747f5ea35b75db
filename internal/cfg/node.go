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
)

type MergeType uint8

const (
    MergeNone MergeType = iota
    MergeSelection
    MergeLoop
)

// LoopState tracks the classification of a loop header within one
// structurization pass. Rewrites that invalidate post-dominance reset the
// header to LoopUnclassified for the next pass.
type LoopState uint8

const (
    LoopUnclassified LoopState = iota
    LoopAnalyzed
    LoopMergeChosen
    LoopLadderMaterialized
    LoopFinalized
)

// Incoming is one (predecessor, value) pair of a Phi record.
type Incoming struct {
    Block *Node
    Value *hir.Value
}

// Phi mirrors a host Phi with node references instead of host blocks.
type Phi struct {
    Def      *hir.Value
    Incoming []Incoming
}

func (self *Phi) incomingFor(p *Node) (*hir.Value, bool) {
    for _, in := range self.Incoming {
        if in.Block == p {
            return in.Value, true
        }
    }
    return nil, false
}

func (self *Phi) removeIncoming(p *Node) {
    out := self.Incoming[:0]
    for _, in := range self.Incoming {
        if in.Block != p {
            out = append(out, in)
        }
    }
    self.Incoming = out
}

// Node is one basic block of the structurizer's CFG.
type Node struct {
    Id   int
    Name string
    Bb   *hir.Block

    Pred []*Node
    Succ []*Node
    Ops  []*hir.Instr
    Phi  []*Phi
    Term Terminator

    /* merge annotations */
    Merge        MergeType
    LoopMerge    *Node
    LoopContinue *Node
    SelMerge     *Node
    SelMergeExit bool
    PhiOverride  *Node
    IsLadder     bool

    /* analysis state, owned by the traversal code */
    Idom         *Node
    Ipdom        *Node
    FwdVisit     int
    BwdVisit     int
    PredBackEdge *Node
    State        LoopState
}

func (self *Node) String() string {
    return fmt.Sprintf("bb %s(#%d)", self.Name, self.Id)
}

// AddBranch appends an edge self -> to, updating both sides.
func (self *Node) AddBranch(to *Node) {
    self.Succ = append(self.Succ, to)
    to.Pred = append(to.Pred, self)
}

// RetargetBranch replaces every edge self -> old with self -> new, updating
// the successor list, both predecessor lists and the terminator record. Phi
// records on old and new are left alone; callers that funnel edges through a
// ladder move the affected incoming values explicitly.
func (self *Node) RetargetBranch(old *Node, new *Node) {
    nb := 0
    for i, s := range self.Succ {
        if s == old {
            nb++
            self.Succ[i] = new
        }
    }
    if nb == 0 {
        panic(fmt.Sprintf("cfg: %s does not branch to %s", self.Name, old.Name))
    }
    removePred(old, self, nb)
    for i := 0; i < nb; i++ {
        new.Pred = append(new.Pred, self)
    }
    self.Term.retarget(old, new)
}

// ReplacePred substitutes old with new in the predecessor list, positionally.
func (self *Node) ReplacePred(old *Node, new *Node) {
    nb := 0
    for i, p := range self.Pred {
        if p == old {
            nb++
            self.Pred[i] = new
        }
    }
    if nb == 0 {
        panic(fmt.Sprintf("cfg: %s is not a predecessor of %s", old.Name, self.Name))
    }
}

// ReplaceSucc substitutes old with new in the successor list and the
// terminator, positionally. Predecessor lists of old and new are not
// touched.
func (self *Node) ReplaceSucc(old *Node, new *Node) {
    nb := 0
    for i, s := range self.Succ {
        if s == old {
            nb++
            self.Succ[i] = new
        }
    }
    if nb == 0 {
        panic(fmt.Sprintf("cfg: %s is not a successor of %s", old.Name, self.Name))
    }
    self.Term.retarget(old, new)
}

func (self *Node) HasPred(p *Node) bool {
    for _, v := range self.Pred {
        if v == p {
            return true
        }
    }
    return false
}

func (self *Node) HasSucc(p *Node) bool {
    for _, v := range self.Succ {
        if v == p {
            return true
        }
    }
    return false
}

// Dominates reports whether self dominates other, walking the immediate
// dominator chain. Post-visit indices bound the walk: a dominator always
// finishes after the nodes it dominates.
func (self *Node) Dominates(other *Node) bool {
    for other != nil && other != self && other.FwdVisit < self.FwdVisit {
        if other.Idom == other {
            return false
        }
        other = other.Idom
    }
    return other == self
}

// PostDominates is the symmetric query on the reversed CFG. The virtual
// exit sentinel terminates every chain.
func (self *Node) PostDominates(other *Node) bool {
    for other != nil && other != self && other.BwdVisit < self.BwdVisit {
        other = other.Ipdom
    }
    return other == self
}

func removePred(p *Node, from *Node, nb int) {
    out := p.Pred[:0]
    for _, v := range p.Pred {
        if v == from && nb > 0 {
            nb--
        } else {
            out = append(out, v)
        }
    }
    p.Pred = out
}

// unlink severs every edge of p, leaving it ready for Pool.RemoveNode. Phi
// records on former successors drop their incoming entries for p.
func (self *Node) unlink() {
    for _, s := range self.Succ {
        removePred(s, self, 1)
        for _, ph := range s.Phi {
            if !s.HasPred(self) {
                ph.removeIncoming(self)
            }
        }
    }
    for _, p := range self.Pred {
        out := p.Succ[:0]
        for _, v := range p.Succ {
            if v != self {
                out = append(out, v)
            }
        }
        p.Succ = out
    }
    self.Pred = nil
    self.Succ = nil
}
