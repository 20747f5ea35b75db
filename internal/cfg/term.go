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
    `strings`

    `github.com/cloudwego/structurizer/hir`
)

// Terminator is the tagged terminator record of a node. The successor list
// on the node mirrors the targets stored here; every edge rewrite goes
// through the node operations so both stay consistent.
type Terminator interface {
    fmt.Stringer
    terminator()
    forEachTarget(fn func(p *Node))
    retarget(old *Node, new *Node)
}

func (*TermBranch)      terminator() {}
func (*TermCondition)   terminator() {}
func (*TermSwitch)      terminator() {}
func (*TermReturn)      terminator() {}
func (*TermUnreachable) terminator() {}
func (*TermKill)        terminator() {}

type TermBranch struct {
    To *Node
}

func (self *TermBranch) String() string {
    return "br " + self.To.Name
}

func (self *TermBranch) forEachTarget(fn func(p *Node)) {
    fn(self.To)
}

func (self *TermBranch) retarget(old *Node, new *Node) {
    if self.To == old {
        self.To = new
    }
}

type TermCondition struct {
    Cond *hir.Value
    Then *Node
    Else *Node
}

func (self *TermCondition) String() string {
    return fmt.Sprintf("br %s, %s, %s", self.Cond, self.Then.Name, self.Else.Name)
}

func (self *TermCondition) forEachTarget(fn func(p *Node)) {
    fn(self.Then)
    fn(self.Else)
}

func (self *TermCondition) retarget(old *Node, new *Node) {
    if self.Then == old { self.Then = new }
    if self.Else == old { self.Else = new }
}

// SwitchCase is one arm of a switch terminator. The default arm is carried
// in the same list, flagged with IsDefault.
type SwitchCase struct {
    Value     int64
    IsDefault bool
    To        *Node
}

type TermSwitch struct {
    Selector *hir.Value
    Cases    []SwitchCase
}

func (self *TermSwitch) String() string {
    arms := make([]string, 0, len(self.Cases))
    for _, cs := range self.Cases {
        if cs.IsDefault {
            arms = append(arms, "default: " + cs.To.Name)
        } else {
            arms = append(arms, fmt.Sprintf("%d: %s", cs.Value, cs.To.Name))
        }
    }
    return fmt.Sprintf("switch %s {%s}", self.Selector, strings.Join(arms, ", "))
}

func (self *TermSwitch) forEachTarget(fn func(p *Node)) {
    for _, cs := range self.Cases {
        fn(cs.To)
    }
}

func (self *TermSwitch) retarget(old *Node, new *Node) {
    for i, cs := range self.Cases {
        if cs.To == old {
            self.Cases[i].To = new
        }
    }
}

type TermReturn struct {
    Value *hir.Value
}

func (self *TermReturn) String() string {
    if self.Value == nil {
        return "ret"
    } else {
        return "ret " + self.Value.String()
    }
}

func (self *TermReturn) forEachTarget(func(p *Node)) {}
func (self *TermReturn) retarget(*Node, *Node)       {}

type TermUnreachable struct{}

func (self *TermUnreachable) String() string              { return "unreachable" }
func (self *TermUnreachable) forEachTarget(func(p *Node)) {}
func (self *TermUnreachable) retarget(*Node, *Node)       {}

// TermKill models a fragment discard. For post-dominance it behaves exactly
// like TermUnreachable: the invocation terminates, nothing returns.
type TermKill struct{}

func (self *TermKill) String() string              { return "discard" }
func (self *TermKill) forEachTarget(func(p *Node)) {}
func (self *TermKill) retarget(*Node, *Node)       {}

func isExitTerm(t Terminator) bool {
    switch t.(type) {
        case *TermReturn      : return true
        case *TermUnreachable : return true
        case *TermKill        : return true
        default               : return false
    }
}
