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

package hir

import (
    `fmt`
)

type OpCode uint8

const (
    OP_generic OpCode = iota    // opaque, passed through untouched
    OP_phi
    OP_br                       // Blocks[0]
    OP_cond_br                  // Args[0], Blocks[0] = true, Blocks[1] = false
    OP_switch                   // Args[0], Blocks[0] = default, Blocks[1:] = cases, Cases[i] = value of Blocks[i + 1]
    OP_ret                      // Args[0] if present
    OP_unreachable
    OP_discard                  // fragment discard, terminates the invocation
    OP_selection_merge          // Blocks[0] = merge
    OP_loop_merge               // Blocks[0] = merge, Blocks[1] = continue
    OP_merge_block
    OP_continue_block
)

// Value is an opaque SSA value handle. The structurizer never inspects a
// value beyond its identity.
type Value struct {
    Name string
}

// Undef is the distinguished placeholder value used when a Phi incoming
// cannot be resolved to any reaching definition.
var Undef = &Value { Name: "undef" }

func (self *Value) String() string {
    return "%" + self.Name
}

// Instr is a single host instruction. Everything that is not a terminator,
// a Phi or a merge marker is OP_generic and opaque.
type Instr struct {
    Op     OpCode
    Def    *Value
    Args   []*Value
    Blocks []*Block
    Cases  []int64
    Text   string
}

func (self *Instr) IsTerminator() bool {
    return self.Op >= OP_br && self.Op <= OP_discard
}

func (self *Instr) String() string {
    switch self.Op {
        case OP_generic         : return self.Text
        case OP_phi             : return fmt.Sprintf("%s = phi", self.Def)
        case OP_br              : return fmt.Sprintf("br %s", self.Blocks[0].Name)
        case OP_cond_br         : return fmt.Sprintf("br %s, %s, %s", self.Args[0], self.Blocks[0].Name, self.Blocks[1].Name)
        case OP_switch          : return fmt.Sprintf("switch %s, default %s", self.Args[0], self.Blocks[0].Name)
        case OP_ret             : if len(self.Args) == 0 { return "ret" } else { return fmt.Sprintf("ret %s", self.Args[0]) }
        case OP_unreachable     : return "unreachable"
        case OP_discard         : return "discard"
        case OP_selection_merge : return fmt.Sprintf("selection_merge %s", self.Blocks[0].Name)
        case OP_loop_merge      : return fmt.Sprintf("loop_merge %s, %s", self.Blocks[0].Name, self.Blocks[1].Name)
        case OP_merge_block     : return "merge_block"
        case OP_continue_block  : return "continue_block"
        default                 : panic("hir: invalid instruction")
    }
}

// Incoming is one (predecessor, value) pair of a Phi.
type Incoming struct {
    Block *Block
    Value *Value
}

// Phi is a host Phi node, kept separate from the ordinary instruction list
// so that the structurizer can rewrite incoming edges without scanning
// operations.
type Phi struct {
    Def      *Value
    Incoming []Incoming
}

func (self *Phi) String() string {
    return fmt.Sprintf("%s = phi/%d", self.Def, len(self.Incoming))
}

// Block is a host basic block.
type Block struct {
    Name string
    Phi  []*Phi
    Ins  []*Instr
    Term *Instr
}

// Func is a host function handle: the unit the structurizer operates on.
type Func struct {
    Name   string
    Entry  *Block
    Blocks []*Block
}

func (self *Func) String() string {
    return fmt.Sprintf("func %s (%d blocks)", self.Name, len(self.Blocks))
}
