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
    `sort`
)

// Builder assembles a Func block by block. Branch targets are referenced by
// label and may be used before they are defined; Build() resolves everything
// and checks that every block terminates.
type Builder struct {
    fn  *Func
    cur *Block
    ref map[string]*Block
    nv  int
}

func CreateBuilder(name string) *Builder {
    return &Builder {
        fn  : &Func { Name: name },
        ref : make(map[string]*Block),
    }
}

func (self *Builder) block(name string) *Block {
    if bb, ok := self.ref[name]; ok {
        return bb
    } else {
        bb = &Block { Name: name }
        self.ref[name] = bb
        return bb
    }
}

func (self *Builder) emit(p *Instr) {
    if self.cur == nil {
        panic("hir: instruction emitted outside of a block")
    } else if self.cur.Term != nil {
        panic(fmt.Sprintf("hir: block %s already terminates", self.cur.Name))
    } else {
        self.cur.Ins = append(self.cur.Ins, p)
    }
}

func (self *Builder) term(p *Instr) {
    if self.cur == nil {
        panic("hir: terminator emitted outside of a block")
    } else if self.cur.Term != nil {
        panic(fmt.Sprintf("hir: block %s already terminates", self.cur.Name))
    } else {
        self.cur.Term = p
        self.cur = nil
    }
}

// Label opens the block with the given name, creating it on first use.
func (self *Builder) Label(name string) {
    bb := self.block(name)

    /* the first labelled block is the entry */
    if self.fn.Entry == nil {
        self.fn.Entry = bb
    }

    /* each block may be opened only once */
    for _, v := range self.fn.Blocks {
        if v == bb {
            panic(fmt.Sprintf("hir: block %s defined twice", name))
        }
    }

    /* add to the function */
    self.cur = bb
    self.fn.Blocks = append(self.fn.Blocks, bb)
}

// Value creates a fresh opaque value.
func (self *Builder) Value(name string) *Value {
    self.nv++
    return &Value { Name: fmt.Sprintf("%s.%d", name, self.nv) }
}

// Op appends an opaque instruction that defines a new value.
func (self *Builder) Op(text string, args ...*Value) *Value {
    rv := self.Value("v")
    self.emit(&Instr { Op: OP_generic, Def: rv, Args: args, Text: text })
    return rv
}

// Stmt appends an opaque instruction without a defined value.
func (self *Builder) Stmt(text string, args ...*Value) {
    self.emit(&Instr { Op: OP_generic, Args: args, Text: text })
}

// Phi appends a Phi node; the incoming map is keyed by predecessor label and
// attached in label order so that rebuilt functions are deterministic.
func (self *Builder) Phi(name string, in map[string]*Value) *Value {
    rv := &Value { Name: name }
    ph := &Phi { Def: rv }

    /* sort the labels */
    lbs := make([]string, 0, len(in))
    for lb := range in {
        lbs = append(lbs, lb)
    }
    sort.Strings(lbs)

    /* add each incoming pair */
    for _, lb := range lbs {
        ph.Incoming = append(ph.Incoming, Incoming {
            Block: self.block(lb),
            Value: in[lb],
        })
    }

    /* attach to the current block */
    if self.cur == nil {
        panic("hir: phi emitted outside of a block")
    } else {
        self.cur.Phi = append(self.cur.Phi, ph)
        return rv
    }
}

func (self *Builder) JMP(to string) {
    self.term(&Instr { Op: OP_br, Blocks: []*Block { self.block(to) } })
}

func (self *Builder) BR(cond *Value, t string, f string) {
    self.term(&Instr { Op: OP_cond_br, Args: []*Value { cond }, Blocks: []*Block { self.block(t), self.block(f) } })
}

// SW terminates with a switch; cases are attached in ascending value order.
func (self *Builder) SW(sel *Value, def string, cases map[int64]string) {
    p := &Instr { Op: OP_switch, Args: []*Value { sel }, Blocks: []*Block { self.block(def) } }

    /* sort the case values */
    cvs := make([]int64, 0, len(cases))
    for cv := range cases {
        cvs = append(cvs, cv)
    }
    sort.Slice(cvs, func(i int, j int) bool { return cvs[i] < cvs[j] })

    /* attach each case */
    for _, cv := range cvs {
        p.Cases = append(p.Cases, cv)
        p.Blocks = append(p.Blocks, self.block(cases[cv]))
    }
    self.term(p)
}

func (self *Builder) RET(v *Value) {
    if v == nil {
        self.term(&Instr { Op: OP_ret })
    } else {
        self.term(&Instr { Op: OP_ret, Args: []*Value { v } })
    }
}

func (self *Builder) UNREACHABLE() {
    self.term(&Instr { Op: OP_unreachable })
}

func (self *Builder) KILL() {
    self.term(&Instr { Op: OP_discard })
}

// Build finalizes the function. Every referenced block must have been
// defined with Label and must carry a terminator.
func (self *Builder) Build() *Func {
    if self.fn.Entry == nil {
        panic("hir: function has no entry block")
    }

    /* every block must terminate */
    for _, bb := range self.fn.Blocks {
        if bb.Term == nil {
            panic(fmt.Sprintf("hir: block %s does not terminate", bb.Name))
        }
    }

    /* every referenced block must be defined */
    for name, bb := range self.ref {
        ok := false
        for _, v := range self.fn.Blocks {
            if v == bb {
                ok = true
                break
            }
        }
        if !ok {
            panic(fmt.Sprintf("hir: undefined label: %s", name))
        }
    }
    return self.fn
}
