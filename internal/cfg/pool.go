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

// Pool owns every node of one CFG. All other components hold non-owning
// references; removal is only allowed through the pool, and only after the
// caller severed all edges.
type Pool struct {
    next  int
    nodes []*Node
    names map[string]bool
}

func NewPool() *Pool {
    return &Pool {
        names: make(map[string]bool),
    }
}

func (self *Pool) CreateNode(name string, bb *hir.Block) *Node {
    if self.names[name] {
        name = fmt.Sprintf("%s.%d", name, self.next)
    }
    self.names[name] = true
    p := &Node {
        Id       : self.next,
        Name     : name,
        Bb       : bb,
        FwdVisit : -1,
        BwdVisit : -1,
    }
    self.next++
    self.nodes = append(self.nodes, p)
    return p
}

func (self *Pool) RemoveNode(p *Node) {
    if len(p.Pred) != 0 || len(p.Succ) != 0 {
        panic(fmt.Sprintf("cfg: removing node %s with linked edges", p.Name))
    }
    for i, v := range self.nodes {
        if v == p {
            self.nodes = append(self.nodes[:i], self.nodes[i + 1:]...)
            return
        }
    }
    panic(fmt.Sprintf("cfg: node %s is not in the pool", p.Name))
}

// ForEachNode iterates live nodes in creation order. The callback may create
// or remove nodes; it sees a snapshot of the pool taken at call time.
func (self *Pool) ForEachNode(fn func(p *Node)) {
    buf := make([]*Node, len(self.nodes))
    copy(buf, self.nodes)
    for _, p := range buf {
        fn(p)
    }
}

func (self *Pool) Nodes() []*Node {
    return self.nodes
}

// MaxId returns an exclusive upper bound of all ids ever handed out. Ids are
// never reused, so side tables indexed by id stay valid across removals.
func (self *Pool) MaxId() int {
    return self.next
}
