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
    `github.com/oleiade/lane`
)

// _BitMatrix is an N x ceil(N/64) reachability bitset, indexed by node id.
type _BitMatrix struct {
    stride int
    bits   []uint64
}

func newBitMatrix(n int) *_BitMatrix {
    s := (n + 63) / 64
    return &_BitMatrix {
        stride : s,
        bits   : make([]uint64, n * s),
    }
}

func (self *_BitMatrix) rows() int {
    if self.stride == 0 {
        return 0
    } else {
        return len(self.bits) / self.stride
    }
}

func (self *_BitMatrix) set(i int, j int) {
    self.bits[i * self.stride + j / 64] |= 1 << (uint(j) % 64)
}

// test treats ids allocated after the matrix was built as unreachable.
func (self *_BitMatrix) test(i int, j int) bool {
    if n := self.rows(); i >= n || j >= n {
        return false
    }
    return self.bits[i * self.stride + j / 64] & (1 << (uint(j) % 64)) != 0
}

// orRow unions row src into row dst, reporting whether any bit was added.
func (self *_BitMatrix) orRow(dst int, src int) bool {
    rt := false
    db := self.bits[dst * self.stride:][:self.stride]
    sb := self.bits[src * self.stride:][:self.stride]
    for i, v := range sb {
        if db[i] | v != db[i] {
            rt = true
            db[i] |= v
        }
    }
    return rt
}

// buildReachability populates both variants by post-order union. Without
// back edges the graph is acyclic and one sweep is exact; through back
// edges the sweep repeats until the rows stop growing.
func (self *CFG) buildReachability() {
    nb := self.Pool.MaxId()
    self.reach = newBitMatrix(nb)
    self.reachBack = newBitMatrix(nb)

    /* acyclic variant, one pass */
    for _, p := range self.PostOrder {
        self.reach.set(p.Id, p.Id)
        for _, s := range p.Succ {
            if !self.isBackEdge(p, s) {
                self.reach.orRow(p.Id, s.Id)
            }
        }
    }

    /* full transitive closure, iterate to a fixed point */
    for _, p := range self.PostOrder {
        self.reachBack.set(p.Id, p.Id)
    }
    for changed := true; changed; {
        changed = false
        for _, p := range self.PostOrder {
            for _, s := range p.Succ {
                if self.reachBack.orRow(p.Id, s.Id) {
                    changed = true
                }
            }
        }
    }
}

// QueryReachability reports whether from reaches to over forward edges,
// excluding back edges. Reflexive.
func (self *CFG) QueryReachability(from *Node, to *Node) bool {
    return from == to || self.reach.test(from.Id, to.Id)
}

// QueryReachabilityThroughBackEdges is the variant that follows back edges
// as well.
func (self *CFG) QueryReachabilityThroughBackEdges(from *Node, to *Node) bool {
    return from == to || self.reachBack.test(from.Id, to.Id)
}

// ExistsPathWithoutIntermediate reports whether start reaches end without
// passing through stop. Back edges are not followed.
func (self *CFG) ExistsPathWithoutIntermediate(start *Node, end *Node, stop *Node) bool {
    if start == stop || end == stop {
        return false
    }
    if start == end {
        return true
    }

    /* plain worklist search with stop removed */
    q := lane.NewQueue()
    vis := map[*Node]bool { start: true }
    for q.Enqueue(start); !q.Empty(); {
        p := q.Dequeue().(*Node)
        for _, s := range p.Succ {
            if self.isBackEdge(p, s) {
                continue
            }
            if s == end {
                return true
            }
            if s != stop && !vis[s] {
                vis[s] = true
                q.Enqueue(s)
            }
        }
    }
    return false
}

// IsOrdered reports whether a reaches b and b reaches c without the b-to-c
// leg passing back through a.
func (self *CFG) IsOrdered(a *Node, b *Node, c *Node) bool {
    return self.QueryReachability(a, b) && self.QueryReachability(b, c) && self.ExistsPathWithoutIntermediate(b, c, a)
}
