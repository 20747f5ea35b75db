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
    `os`
    `strings`

    `github.com/davecgh/go-spew/spew`
)

// _NodeState is the flat per-node snapshot used for debug dumps; the CFG
// itself is cyclic, the snapshot is not.
type _NodeState struct {
    Name     string
    Preds    []string
    Succs    []string
    Merge    string
    Idom     string
    FwdVisit int
    BwdVisit int
}

func nodeStateOf(p *Node) _NodeState {
    st := _NodeState {
        Name     : p.Name,
        FwdVisit : p.FwdVisit,
        BwdVisit : p.BwdVisit,
    }
    for _, q := range p.Pred {
        st.Preds = append(st.Preds, q.Name)
    }
    for _, q := range p.Succ {
        st.Succs = append(st.Succs, q.Name)
    }
    if p.Idom != nil {
        st.Idom = p.Idom.Name
    }
    switch p.Merge {
        case MergeLoop      : st.Merge = fmt.Sprintf("loop(%s, %s)", p.LoopMerge.Name, p.LoopContinue.Name)
        case MergeSelection : if p.SelMerge != nil { st.Merge = fmt.Sprintf("selection(%s)", p.SelMerge.Name) } else { st.Merge = "selection(exit)" }
    }
    return st
}

func (self *CFG) debugPass(pass int, tag string) {
    if !self.Options.PassDebug {
        return
    }
    states := make([]_NodeState, 0, len(self.PostOrder))
    for _, p := range self.PostOrder {
        states = append(states, nodeStateOf(p))
    }
    fmt.Fprintf(os.Stderr, "structurizer: %s pass %d after %s\n%s", self.Name, pass, tag, spew.Sdump(states))
}

// DumpGraphviz writes the CFG in DOT form, with merge annotations on the
// header labels.
func (self *CFG) DumpGraphviz(fn string) {
    buf := []string {
        "digraph CFG {",
        `    node [ fontname = "Fira Code" shape = "box" ]`,
        `    START [ shape = "circle" ]`,
        fmt.Sprintf(`    START -> "%s"`, self.Entry.Name),
    }
    self.Pool.ForEachNode(func(p *Node) {
        st := nodeStateOf(p)
        lb := p.Name
        if st.Merge != "" {
            lb = fmt.Sprintf("%s\\n%s", p.Name, st.Merge)
        }
        buf = append(buf, fmt.Sprintf(`    "%s" [ label = "%s" ]`, p.Name, lb))
        for _, s := range p.Succ {
            if self.isBackEdge(p, s) {
                buf = append(buf, fmt.Sprintf(`    "%s" -> "%s" [ style = "dashed" ]`, p.Name, s.Name))
            } else {
                buf = append(buf, fmt.Sprintf(`    "%s" -> "%s"`, p.Name, s.Name))
            }
        }
    })
    buf = append(buf, "}")
    if err := os.WriteFile(fn, []byte(strings.Join(buf, "\n")), 0644); err != nil {
        panic(err)
    }
}
