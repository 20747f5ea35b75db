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

// Package structurizer rewrites an arbitrary control-flow graph into the
// structured form required by GPU shader IRs: every conditional branch or
// switch becomes a loop or selection header with a unique merge block, and
// every loop carries a well-defined continue block. Merge annotations are
// injected into the host function as marker instructions.
//
// The input function is modified in place. Different functions may be
// structurized concurrently as long as they do not share blocks.
package structurizer

import (
	"github.com/cloudwego/structurizer/hir"
	"github.com/cloudwego/structurizer/internal/cfg"
	"github.com/cloudwego/structurizer/internal/opts"
	"github.com/cloudwego/structurizer/internal/translate"
)

// Structurize imports fn, runs the fixed-point structurization driver and
// writes the result back, with merge annotations attached to every
// structured header.
//
// On failure the function is left untouched and the error describes which
// invariant could not be established.
func Structurize(fn *hir.Func, options ...Option) error {
	o := opts.GetDefaultOptions()
	for _, opt := range options {
		opt(&o)
	}

	pool := cfg.NewPool()
	g, err := translate.Import(fn, pool, o)
	if err != nil {
		return err
	}
	if err := g.Structurize(); err != nil {
		return err
	}
	translate.Emit(g, fn)
	return nil
}
