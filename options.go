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

package structurizer

import (
	"fmt"

	"github.com/cloudwego/structurizer/internal/opts"
)

// Option is the property setter function for opts.Options.
type Option func(*opts.Options)

// WithMaxPasses sets the iteration budget of the fixed-point driver.
//
// A CFG that has not stabilized within the budget is rejected with a
// NonConvergentError. The default value of this option is "16".
func WithMaxPasses(n int) Option {
	if n <= 0 {
		panic(fmt.Sprintf("structurizer: invalid pass budget: %d", n))
	}
	return func(o *opts.Options) { o.MaxPasses = n }
}

// WithPassDebug dumps a per-node state snapshot to stderr after every
// rewriting step.
func WithPassDebug(v bool) Option {
	return func(o *opts.Options) { o.PassDebug = v }
}

// WithGraphvizDump writes the final structured CFG in DOT form to the given
// path.
func WithGraphvizDump(path string) Option {
	return func(o *opts.Options) { o.GraphvizDump = path }
}
