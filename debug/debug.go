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

package debug

import (
	"sync/atomic"

	"github.com/cloudwego/structurizer/internal/cfg"
)

// A Stats records statistics about the structurizer.
type Stats struct {
	Passes      int
	Ladders     int
	Duplicates  int
	Helpers     int
	UndefPhis   int
	DroppedPhis int
}

// GetStats returns counters accumulated over every structurized function.
func GetStats() Stats {
	return Stats{
		Passes:      int(atomic.LoadInt64(&cfg.PassCount)),
		Ladders:     int(atomic.LoadInt64(&cfg.LadderCount)),
		Duplicates:  int(atomic.LoadInt64(&cfg.DuplicateCount)),
		Helpers:     int(atomic.LoadInt64(&cfg.HelperCount)),
		UndefPhis:   int(atomic.LoadInt64(&cfg.UndefPhiCount)),
		DroppedPhis: int(atomic.LoadInt64(&cfg.DroppedPhiCount)),
	}
}
