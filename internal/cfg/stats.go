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
    `sync/atomic`
)

// Counters across all structurized functions. Callers running functions in
// parallel on disjoint pools share these, hence the atomics.
var (
    PassCount      int64
    LadderCount    int64
    DuplicateCount int64
    HelperCount    int64
    UndefPhiCount  int64
    DroppedPhiCount int64
)

func countPass()      { atomic.AddInt64(&PassCount, 1) }
func countLadder()    { atomic.AddInt64(&LadderCount, 1) }
func countDuplicate() { atomic.AddInt64(&DuplicateCount, 1) }
func countHelper()    { atomic.AddInt64(&HelperCount, 1) }
func countUndefPhi()  { atomic.AddInt64(&UndefPhiCount, 1) }

// CountDroppedPhi is recorded by the translator when a malformed Phi entry
// is discarded at import.
func CountDroppedPhi() { atomic.AddInt64(&DroppedPhiCount, 1) }
