// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package mailbox

// seqRange is an inclusive IMAP sequence-number range.
type seqRange struct {
	from, to uint32
}

// planBatches splits a folder of total messages into batchSize-wide ranges,
// ordered newest first, so the caller can stop scanning as soon as a whole
// batch falls outside the recency window. IMAP sequence numbers start at 1;
// the highest sequence number is the newest message.
func planBatches(total, batchSize uint32) []seqRange {
	if total == 0 {
		return nil
	}
	if batchSize == 0 {
		batchSize = 1
	}

	var batches []seqRange
	to := total
	for to >= 1 {
		from := uint32(1)
		if to > batchSize {
			from = to - batchSize + 1
		}
		batches = append(batches, seqRange{from: from, to: to})
		if from == 1 {
			break
		}
		to = from - 1
	}
	return batches
}
