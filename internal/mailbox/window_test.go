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

import (
	"reflect"
	"testing"
)

func TestPlanBatches(t *testing.T) {
	tests := []struct {
		name      string
		total     uint32
		batchSize uint32
		want      []seqRange
	}{
		{
			name:      "empty folder",
			total:     0,
			batchSize: 10,
			want:      nil,
		},
		{
			name:      "fewer messages than one batch",
			total:     4,
			batchSize: 10,
			want:      []seqRange{{1, 4}},
		},
		{
			name:      "exact multiple",
			total:     20,
			batchSize: 10,
			want:      []seqRange{{11, 20}, {1, 10}},
		},
		{
			name:      "ragged final batch",
			total:     25,
			batchSize: 10,
			want:      []seqRange{{16, 25}, {6, 15}, {1, 5}},
		},
		{
			name:      "single message",
			total:     1,
			batchSize: 10,
			want:      []seqRange{{1, 1}},
		},
		{
			name:      "zero batch size degrades to one",
			total:     3,
			batchSize: 0,
			want:      []seqRange{{3, 3}, {2, 2}, {1, 1}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := planBatches(tt.total, tt.batchSize)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("planBatches(%d, %d) = %v, want %v", tt.total, tt.batchSize, got, tt.want)
			}
		})
	}
}

func TestPlanBatches_NewestFirstAndComplete(t *testing.T) {
	batches := planBatches(97, 10)

	if batches[0].to != 97 {
		t.Errorf("first batch should end at the newest message, got %v", batches[0])
	}

	// Every sequence number 1..97 is covered exactly once, descending.
	covered := map[uint32]bool{}
	prevFrom := uint32(98)
	for _, b := range batches {
		if b.to != prevFrom-1 {
			t.Errorf("batch %v does not abut previous start %d", b, prevFrom)
		}
		for n := b.from; n <= b.to; n++ {
			if covered[n] {
				t.Fatalf("sequence number %d covered twice", n)
			}
			covered[n] = true
		}
		prevFrom = b.from
	}
	if len(covered) != 97 {
		t.Errorf("expected 97 covered sequence numbers, got %d", len(covered))
	}
}
