// Copyright © 2023-2024 Wei Shen <shenwei356@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package binseq

import "fmt"

// ParallelProcessor consumes the records of one worker's partition during
// parallel iteration. Each worker owns its processor exclusively:
// ProcessRecord may freely mutate receiver state without synchronization.
//
// Records are delivered in ascending file order within a partition. The
// Record passed to ProcessRecord borrows from the file mapping and is only
// valid for the duration of the call.
type ParallelProcessor interface {
	// ProcessRecord is called once per record in the worker's partition.
	// Returning a non-nil error cancels the remaining work of all workers.
	ProcessRecord(rec Record) error

	// OnBatchComplete is called exactly once after the worker's partition
	// has been fully processed.
	OnBatchComplete() error
}

// ProcessorFactory builds one processor per worker. tid is the worker
// index in [0, numWorkers). The factory is called from the dispatching
// goroutine once per worker, just before that worker starts, so it may run
// while earlier workers are already processing; the returned processors
// must not be shared between workers.
type ProcessorFactory func(tid int) ParallelProcessor

// Stats summarizes one parallel run.
type Stats struct {
	// Records is the total number of records delivered across all workers.
	Records uint64

	// Workers is the number of workers that ran.
	Workers int
}

// ProcessorError wraps an error returned by a user-supplied processor.
type ProcessorError struct {
	Inner error
}

func (e ProcessorError) Error() string {
	return fmt.Sprintf("binseq: processor error: %s", e.Inner)
}

func (e ProcessorError) Unwrap() error {
	return e.Inner
}

// PartitionRanges splits [0, total) into at most n contiguous subranges
// whose sizes differ by no more than one. Returned ranges are
// [start, end) pairs in ascending order; empty ranges are omitted, so
// fewer than n ranges are returned when total < n.
func PartitionRanges(total uint64, n int) [][2]uint64 {
	if n < 1 {
		n = 1
	}
	ranges := make([][2]uint64, 0, n)
	size := total / uint64(n)
	rem := total % uint64(n)
	var start uint64
	for i := 0; i < n; i++ {
		end := start + size
		if uint64(i) < rem {
			end++
		}
		if end > start {
			ranges = append(ranges, [2]uint64{start, end})
		}
		start = end
	}
	return ranges
}
