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

package cmd

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/EricLBuehler/binseq/binseq"
	"github.com/EricLBuehler/binseq/binseq/bq"
	"github.com/EricLBuehler/binseq/binseq/vbq"
)

// counter tallies records and bases for one worker, merging into the
// shared totals when its partition completes.
type counter struct {
	records uint64
	bases   uint64

	totalRecords *atomic.Uint64
	totalBases   *atomic.Uint64
}

func (c *counter) ProcessRecord(rec binseq.Record) error {
	c.records++
	c.bases += uint64(rec.Slen()) + uint64(rec.Xlen())
	return nil
}

func (c *counter) OnBatchComplete() error {
	c.totalRecords.Add(c.records)
	c.totalBases.Add(c.bases)
	return nil
}

var countCmd = &cobra.Command{
	Use:   "count <file.bq|file.vbq>",
	Short: "count records and bases with the parallel reader",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		opt := getOptions(cmd)
		file := args[0]
		timeStart := time.Now()

		var totalRecords, totalBases atomic.Uint64
		factory := func(tid int) binseq.ParallelProcessor {
			return &counter{totalRecords: &totalRecords, totalBases: &totalBases}
		}

		var stats binseq.Stats
		if isVbq(file) {
			r, err := vbq.Open(file)
			checkError(errors.Wrap(err, file))
			defer r.Close()
			stats, err = r.ProcessParallel(opt.NumCPUs, factory)
			checkError(err)
		} else {
			r, err := bq.Open(file)
			checkError(errors.Wrap(err, file))
			defer r.Close()
			stats, err = r.ProcessParallel(opt.NumCPUs, factory)
			checkError(err)
		}

		fmt.Printf("records\t%d\n", totalRecords.Load())
		fmt.Printf("bases\t%d\n", totalBases.Load())
		if opt.Verbose {
			log.Infof("%d records counted by %d workers", stats.Records, stats.Workers)
			log.Infof("elapsed time: %s", time.Since(timeStart))
		}
	},
}

func init() {
	RootCmd.AddCommand(countCmd)
}
