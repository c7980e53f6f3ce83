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

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/EricLBuehler/binseq/binseq/bq"
	"github.com/EricLBuehler/binseq/binseq/vbq"
)

var statCmd = &cobra.Command{
	Use:   "stat <file.bq|file.vbq>",
	Short: "print header and record statistics of a BINSEQ file",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		file := args[0]
		if isVbq(file) {
			r, err := vbq.Open(file)
			checkError(errors.Wrap(err, file))
			defer r.Close()

			h := r.Header()
			fmt.Printf("file\t%s\n", file)
			fmt.Printf("flavor\tvbq\n")
			fmt.Printf("records\t%d\n", r.NumRecords())
			fmt.Printf("blocks\t%d\n", r.NumBlocks())
			fmt.Printf("paired\t%v\n", h.Paired)
			fmt.Printf("quality\t%v\n", h.Quality)
			fmt.Printf("names\t%v\n", h.Names)
			fmt.Printf("codec\t%s\n", h.Codec)
			return
		}

		r, err := bq.Open(file)
		checkError(errors.Wrap(err, file))
		defer r.Close()

		h := r.Header()
		fmt.Printf("file\t%s\n", file)
		fmt.Printf("flavor\tbq\n")
		fmt.Printf("records\t%d\n", r.NumRecords())
		fmt.Printf("slen\t%d\n", h.Slen)
		fmt.Printf("xlen\t%d\n", h.Xlen)
		fmt.Printf("paired\t%v\n", h.IsPaired())
		fmt.Printf("record-size\t%d\n", h.RecordSize())
	},
}

func init() {
	RootCmd.AddCommand(statCmd)
}
