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
	"io"

	"github.com/pkg/errors"
	"github.com/shenwei356/xopen"
	"github.com/spf13/cobra"

	"github.com/EricLBuehler/binseq/binseq"
	"github.com/EricLBuehler/binseq/binseq/bq"
	"github.com/EricLBuehler/binseq/binseq/vbq"
)

var catCmd = &cobra.Command{
	Use:   "cat <file.bq|file.vbq>",
	Short: "decode records to tab-separated text",
	Long: `decode records to tab-separated text

Columns: index, flag, sequence, [secondary sequence], [quality],
[secondary quality], [name]. Optional columns appear only when the file
carries them.

The output file is gzipped if its name ends in .gz.

`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		file := args[0]
		outFile, _ := cmd.Flags().GetString("out-file")

		outfh, err := xopen.Wopen(outFile)
		checkError(errors.Wrap(err, outFile))
		defer outfh.Close()

		var sbuf, xbuf []byte
		writeRecord := func(rec binseq.Record) error {
			sbuf = binseq.DecodeS(rec, sbuf[:0])
			fmt.Fprintf(outfh, "%d\t%d\t%s", rec.Index(), rec.Flag(), sbuf)
			if rec.IsPaired() {
				xbuf = binseq.DecodeX(rec, xbuf[:0])
				fmt.Fprintf(outfh, "\t%s", xbuf)
			}
			if rec.HasQuality() {
				fmt.Fprintf(outfh, "\t%s", rec.Quality())
				if rec.IsPaired() {
					fmt.Fprintf(outfh, "\t%s", rec.QualityX())
				}
			}
			if name := rec.Name(); name != nil {
				fmt.Fprintf(outfh, "\t%s", name)
			}
			_, err := fmt.Fprintln(outfh)
			return err
		}

		if isVbq(file) {
			r, err := vbq.Open(file)
			checkError(errors.Wrap(err, file))
			defer r.Close()

			it := r.Iter()
			for {
				rec, err := it.Next()
				if err == io.EOF {
					break
				}
				checkError(err)
				checkError(writeRecord(rec))
			}
			return
		}

		r, err := bq.Open(file)
		checkError(errors.Wrap(err, file))
		defer r.Close()

		it := r.Iter()
		for rec, ok := it.Next(); ok; rec, ok = it.Next() {
			checkError(writeRecord(rec))
		}
	},
}

func init() {
	RootCmd.AddCommand(catCmd)
	catCmd.Flags().StringP("out-file", "o", "-",
		`output file ("-" for stdout, .gz suffix for gzipped output)`)
}
