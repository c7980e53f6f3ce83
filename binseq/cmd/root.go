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

// Package cmd implements the binseq command line front end over the
// library packages.
package cmd

import (
	"fmt"
	"os"

	"github.com/shenwei356/go-logging"
	"github.com/spf13/cobra"
)

// VERSION of binseq
const VERSION = "0.1.0"

var log = logging.MustGetLogger("binseq")

func init() {
	format := logging.MustStringFormatter(`%{time:15:04:05.000} %{color}[%{level:.4s}]%{color:reset} %{message}`)
	backend := logging.NewLogBackend(os.Stderr, "", 0)
	logging.SetBackend(logging.NewBackendFormatter(backend, format))
}

// RootCmd is the root command of binseq.
var RootCmd = &cobra.Command{
	Use:   "binseq",
	Short: "inspect and convert BINSEQ binary sequence files",
	Long: fmt.Sprintf(`binseq - inspect and convert BINSEQ binary sequence files

Version: %s

BINSEQ files come in two flavors:

  *.bq   fixed-length records, no quality scores, O(1) random access.
  *.vbq  variable-length records, optional quality scores and names,
         block-structured with optional zstd compression.

`, VERSION),
}

// Execute runs the root command. It is called once by main.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	RootCmd.PersistentFlags().IntP("threads", "j", 4,
		"number of worker threads for parallel commands")
	RootCmd.PersistentFlags().BoolP("quiet", "q", false,
		"do not print log messages")
	RootCmd.CompletionOptions.DisableDefaultCmd = true
}
