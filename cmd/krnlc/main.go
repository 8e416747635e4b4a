// Copyright 2026 The krnl Authors
// SPDX-License-Identifier: BSD-3-Clause

// Command krnlc is the offline compiler for krnl compute kernels.
package main

import (
	"os"

	"github.com/Leif-Rydenfalk/krnl/cmd/krnlc/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
