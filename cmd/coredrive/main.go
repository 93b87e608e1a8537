// Copyright (C) 2024 Coredrive, Inc.
// See LICENSE for copying information.

package main

import (
	"fmt"
	"os"

	"coredrive.io/core/cmd/coredrive/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
