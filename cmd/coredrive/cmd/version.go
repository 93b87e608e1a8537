// Copyright (C) 2024 Coredrive, Inc.
// See LICENSE for copying information.

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags; "dev" otherwise.
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the coredrive version",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(Version)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
