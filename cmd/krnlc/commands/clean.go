// Copyright 2026 The krnl Authors
// SPDX-License-Identifier: BSD-3-Clause

package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove the cache artifact",
	RunE: func(cmd *cobra.Command, args []string) error {
		output := viper.GetString("output")
		err := os.Remove(output)
		if os.IsNotExist(err) {
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", output)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cleanCmd)
}
