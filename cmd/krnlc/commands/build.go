// Copyright 2026 The krnl Authors
// SPDX-License-Identifier: BSD-3-Clause

package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Leif-Rydenfalk/krnl/cmd/krnlc/internal/pipeline"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Compile kernel sources into a cache artifact",
	Long: `Build walks the source roots for *.wgsl kernel sources, compiles
every kernel for each of its declared workgroup-size variants, and
writes the cache artifact. The build is deterministic: unchanged
sources produce a byte-identical artifact.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := pipeline.Options{
			Roots:  viper.GetStringSlice("src"),
			Output: viper.GetString("output"),
		}
		art, err := pipeline.Run(opts, logger())
		if err != nil {
			return err
		}
		variants := 0
		for _, k := range art.Kernels {
			variants += len(k.Variants)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s: %d kernels, %d variants\n",
			opts.Output, len(art.Kernels), variants)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(buildCmd)
}
