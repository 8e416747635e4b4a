// Copyright 2026 The krnl Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package commands implements the krnlc command line interface.
package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command.
var rootCmd = &cobra.Command{
	Use:   "krnlc",
	Short: "Offline compiler for krnl compute kernels",
	Long: `krnlc compiles WGSL compute kernels into the cache artifact the
krnl runtime loads at dispatch time.

It walks the source roots for *.wgsl files carrying krnl: directives,
cross-compiles each kernel to SPIR-V once per declared workgroup-size
variant, validates the bytecode, and writes a content-addressed
artifact. Ordinary builds of programs using krnl never invoke krnlc;
only kernel changes require a recompile.`,
	Version: "0.1.0",
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./.krnlc.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringSlice("src", []string{"."}, "kernel source roots")
	rootCmd.PersistentFlags().StringP("output", "o", "krnl-cache.bin", "artifact output path")

	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("src", rootCmd.PersistentFlags().Lookup("src"))
	viper.BindPFlag("output", rootCmd.PersistentFlags().Lookup("output"))
}

// initConfig reads in config file and ENV variables.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".krnlc")
	}

	viper.SetEnvPrefix("KRNLC")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("verbose") {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}

// logger builds the slog logger the pipeline reports through, honoring
// the verbose flag.
func logger() *slog.Logger {
	level := slog.LevelWarn
	if viper.GetBool("verbose") {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
