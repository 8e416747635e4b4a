// Copyright 2026 The krnl Authors
// SPDX-License-Identifier: BSD-3-Clause

package pipeline

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Leif-Rydenfalk/krnl/internal/artifact"
)

// Options configures one pipeline run.
type Options struct {
	// Roots are the directories walked for *.wgsl kernel sources.
	Roots []string

	// Output is the artifact path written by Run.
	Output string
}

// Source is one discovered kernel source file.
type Source struct {
	Path string
	Data []byte
}

// Discover walks the root directories and collects every .wgsl file, in
// deterministic path order.
func Discover(roots []string) ([]Source, error) {
	var sources []Source
	for _, root := range roots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !strings.HasSuffix(path, ".wgsl") {
				return nil
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			sources = append(sources, Source{Path: path, Data: data})
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("%w: walk %s: %v", ErrCompilationFailed, root, err)
		}
	}
	return sources, nil
}

// Run executes the full pipeline: discover, parse, compile, validate,
// and write the artifact. Any failure aborts the run; a partially
// written artifact is never left behind.
func Run(opts Options, logger *slog.Logger) (*artifact.Artifact, error) {
	sources, err := Discover(opts.Roots)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("%w: no .wgsl sources under %v", ErrCompilationFailed, opts.Roots)
	}

	art := &artifact.Artifact{}
	seen := make(map[string]string)
	for _, src := range sources {
		decl, err := ParseSource(src.Path, src.Data)
		if err != nil {
			return nil, err
		}
		name := decl.FullName()
		if prev, dup := seen[name]; dup {
			return nil, fmt.Errorf("%w: kernel %q declared in both %s and %s", ErrCompilationFailed, name, prev, src.Path)
		}
		seen[name] = src.Path

		logger.Info("compiling kernel", "kernel", name, "path", src.Path, "variants", decl.Threads)
		k, err := CompileKernel(decl)
		if err != nil {
			return nil, err
		}
		art.Kernels = append(art.Kernels, k)
	}

	if opts.Output != "" {
		if err := artifact.Save(opts.Output, art); err != nil {
			return nil, fmt.Errorf("%w: write %s: %v", ErrCompilationFailed, opts.Output, err)
		}
		logger.Info("artifact written", "path", opts.Output, "kernels", len(art.Kernels))
	}
	return art, nil
}
