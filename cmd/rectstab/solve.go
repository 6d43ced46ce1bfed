package main

import (
	"io"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/wyfcoding/rectstab/algorithm"
	"github.com/wyfcoding/rectstab/config"
	"github.com/wyfcoding/rectstab/dataset"
	"github.com/wyfcoding/rectstab/logging"
)

type solveOptions struct {
	input   string
	workers int
}

func newSolveCmd() *cobra.Command {
	opts := &solveOptions{}
	cmd := &cobra.Command{
		Use:   "solve",
		Short: "Read rectangles and points, print one count per point",
		Long: `Input format (stdin by default):

  n
  x1 y1 x2 y2     (n lines, rectangle [x1,x2) x [y1,y2))
  m
  x y             (m lines)

Counts are printed space separated on one line. Nothing is printed when
there are no rectangles or no points.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSolve(cmd, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.input, "input", "i", "", "read input from file instead of stdin")
	cmd.Flags().IntVarP(&opts.workers, "workers", "w", runtime.NumCPU(), "goroutines used to answer queries")
	return cmd
}

func runSolve(cmd *cobra.Command, opts *solveOptions) error {
	conf, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logOpts := conf.LogOptions("solve")
	logOpts.Output = cmd.ErrOrStderr()
	logger := logging.NewFromConfig(logOpts)

	var in io.Reader = cmd.InOrStdin()
	if opts.input != "" {
		f, err := os.Open(opts.input)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	ds, err := dataset.Read(in)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	start := time.Now()
	counts, err := algorithm.Solve(ctx, ds.Rectangles, ds.Points, opts.workers)
	if err != nil {
		return err
	}
	logger.DebugContext(ctx, "solve finished",
		"rectangles", len(ds.Rectangles),
		"points", len(ds.Points),
		"workers", opts.workers,
		"duration", time.Since(start),
	)

	return dataset.WriteCounts(cmd.OutOrStdout(), counts)
}
