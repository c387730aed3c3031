package main

import (
	"fmt"

	"github.com/docker/go-units"
	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/sdr-porep/lib/sdr"
)

var initDirCmd = &cli.Command{
	Name:      "init-dir",
	Usage:     "Create the target directory",
	ArgsUsage: "[dir]",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "clean",
			Usage: "remove everything already in the directory",
		},
	},
	Action: func(cctx *cli.Context) error {
		dir, err := targetDir(cctx)
		if err != nil {
			return err
		}
		if err := sdr.InitTargetDir(dir, cctx.Bool("clean")); err != nil {
			return err
		}
		fmt.Fprintln(cctx.App.Writer, dir)
		return nil
	},
}

var sampleCmd = &cli.Command{
	Name:      "sample",
	Usage:     "Write a file of random valid nodes",
	ArgsUsage: "<out>",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "size",
			Usage: "sample size, for example 32KiB; defaults to Paths.SampleSize",
		},
	},
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 1 {
			return ShowHelp(cctx, xerrors.New("expected an output path"))
		}

		size, err := getConfig(cctx).Paths.SampleBytes()
		if err != nil {
			return err
		}
		if s := cctx.String("size"); s != "" {
			n, err := units.RAMInBytes(s)
			if err != nil {
				return ShowHelp(cctx, xerrors.Errorf("parsing --size: %w", err))
			}
			if n <= 0 {
				return ShowHelp(cctx, xerrors.Errorf("--size must be positive"))
			}
			size = uint64(n)
		}

		if err := sdr.GenerateSampleFile(size, cctx.Args().First()); err != nil {
			return err
		}
		fmt.Fprintf(cctx.App.Writer, "wrote %s to %s\n", humanize.IBytes(size), cctx.Args().First())
		return nil
	},
}

var countNodesCmd = &cli.Command{
	Name:      "count-nodes",
	Usage:     "Print the number of 32 byte nodes in a data file",
	ArgsUsage: "<file>",
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 1 {
			return ShowHelp(cctx, xerrors.New("expected a file"))
		}
		n, err := sdr.CountNodes(cctx.Args().First())
		if err != nil {
			return err
		}
		fmt.Fprintln(cctx.App.Writer, n)
		return nil
	},
}

var paramsCmd = &cli.Command{
	Name:  "params",
	Usage: "Generate setup params for a node count",
	Flags: []cli.Flag{
		&cli.Uint64Flag{
			Name:     "nodes",
			Required: true,
		},
		&cli.UintFlag{
			Name:  "layers",
			Usage: "layer count, defaults to Seal.Layers",
		},
		outFlag,
	},
	Action: func(cctx *cli.Context) error {
		opts, err := getConfig(cctx).Seal.ParamOptions()
		if err != nil {
			return err
		}
		if cctx.IsSet("layers") {
			opts = append(opts, sdr.WithLayers(uint32(cctx.Uint("layers"))))
		}

		p, err := sdr.GenerateSetupParams(cctx.Uint64("nodes"), opts...)
		if err != nil {
			return err
		}
		return emitJSON(cctx, p)
	},
}

var storeConfigCmd = &cli.Command{
	Name:  "store-config",
	Usage: "Generate the store config of a sealing run",
	Flags: []cli.Flag{
		&cli.Uint64Flag{
			Name:     "nodes",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "dir",
			Usage: "store directory, defaults to Paths.TargetDir",
		},
		&cli.IntFlag{
			Name:  "rows-to-discard",
			Usage: "tree-r-last rows left off disk, defaults to Seal.RowsToDiscard",
			Value: -1,
		},
		outFlag,
	},
	Action: func(cctx *cli.Context) error {
		cfg := getConfig(cctx)

		dir := cctx.String("dir")
		if dir == "" {
			var err error
			if dir, err = cfg.Paths.Target(); err != nil {
				return err
			}
		}

		opts := cfg.Seal.StoreOptions()
		if rows := cctx.Int("rows-to-discard"); rows >= 0 {
			opts = append(opts, sdr.WithRowsToDiscard(uint64(rows)))
		}

		sc, err := sdr.GenerateStoreConfig(cctx.Uint64("nodes"), dir, opts...)
		if err != nil {
			return err
		}
		return emitJSON(cctx, sc)
	},
}

var replicaIDCmd = &cli.Command{
	Name:  "replica-id",
	Usage: "Generate a random replica id",
	Flags: []cli.Flag{outFlag},
	Action: func(cctx *cli.Context) error {
		id, err := sdr.GenerateReplicaID()
		if err != nil {
			return err
		}
		return emit(cctx, []byte(id.String()))
	},
}

var challengesCmd = &cli.Command{
	Name:  "challenges",
	Usage: "Generate random node challenges",
	Flags: []cli.Flag{
		&cli.Uint64Flag{
			Name:     "nodes",
			Required: true,
		},
		&cli.IntFlag{
			Name:  "count",
			Usage: "number of challenges, defaults to Prove.Challenges",
		},
		outFlag,
	},
	Action: func(cctx *cli.Context) error {
		count := getConfig(cctx).Prove.Challenges
		if cctx.IsSet("count") {
			count = cctx.Int("count")
		}
		ch, err := sdr.GenerateChallenges(cctx.Uint64("nodes"), count)
		if err != nil {
			return err
		}
		return emitJSON(cctx, ch)
	},
}

var resetCmd = &cli.Command{
	Name:      "reset",
	Usage:     "Remove the replica and artifacts of a store",
	ArgsUsage: "[dir]",
	Action: func(cctx *cli.Context) error {
		dir, err := targetDir(cctx)
		if err != nil {
			return err
		}
		return sdr.ResetStore(dir)
	},
}

// targetDir is the first argument or the configured target.
func targetDir(cctx *cli.Context) (string, error) {
	if cctx.NArg() > 0 {
		return cctx.Args().First(), nil
	}
	return getConfig(cctx).Paths.Target()
}
