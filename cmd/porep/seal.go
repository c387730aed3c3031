package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/sdr-porep/lib/paths"
	"github.com/filecoin-project/sdr-porep/lib/reqcontext"
	"github.com/filecoin-project/sdr-porep/lib/sdr"
)

type sealOutput struct {
	Replica string  `json:"replica"`
	Tau     sdr.Tau `json:"tau"`
}

var sealCmd = &cli.Command{
	Name:      "seal",
	Usage:     "Seal a data file into a replica",
	ArgsUsage: "<data file>",
	Flags: []cli.Flag{
		paramsFlag,
		&cli.StringFlag{
			Name:     "store",
			Usage:    "store config file written by 'store-config'",
			Required: true,
		},
		replicaIDFlag,
		&cli.BoolFlag{
			Name:  "no-progress",
			Usage: "do not draw a progress bar",
		},
		outFlag,
	},
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 1 {
			return ShowHelp(cctx, xerrors.New("expected a data file"))
		}
		src := cctx.Args().First()

		p, err := loadParams(cctx.String("params"))
		if err != nil {
			return err
		}
		sc, err := loadStoreConfig(cctx.String("store"))
		if err != nil {
			return err
		}
		id, err := loadReplicaID(cctx.String("replica-id"))
		if err != nil {
			return err
		}

		var progress sdr.ProgressFunc
		if !cctx.Bool("no-progress") {
			bar := progressbar.Default(int64(p.Layers)+4, "sealing")
			defer bar.Finish() // nolint:errcheck
			progress = func(phase string, done, total uint64) {
				bar.Describe(phase)
				_ = bar.Add(1)
			}
		}

		ctx := reqcontext.ReqContext(cctx)
		start := time.Now()
		commD, commR, err := sdr.Seal(ctx, src, p, sc, id, getConfig(cctx).Seal.SealOptions(progress)...)
		if err != nil {
			return err
		}
		log.Infow("sealed", "replica", paths.ReplicaPath(src, sc.Path), "size", humanize.IBytes(uint64(p.DataSize())), "took", time.Since(start))

		return emitJSON(cctx, sealOutput{
			Replica: paths.ReplicaPath(src, sc.Path),
			Tau:     sdr.Tau{CommD: commD, CommR: commR},
		})
	},
}

var proveCmd = &cli.Command{
	Name:      "prove",
	Usage:     "Answer challenges against a sealed replica",
	ArgsUsage: "<replica>",
	Flags: []cli.Flag{
		paramsFlag,
		replicaIDFlag,
		challengesFlag,
		&cli.StringFlag{
			Name:     "out",
			Usage:    "proof file to write",
			Required: true,
		},
	},
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 1 {
			return ShowHelp(cctx, xerrors.New("expected a replica"))
		}
		p, err := loadParams(cctx.String("params"))
		if err != nil {
			return err
		}
		id, err := loadReplicaID(cctx.String("replica-id"))
		if err != nil {
			return err
		}
		ch, err := loadChallenges(cctx.String("challenges"))
		if err != nil {
			return err
		}

		ctx := reqcontext.ReqContext(cctx)
		return sdr.Prove(ctx, cctx.Args().First(), p, id, ch, cctx.String("out"), getConfig(cctx).Seal.SealOptions(nil)...)
	},
}

var verifyCmd = &cli.Command{
	Name:      "verify",
	Usage:     "Check a proof file against a sealed replica's commitments",
	ArgsUsage: "<replica> <proof>",
	Flags: []cli.Flag{
		paramsFlag,
		replicaIDFlag,
		challengesFlag,
	},
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 2 {
			return ShowHelp(cctx, xerrors.New("expected a replica and a proof file"))
		}
		p, err := loadParams(cctx.String("params"))
		if err != nil {
			return err
		}
		id, err := loadReplicaID(cctx.String("replica-id"))
		if err != nil {
			return err
		}
		ch, err := loadChallenges(cctx.String("challenges"))
		if err != nil {
			return err
		}

		ctx := reqcontext.ReqContext(cctx)
		ok, err := sdr.VerifyReplica(ctx, cctx.Args().Get(0), p, id, ch, cctx.Args().Get(1), getConfig(cctx).Seal.SealOptions(nil)...)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(cctx.App.Writer, color.RedString("proof invalid"))
			return xerrors.New("proof did not verify")
		}
		fmt.Fprintln(cctx.App.Writer, color.GreenString("proof valid"))
		return nil
	},
}

var unsealCmd = &cli.Command{
	Name:      "unseal",
	Usage:     "Recover the original data of a sealed replica",
	ArgsUsage: "<replica> <out>",
	Flags: []cli.Flag{
		paramsFlag,
		replicaIDFlag,
	},
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 2 {
			return ShowHelp(cctx, xerrors.New("expected a replica and an output path"))
		}
		p, err := loadParams(cctx.String("params"))
		if err != nil {
			return err
		}
		id, err := loadReplicaID(cctx.String("replica-id"))
		if err != nil {
			return err
		}

		ctx := reqcontext.ReqContext(cctx)
		return sdr.Unseal(ctx, cctx.Args().Get(0), p, id, cctx.Args().Get(1), getConfig(cctx).Seal.SealOptions(nil)...)
	},
}
