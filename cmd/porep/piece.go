package main

import (
	"os"

	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/sdr-porep/lib/sdr"
)

var stageCmd = &cli.Command{
	Name:      "stage",
	Usage:     "Pad an arbitrary file into a data file that can be sealed",
	ArgsUsage: "<raw file> <data file>",
	Description: `The raw bytes are fr32 padded and zero filled up to the next power of two.
The printed piece info is needed to extract the raw bytes again.`,
	Flags: []cli.Flag{
		outFlag,
	},
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 2 {
			return ShowHelp(cctx, xerrors.New("expected a raw file and a data file"))
		}
		info, err := sdr.StagePiece(cctx.Args().Get(0), cctx.Args().Get(1))
		if err != nil {
			return err
		}
		return emitJSON(cctx, info)
	},
}

var extractCmd = &cli.Command{
	Name:      "extract",
	Usage:     "Recover the raw file from a staged or unsealed data file",
	ArgsUsage: "<data file> <out>",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "piece",
			Usage:    "piece info file written by 'stage'",
			Required: true,
		},
	},
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 2 {
			return ShowHelp(cctx, xerrors.New("expected a data file and an output path"))
		}
		info, err := loadPieceInfo(cctx.String("piece"))
		if err != nil {
			return err
		}
		return sdr.ExtractPiece(cctx.Args().Get(0), info, cctx.Args().Get(1))
	},
}

func loadPieceInfo(path string) (sdr.PieceInfo, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return sdr.PieceInfo{}, xerrors.Errorf("reading piece info: %w", err)
	}
	return sdr.UnmarshalPieceInfo(b)
}
