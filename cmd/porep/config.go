package main

import (
	"github.com/urfave/cli/v2"

	"github.com/filecoin-project/sdr-porep/deps/config"
)

var configCmd = &cli.Command{
	Name:  "config",
	Usage: "Print configuration",
	Subcommands: []*cli.Command{
		{
			Name:  "default",
			Usage: "Print the default config",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "no-comment",
					Usage: "don't comment default values",
				},
			},
			Action: func(cctx *cli.Context) error {
				cb, err := config.ConfigComment(config.DefaultPoRepConfig())
				if cctx.Bool("no-comment") {
					cb, err = config.ConfigUpdate(config.DefaultPoRepConfig(), nil, false)
				}
				if err != nil {
					return err
				}
				_, err = cctx.App.Writer.Write(cb)
				return err
			},
		},
		{
			Name:  "updated",
			Usage: "Print the loaded config with defaults commented out",
			Action: func(cctx *cli.Context) error {
				cb, err := config.ConfigUpdate(getConfig(cctx), config.DefaultPoRepConfig(), true)
				if err != nil {
					return err
				}
				_, err = cctx.App.Writer.Write(cb)
				return err
			},
		},
	},
}
