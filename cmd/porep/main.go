package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	logging "github.com/ipfs/go-log/v2"
	"github.com/urfave/cli/v2"
	"go.opencensus.io/stats/view"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/sdr-porep/build"
	"github.com/filecoin-project/sdr-porep/deps/config"
)

var log = logging.Logger("porep")

const cfgMetadataKey = "config"

func SetupLogLevels() {
	if _, set := os.LookupEnv("GOLOG_LOG_LEVEL"); !set {
		_ = logging.SetLogLevel("*", "INFO")
	}
}

func main() {
	SetupLogLevels()
	runApp(newApp())
}

func newApp() *cli.App {
	local := []*cli.Command{
		initDirCmd,
		sampleCmd,
		stageCmd,
		extractCmd,
		countNodesCmd,
		paramsCmd,
		storeConfigCmd,
		replicaIDCmd,
		challengesCmd,
		sealCmd,
		proveCmd,
		verifyCmd,
		unsealCmd,
		resetCmd,
		runCmd,
		configCmd,
	}

	app := &cli.App{
		Name:                 "porep",
		Usage:                "Seal, prove and verify SDR proofs of replication",
		Version:              build.UserVersion(),
		EnableBashCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "TOML config file",
				EnvVars: []string{config.EnvConfigPath},
			},
			&cli.BoolFlag{
				// examined in the Before below
				Name:        "color",
				Usage:       "use color in display output",
				DefaultText: "depends on output being a TTY",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level of every subsystem",
			},
			&cli.BoolFlag{
				Name:  "print-stats",
				Usage: "periodically log the engine metrics",
			},
		},
		Before: func(cctx *cli.Context) error {
			if cctx.IsSet("color") {
				color.NoColor = !cctx.Bool("color")
			}

			cfg := config.DefaultPoRepConfig()
			if path := cctx.String("config"); path != "" {
				var err error
				if cfg, err = config.FromFile(path, cfg); err != nil {
					return xerrors.Errorf("loading config %s: %w", path, err)
				}
			} else {
				var err error
				if cfg, err = config.LoadFromEnv(); err != nil {
					return xerrors.Errorf("loading config: %w", err)
				}
			}
			if err := cfg.Logging.Apply(); err != nil {
				return err
			}
			if lvl := cctx.String("log-level"); lvl != "" {
				if err := logging.SetLogLevel("*", lvl); err != nil {
					return xerrors.Errorf("setting log level: %w", err)
				}
			}
			if cctx.Bool("print-stats") {
				view.RegisterExporter(&logExporter{})
				view.SetReportingPeriod(10 * time.Second)
			}

			cctx.App.Metadata[cfgMetadataKey] = cfg
			return nil
		},
		Commands: local,
	}
	app.Setup()
	return app
}

func runApp(app *cli.App) {
	if err := app.Run(os.Args); err != nil {
		if os.Getenv("POREP_DEV") != "" {
			log.Warnf("%+v", err)
		} else {
			_, _ = fmt.Fprintf(os.Stderr, "ERROR: %s\n\n", err) // nolint:errcheck
		}

		var phe *PrintHelpErr
		if errors.As(err, &phe) {
			_ = cli.ShowCommandHelp(phe.Ctx, phe.Ctx.Command.Name)
		}
		os.Exit(1)
	}
}

type PrintHelpErr struct {
	Err error
	Ctx *cli.Context
}

func (e *PrintHelpErr) Error() string {
	return e.Err.Error()
}

func ShowHelp(cctx *cli.Context, err error) error {
	return &PrintHelpErr{Err: err, Ctx: cctx}
}

func getConfig(cctx *cli.Context) *config.PoRepConfig {
	if cfg, ok := cctx.App.Metadata[cfgMetadataKey].(*config.PoRepConfig); ok {
		return cfg
	}
	return config.DefaultPoRepConfig()
}
