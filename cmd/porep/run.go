package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/sdr-porep/deps/config"
	"github.com/filecoin-project/sdr-porep/lib/paths"
	"github.com/filecoin-project/sdr-porep/lib/reqcontext"
	"github.com/filecoin-project/sdr-porep/lib/sdr"
)

const sampleName = "sample.dat"

// StepMeasure is the wall time of one workflow step.
type StepMeasure struct {
	Name  string        `json:"name"`
	Cost  time.Duration `json:"cost"`
	start time.Time
}

func newStep(name string) *StepMeasure {
	return &StepMeasure{Name: name, start: time.Now()}
}

func (s *StepMeasure) done() *StepMeasure {
	s.Cost = time.Since(s.start)
	return s
}

type Report struct {
	Dir      string         `json:"dir"`
	Size     string         `json:"size"`
	Nodes    uint64         `json:"nodes"`
	Layers   uint32         `json:"layers"`
	Tau      sdr.Tau        `json:"tau"`
	Verified int            `json:"verified"`
	Steps    []*StepMeasure `json:"steps"`
}

func (r *Report) add(s *StepMeasure) {
	r.Steps = append(r.Steps, s.done())
}

func (r *Report) Total() time.Duration {
	return lo.SumBy(r.Steps, func(s *StepMeasure) time.Duration { return s.Cost })
}

func (r *Report) Dump(path string) error {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0644)
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "Seal a random sample and run challenge, prove and verify sessions against it",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "dir",
			Usage: "working directory, defaults to Paths.TargetDir",
		},
		&cli.IntFlag{
			Name:  "sessions",
			Usage: "number of sessions, defaults to Prove.Sessions",
		},
	},
	Action: func(cctx *cli.Context) error {
		cfg := getConfig(cctx)
		if cctx.IsSet("dir") {
			cfg.Paths.TargetDir = cctx.String("dir")
		}
		if cctx.IsSet("sessions") {
			cfg.Prove.Sessions = cctx.Int("sessions")
		}

		report, err := runWorkflow(reqcontext.ReqContext(cctx), cfg)
		if err != nil {
			return err
		}

		for _, s := range report.Steps {
			fmt.Fprintf(cctx.App.Writer, "%-12s %s\n", s.Name, s.Cost.Round(time.Millisecond))
		}
		fmt.Fprintf(cctx.App.Writer, "%s sealed, %s proofs verified in %s\n",
			report.Size, color.GreenString("%d", report.Verified), report.Total().Round(time.Millisecond))

		if cfg.Paths.ReportPath != "" {
			if err := report.Dump(cfg.Paths.ReportPath); err != nil {
				return xerrors.Errorf("writing report: %w", err)
			}
		}
		return nil
	},
}

// runWorkflow seals a fresh sample in the target directory and answers
// cfg.Prove.Sessions rounds of challenges against it.
func runWorkflow(ctx context.Context, cfg *config.PoRepConfig) (*Report, error) {
	dir, err := cfg.Paths.Target()
	if err != nil {
		return nil, err
	}
	size, err := cfg.Paths.SampleBytes()
	if err != nil {
		return nil, err
	}
	if cfg.Prove.Sessions < 1 {
		return nil, xerrors.Errorf("Prove.Sessions must be at least 1: %w", sdr.ErrInvalidArgument)
	}

	report := &Report{Dir: dir, Size: humanize.IBytes(size)}

	step := newStep("init")
	if err := sdr.InitTargetDir(dir, true); err != nil {
		return nil, err
	}
	report.add(step)

	step = newStep("sample")
	sample := filepath.Join(dir, sampleName)
	if err := sdr.GenerateSampleFile(size, sample); err != nil {
		return nil, err
	}
	nodes, err := sdr.CountNodes(sample)
	if err != nil {
		return nil, err
	}
	report.Nodes = nodes
	report.add(step)

	step = newStep("setup")
	id, err := sdr.GenerateReplicaID()
	if err != nil {
		return nil, err
	}
	paramOpts, err := cfg.Seal.ParamOptions()
	if err != nil {
		return nil, err
	}
	p, err := sdr.GenerateSetupParams(nodes, paramOpts...)
	if err != nil {
		return nil, err
	}
	report.Layers = p.Layers
	sc, err := sdr.GenerateStoreConfig(nodes, dir, cfg.Seal.StoreOptions()...)
	if err != nil {
		return nil, err
	}
	report.add(step)

	step = newStep("seal")
	commD, commR, err := sdr.Seal(ctx, sample, p, sc, id, cfg.Seal.SealOptions(nil)...)
	if err != nil {
		return nil, err
	}
	report.Tau = sdr.Tau{CommD: commD, CommR: commR}
	report.add(step)

	replica := paths.ReplicaPath(sample, sc.Path)
	opts := cfg.Seal.SealOptions(nil)
	for i := 0; i < cfg.Prove.Sessions; i++ {
		ch, err := sdr.GenerateChallenges(nodes, cfg.Prove.Challenges)
		if err != nil {
			return nil, err
		}
		proofPath := filepath.Join(dir, fmt.Sprintf("proof-%d.bin", i))

		step = newStep(fmt.Sprintf("prove-%d", i))
		if err := sdr.Prove(ctx, replica, p, id, ch, proofPath, opts...); err != nil {
			return nil, err
		}
		report.add(step)

		step = newStep(fmt.Sprintf("verify-%d", i))
		ok, err := sdr.Verify(ctx, sdr.VerifyInput{
			Params:     p,
			ReplicaID:  id,
			CommD:      commD,
			CommR:      commR,
			Challenges: ch,
		}, proofPath, opts...)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, xerrors.Errorf("session %d: proof did not verify", i)
		}
		report.Verified++
		report.add(step)
	}

	log.Infow("run complete", "dir", dir, "size", report.Size, "sessions", cfg.Prove.Sessions, "took", report.Total())
	return report, nil
}
