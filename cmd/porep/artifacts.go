package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/sdr-porep/lib/sdr"
)

var (
	paramsFlag = &cli.StringFlag{
		Name:     "params",
		Usage:    "setup params file written by 'params'",
		Required: true,
	}
	replicaIDFlag = &cli.StringFlag{
		Name:     "replica-id",
		Usage:    "replica id, hex or a file written by 'replica-id'",
		Required: true,
	}
	challengesFlag = &cli.StringFlag{
		Name:     "challenges",
		Usage:    "challenges file written by 'challenges'",
		Required: true,
	}
	outFlag = &cli.StringFlag{
		Name:  "out",
		Usage: "output file, stdout when unset",
	}
)

// emit writes b to the --out file or stdout.
func emit(cctx *cli.Context, b []byte) error {
	out := cctx.String("out")
	if out == "" || out == "-" {
		_, err := fmt.Fprintln(cctx.App.Writer, string(b))
		return err
	}
	if err := os.WriteFile(out, b, 0644); err != nil {
		return xerrors.Errorf("writing %s: %w", out, err)
	}
	return nil
}

func emitJSON(cctx *cli.Context, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return emit(cctx, b)
}

func loadParams(path string) (sdr.SetupParams, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return sdr.SetupParams{}, xerrors.Errorf("reading params: %w", err)
	}
	return sdr.UnmarshalSetupParams(b)
}

func loadStoreConfig(path string) (sdr.StoreConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return sdr.StoreConfig{}, xerrors.Errorf("reading store config: %w", err)
	}
	return sdr.UnmarshalStoreConfig(b)
}

func loadChallenges(path string) (sdr.Challenges, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return sdr.Challenges{}, xerrors.Errorf("reading challenges: %w", err)
	}
	return sdr.UnmarshalChallenges(b)
}

// loadReplicaID accepts the hex id itself or a file holding it.
func loadReplicaID(arg string) (sdr.ReplicaID, error) {
	if id, err := sdr.ParseReplicaID(arg); err == nil {
		return id, nil
	}
	b, err := os.ReadFile(arg)
	if err != nil {
		return sdr.ReplicaID{}, xerrors.Errorf("reading replica id: %w", err)
	}
	return sdr.ParseReplicaID(strings.TrimSpace(string(b)))
}
