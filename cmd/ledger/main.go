// Command ledger stores payloads and applies messages to an actor ledger.
package main

import (
	"fmt"
	"os"

	logging "github.com/ipfs/go-log/v2"
	"github.com/urfave/cli/v2"
)

var log = logging.Logger("cmd")

const (
	defaultRepoPath = "~/.ledger"
	repoPathEnv     = "LEDGER_PATH"
	logLevelEnv     = "LEDGER_LOG_LEVEL"
)

func newApp() *cli.App {
	return &cli.App{
		Name:                 "ledger",
		Usage:                "content-addressed store with an actor ledger on top",
		EnableBashCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "repo",
				Usage:   "path of the ledger repo",
				Value:   defaultRepoPath,
				EnvVars: []string{repoPathEnv},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "overrides [log] level from the repo config",
				EnvVars: []string{logLevelEnv},
			},
		},
		Before: func(cctx *cli.Context) error {
			if lvl := cctx.String("log-level"); lvl != "" {
				return setLogLevel(lvl)
			}
			return nil
		},
		Commands: []*cli.Command{
			initCmd,
			putCmd,
			getCmd,
			applyCmd,
			balanceCmd,
			tallyCmd,
			flushCmd,
			serveCmd,
			authCmd,
			lineageCmd,
			configCmd,
		},
	}
}

func main() {
	app := newApp()
	app.Setup()

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "ERR: %v\n", err) // nolint: errcheck
		os.Exit(1)
	}
}

func setLogLevel(level string) error {
	lvl, err := logging.LevelFromString(level)
	if err != nil {
		return err
	}
	logging.SetAllLoggers(lvl)
	return nil
}
