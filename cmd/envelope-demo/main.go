package main

import (
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	ecli "github.com/probe-lab/go-envelope/cli"
)

func main() {
	cmd := &cli.Command{
		Name:  "envelope-demo",
		Usage: "A reference service that answers every request with a response envelope",
	}

	root, rootCfg := ecli.NewRootCommand(cmd)

	cmd.Commands = []*cli.Command{
		newServeCommand(rootCfg),
		ecli.NewHealthCommand(),
	}

	if err := root.Run(); err != nil {
		slog.Error("Terminated abnormally", "err", err)
		os.Exit(1)
	}
}
