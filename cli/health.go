package cli

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/probe-lab/go-envelope/envelope"
	ehttp "github.com/probe-lab/go-envelope/http"
)

const defaultHealthAddr = "localhost:8080"

func NewHealthCommand() *cli.Command {
	return &cli.Command{
		Name:      "health",
		Usage:     "Checks the health of the provided endpoint",
		ArgsUsage: "[host:port]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "path",
				Usage: "The path of the health endpoint",
				Value: "/healthz",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "How long to wait for the health endpoint to respond",
				Value: 5 * time.Second,
			},
		},
		Action: healthAction,
	}
}

func healthAction(ctx context.Context, c *cli.Command) error {
	addr := c.Args().First()
	if addr == "" {
		addr = defaultHealthAddr
	}

	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		addr = "http://" + addr
	}

	return checkHealth(ctx, &http.Client{Timeout: c.Duration("timeout")}, strings.TrimSuffix(addr, "/")+c.String("path"))
}

// checkHealth requests url and succeeds only if it answers with HTTP 200 and
// a success envelope.
func checkHealth(ctx context.Context, client *http.Client, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("new health request %s: %w", url, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request health %s: %w", url, err)
	}

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		_ = resp.Body.Close()
		return fmt.Errorf("health endpoint responded with status %d and content type %q", resp.StatusCode, ct)
	}

	env, err := ehttp.DecodeAndClose[any](resp.Body)
	if err != nil {
		return fmt.Errorf("read health response: %w", err)
	}

	if resp.StatusCode != http.StatusOK || env.Code != envelope.CodeSuccess {
		return fmt.Errorf("health check failed with status %d, code %d: %s", resp.StatusCode, env.Code, env.Message())
	}

	return nil
}
