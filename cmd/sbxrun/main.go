// Command sbxrun is a minimal, compilable example of the public sbx
// surface: it creates a sandbox, runs one snippet of code through the
// blocking façade, prints stdout/stderr, and tears the sandbox down. It
// is not a CLI in its own right — no subcommands, no output formatting —
// just an entry point exercising sbx.New/RunCode/Kill.
//
// Usage:
//
//	sbxrun -code 'print("hello")' -template python3
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/scalebox/sbx-go/sbx"
	"github.com/scalebox/sbx-go/sbxcode"
	"github.com/scalebox/sbx-go/sbxconfig"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})

	var (
		code     = flag.String("code", `print("hello from sbxrun")`, "code to execute")
		template = flag.String("template", "", "sandbox template id (empty: account default)")
		domain   = flag.String("domain", "", "API domain override (SBX_DOMAIN env if unset)")
		timeout  = flag.Duration("timeout", 30*time.Second, "per-request timeout")
	)
	flag.Parse()

	if err := run(*code, *template, *domain, *timeout); err != nil {
		log.Fatal().Err(err).Msg("sbxrun failed")
	}
}

func run(code, template, domain string, timeout time.Duration) error {
	ctx := context.Background()

	opts := []sbxconfig.Option{
		sbxconfig.WithLogger(log.Logger),
		sbxconfig.WithRequestTimeout(timeout),
	}
	if domain != "" {
		opts = append(opts, sbxconfig.WithDomain(domain))
	}

	cfg, err := sbxconfig.New(opts...)
	if err != nil {
		return fmt.Errorf("build connection config: %w", err)
	}

	box, err := sbx.New(ctx, cfg, sbx.CreateOptions{TemplateID: template})
	if err != nil {
		return fmt.Errorf("create sandbox: %w", err)
	}
	log.Info().Str("sandboxId", box.SandboxID()).Msg("sandbox ready")

	defer func() {
		if _, err := box.Kill(context.Background()); err != nil {
			log.Error().Err(err).Msg("kill sandbox")
		}
	}()

	exec, err := box.RunCode(ctx, code, sbxcode.DefaultTarget(), sbxcode.Handlers{}, sbxcode.RunOptions{})
	if err != nil {
		return fmt.Errorf("run code: %w", err)
	}

	for _, line := range exec.Logs.Stdout {
		fmt.Print(line)
	}
	for _, line := range exec.Logs.Stderr {
		fmt.Fprint(os.Stderr, line)
	}
	if exec.Error != nil {
		return fmt.Errorf("execution raised %s: %s", exec.Error.Name, exec.Error.Value)
	}

	return nil
}
