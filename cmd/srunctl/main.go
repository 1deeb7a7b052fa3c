// Command srunctl runs one gateway operation and prints the result.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/micro-ha/srun-guard/internal/config"
	"github.com/micro-ha/srun-guard/internal/model"
	"github.com/micro-ha/srun-guard/internal/srun"
	"github.com/micro-ha/srun-guard/internal/watch"
)

const usage = `usage: srunctl [flags] <status|login|logout|encode|watch>

flags:
`

var errUsage = errors.New("usage")

// errReported marks a failure whose details were already printed.
var errReported = errors.New("reported")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr, os.Getenv))
}

type options struct {
	profile      string
	profilesFile string
	username     string
	password     string
	server       string
	verbose      bool
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, getenv func(string) string) int {
	fs := flag.NewFlagSet("srunctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}

	var opts options
	fs.StringVar(&opts.profile, "profile", envOr(getenv, "SRUN_PROFILE", config.PresetHaut), "endpoint profile name")
	fs.StringVar(&opts.profilesFile, "profiles-file", getenv("SRUN_PROFILES_FILE"), "YAML file with extra profiles")
	fs.StringVar(&opts.username, "u", getenv("SRUN_USERNAME"), "account username")
	fs.StringVar(&opts.password, "p", "", "account password (default $SRUN_PASSWORD)")
	fs.StringVar(&opts.server, "server", "http://127.0.0.1:8099", "daemon base URL for watch")
	fs.BoolVar(&opts.verbose, "v", false, "log gateway exchanges to stderr")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if opts.password == "" {
		opts.password = getenv("SRUN_PASSWORD")
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 2
	}

	r := newRenderer(stdout)
	err := dispatch(ctx, fs.Arg(0), opts, r, stderr)
	switch {
	case errors.Is(err, errUsage):
		fmt.Fprintln(stderr, err)
		fs.Usage()
		return 2
	case errors.Is(err, errReported):
		return 1
	case err != nil:
		r.failure(err)
		return 1
	}
	return 0
}

func dispatch(ctx context.Context, command string, opts options, r *renderer, stderr io.Writer) error {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if opts.verbose {
		logger = slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	switch command {
	case "encode":
		if opts.username == "" && opts.password == "" {
			return fmt.Errorf("%w: encode needs -u or -p", errUsage)
		}
		r.encoded(opts.username, opts.password)
		return nil
	case "watch":
		watch.NewWatcher(opts.server, logger).Run(ctx, r.event)
		return nil
	case "status", "login", "logout":
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, command)
	}

	catalog, err := config.LoadCatalog(opts.profilesFile)
	if err != nil {
		return err
	}
	profile, ok := catalog.Lookup(opts.profile)
	if !ok {
		return fmt.Errorf("unknown profile %q (known: %v)", opts.profile, catalog.Names())
	}
	client := srun.NewClient(srun.NewHTTPTransport(), profile, srun.WithLogger(logger))

	switch command {
	case "status":
		status := client.CheckStatus(ctx)
		r.status(profile.Name, status)
		if status.State == model.StateError {
			return errReported
		}
		return nil
	case "login":
		out := client.Login(ctx, model.Credentials{Username: opts.username, Password: opts.password})
		r.outcome("login", out)
		return reported(out)
	default:
		out := client.Logout(ctx, opts.username)
		r.outcome("logout", out)
		return reported(out)
	}
}

func reported(out model.LoginOutcome) error {
	if err := srun.OutcomeError(out); err != nil {
		return fmt.Errorf("%w: %w", errReported, err)
	}
	return nil
}

func envOr(getenv func(string) string, key, fallback string) string {
	if value := getenv(key); value != "" {
		return value
	}
	return fallback
}
