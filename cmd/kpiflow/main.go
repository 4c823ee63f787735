// Command kpiflow serves the KPI API and evaluates formulas from the shell.
//
// Usage:
//
//	kpiflow [-c config.yaml] serve
//	kpiflow eval [-v value] [-a] EXPRESSION
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"git.sr.ht/~sircmpwn/getopt"
	"github.com/fatih/color"
	"github.com/randalmurphal/kpiflow/pkg/kpiflow/config"
	"github.com/randalmurphal/kpiflow/pkg/kpiflow/expr"
	"github.com/randalmurphal/kpiflow/pkg/kpiflow/httpapi"
	"github.com/randalmurphal/kpiflow/pkg/kpiflow/observability"
	"github.com/randalmurphal/kpiflow/pkg/kpiflow/retention"
	"github.com/randalmurphal/kpiflow/pkg/kpiflow/service"
	"github.com/randalmurphal/kpiflow/pkg/kpiflow/store"
)

const usage = `usage: kpiflow [-c config] command [args]

commands:
  serve                  run the HTTP API
  eval [-v value] [-a] [--] EXPRESSION
                         substitute value for the placeholder and evaluate;
                         put -- before an expression starting with '-'

options:
  -c FILE  YAML or JSON configuration file
  -h       show this help
`

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	opts, optind, err := getopt.Getopts(args, "c:h")
	if err != nil {
		fmt.Fprintln(stderr, err)
		fmt.Fprint(stderr, usage)
		return 2
	}
	configPath := ""
	for _, opt := range opts {
		switch opt.Option {
		case 'c':
			configPath = opt.Value
		default: // 'h'
			fmt.Fprint(stdout, usage)
			return 0
		}
	}

	rest := args[optind:]
	if len(rest) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	settings, err := config.Load(configPath)
	if err != nil {
		color.New(color.FgRed).Fprintf(stderr, "kpiflow: %v\n", err)
		return 1
	}

	switch rest[0] {
	case "serve":
		return serve(settings, stderr)
	case "eval":
		return evalCommand(settings, rest, stdout, stderr)
	default:
		fmt.Fprintf(stderr, "kpiflow: unknown command %q\n", rest[0])
		fmt.Fprint(stderr, usage)
		return 2
	}
}

func newEvaluator(settings config.Settings) *expr.Evaluator {
	return expr.New(
		expr.WithPlaceholder(settings.Expr.Placeholder),
		expr.WithMaxLength(settings.Expr.MaxLength),
	)
}

// evalCommand evaluates one expression. args[0] is "eval".
func evalCommand(settings config.Settings, args []string, stdout, stderr io.Writer) int {
	opts, optind, err := getopt.Getopts(args, "v:ah")
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	value := ""
	printAST := false
	for _, opt := range opts {
		switch opt.Option {
		case 'v':
			value = opt.Value
		case 'a':
			printAST = true
		default: // 'h'
			fmt.Fprint(stdout, "usage: kpiflow eval [-v value] [-a] [--] EXPRESSION\n"+
				"\n"+
				"options:\n"+
				"  -v VALUE  value substituted for the placeholder\n"+
				"  -a        print the parsed tree before the result\n"+
				"  --        end of options, e.g. kpiflow eval -- '-3 + 1'\n",
			)
			return 0
		}
	}
	args = args[optind:]
	if len(args) != 1 {
		fmt.Fprintln(stderr, "kpiflow eval: expected exactly one expression")
		return 2
	}

	evaluator := newEvaluator(settings)
	text := evaluator.Substitute(args[0], value)
	red := color.New(color.FgRed)

	if printAST {
		tree, err := expr.Parse(text)
		if err != nil {
			red.Fprintf(stderr, "error: %v\n", err)
			return 1
		}
		color.New(color.FgCyan).Fprintln(stdout, tree.String())
	}

	result, err := evaluator.Evaluate(text)
	if err != nil {
		red.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	if result.Kind == expr.ResultBool && !result.Bool {
		red.Fprintln(stdout, result.String())
	} else {
		color.New(color.FgGreen).Fprintln(stdout, result.String())
	}
	return 0
}

// serve runs the HTTP API and retention sweeper until SIGINT or SIGTERM.
func serve(settings config.Settings, stderr io.Writer) int {
	logger := observability.NewLogger(settings.Log.Level, settings.Log.Format, stderr)

	st, err := store.Open(settings.Store.Driver, settings.Store.Path)
	if err != nil {
		logger.Error("open store", slog.String("error", err.Error()))
		return 1
	}
	defer st.Close()

	opts := []service.Option{
		service.WithLogger(logger),
		service.WithEvaluator(newEvaluator(settings)),
	}
	if settings.Telemetry.Enabled {
		opts = append(opts,
			service.WithMetrics(observability.NewMetricsRecorder()),
			service.WithSpanManager(observability.NewSpanManager()),
		)
	}
	svc := service.New(st, opts...)

	sweeper := retention.New(svc, settings.Retention.MaxAge, settings.Retention.Interval,
		retention.WithLogger(logger), retention.WithRetry(retention.DefaultRetry))
	if err := sweeper.Start(); err != nil {
		logger.Error("start retention", slog.String("error", err.Error()))
		return 1
	}
	defer sweeper.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := httpapi.New(svc, logger)
	served := make(chan error, 1)
	go func() {
		served <- server.ListenAndServe(settings.Addr)
	}()

	select {
	case err := <-served:
		if err != nil {
			logger.Error("http server", slog.String("error", err.Error()))
			return 1
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		if err := server.Shutdown(); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("shutdown", slog.String("error", err.Error()))
			return 1
		}
	}
	return 0
}
