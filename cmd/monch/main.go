package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/marcelocantos/monch/internal/audit"
	"github.com/marcelocantos/monch/internal/check"
	"github.com/marcelocantos/monch/internal/cli"
	"github.com/marcelocantos/monch/internal/config"
	"github.com/marcelocantos/monch/internal/diag"
	"github.com/marcelocantos/monch/internal/engine"
	"github.com/marcelocantos/monch/internal/mcpserver"
	"github.com/marcelocantos/monch/internal/registry"
)

var version = "dev"

func main() {
	os.Exit(run(os.Args[1:]))
}

// app holds the flags shared by every subcommand and the exit status the
// chosen subcommand settles on.
type app struct {
	configPath  string
	pipefail    bool
	debug       bool
	noAudit     bool
	bypassRules bool
	noColor     bool

	cfg    *config.Config
	reg    *registry.Registry
	logger *audit.Logger

	code int
}

func run(args []string) int {
	a := &app{}
	root := a.rootCmd()
	root.SetArgs(args)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "monch: %v\n", err)
		if a.code == 0 {
			a.code = engine.StatusUsage
		}
	}
	return a.code
}

func (a *app) rootCmd() *cobra.Command {
	var command string
	root := &cobra.Command{
		Use:   "monch [-c command | script]",
		Short: "A typed pipeline shell",
		Long: `monch runs pipelines of programs connected by pipes. Every program has a
stream signature, and pipelines whose stages cannot connect are rejected
before anything runs.

With -c, runs one command. With a file argument, runs it as a script.
With neither, reads a script from standard input.`,
		Version:       version,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			src, script, err := source(command, cmd.Flags().Changed("command"), args)
			if err != nil {
				return err
			}
			sh := a.shell(os.Stdin, os.Stdout)
			if script {
				a.code = sh.RunScript(cmd.Context(), src)
			} else {
				a.code = sh.RunCommand(cmd.Context(), src)
			}
			return nil
		},
	}
	root.Flags().StringVarP(&command, "command", "c", "", "run a single command")

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "config file (default ~/.config/monch/config.yaml)")
	pf.BoolVar(&a.pipefail, "pipefail", false, "exit with the status of the rightmost failing stage")
	pf.BoolVar(&a.debug, "debug", false, "log spawn and exit of every stage")
	pf.BoolVar(&a.noAudit, "no-audit", false, "do not record pipelines in the audit log")
	pf.BoolVar(&a.bypassRules, "bypass-rules", false, "skip config rules (hardcoded rules still apply)")
	pf.BoolVar(&a.noColor, "no-color", false, "disable colored output")

	root.AddCommand(a.checkCmd(), a.typesCmd(), a.auditCmd(), a.mcpCmd())
	return root
}

func (a *app) checkCmd() *cobra.Command {
	var (
		command string
		ast     bool
	)
	cmd := &cobra.Command{
		Use:   "check [-c command | script]",
		Short: "Validate without running and print the execution plan",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, script, err := source(command, cmd.Flags().Changed("command"), args)
			if err != nil {
				return err
			}
			sh := a.shell(nil, nil)
			if ast {
				a.code = sh.DumpAST(cmd.OutOrStdout(), src, script)
			} else {
				a.code = sh.Check(cmd.OutOrStdout(), src, script)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&command, "command", "c", "", "check a single command")
	cmd.Flags().BoolVar(&ast, "ast", false, "print the syntax tree as YAML instead of checking")
	return cmd
}

func (a *app) typesCmd() *cobra.Command {
	var origin string
	cmd := &cobra.Command{
		Use:   "types",
		Short: "List registered program signatures",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a.code = cli.RunTypes(a.reg, cmd.OutOrStdout(), origin)
			return nil
		},
	}
	cmd.Flags().StringVar(&origin, "origin", "", "only show signatures from this origin (builtin, config, or a script path)")
	return cmd
}

func (a *app) auditCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:       "audit <verify|show|tail>",
		Short:     "Verify or show the audit log",
		ValidArgs: []string{"verify", "show", "tail"},
		Args:      cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a.code = cli.RunAudit(cmd.OutOrStdout(), a.cfg.Audit.Path, args, n)
			return nil
		},
	}
	cmd.Flags().IntVarP(&n, "lines", "n", 20, "number of entries to show")
	return cmd
}

func (a *app) mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve check, run and types tools over MCP on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, _ := os.Getwd()
			h := &mcpserver.Handler{
				Checker:  a.checker(),
				Registry: a.reg,
				Audit:    a.logger,
				Dir:      dir,
				Pipefail: a.pipefail,
				Logger:   slog.Default(),
			}
			return mcpserver.Serve(cmd.Context(), mcpserver.New(h, version), os.Stdin, os.Stdout)
		},
	}
}

// setup loads configuration and builds the registry and audit logger.
func (a *app) setup() error {
	level := slog.LevelWarn
	if a.debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			if attr.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			return attr
		},
	})))

	var err error
	if a.configPath != "" {
		a.cfg, err = config.LoadFrom(a.configPath)
	} else {
		a.cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	a.pipefail = a.pipefail || a.cfg.Pipefail

	a.reg = registry.New()
	registry.RegisterDefaults(a.reg)
	if err := a.cfg.ApplyTypes(a.reg); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	if a.cfg.Audit.Enabled && !a.noAudit {
		a.logger, err = audit.NewLogger(a.cfg.Audit.Path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "monch: audit: %v\n", err)
			// Continue without audit logging.
			a.logger = nil
		}
	}
	return nil
}

func (a *app) checker() *check.Checker {
	return &check.Checker{
		Registry: a.reg,
		Rules:    a.cfg.RuleSet(),
		Bypass:   a.bypassRules,
	}
}

func (a *app) shell(stdin io.Reader, stdout *os.File) *cli.Shell {
	eng := &engine.Engine{
		Stdin:    stdin,
		Stderr:   os.Stderr,
		Pipefail: a.pipefail,
		Logger:   slog.Default(),
	}
	if stdout != nil {
		eng.Stdout = stdout
		eng.RenderObjects = isTerminal(stdout)
		eng.Color = eng.RenderObjects && !a.noColor
	}
	sh := cli.NewShell(a.checker(), eng, a.logger, os.Stderr)
	sh.Diag = diag.Renderer{Prog: "monch", Color: isTerminal(os.Stderr) && !a.noColor}
	return sh
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// source picks the text to run: the -c command, the named script file, or
// a script on standard input.
func source(command string, commandSet bool, args []string) (src string, script bool, err error) {
	switch {
	case commandSet && len(args) > 0:
		return "", false, fmt.Errorf("-c and a script file are mutually exclusive")
	case commandSet:
		return command, false, nil
	case len(args) == 1:
		data, err := os.ReadFile(args[0])
		if err != nil {
			return "", false, err
		}
		return string(data), true, nil
	default:
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", false, fmt.Errorf("reading script: %w", err)
		}
		return string(data), true, nil
	}
}
