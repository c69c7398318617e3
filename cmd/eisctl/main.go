// Command eisctl edits impedance spectroscopy project documents. Each
// invocation opens the documents it names, applies one operation, saves the
// result and shuts the workspace down so unsaved work lands in the recovery
// area.
package main

import (
	"context"
	"eiscore/internal/config"
	"eiscore/internal/core"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

var exitFunc = os.Exit

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "eisctl:", err)
		exitFunc(1)
	}
}

type app struct {
	configPath string
	stateDir   string
	jsonOut    bool
	out        io.Writer
	errOut     io.Writer
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{out: stdout, errOut: stderr}
	root := &cobra.Command{
		Use:           "eisctl",
		Short:         "Edit impedance spectroscopy project documents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "config file (YAML or JSON)")
	flags.StringVar(&a.stateDir, "state-dir", "", "override the state directory")
	flags.BoolVar(&a.jsonOut, "json", false, "print machine-readable JSON")

	root.AddCommand(
		a.projectCmd(),
		a.seriesCmd(),
		a.simulateCmd(),
		a.mergeCmd(),
		a.plotCmd(),
		a.recoverCmd(),
		a.migrateCmd(),
	)
	return root
}

func (a *app) loadConfig() (config.Config, error) {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return cfg, err
	}
	if a.stateDir != "" {
		cfg.StateDir = a.stateDir
	}
	return cfg, nil
}

// workspace runs fn against a freshly opened workspace and always shuts it
// down afterwards.
func (a *app) workspace(ctx context.Context, fn func(*core.Workspace) error) (err error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	logger, err := config.NewLogger(cfg.Log, a.errOut)
	if err != nil {
		return err
	}
	cc, err := config.Open(cfg)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, cc.Close()) }()
	w, err := core.NewWorkspace(ctx, cc, core.WithLogger(logger))
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, w.Shutdown(ctx)) }()
	return fn(w)
}

// project opens the document at location, runs fn and saves when fn left
// unsaved changes.
func (a *app) project(ctx context.Context, location string, fn func(*core.Session) error) error {
	return a.workspace(ctx, func(w *core.Workspace) error {
		s, err := w.Open(ctx, location)
		if err != nil {
			return err
		}
		if err := fn(s); err != nil {
			return err
		}
		if s.Dirty() {
			return s.Save(ctx)
		}
		return nil
	})
}

// emit prints v as JSON under --json, otherwise calls text.
func (a *app) emit(v any, text func(io.Writer)) error {
	if a.jsonOut {
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(a.out)
	return nil
}
