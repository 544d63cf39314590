// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command loom runs a single user message through a workspace's stage
// graph and prints the resulting session state.
//
// Usage:
//
//	loom --root ./workspaces --workspace demo --message "draft the changelog" --user-id alice
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/loomrun/loom"
	"github.com/loomrun/loom/pkg/events"
	"github.com/loomrun/loom/pkg/runtime"
)

// CLI is loom's entire command-line surface (spec §6 CLI surface):
// a single command, no subcommands.
type CLI struct {
	Version kong.VersionFlag `help:"Print version information and exit."`

	Root      string `help:"Path to the directory of workspace subdirectories." type:"path" default:"." env:"LOOM_ROOT"`
	Workspace string `help:"Name of the workspace to run against (a subdirectory of --root)." required:""`
	Message   string `help:"The user message to run through the workspace's stage graph." required:""`
	UserID    string `name:"user-id" help:"Identifies the caller, carried only as a log field."`
	SessionID string `name:"session-id" help:"Resume an existing session. A new one is minted when omitted."`
	Verbose   bool   `help:"Enable debug-level logging."`
}

func main() {
	cli := CLI{}
	kong.Parse(&cli,
		kong.Name("loom"),
		kong.Description("Run a message through a workspace's agent stage graph."),
		kong.UsageOnError(),
		kong.Vars{"version": loom.GetVersion().String()},
	)

	if err := cli.run(); err != nil {
		fmt.Fprintln(os.Stderr, "loom:", err)
		os.Exit(1)
	}
}

func (c *CLI) run() error {
	log := newLogger(c.Verbose)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutting down")
		cancel()
	}()

	bus := events.New()
	if log.Enabled(ctx, slog.LevelDebug) {
		bus.SubscribeAll(func(ev events.Event) {
			log.Debug("event", "name", string(ev.Name), "session_id", ev.SessionID, "stage", ev.Stage, "agent", ev.Agent)
		})
	}

	hub := runtime.NewHub(c.Root, runtime.HubConfig{
		Bus: bus,
		Log: log,
	})
	defer hub.Close()

	mgr, err := hub.Get(ctx, c.Workspace)
	if err != nil {
		return fmt.Errorf("load workspace %q: %w", c.Workspace, err)
	}

	log.Info("running user message", "workspace", c.Workspace, "user_id", c.UserID, "session_id", c.SessionID)

	final, err := mgr.RunUserMessage(ctx, c.Message, c.SessionID)

	out, encErr := json.MarshalIndent(final, "", "  ")
	if encErr != nil {
		return fmt.Errorf("encode result: %w", encErr)
	}
	fmt.Println(string(out))

	if err != nil {
		return fmt.Errorf("run completed with an error: %w", err)
	}
	return nil
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}
