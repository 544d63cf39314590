// Package loom provides an agentic workflow orchestrator: a stage-graph
// scheduler that routes a session through a workspace's registered agents,
// backed by a two-tier memory subsystem, a retrieval-augmented model
// manager, and a policy-checked tool gateway.
//
// # Quick Start
//
// Install loom:
//
//	go install github.com/loomrun/loom/cmd/loom@latest
//
// A workspace is a directory of plain JSON/YAML artifacts: workspace.json
// (naming its first stage and provider wiring), stage.json (the stage
// graph), tools_policy.json (per-role tool permissions), and one
// agents/<role>/ directory per agent (skill.json, context.json, prompt.md).
//
// Run a message through a workspace:
//
//	loom --root ./workspaces --workspace demo --message "draft the changelog" --user-id alice
//
// # Using as a Go library
//
//	import (
//	    "github.com/loomrun/loom/pkg/runtime"
//	)
//
// A runtime.Hub discovers workspaces under a root directory and builds
// (and caches) one runtime.Manager per workspace; Manager.RunUserMessage
// is the single entrypoint that runs one message through a workspace's
// compiled stage graph to completion.
//
// # Architecture
//
//	CLI/caller -> runtime.Hub -> runtime.Manager -> graph.Graph -> agent.Agent
//	                                   |                  |
//	                             workspace registries   model.Manager (RAG)
//	                                                       |
//	                                                  memory.Manager -> store.Store
//
// Agent manifests and stage.json hot-reload in place on change: new
// sessions observe the reloaded registry and graph; a session with a run
// already in flight finishes against the graph reference it started with.
// workspace.json, tools_policy.json and the provider catalogs are read once,
// when the workspace's Manager is built.
package loom
