// Package mcp provides the Model Context Protocol (MCP) server implementation.
package mcp

import (
	"context"

	"github.com/ktestci/ktestci/internal/contract"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
)

// NewMCPServer initializes and configures the ktestci MCP server without starting it.
// This is exposed for unit testing.
func NewMCPServer(cfg *contract.Config, mgr contract.StoreManager, git contract.GitClient, logger zerolog.Logger) *server.MCPServer {
	s := server.NewMCPServer(
		"ktestci Job Server",
		"1.0.0",
		server.WithLogging(),
	)

	h := newToolHandler(cfg, mgr, git, logger)

	s.AddTool(mcp.NewTool("get_queue_summary",
		mcp.WithDescription("Pending jobs, running workers, and fair-share standing per user."),
	), h.handleQueueSummary)

	s.AddTool(mcp.NewTool("get_workers",
		mcp.WithDescription("The worker registry: every (hostname, workdir) slot and what it last took."),
	), h.handleWorkers)

	s.AddTool(mcp.NewTool("get_commit_results",
		mcp.WithDescription("Per-subtest status and duration recorded for one commit."),
		mcp.WithString("commit", mcp.Description("Full commit id."), mcp.Required()),
	), h.handleCommitResults)

	s.AddTool(mcp.NewTool("get_test_duration",
		mcp.WithDescription("Run counts and average duration of one subtest from the duration table."),
		mcp.WithString("test", mcp.Description("Test path relative to the tests directory, e.g. fs/xfs.ktest."), mcp.Required()),
		mcp.WithString("subtest", mcp.Description("Subtest name as reported by list-tests."), mcp.Required()),
	), h.handleTestDuration)

	s.AddTool(mcp.NewTool("get_branch_log",
		mcp.WithDescription("Per-commit status counts of a user's branch, newest first, as last published."),
		mcp.WithString("user", mcp.Description("User name (file stem in users_dir)."), mcp.Required()),
		mcp.WithString("branch", mcp.Description("Branch name from the user's configuration."), mcp.Required()),
	), h.handleBranchLog)

	s.AddTool(mcp.NewTool("get_recent_dispatches",
		mcp.WithDescription("The newest jobs handed to workers, from the dispatch history."),
		mcp.WithNumber("limit", mcp.Description("Maximum number of dispatches (default 20).")),
	), h.handleRecentDispatches)

	return s
}

// StartMCPServer serves the ktestci tools over stdio.
func StartMCPServer(_ context.Context, cfg *contract.Config, mgr contract.StoreManager, git contract.GitClient, logger zerolog.Logger) error {
	s := NewMCPServer(cfg, mgr, git, logger)
	return server.ServeStdio(s)
}
