package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ktestci/ktestci/core"
	"github.com/ktestci/ktestci/internal/contract"
	"github.com/ktestci/ktestci/internal/durations"
	"github.com/ktestci/ktestci/internal/results"
	"github.com/ktestci/ktestci/internal/workers"
	"github.com/ktestci/ktestci/schema"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"
)

const defaultDispatchLimit = 20

// toolHandler holds common dependencies for MCP tool handlers.
type toolHandler struct {
	cfg         *contract.Config
	mgr         contract.StoreManager
	queues      *core.QueueStore
	registry    *workers.Registry
	results     *results.Store
	maintenance *core.Maintenance
	now         func() time.Time
}

func newToolHandler(cfg *contract.Config, mgr contract.StoreManager, git contract.GitClient, logger zerolog.Logger) *toolHandler {
	return &toolHandler{
		cfg:         cfg,
		mgr:         mgr,
		queues:      core.NewQueueStore(cfg.OutputDir),
		registry:    workers.NewRegistry(cfg.OutputDir, logger),
		results:     results.NewStore(cfg.OutputDir, logger),
		maintenance: core.NewMaintenance(cfg, git, logger),
		now:         time.Now,
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	jsonData, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encoding result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonData)), nil
}

func (h *toolHandler) handleQueueSummary(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := core.QueueStats(h.cfg, h.queues, h.registry)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("reading queues: %v", err)), nil
	}
	users, err := h.registry.UserStats()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("reading user stats: %v", err)), nil
	}
	return jsonResult(struct {
		TotalPending int                     `json:"pending"`
		TotalRunning int                     `json:"running"`
		Users        []schema.SummaryRow `json:"users"`
	}{stats.TotalPending, stats.TotalRunning, core.SummaryRows(stats, users, h.cfg.UserNice, h.now())})
}

func (h *toolHandler) handleWorkers(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ws, err := h.registry.Workers()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("reading workers: %v", err)), nil
	}
	if ws == nil {
		ws = []schema.Worker{}
	}
	return jsonResult(ws)
}

func (h *toolHandler) handleCommitResults(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	commit := request.GetString("commit", "")
	if !schema.IsHex(commit) {
		return mcp.NewToolResultError(fmt.Sprintf("invalid commit id %q", commit)), nil
	}
	res, err := h.results.Read(commit)
	if errors.Is(err, results.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("no results recorded for %s", commit)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("reading results: %v", err)), nil
	}
	return jsonResult(res)
}

func (h *toolHandler) handleTestDuration(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	test := request.GetString("test", "")
	subtest := request.GetString("subtest", "")
	if test == "" || subtest == "" {
		return mcp.NewToolResultError("test and subtest are required"), nil
	}

	idx := durations.Open(durations.Path(h.cfg.OutputDir))
	defer func() { _ = idx.Close() }()
	if err := idx.Err(); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	stats, ok := idx.Lookup(test, subtest)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("no duration recorded for %s", schema.SubtestFullName(test, subtest))), nil
	}
	return jsonResult(stats)
}

func (h *toolHandler) handleBranchLog(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	user := request.GetString("user", "")
	branch := request.GetString("branch", "")

	entry, ok := h.cfg.Users[user]
	if !ok || entry.Err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("unknown user %q", user)), nil
	}
	if _, ok := entry.Config.Branches[branch]; !ok {
		return mcp.NewToolResultError(fmt.Sprintf("user %s has no branch %q", user, branch)), nil
	}

	entries, err := h.maintenance.ReadBranchLog(user, branch)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("reading branch log: %v", err)), nil
	}
	if entries == nil {
		entries = []schema.BranchEntry{}
	}
	return jsonResult(entries)
}

func (h *toolHandler) handleRecentDispatches(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := request.GetInt("limit", defaultDispatchLimit)
	if limit <= 0 {
		return mcp.NewToolResultError("limit must be at least 1"), nil
	}

	var store contract.HistoryStore
	if h.mgr != nil {
		store = h.mgr.GetHistoryStore()
	}
	if store == nil {
		return mcp.NewToolResultError("dispatch history is not configured"), nil
	}

	recs, err := store.Recent(limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("reading dispatch history: %v", err)), nil
	}
	if recs == nil {
		recs = []schema.DispatchRecord{}
	}
	return jsonResult(recs)
}
