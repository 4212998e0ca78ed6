package cmd

import (
	"github.com/ktestci/ktestci/internal/contract"
	"github.com/ktestci/ktestci/internal/iocache"
	"github.com/ktestci/ktestci/internal/mcp"
	"github.com/spf13/cobra"
)

// mcpCmd represents the mcp command.
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the ktestci MCP server",
	Long: `Launch an MCP server over stdio that lets AI agents inspect queues,
workers, results, durations and the dispatch history.`,
	PreRunE: sharedSetupWrapper,
	RunE: func(_ *cobra.Command, _ []string) error {
		return mcp.StartMCPServer(rootCtx, cfg, iocache.Manager, contract.NewLocalGitClient(), logger)
	},
}
