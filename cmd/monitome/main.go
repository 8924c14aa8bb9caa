/*
Package main is the entry point for the monitome CLI.

monitome records what is on your screen, has a local analysis service
describe it, and keeps a searchable history of your own activity.

Usage:
  monitome [command]

Available Commands:
  init        Write the default configuration file
  run         Run the capture daemon
  status      Show recording state and indexing backlog
  capture     Take a screenshot now
  record      Turn recording on or off
  triggers    Turn capture on app and window switches on or off
  search      Search recorded activity
  export      Export activity entries for grep, jq or yq
  rules       Manage learned extraction rules
  reindex     Re-run analysis for screenshots
  summary     Summarize a day of activity
  mcp         Run the MCP server (stdio transport)
  verify      Verify configuration and connections
  version     Show version information

Examples:
  # First run
  monitome init && monitome run

  # Find what you were reading yesterday afternoon
  monitome search "rfc" --date 2026-03-03

  # Expose history to an AI assistant
  claude mcp add monitome -- monitome mcp
*/
package main

import (
	"fmt"
	"os"

	"github.com/khanglvm/monitome/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
