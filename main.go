// go_match is a semantic similarity and candidate-matching engine.
//
// Embeds job postings and candidate profiles, keeps per-entity related lists
// up to date through a durable work queue, and ranks candidates for a job.
// Runs as an MCP server (serve), a standalone queue worker (worker), or as
// one-shot maintenance commands (backfill, requeue-stale).
package main

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
)

var version = "dev"

func main() {
	if err := godotenv.Load(); err == nil {
		slog.Debug("loaded .env")
	}
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
