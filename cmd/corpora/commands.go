// Copyright 2025 Poiesic Systems
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

package main

import (
	"time"

	"github.com/poiesic/corpora/inbox"
	"github.com/poiesic/corpora/reembed"
	"github.com/urfave/cli/v2"
)

func commands(open opener) []*cli.Command {
	return []*cli.Command{
		{
			Name:   "serve",
			Usage:  "Serve the HTTP API, and watch the inbox when one is configured",
			Action: withSystem(open, serveCommand),
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "listen", Usage: "Listen address (overrides server.listen)"},
			},
		},
		{
			Name:   "mcp",
			Usage:  "Serve the search, ask and document_status tools over stdio",
			Action: withSystem(open, mcpCommand),
		},
		{
			Name:  "collections",
			Usage: "Manage collection schemas",
			Subcommands: []*cli.Command{
				{
					Name:      "import",
					Usage:     "Add or update collections from YAML files or directories",
					ArgsUsage: "<path>...",
					Action:    withSystem(open, importCollectionsCommand),
				},
				{
					Name:   "list",
					Usage:  "List collections",
					Action: withSystem(open, listCollectionsCommand),
				},
			},
		},
		{
			Name:      "ingest",
			Usage:     "Upload files into a collection and process them",
			ArgsUsage: "<file>...",
			Action:    withSystem(open, ingestCommand),
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "collection", Aliases: []string{"C"}, Usage: "Target collection", Required: true},
				&cli.StringSliceFlag{Name: "field", Aliases: []string{"f"}, Usage: "Manual content field as name=value"},
				&cli.BoolFlag{Name: "wait", Aliases: []string{"w"}, Usage: "Wait for each document to finish processing"},
				&cli.DurationFlag{Name: "timeout", Usage: "Maximum wait per document", Value: 10 * time.Minute},
			},
		},
		{
			Name:   "process",
			Usage:  "Process documents waiting for analysis or embedding",
			Action: withSystem(open, processCommand),
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "collection", Aliases: []string{"C"}, Usage: "Limit to one collection"},
				&cli.StringFlag{Name: "stage", Usage: "analysis, embedding or all", Value: "all"},
			},
		},
		{
			Name:      "status",
			Usage:     "Show a document",
			ArgsUsage: "<document-id>",
			Action:    withSystem(open, statusCommand),
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "watch", Aliases: []string{"w"}, Usage: "Follow status changes until the document settles"},
			},
		},
		{
			Name:   "stats",
			Usage:  "Show processing coverage",
			Action: withSystem(open, statsCommand),
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "collection", Aliases: []string{"C"}, Usage: "Limit to one collection"},
				&cli.BoolFlag{Name: "json", Usage: "Print JSON"},
			},
		},
		{
			Name:      "reset",
			Usage:     "Send a failed document back to pending",
			ArgsUsage: "<document-id>",
			Action:    withSystem(open, resetCommand),
		},
		{
			Name:      "delete",
			Usage:     "Delete a document. Its elements stay until purge-orphans",
			ArgsUsage: "<document-id>",
			Action:    withSystem(open, deleteCommand),
		},
		{
			Name:   "purge-orphans",
			Usage:  "Remove elements whose document no longer exists",
			Action: withSystem(open, purgeOrphansCommand),
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "collection", Aliases: []string{"C"}, Usage: "Limit to one collection"},
			},
		},
		{
			Name:      "search",
			Usage:     "Search the collections",
			ArgsUsage: "<query>",
			Action:    withSystem(open, searchCommand),
			Flags: []cli.Flag{
				&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Usage: "Maximum results"},
				&cli.Float64Flag{Name: "threshold", Usage: "Minimum score, or -1 for everything"},
				&cli.BoolFlag{Name: "rerank", Usage: "Rerank the top results"},
				&cli.BoolFlag{Name: "debug", Usage: "Include score breakdowns"},
				&cli.StringFlag{Name: "model", Usage: "Override the generative model"},
				&cli.StringFlag{Name: "reasoning", Usage: "Reasoning effort: low, medium or high"},
				&cli.BoolFlag{Name: "json", Usage: "Print the JSON response"},
			},
		},
		{
			Name:      "ask",
			Usage:     "Answer a question with citations",
			ArgsUsage: "<question>",
			Action:    withSystem(open, askCommand),
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "model", Usage: "Override the generative model"},
				&cli.StringFlag{Name: "reasoning", Usage: "Reasoning effort: low, medium or high"},
				&cli.BoolFlag{Name: "json", Usage: "Print the JSON response"},
			},
		},
		{
			Name:   "reembed",
			Usage:  "Rebuild the embeddings of ready documents and elements",
			Action: withSystem(open, reembedCommand),
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "collection", Aliases: []string{"C"}, Usage: "Limit to one collection"},
				&cli.IntFlag{Name: "batch-size", Usage: "Items per embedder call", Value: reembed.DefaultBatchSize},
				&cli.IntFlag{Name: "report-interval", Usage: "Report progress every N items", Value: reembed.DefaultReportInterval},
				&cli.IntFlag{Name: "max-retries", Usage: "Attempts per batch", Value: reembed.DefaultMaxAttempts},
				&cli.DurationFlag{Name: "retry-delay", Usage: "Base delay for exponential backoff", Value: reembed.DefaultRetryDelay},
			},
		},
		{
			Name:   "watch",
			Usage:  "Ingest files dropped into a directory",
			Action: withSystem(open, watchCommand),
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "dir", Usage: "Inbox directory (overrides processing.inbox_dir)"},
				&cli.StringFlag{Name: "collection", Aliases: []string{"C"}, Usage: "Target collection (overrides processing.inbox_collection)"},
				&cli.DurationFlag{Name: "settle", Usage: "Quiet time before a file is ingested", Value: inbox.DefaultSettle},
			},
		},
	}
}
