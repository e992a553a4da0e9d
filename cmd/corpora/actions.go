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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/poiesic/corpora"
	"github.com/poiesic/corpora/config"
	"github.com/poiesic/corpora/core"
	"github.com/poiesic/corpora/ingestion"
	"github.com/poiesic/corpora/inbox"
	"github.com/poiesic/corpora/reembed"
	"github.com/poiesic/corpora/search"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

var errUsage = errors.New("wrong number of arguments")

func signalContext(c *cli.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
}

func oneArg(c *cli.Context, name string) (string, error) {
	if c.NArg() != 1 {
		return "", fmt.Errorf("%w: expected <%s>", errUsage, name)
	}
	return c.Args().First(), nil
}

func serveCommand(c *cli.Context, sys *corpora.System) error {
	ctx, stop := signalContext(c)
	defer stop()

	srv, err := sys.NewServer()
	if err != nil {
		return err
	}
	addr := c.String("listen")
	if addr == "" {
		addr = sys.Config().Server.Listen
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(ctx, addr)
	})
	if sys.Config().Processing.InboxDir != "" {
		w, err := sys.NewWatcher("", "", inbox.WithLogger(slog.Default()))
		if err != nil {
			return err
		}
		g.Go(func() error {
			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

func mcpCommand(c *cli.Context, sys *corpora.System) error {
	ctx, stop := signalContext(c)
	defer stop()

	tools, err := sys.NewTools()
	if err != nil {
		return err
	}
	return tools.Run(ctx, version)
}

func importCollectionsCommand(c *cli.Context, sys *corpora.System) error {
	if c.NArg() == 0 {
		return fmt.Errorf("%w: expected at least one <path>", errUsage)
	}
	var all []*core.Collection
	for _, path := range c.Args().Slice() {
		cols, err := config.LoadCollections(path)
		if err != nil {
			return err
		}
		all = append(all, cols...)
	}
	saved, err := sys.ImportCollections(c.Context, all)
	if err != nil {
		return err
	}
	for _, col := range saved {
		fmt.Fprintf(out(c), "%s (schema version %d)\n", col.ID, col.SchemaVersion)
	}
	return nil
}

func listCollectionsCommand(c *cli.Context, sys *corpora.System) error {
	cols, err := sys.Collections().ListCollections(c.Context)
	if err != nil {
		return err
	}
	if len(cols) == 0 {
		fmt.Fprintln(out(c), "No collections")
		return nil
	}
	tw := tabwriter.NewWriter(out(c), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tFIELDS\tMODEL\tVERSION")
	for _, col := range cols {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%d\n", col.ID, col.DisplayName, len(col.Fields), col.Embedding.Model, col.SchemaVersion)
	}
	return tw.Flush()
}

func ingestCommand(c *cli.Context, sys *corpora.System) error {
	if c.NArg() == 0 {
		return fmt.Errorf("%w: expected at least one <file>", errUsage)
	}
	collectionID := c.String("collection")
	col, err := sys.Manager().Collection(c.Context, collectionID)
	if err != nil {
		return err
	}
	manual, err := parseFields(col, c.StringSlice("field"))
	if err != nil {
		return err
	}

	var failed int
	for _, path := range c.Args().Slice() {
		doc, err := ingestFile(c.Context, sys, collectionID, path, manual)
		if err != nil {
			failed++
			fmt.Fprintf(out(c), "%s: %v\n", path, err)
			continue
		}
		if c.Bool("wait") {
			ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
			doc, err = sys.Manager().WaitFor(ctx, doc.ID, core.StatusReady, core.StatusError)
			cancel()
			if err != nil {
				failed++
				fmt.Fprintf(out(c), "%s: %v\n", path, err)
				continue
			}
			if doc.Status == core.StatusError {
				failed++
			}
		}
		printDocumentLine(out(c), doc)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, c.NArg())
	}
	return nil
}

func ingestFile(ctx context.Context, sys *corpora.System, collectionID, path string, manual core.Content) (*core.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	// Each document gets its own copy since validation normalizes in place.
	fields := make(core.Content, len(manual))
	for k, v := range manual {
		fields[k] = v
	}
	return sys.Ingest(ctx, collectionID, filepath.Base(path), f, fields)
}

// parseFields turns name=value flags into manual content, typed by the
// collection schema.
func parseFields(col *core.Collection, raw []string) (core.Content, error) {
	content := make(core.Content, len(raw))
	for _, kv := range raw {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			return nil, &core.ValidationError{Field: "field", Err: fmt.Errorf("expected name=value, got %q", kv)}
		}
		def, ok := col.Field(name)
		if !ok {
			return nil, &core.ValidationError{Field: name, Err: core.ErrUnknownField}
		}
		switch def.Type {
		case core.FieldBoolean:
			b, err := strconv.ParseBool(value)
			if err != nil {
				return nil, &core.ValidationError{Field: name, Err: fmt.Errorf("%w: %v", core.ErrFieldType, err)}
			}
			content[name] = b
		case core.FieldStringList:
			var list []string
			for _, item := range strings.Split(value, ",") {
				if item = strings.TrimSpace(item); item != "" {
					list = append(list, item)
				}
			}
			content[name] = list
		default:
			content[name] = value
		}
	}
	return content, nil
}

func processCommand(c *cli.Context, sys *corpora.System) error {
	ctx, stop := signalContext(c)
	defer stop()

	collectionID := c.String("collection")
	var (
		report *ingestion.BatchReport
		err    error
	)
	switch stage := c.String("stage"); stage {
	case "analysis":
		report, err = sys.Processor().ProcessPending(ctx, collectionID)
	case "embedding":
		report, err = sys.Processor().ProcessReadyForEmbedding(ctx, collectionID)
	case "all":
		report, err = sys.Processor().ProcessAll(ctx, collectionID)
	default:
		return fmt.Errorf("invalid stage %q: must be one of analysis, embedding, all", stage)
	}
	if report == nil {
		return err
	}
	fmt.Fprintf(out(c), "Processed %d documents: %d succeeded, %d skipped, %d failed\n",
		report.Attempted, report.Succeeded, report.Skipped, len(report.Failures))
	for _, f := range report.Failures {
		fmt.Fprintf(out(c), "  %s [%s]: %s\n", f.ID, f.Stage, f.Msg)
	}
	return report.Err()
}

func statusCommand(c *cli.Context, sys *corpora.System) error {
	id, err := oneArg(c, "document-id")
	if err != nil {
		return err
	}
	if !c.Bool("watch") {
		doc, err := sys.Manager().Get(c.Context, id)
		if err != nil {
			return err
		}
		printDocument(out(c), doc)
		return nil
	}

	ctx, stop := signalContext(c)
	defer stop()
	events, err := sys.Manager().Watch(ctx, id)
	if err != nil {
		return err
	}
	for ev := range events {
		switch {
		case ev.Deleted:
			fmt.Fprintf(out(c), "%s deleted\n", ev.DocumentID)
		case ev.Error != "":
			fmt.Fprintf(out(c), "%s %s: %s\n", ev.At.Format(time.RFC3339), ev.To, ev.Error)
		default:
			fmt.Fprintf(out(c), "%s %s\n", ev.At.Format(time.RFC3339), ev.To)
		}
	}
	return nil
}

func statsCommand(c *cli.Context, sys *corpora.System) error {
	stats, err := sys.Manager().Stats(c.Context, c.String("collection"))
	if err != nil {
		return err
	}
	if c.Bool("json") {
		return writeJSON(out(c), stats)
	}
	w := out(c)
	if stats.CollectionID != "" {
		fmt.Fprintf(w, "Collection: %s\n", stats.CollectionID)
	}
	fmt.Fprintf(w, "Documents: %d\n", stats.Total)
	for _, s := range core.AllStatuses {
		if n := stats.ByStatus[s]; n > 0 {
			fmt.Fprintf(w, "  %-15s %d\n", s, n)
		}
	}
	fmt.Fprintf(w, "With embedding: %d (%.1f%%)\n", stats.WithEmbedding, stats.Coverage*100)
	fmt.Fprintf(w, "Elements: %d (%d ready)\n", stats.Elements, stats.ReadyElements)
	return nil
}

func resetCommand(c *cli.Context, sys *corpora.System) error {
	id, err := oneArg(c, "document-id")
	if err != nil {
		return err
	}
	doc, err := sys.Manager().Reset(c.Context, id)
	if err != nil {
		return err
	}
	if err := sys.Processor().Submit(doc.ID); err != nil {
		slog.Warn("document reset but not queued", "id", doc.ID, "err", err)
	}
	printDocumentLine(out(c), doc)
	return nil
}

func deleteCommand(c *cli.Context, sys *corpora.System) error {
	id, err := oneArg(c, "document-id")
	if err != nil {
		return err
	}
	if err := sys.Manager().Delete(c.Context, id); err != nil {
		return err
	}
	fmt.Fprintf(out(c), "Deleted %s\n", id)
	return nil
}

func purgeOrphansCommand(c *cli.Context, sys *corpora.System) error {
	n, err := sys.Manager().PurgeOrphans(c.Context, c.String("collection"))
	if err != nil {
		return err
	}
	fmt.Fprintf(out(c), "Removed %d orphaned elements\n", n)
	return nil
}

func searchCommand(c *cli.Context, sys *corpora.System) error {
	query, err := oneArg(c, "query")
	if err != nil {
		return err
	}
	resp, err := sys.Search().Search(c.Context, search.SearchRequest{
		Query:           query,
		Limit:           c.Int("limit"),
		Threshold:       c.Float64("threshold"),
		TargetModel:     c.String("model"),
		ReasoningEffort: c.String("reasoning"),
		DebugMode:       c.Bool("debug"),
		EnableRerank:    c.Bool("rerank"),
	})
	if err != nil {
		return err
	}
	if c.Bool("json") {
		return writeJSON(out(c), resp)
	}

	w := out(c)
	if cl := resp.Classification; cl != nil {
		fmt.Fprintf(w, "Routed to %s (%.2f), strategy %s\n", cl.PrimaryCollection, cl.PrimaryConfidence, resp.SearchMetadata.Strategy)
	}
	if len(resp.Results) == 0 {
		fmt.Fprintln(w, "No results")
		return nil
	}
	for i, r := range resp.Results {
		fmt.Fprintf(w, "%2d. %.3f  %s  [%s] %s\n", i+1, r.Score, r.Filename, r.CollectionID, describeMatch(r))
		if r.Summary != "" {
			fmt.Fprintf(w, "    %s\n", r.Summary)
		}
		if b := r.Breakdown; b != nil {
			fmt.Fprintf(w, "    %s = %.3f\n", b.Combination, b.FinalScore)
		}
		if rr := r.Rerank; rr != nil && rr.Explanation != "" {
			fmt.Fprintf(w, "    moved %d -> %d: %s\n", rr.OriginalPosition, rr.RerankPosition, rr.Explanation)
		}
	}
	fmt.Fprintf(w, "%d candidates from %s in %dms\n", resp.SearchMetadata.TotalCandidates,
		strings.Join(resp.SearchMetadata.CollectionsSearched, ", "), resp.SearchMetadata.SearchTimeMs)
	return nil
}

func describeMatch(r *core.SearchResult) string {
	switch m := r.Match.(type) {
	case core.ExactMatch:
		return fmt.Sprintf("exact %q", m.Term)
	case core.ElementMatch:
		desc := string(m.ElementType)
		if m.Title != "" {
			desc += " " + strconv.Quote(m.Title)
		}
		if m.PageNumber > 0 {
			desc += fmt.Sprintf(" p.%d", m.PageNumber)
		}
		return desc
	}
	return string(r.MatchType())
}

func askCommand(c *cli.Context, sys *corpora.System) error {
	query, err := oneArg(c, "question")
	if err != nil {
		return err
	}
	resp, err := sys.Search().Chat(c.Context, search.ChatRequest{
		Query:           query,
		TargetModel:     c.String("model"),
		ReasoningEffort: c.String("reasoning"),
	})
	if err != nil {
		return err
	}
	if c.Bool("json") {
		return writeJSON(out(c), resp)
	}
	w := out(c)
	fmt.Fprintln(w, resp.Answer)
	if len(resp.Citations) > 0 {
		fmt.Fprintln(w)
		for _, cit := range resp.Citations {
			fmt.Fprintf(w, "[%s] %s (%s)\n", cit.SourceID, cit.Filename, cit.CollectionID)
		}
	}
	return nil
}

func reembedCommand(c *cli.Context, sys *corpora.System) error {
	ctx, stop := signalContext(c)
	defer stop()

	progress := c.App.ErrWriter
	if progress == nil {
		progress = os.Stderr
	}
	r, err := sys.NewReembedder(
		reembed.WithBatchSize(c.Int("batch-size")),
		reembed.WithRetry(c.Int("max-retries"), c.Duration("retry-delay")),
		reembed.WithProgress(progress, c.Int("report-interval")),
		reembed.WithLogger(slog.Default()),
	)
	if err != nil {
		return err
	}
	report, err := r.Run(ctx, c.String("collection"))
	if err != nil {
		return err
	}
	fmt.Fprintf(out(c), "Reembedded %d documents and %d elements, skipped %d\n", report.Documents, report.Elements, report.Skipped)
	return nil
}

func watchCommand(c *cli.Context, sys *corpora.System) error {
	ctx, stop := signalContext(c)
	defer stop()

	w, err := sys.NewWatcher(c.String("dir"), c.String("collection"),
		inbox.WithSettle(c.Duration("settle")),
		inbox.WithLogger(slog.Default()),
	)
	if err != nil {
		return err
	}
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func printDocumentLine(w io.Writer, doc *core.Document) {
	if doc.Error != "" {
		fmt.Fprintf(w, "%s  %s  %s: %s\n", doc.ID, doc.File.Filename, doc.Status, doc.Error)
		return
	}
	fmt.Fprintf(w, "%s  %s  %s\n", doc.ID, doc.File.Filename, doc.Status)
}

func printDocument(w io.Writer, doc *core.Document) {
	fmt.Fprintf(w, "ID:         %s\n", doc.ID)
	fmt.Fprintf(w, "Collection: %s\n", doc.CollectionID)
	fmt.Fprintf(w, "File:       %s (%d bytes)\n", doc.File.Filename, doc.File.Size)
	fmt.Fprintf(w, "Status:     %s\n", doc.Status)
	if doc.Error != "" {
		fmt.Fprintf(w, "Error:      %s\n", doc.Error)
	}
	if s := doc.Content.Summary(); s != "" {
		fmt.Fprintf(w, "Summary:    %s\n", s)
	}
	if kw := doc.Content.Keywords(); len(kw) > 0 {
		fmt.Fprintf(w, "Keywords:   %s\n", strings.Join(kw, ", "))
	}
	if doc.Embedding != nil {
		fmt.Fprintf(w, "Embedding:  %s, %d dimensions\n", doc.Embedding.Model, len(doc.Embedding.Vector))
	}
	fmt.Fprintf(w, "Updated:    %s\n", doc.UpdatedAt.Format(time.RFC3339))
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
