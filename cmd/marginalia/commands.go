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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/poiesic/marginalia"
	"github.com/poiesic/marginalia/cache"
	"github.com/poiesic/marginalia/core"
	"github.com/poiesic/marginalia/reembed"
	"github.com/urfave/cli/v2"
)

var errCacheDisabled = errors.New("query cache is disabled in the configuration")

func (r *runner) seedCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("at least one file is required")
	}
	userID := c.String("user")

	docs := make([]*core.Document, 0, c.NArg())
	for _, path := range c.Args().Slice() {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		doc := parseDocument(userID, path, string(data))
		doc.Author = c.String("author")
		if err := core.ValidateDocument(doc); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		docs = append(docs, doc)
	}

	db, err := r.open()
	if err != nil {
		return err
	}
	defer db.Close()

	stored, err := db.Library().PutDocuments(c.Context, docs...)
	if err != nil {
		return fmt.Errorf("failed to store documents: %w", err)
	}
	for _, doc := range stored {
		// A re-seeded document replaces the old text.
		if err := db.DocumentChanged(c.Context, doc.UserID, doc.ID); err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "%d\t%s\t%d chapters\n", doc.ID, doc.Title, len(doc.Chapters))
	}
	fmt.Fprintf(c.App.Writer, "Seeded %d documents\n", len(stored))
	return nil
}

func (r *runner) indexCommand(c *cli.Context) error {
	db, err := r.open()
	if err != nil {
		return err
	}
	defer db.Close()

	stats, err := db.RebuildConceptIndex(c.Context)
	if err != nil {
		return fmt.Errorf("concept indexing failed: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "Indexed %d documents: %d concepts (%d from heuristics) in %v\n",
		stats.Documents, stats.Concepts, stats.Heuristic, stats.Elapsed.Round(time.Millisecond))
	return nil
}

func (r *runner) askCommand(c *cli.Context) error {
	question := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if question == "" {
		return fmt.Errorf("a question is required")
	}
	sources, err := parseSources(c.StringSlice("source"))
	if err != nil {
		return err
	}

	db, err := r.open()
	if err != nil {
		return err
	}
	defer db.Close()

	// The concept index lives in memory. Without it every document is scanned.
	if c.Bool("concepts") {
		if _, err := db.RebuildConceptIndex(c.Context); err != nil {
			return fmt.Errorf("concept indexing failed: %w", err)
		}
	}

	qc := core.QueryContext{
		UserID:     c.String("user"),
		DocumentID: core.ID(c.Uint64("document")),
		Chapter:    c.String("chapter"),
	}
	params := core.SearchParams{
		Limit:              c.Int("limit"),
		RelevanceThreshold: c.Float64("threshold"),
		Sources:            sources,
	}
	resp := db.Ask(c.Context, question, qc, params)

	if c.Bool("json") {
		enc := json.NewEncoder(c.App.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(newAskOutput(resp))
	}
	printResponse(c.App.Writer, resp)
	return nil
}

func (r *runner) reembedCommand(c *cli.Context) error {
	cfg := reembed.Config{
		BatchSize:          c.Int("batch-size"),
		EmbeddingBatchSize: r.cfg.AI.EmbeddingBatchSize,
		FragmentSize:       r.cfg.Search.FragmentSize,
		ReportInterval:     c.Int("report-interval"),
		MaxRetries:         c.Int("max-retries"),
		RetryDelay:         c.Duration("retry-delay"),
	}
	if cfg.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if cfg.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}
	if cfg.MaxRetries <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}

	db, err := r.open(marginalia.WithReembedConfig(cfg))
	if err != nil {
		return err
	}
	defer db.Close()

	fmt.Fprintf(c.App.ErrWriter, "Data: %s\n", r.cfg.Storage.Dir)
	fmt.Fprintf(c.App.ErrWriter, "Embedding host: %s\n", r.cfg.AI.EmbeddingHost)
	fmt.Fprintf(c.App.ErrWriter, "Embedding model: %s\n", r.cfg.AI.EmbeddingModel)
	fmt.Fprintln(c.App.ErrWriter)

	if _, err := db.Reembed(c.Context, c.Bool("force"), c.App.ErrWriter); err != nil {
		return fmt.Errorf("reembedding failed: %w", err)
	}
	return nil
}

func (r *runner) withCache(c *cli.Context, fn func(qc *cache.QueryCache) error) error {
	db, err := r.open()
	if err != nil {
		return err
	}
	defer db.Close()
	if db.Cache() == nil {
		return errCacheDisabled
	}
	return fn(db.Cache())
}

func (r *runner) cacheStatsCommand(c *cli.Context) error {
	return r.withCache(c, func(qc *cache.QueryCache) error {
		stats, err := qc.Stats(c.Context)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "Backend: %s\n", r.cfg.Storage.CacheBackend)
		fmt.Fprintf(c.App.Writer, "Entries: %d\n", stats.Entries)
		fmt.Fprintf(c.App.Writer, "Total accesses: %d\n", stats.TotalAccesses)
		fmt.Fprintf(c.App.Writer, "Oldest: %s\n", formatTime(stats.Oldest))
		fmt.Fprintf(c.App.Writer, "Newest: %s\n", formatTime(stats.Newest))
		return nil
	})
}

func (r *runner) cacheCompactCommand(c *cli.Context) error {
	return r.withCache(c, func(qc *cache.QueryCache) error {
		stats, err := qc.Compact(c.Context)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "Removed %d expired and %d evicted entries, %d remain\n",
			stats.Expired, stats.Evicted, stats.Remaining)
		return nil
	})
}

func (r *runner) cacheInvalidateCommand(c *cli.Context) error {
	return r.withCache(c, func(qc *cache.QueryCache) error {
		n, err := qc.InvalidateContext(c.Context, c.String("user"), core.ID(c.Uint64("document")))
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "Invalidated %d entries\n", n)
		return nil
	})
}

func parseSources(values []string) ([]core.SourceType, error) {
	var out []core.SourceType
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			part = strings.ToLower(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			st := core.SourceType(part)
			if err := core.ValidateSourceType(st); err != nil {
				return nil, err
			}
			out = append(out, st)
		}
	}
	return out, nil
}

type askSource struct {
	DocumentID core.ID         `json:"document_id,omitempty"`
	Type       core.SourceType `json:"type"`
	Chapter    string          `json:"chapter,omitempty"`
	Section    string          `json:"section,omitempty"`
	Score      float64         `json:"score"`
	Text       string          `json:"text"`
}

type askOutput struct {
	Answer      string            `json:"answer"`
	Confidence  float64           `json:"confidence"`
	Source      core.ResultSource `json:"source"`
	QueryHash   string            `json:"query_hash"`
	ElapsedMS   int64             `json:"elapsed_ms"`
	Sources     []askSource       `json:"sources"`
	Suggestions []string          `json:"suggestions"`
}

func newAskOutput(resp *core.RAGResponse) askOutput {
	out := askOutput{
		Answer:      resp.Answer,
		Confidence:  resp.Confidence,
		Source:      resp.Source,
		QueryHash:   resp.QueryHash,
		ElapsedMS:   resp.Elapsed.Milliseconds(),
		Sources:     make([]askSource, 0, len(resp.Sources)),
		Suggestions: resp.Suggestions,
	}
	for _, r := range resp.Sources {
		out.Sources = append(out.Sources, askSource{
			DocumentID: r.Fragment.Source.DocumentID,
			Type:       r.Fragment.Source.Type,
			Chapter:    r.Fragment.Source.Chapter,
			Section:    r.Section(),
			Score:      r.Score,
			Text:       excerpt(r),
		})
	}
	return out
}

func printResponse(w io.Writer, resp *core.RAGResponse) {
	fmt.Fprintln(w, resp.Answer)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Confidence: %.2f (%s, %v)\n", resp.Confidence, resp.Source, resp.Elapsed.Round(time.Millisecond))
	if len(resp.Sources) > 0 {
		fmt.Fprintln(w, "Sources:")
		for i, r := range resp.Sources {
			ref := r.Fragment.Source
			where := fmt.Sprintf("%s %d", ref.Type, ref.DocumentID)
			if ref.Chapter != "" {
				where += ", chapter " + ref.Chapter
			}
			fmt.Fprintf(w, "  [%d] %.2f %s: %s\n", i+1, r.Score, where, excerpt(r))
		}
	}
	if len(resp.Suggestions) > 0 {
		fmt.Fprintln(w, "Suggestions:")
		for _, s := range resp.Suggestions {
			fmt.Fprintf(w, "  - %s\n", s)
		}
	}
}

const excerptLength = 160

func excerpt(r core.ScoredResult) string {
	text := r.Fragment.Text
	if len(r.Snippets) > 0 {
		text = r.Snippets[0]
	}
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= excerptLength {
		return text
	}
	return string(runes[:excerptLength]) + "…"
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.RFC3339)
}
