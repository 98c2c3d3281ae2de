package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/poiesic/marginalia/ai"
	"github.com/poiesic/marginalia/ai/mock"
	"github.com/poiesic/marginalia/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func TestSetupLogger(t *testing.T) {
	run := func(args ...string) error {
		app := &cli.App{
			Name: "test",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "log-level",
					Aliases: []string{"l"},
					Value:   "info",
				},
			},
			Before: setupLogger,
			Action: func(c *cli.Context) error { return nil },
		}
		return app.Run(append([]string{"test"}, args...))
	}

	for _, level := range []string{"debug", "info", "warn", "error", "DEBUG", "WaRn"} {
		t.Run(level, func(t *testing.T) {
			require.NoError(t, run("--log-level", level))
		})
	}

	t.Run("alias", func(t *testing.T) {
		require.NoError(t, run("-l", "debug"))
	})

	t.Run("invalid log level returns error", func(t *testing.T) {
		err := run("--log-level", "verbose")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid log level")
	})
}

func TestParseDocument(t *testing.T) {
	t.Run("plain text", func(t *testing.T) {
		doc := parseDocument("u1", "/books/the_keeper.txt", "  The lamp burned all night.  \n")
		assert.Equal(t, "u1", doc.UserID)
		assert.Equal(t, "the keeper", doc.Title)
		assert.Equal(t, "The lamp burned all night.", doc.Content)
		assert.Empty(t, doc.Chapters)
	})

	t.Run("chapters", func(t *testing.T) {
		text := "A note before the story.\n\nChapter 1: Arrival\nThe narrator arrives.\n\nCHAPTER IV. The Storm\nThe storm breaks.\n"
		doc := parseDocument("u1", "keeper-notes.txt", text)

		require.Len(t, doc.Chapters, 3)
		assert.Equal(t, core.Chapter{ID: "0", Content: "A note before the story."}, doc.Chapters[0])
		assert.Equal(t, core.Chapter{ID: "1", Title: "Arrival", Content: "The narrator arrives."}, doc.Chapters[1])
		assert.Equal(t, core.Chapter{ID: "iv", Title: "The Storm", Content: "The storm breaks."}, doc.Chapters[2])
		assert.Empty(t, doc.Content)
		assert.Equal(t, "keeper notes", doc.Title)
	})

	t.Run("chapter in prose is not a heading", func(t *testing.T) {
		doc := parseDocument("u1", "essay.txt", "The next chapter 3 begins at sea.")
		assert.Empty(t, doc.Chapters)
	})
}

func TestParseSources(t *testing.T) {
	sources, err := parseSources([]string{"document,annotation", " Memory "})
	require.NoError(t, err)
	assert.Equal(t, []core.SourceType{core.SourceDocument, core.SourceAnnotation, core.SourceMemory}, sources)

	_, err = parseSources([]string{"podcast"})
	assert.ErrorIs(t, err, core.ErrInvalidSourceType)
}

// harness runs the CLI against a temporary data directory with a mock provider.
type harness struct {
	t        *testing.T
	dir      string
	provider *mock.MockProvider
}

func newHarness(t *testing.T) *harness {
	unit := mock.Vector("lamp")
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextFunc = func(context.Context, string) ([]float32, error) { return unit, nil }
	embedder.EmbedTextsFunc = func(_ context.Context, texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i := range out {
			out[i] = unit
		}
		return out, nil
	}
	completer := mock.NewMockCompleter()
	completer.CompleteFunc = func(context.Context, string, ai.Requirements) (string, error) {
		return "According to the passage, the keeper holds the light through the storm.", nil
	}
	return &harness{
		t:        t,
		dir:      t.TempDir(),
		provider: mock.NewMockProviderWithServices(embedder, completer),
	}
}

func (h *harness) run(args ...string) (string, string, error) {
	h.t.Helper()
	var stdout, stderr bytes.Buffer
	app := newApp(&runner{provider: h.provider})
	app.Writer = &stdout
	app.ErrWriter = &stderr
	base := []string{
		"marginalia",
		"--log-level", "error",
		"--config", filepath.Join(h.dir, "absent.yaml"),
		"--env-file", filepath.Join(h.dir, "absent.env"),
		"--data", filepath.Join(h.dir, "data"),
	}
	err := app.Run(append(base, args...))
	return stdout.String(), stderr.String(), err
}

func (h *harness) writeFile(name, text string) string {
	path := filepath.Join(h.dir, name)
	require.NoError(h.t, os.WriteFile(path, []byte(text), 0o644))
	return path
}

func (h *harness) seed() string {
	keeper := h.writeFile("the_keeper.txt", "Chapter 1: Arrival\nThe keeper arrives on the island.\n\nChapter 3: The Storm\nThe keeper climbs the lighthouse and holds the light through the storm.\n")
	garden := h.writeFile("the_garden.txt", "Roses grow along the old stone wall.")

	out, _, err := h.run("seed", "--user", "u1", keeper, garden)
	require.NoError(h.t, err)
	assert.Contains(h.t, out, "Seeded 2 documents")

	for _, line := range strings.Split(out, "\n") {
		fields := strings.Split(line, "\t")
		if len(fields) == 3 && fields[1] == "the keeper" {
			return fields[0]
		}
	}
	h.t.Fatalf("seed output has no id for the keeper: %q", out)
	return ""
}

func TestSeedRequiresFiles(t *testing.T) {
	h := newHarness(t)
	_, _, err := h.run("seed", "--user", "u1")
	require.Error(t, err)

	_, _, err = h.run("seed", filepath.Join(h.dir, "missing.txt"))
	require.Error(t, err, "user flag is required")
}

func TestAskCommand(t *testing.T) {
	h := newHarness(t)
	docID := h.seed()

	ask := func() askOutput {
		out, _, err := h.run("ask", "--user", "u1", "--document", docID, "--json", "What happens in the storm?")
		require.NoError(t, err)
		var resp askOutput
		require.NoError(t, json.Unmarshal([]byte(out), &resp))
		return resp
	}

	first := ask()
	assert.Equal(t, core.ResultFresh, first.Source)
	assert.Contains(t, first.Answer, "holds the light")
	require.NotEmpty(t, first.Sources)
	assert.Equal(t, docID, strconv.FormatUint(uint64(first.Sources[0].DocumentID), 10))
	assert.NotEmpty(t, first.Suggestions)

	second := ask()
	assert.Equal(t, core.ResultCache, second.Source)
	assert.Equal(t, first.QueryHash, second.QueryHash)
	assert.Equal(t, 1, h.provider.GetMockCompleter().CallCount())

	t.Run("text output", func(t *testing.T) {
		out, _, err := h.run("ask", "--user", "u1", "--concepts", "Where do roses grow?")
		require.NoError(t, err)
		assert.Contains(t, out, "Confidence:")
		assert.Contains(t, out, "Sources:")
	})

	t.Run("question required", func(t *testing.T) {
		_, _, err := h.run("ask", "--user", "u1")
		assert.Error(t, err)
	})

	t.Run("unknown source", func(t *testing.T) {
		_, _, err := h.run("ask", "--user", "u1", "--source", "podcast", "anything")
		assert.ErrorIs(t, err, core.ErrInvalidSourceType)
	})
}

func TestCacheCommands(t *testing.T) {
	h := newHarness(t)
	docID := h.seed()

	out, _, err := h.run("cache", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Entries: 0")
	assert.Contains(t, out, "Oldest: -")

	_, _, err = h.run("ask", "--user", "u1", "--document", docID, "What happens in the storm?")
	require.NoError(t, err)

	out, _, err = h.run("cache", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Entries: 1")

	out, _, err = h.run("cache", "compact")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed 0 expired and 0 evicted entries, 1 remain")

	out, _, err = h.run("cache", "invalidate", "--user", "u1", "--document", docID)
	require.NoError(t, err)
	assert.Contains(t, out, "Invalidated 1 entries")

	out, _, err = h.run("cache", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Entries: 0")
}

func TestIndexCommand(t *testing.T) {
	h := newHarness(t)
	h.seed()

	out, _, err := h.run("index")
	require.NoError(t, err)
	assert.Contains(t, out, "Indexed 2 documents")
}

func TestReembedCommand(t *testing.T) {
	h := newHarness(t)
	h.seed()

	_, stderr, err := h.run("reembed", "--batch-size", "1", "--retry-delay", "1ms")
	require.NoError(t, err)
	assert.Contains(t, stderr, "Embedding fragments for 2 documents (batch size: 1)")
	assert.Contains(t, stderr, "Embedding complete. 2 documents (0 skipped)")

	_, stderr, err = h.run("reembed")
	require.NoError(t, err)
	assert.Contains(t, stderr, "(2 skipped)")

	_, _, err = h.run("reembed", "--batch-size", "0")
	assert.ErrorContains(t, err, "batch-size")
}
