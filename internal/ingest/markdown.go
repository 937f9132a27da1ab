// Package ingest imports markdown documents into an agent's long-term
// memories, one memory per heading-delimited chunk.
package ingest

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/dmathers/foreman/internal/store"
)

// MemoryStore is the slice of the persistence layer the ingester needs.
type MemoryStore interface {
	AddMemory(m *store.MemoryItem) error
	DeleteMemoriesBySource(agentID, source string) (int, error)
}

// Ingester parses markdown documents into agent memories.
type Ingester struct {
	store      MemoryStore
	agentID    string
	source     string
	importance float64
}

// NewIngester creates a markdown ingester writing memories for one agent.
// Source labels the import so re-ingesting the same document replaces
// its previous memories instead of duplicating them.
func NewIngester(st MemoryStore, agentID, source string, importance float64) *Ingester {
	if importance <= 0 {
		importance = 0.5
	}
	return &Ingester{
		store:      st,
		agentID:    agentID,
		source:     source,
		importance: importance,
	}
}

// Chunk is a semantic unit from the document.
type Chunk struct {
	Key     string
	Content string
	Section string
}

// IngestFile reads and imports a markdown file.
func (g *Ingester) IngestFile(path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open file: %w", err)
	}
	defer file.Close()

	return g.ingestChunks(parseMarkdown(file))
}

// IngestString imports markdown content from a string.
func (g *Ingester) IngestString(content string) (int, error) {
	return g.ingestChunks(parseMarkdown(strings.NewReader(content)))
}

func (g *Ingester) ingestChunks(chunks []Chunk) (int, error) {
	// Clear the previous import of this source so re-runs are clean.
	if _, err := g.store.DeleteMemoriesBySource(g.agentID, g.source); err != nil {
		return 0, err
	}

	count := 0
	for _, chunk := range chunks {
		item := &store.MemoryItem{
			AgentID:    g.agentID,
			Content:    fmt.Sprintf("%s: %s", chunk.Key, chunk.Content),
			Importance: g.importance,
			Source:     g.source,
		}
		if err := g.store.AddMemory(item); err != nil {
			continue // skip failures, import the rest
		}
		count++
	}

	return count, nil
}

// parseMarkdown extracts heading-delimited chunks from markdown content.
func parseMarkdown(r io.Reader) []Chunk {
	var chunks []Chunk

	var currentH1, currentH2 string
	var currentContent strings.Builder
	var lastKey string

	flushChunk := func() {
		content := strings.TrimSpace(currentContent.String())
		if content != "" && lastKey != "" {
			chunks = append(chunks, Chunk{
				Key:     lastKey,
				Content: content,
				Section: currentH1,
			})
		}
		currentContent.Reset()
	}

	h1Pattern := regexp.MustCompile(`^#\s+(.+)$`)
	h2Pattern := regexp.MustCompile(`^##\s+(.+)$`)
	h3Pattern := regexp.MustCompile(`^###\s+(.+)$`)

	inCodeBlock := false

	for _, line := range readLines(r) {
		if strings.HasPrefix(line, "```") {
			inCodeBlock = !inCodeBlock
			currentContent.WriteString(line + "\n")
			continue
		}
		if inCodeBlock {
			currentContent.WriteString(line + "\n")
			continue
		}

		if m := h1Pattern.FindStringSubmatch(line); m != nil {
			flushChunk()
			currentH1 = m[1]
			currentH2 = ""
			lastKey = slugify(currentH1)
			continue
		}
		if m := h2Pattern.FindStringSubmatch(line); m != nil {
			flushChunk()
			currentH2 = m[1]
			if currentH1 != "" {
				lastKey = slugify(currentH1) + "/" + slugify(currentH2)
			} else {
				lastKey = slugify(currentH2)
			}
			continue
		}
		if m := h3Pattern.FindStringSubmatch(line); m != nil {
			flushChunk()
			h3 := m[1]
			switch {
			case currentH2 != "":
				lastKey = slugify(currentH1) + "/" + slugify(currentH2) + "/" + slugify(h3)
			case currentH1 != "":
				lastKey = slugify(currentH1) + "/" + slugify(h3)
			default:
				lastKey = slugify(h3)
			}
			continue
		}

		if line != "" || currentContent.Len() > 0 {
			currentContent.WriteString(line + "\n")
		}
	}

	flushChunk()
	return chunks
}

func readLines(r io.Reader) []string {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil
	}
	return strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
}

// slugify converts a header to a key-friendly format.
func slugify(s string) string {
	s = strings.ToLower(s)
	s = regexp.MustCompile(`[^a-z0-9]+`).ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	return s
}
