// ABOUTME: Corpus loading and chunking for the retrieval index
// ABOUTME: Reads .txt/.md documents, flattens markdown, splits into overlapping chunks

package retrieval

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// document is one source file from the corpus directory.
type document struct {
	Name    string
	Content string
}

// chunk is a piece of a document sized for embedding.
type chunk struct {
	Content string
	Source  string // document name for provenance
	vector  []float32
	norm    float64
}

// loadCorpus reads all .txt and .md files from dir. Markdown is flattened to
// plain text before chunking so formatting doesn't pollute embeddings.
func loadCorpus(dir string) ([]document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: reading corpus dir: %v", ErrIndexUnavailable, err)
	}

	var docs []document
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".txt" && ext != ".md" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("%w: reading %s: %v", ErrIndexUnavailable, entry.Name(), err)
		}
		content := string(data)
		if ext == ".md" {
			content = markdownToText(data)
		}
		content = strings.TrimSpace(content)
		if content == "" {
			continue
		}
		docs = append(docs, document{Name: entry.Name(), Content: content})
	}

	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: no documents in %s", ErrIndexUnavailable, dir)
	}
	return docs, nil
}

// markdownToText extracts the plain text content of a markdown document by
// walking the goldmark AST and collecting text segments.
func markdownToText(src []byte) string {
	md := goldmark.New()
	root := md.Parser().Parse(text.NewReader(src))

	var sb strings.Builder
	_ = ast.Walk(root, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if node.Type() == ast.TypeBlock && sb.Len() > 0 {
				sb.WriteString("\n")
			}
			return ast.WalkContinue, nil
		}
		if textNode, ok := node.(*ast.Text); ok {
			sb.Write(textNode.Segment.Value(src))
			if textNode.SoftLineBreak() || textNode.HardLineBreak() {
				sb.WriteString(" ")
			}
		}
		return ast.WalkContinue, nil
	})
	return sb.String()
}

// splitChunks splits a document into word-aligned chunks of at most size
// characters, each starting with roughly overlap characters of the previous
// chunk's tail for context continuity.
func splitChunks(doc document, size, overlap int) []chunk {
	words := strings.Fields(doc.Content)
	if len(words) == 0 {
		return nil
	}

	var chunks []chunk
	var current []string
	currentLen := 0
	fresh := false // current holds words not yet emitted in any chunk

	flush := func() {
		chunks = append(chunks, chunk{
			Content: strings.Join(current, " "),
			Source:  doc.Name,
		})
		// Carry the tail forward as overlap for the next chunk.
		var tail []string
		tailLen := 0
		for i := len(current) - 1; i >= 0 && tailLen < overlap; i-- {
			tail = append([]string{current[i]}, tail...)
			tailLen += len(current[i]) + 1
		}
		current = tail
		currentLen = tailLen
		fresh = false
	}

	for _, word := range words {
		if fresh && currentLen+len(word)+1 > size {
			flush()
		}
		current = append(current, word)
		currentLen += len(word) + 1
		fresh = true
	}
	if fresh {
		flush()
	}
	return chunks
}
