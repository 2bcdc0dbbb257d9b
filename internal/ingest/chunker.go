// Package ingest implements the Ingest Pipeline: crawl output lands here
// as a Document, gets re-chunked when its content changed, re-embedded,
// upserted into both the Document Store and the Vector Index, and an
// alias-discovery pass is scheduled.
package ingest

import (
	"strings"

	"github.com/contosowiki/sage/internal/store"
	"github.com/contosowiki/sage/internal/types"
)

const (
	defaultChunkChars   = 1200
	defaultChunkOverlap = 150
)

// Chunk splits a document's text into ordered, section-aware chunks.
// Headings (markdown `#`-prefixed
// lines, or short ALL-CAPS/Title-Case lines followed by content) are
// tracked as the running section path; paragraphs are packed into chunks
// up to chunkChars, with chunkOverlap characters repeated at the start of
// the next chunk so a fact split across a boundary still has context on
// both sides.
func Chunk(documentID string, text string, chunkChars, chunkOverlap int) []types.Chunk {
	if chunkChars <= 0 {
		chunkChars = defaultChunkChars
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkChars {
		chunkOverlap = defaultChunkOverlap
	}

	paragraphs := splitParagraphs(text)
	var chunks []types.Chunk
	var sectionPath []string
	var buf strings.Builder
	var bufSection []string
	ordinal := 0
	hasNew := false // buf holds paragraph content beyond the carried overlap tail

	flush := func() {
		if !hasNew {
			return
		}
		content := strings.TrimSpace(buf.String())
		if content == "" {
			return
		}
		chunks = append(chunks, types.Chunk{
			ID:          store.ChunkID(documentID, ordinal),
			DocumentID:  documentID,
			Ordinal:     ordinal,
			Text:        content,
			SectionPath: append([]string(nil), bufSection...),
			TokenCount:  approxTokenCount(content),
		})
		ordinal++
		overlapTail := tailChars(content, chunkOverlap)
		buf.Reset()
		buf.WriteString(overlapTail)
		hasNew = false
	}

	for _, p := range paragraphs {
		if heading, ok := headingText(p); ok {
			// A new section always starts a new chunk, so a chunk's
			// section_path names the one section its text came from.
			flush()
			sectionPath = pushSection(sectionPath, heading)
			continue
		}
		if buf.Len()+len(p) > chunkChars && buf.Len() > 0 {
			flush()
		}
		if buf.Len() > 0 {
			buf.WriteString("\n\n")
		}
		buf.WriteString(p)
		hasNew = true
		bufSection = sectionPath
	}
	flush()

	return chunks
}

func splitParagraphs(text string) []string {
	raw := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n")
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// headingText reports whether paragraph p is a section heading: a
// markdown `#` line, or a single short line ending without terminal
// punctuation.
func headingText(p string) (string, bool) {
	if strings.Contains(p, "\n") {
		return "", false
	}
	if strings.HasPrefix(p, "#") {
		return strings.TrimSpace(strings.TrimLeft(p, "# ")), true
	}
	trimmed := strings.TrimSpace(p)
	if len(trimmed) == 0 || len(trimmed) > 80 {
		return "", false
	}
	if strings.HasSuffix(trimmed, ".") || strings.HasSuffix(trimmed, ",") {
		return "", false
	}
	words := strings.Fields(trimmed)
	if len(words) == 0 || len(words) > 8 {
		return "", false
	}
	// Only Title-Case or ALL-CAPS lines count; a short lowercase line is
	// just a short paragraph.
	for _, w := range words {
		r := rune(w[0])
		if r >= 'a' && r <= 'z' {
			return "", false
		}
	}
	return trimmed, true
}

func pushSection(path []string, heading string) []string {
	// Every heading replaces the whole path: this splitter doesn't track
	// markdown depth, so the path is one level deep, which is enough for
	// section provenance without a full outline parser.
	return []string{heading}
}

func tailChars(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return ""
	}
	return s[len(s)-n:]
}

func approxTokenCount(s string) int {
	return len(strings.Fields(s))
}
