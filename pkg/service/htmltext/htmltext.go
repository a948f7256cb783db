// Package htmltext extracts embeddable plain text from HTML report
// artifacts and splits it into deterministic chunks.
package htmltext

import (
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/m-mizutani/goerr/v2"
)

// Extract strips script and style elements and collapses whitespace,
// returning the clean text content of an HTML document.
func Extract(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", goerr.Wrap(err, "failed to parse html")
	}

	doc.Find("script, style").Remove()
	text := doc.Text()

	return strings.Join(strings.Fields(text), " "), nil
}

// Chunk splits text into pieces of at most size characters with the given
// overlap between consecutive pieces. Boundaries prefer sentence ends, then
// word breaks, so the split is stable for identical input. Text within the
// size limit is returned as a single chunk.
func Chunk(text string, size, overlap int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if size <= 0 || len(text) <= size {
		return []string{text}
	}
	if overlap >= size {
		overlap = size / 2
	}

	var chunks []string
	start := 0
	for start < len(text) {
		end := start + size
		if end >= len(text) {
			end = len(text)
		} else {
			end = breakPoint(text, start, end)
		}

		chunk := strings.TrimSpace(text[start:end])
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end >= len(text) {
			break
		}

		next := runeStart(text, end-overlap)
		if next <= start {
			next = start + 1
			for next < len(text) && !utf8.RuneStart(text[next]) {
				next++
			}
		}
		start = next
	}

	return chunks
}

// breakPoint moves the chunk end back to a sentence or word boundary, but
// never before the midpoint of the chunk. The fallback lands on a rune
// boundary so a chunk never carries a split multi-byte character.
func breakPoint(text string, start, end int) int {
	mid := start + (end-start)/2

	if idx := strings.LastIndex(text[start:end], ". "); idx >= 0 && start+idx > mid {
		return start + idx + 1
	}
	if idx := strings.LastIndex(text[start:end], " "); idx >= 0 && start+idx > mid {
		return start + idx + 1
	}
	return runeStart(text, end)
}

func runeStart(text string, i int) int {
	for i > 0 && i < len(text) && !utf8.RuneStart(text[i]) {
		i--
	}
	return i
}
