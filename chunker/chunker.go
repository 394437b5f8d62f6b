package chunker

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// Encoding is the byte-pair encoding used for all token counts. Chunk counts
// must be reproducible across runs and hosts, so the encoding is fixed rather
// than derived from the embedding model.
const Encoding = "cl100k_base"

// separators are tried coarsest-first: paragraph break, line break, sentence
// boundary, word boundary, and finally a hard token split.
var separators = []string{"\n\n", "\n", ". ", " ", ""}

// Chunk is one produced span of the input text.
type Chunk struct {
	Index      int    `json:"chunk_index"`
	Text       string `json:"text"`
	TokenCount int    `json:"token_count"`
}

// Chunker splits text into token-bounded chunks with a word-aligned overlap
// carried between consecutive chunks. Same input always yields the same
// chunk sequence.
type Chunker struct {
	size    int
	overlap int
	enc     *tiktoken.Tiktoken
}

// New returns a chunker producing chunks of at most size tokens with the
// given overlap. Requires 0 <= overlap < size.
func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap must be in [0, size), got %d with size %d", overlap, size)
	}

	enc, err := tiktoken.GetEncoding(Encoding)
	if err != nil {
		return nil, fmt.Errorf("load %s encoding: %w", Encoding, err)
	}

	return &Chunker{size: size, overlap: overlap, enc: enc}, nil
}

// CountTokens returns the number of BPE tokens in text.
func (c *Chunker) CountTokens(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// Split chunks text. Whitespace-only input yields no chunks.
func (c *Chunker) Split(text string) []Chunk {
	segments := c.splitRecursive(text, separators)
	merged := c.merge(segments)

	chunks := make([]Chunk, 0, len(merged))
	prevBody := ""
	for _, seg := range merged {
		body := strings.TrimSpace(seg)
		if body == "" {
			continue
		}

		chunkText := body
		if len(chunks) > 0 && c.overlap > 0 {
			if tail := c.overlapTail(prevBody); tail != "" {
				chunkText = tail + " " + body
			}
		}

		chunks = append(chunks, Chunk{
			Index:      len(chunks),
			Text:       chunkText,
			TokenCount: c.CountTokens(chunkText),
		})
		// Overlap is always taken from the chunk's own body so it never
		// compounds across chunks.
		prevBody = body
	}

	return chunks
}

// splitRecursive breaks text into segments each fitting within the chunk
// size, descending to finer separators only where a segment is oversized.
func (c *Chunker) splitRecursive(text string, seps []string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if c.CountTokens(text) <= c.size {
		return []string{text}
	}

	sep := seps[0]
	if sep == "" {
		return c.splitByTokens(text)
	}

	parts := splitKeepSeparator(text, sep)
	if len(parts) == 1 {
		return c.splitRecursive(text, seps[1:])
	}

	var out []string
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		if c.CountTokens(part) <= c.size {
			out = append(out, part)
		} else {
			out = append(out, c.splitRecursive(part, seps[1:])...)
		}
	}
	return out
}

// splitByTokens is the last resort for text with no usable boundary: a hard
// split on token windows.
func (c *Chunker) splitByTokens(text string) []string {
	tokens := c.enc.Encode(text, nil, nil)
	var out []string
	for start := 0; start < len(tokens); start += c.size {
		end := start + c.size
		if end > len(tokens) {
			end = len(tokens)
		}
		out = append(out, c.enc.Decode(tokens[start:end]))
	}
	return out
}

// merge greedily packs consecutive segments into chunks up to the size limit.
func (c *Chunker) merge(segments []string) []string {
	var out []string
	cur := ""
	for _, seg := range segments {
		if cur == "" {
			cur = seg
			continue
		}
		if c.CountTokens(cur+seg) <= c.size {
			cur += seg
			continue
		}
		out = append(out, cur)
		cur = seg
	}
	if cur != "" {
		out = append(out, cur)
	}
	return out
}

// overlapTail returns the trailing words of text whose combined token count
// stays within the configured overlap. Truncation happens at word
// boundaries, never inside a word.
func (c *Chunker) overlapTail(text string) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}

	tail := ""
	for i := len(words) - 1; i >= 0; i-- {
		candidate := words[i]
		if tail != "" {
			candidate = words[i] + " " + tail
		}
		if c.CountTokens(candidate) > c.overlap {
			break
		}
		tail = candidate
	}
	return tail
}

// splitKeepSeparator splits text on sep, re-attaching the separator to the
// left-hand piece so no bytes are lost.
func splitKeepSeparator(text, sep string) []string {
	parts := strings.Split(text, sep)
	if len(parts) == 1 {
		return parts
	}
	out := make([]string, 0, len(parts))
	for i, p := range parts {
		if i < len(parts)-1 {
			p += sep
		}
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
