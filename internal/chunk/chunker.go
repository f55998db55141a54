// Package chunk splits raw document text into overlapping, token-bounded
// passages. Chunk boundaries never split a sentence; overlap between
// consecutive chunks is seeded from the tail of the previous chunk.
package chunk

import (
	"regexp"
	"strings"
)

// Default chunking parameters, expressed in whitespace-delimited tokens.
const (
	// DefaultChunkSize is the target token count per chunk.
	DefaultChunkSize = 450

	// DefaultChunkOverlap is the token budget for overlap carried from one
	// chunk into the next.
	DefaultChunkOverlap = 80
)

// Piece is a single emitted chunk: its joined text and token count.
type Piece struct {
	Content    string
	TokenCount int
}

// Options configures the chunker.
type Options struct {
	// ChunkSize is the target chunk size in tokens (default: DefaultChunkSize).
	ChunkSize int

	// ChunkOverlap is the overlap budget in tokens (default: DefaultChunkOverlap).
	// Zero means consecutive chunks share no content.
	ChunkOverlap int
}

// Chunker accumulates sentences into token-bounded chunks.
type Chunker struct {
	options Options
}

var (
	// Collapses runs of three or more newlines to a paragraph break.
	blankRunPattern = regexp.MustCompile(`\n{3,}`)

	// A sentence ends at '.', '!' or '?' followed by whitespace.
	sentenceEndPattern = regexp.MustCompile(`([.!?])\s+`)
)

// New creates a chunker with default options.
func New() *Chunker {
	return NewWithOptions(Options{})
}

// NewWithOptions creates a chunker with custom options.
func NewWithOptions(opts Options) *Chunker {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.ChunkOverlap < 0 {
		opts.ChunkOverlap = DefaultChunkOverlap
	}
	return &Chunker{options: opts}
}

// CleanText normalizes line endings and collapses excessive blank lines.
func CleanText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = blankRunPattern.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// SplitParagraphs splits cleaned text into non-empty paragraphs on
// blank-line boundaries.
func SplitParagraphs(text string) []string {
	parts := strings.Split(text, "\n\n")
	paragraphs := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			paragraphs = append(paragraphs, trimmed)
		}
	}
	return paragraphs
}

// SplitSentences splits a paragraph into sentences using terminator
// punctuation heuristics. A lone fragment with no terminator is returned
// as one sentence.
func SplitSentences(paragraph string) []string {
	// Insert a split marker after each terminator+whitespace boundary,
	// keeping the terminator attached to its sentence.
	marked := sentenceEndPattern.ReplaceAllString(paragraph, "$1\x00")
	parts := strings.Split(marked, "\x00")
	sentences := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			sentences = append(sentences, trimmed)
		}
	}
	return sentences
}

// CountTokens returns the number of whitespace-delimited tokens in s.
func CountTokens(s string) int {
	return len(strings.Fields(s))
}

// Chunk splits text into an ordered sequence of pieces covering the whole
// input. Empty input yields no pieces. A single sentence larger than the
// target size is emitted whole, never truncated.
func (c *Chunker) Chunk(text string) []Piece {
	paragraphs := SplitParagraphs(CleanText(text))

	var (
		pieces        []Piece
		current       []string
		currentTokens int
	)

	// closeChunk emits the accumulated sentences as one piece, then seeds
	// the next chunk with a suffix of the emitted sentences bounded by the
	// overlap budget.
	closeChunk := func() {
		if len(current) == 0 {
			return
		}
		content := strings.TrimSpace(strings.Join(current, " "))
		pieces = append(pieces, Piece{Content: content, TokenCount: currentTokens})

		if c.options.ChunkOverlap > 0 {
			overlapTokens := 0
			var overlap []string
			sentences := SplitSentences(content)
			for i := len(sentences) - 1; i >= 0; i-- {
				tokens := CountTokens(sentences[i])
				if overlapTokens+tokens > c.options.ChunkOverlap {
					break
				}
				overlap = append([]string{sentences[i]}, overlap...)
				overlapTokens += tokens
			}
			current = overlap
			currentTokens = overlapTokens
		} else {
			current = nil
			currentTokens = 0
		}
	}

	for _, para := range paragraphs {
		for _, sentence := range SplitSentences(para) {
			tokens := CountTokens(sentence)
			if currentTokens+tokens > c.options.ChunkSize && len(current) > 0 {
				closeChunk()
			}
			current = append(current, sentence)
			currentTokens += tokens
		}
		// Commit at paragraph boundaries once the accumulated block has
		// reached the target size, so one oversized paragraph cannot keep
		// growing into the next paragraph's first sentence.
		if currentTokens >= c.options.ChunkSize {
			closeChunk()
		}
	}

	if len(current) > 0 {
		closeChunk()
	}

	return pieces
}
