package chunking

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kirillkom/knowledge-ingest/internal/core/domain"
)

// Splitter cuts text into overlapping windows with stable rune offsets.
// Every window satisfies 0 <= start < end and end-start <= maxChars, and
// each window starts exactly overlap runes before the previous one ends, so
// stripping the overlap reconstructs the original text.
type Splitter struct {
	maxChars int
	overlap  int
}

// NewSplitter validates the window geometry up front. An overlap at or above
// the window size can never advance and is a configuration error, not a
// per-document one.
func NewSplitter(maxChars, overlap int) (*Splitter, error) {
	if maxChars <= 0 {
		return nil, domain.WrapError(domain.ErrChunkConfig, "new splitter",
			fmt.Errorf("max chars must be positive, got %d", maxChars))
	}
	if overlap < 0 {
		return nil, domain.WrapError(domain.ErrChunkConfig, "new splitter",
			fmt.Errorf("overlap must not be negative, got %d", overlap))
	}
	if overlap >= maxChars {
		return nil, domain.WrapError(domain.ErrChunkConfig, "new splitter",
			fmt.Errorf("overlap %d must be smaller than max chars %d", overlap, maxChars))
	}
	return &Splitter{maxChars: maxChars, overlap: overlap}, nil
}

// Split is a pure function of its input. Empty text yields zero windows;
// the caller treats that as "no content extracted", not as an error.
func (s *Splitter) Split(text string) ([]domain.ChunkWindow, error) {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil, nil
	}

	step := s.maxChars - s.overlap
	out := make([]domain.ChunkWindow, 0, len(runes)/step+1)
	for start := 0; start < len(runes); start += step {
		end := start + s.maxChars
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, domain.ChunkWindow{
			Text:      string(runes[start:end]),
			CharStart: start,
			CharEnd:   end,
		})
		if end == len(runes) {
			break
		}
	}
	return out, nil
}

// SplitSegments windows pre-segmented input (for the large-file path, where
// extraction already yields paragraphs). Offsets refer to the segments joined
// with a single newline. Windows prefer to end on a segment boundary when one
// falls inside the allowed range, and carry the same coverage and overlap
// guarantees as Split.
func (s *Splitter) SplitSegments(segments []string) ([]domain.ChunkWindow, error) {
	joined := strings.Join(segments, "\n")
	runes := []rune(joined)
	if len(runes) == 0 {
		return nil, nil
	}

	boundaries := segmentBoundaries(segments)
	step := s.maxChars - s.overlap

	var out []domain.ChunkWindow
	start := 0
	for start < len(runes) {
		end := start + s.maxChars
		if end >= len(runes) {
			end = len(runes)
		} else {
			// A boundary is usable only if the next window still starts past
			// the current one; otherwise the sequence would stall or move
			// backwards when the overlap is large relative to the window.
			floor := start + step
			if progress := start + s.overlap + 1; floor < progress {
				floor = progress
			}
			if b, ok := lastBoundaryIn(boundaries, floor, end); ok {
				end = b
			}
		}
		out = append(out, domain.ChunkWindow{
			Text:      string(runes[start:end]),
			CharStart: start,
			CharEnd:   end,
		})
		if end == len(runes) {
			break
		}
		start = end - s.overlap
	}
	return out, nil
}

// Reassemble inverts Split: it concatenates windows with the per-pair overlap
// removed. Used by reindex when the raw blob is gone and the original text
// must be rebuilt from chunk rows.
func Reassemble(windows []domain.ChunkWindow) (string, error) {
	var b strings.Builder
	prevEnd := 0
	for i, w := range windows {
		if w.CharStart < 0 || w.CharEnd <= w.CharStart {
			return "", fmt.Errorf("window %d has invalid offsets [%d,%d)", i, w.CharStart, w.CharEnd)
		}
		if w.CharStart > prevEnd {
			return "", errors.New("windows leave a coverage gap")
		}
		runes := []rune(w.Text)
		keepFrom := prevEnd - w.CharStart
		if keepFrom > len(runes) {
			keepFrom = len(runes)
		}
		b.WriteString(string(runes[keepFrom:]))
		prevEnd = w.CharEnd
	}
	return b.String(), nil
}

// segmentBoundaries returns rune offsets just past each segment in the
// joined text, separator included.
func segmentBoundaries(segments []string) []int {
	out := make([]int, 0, len(segments))
	offset := 0
	for i, seg := range segments {
		offset += len([]rune(seg))
		if i < len(segments)-1 {
			offset++ // the joining newline belongs to the leading segment
		}
		out = append(out, offset)
	}
	return out
}

func lastBoundaryIn(boundaries []int, lo, hi int) (int, bool) {
	best, found := 0, false
	for _, b := range boundaries {
		if b >= lo && b <= hi {
			best, found = b, true
		}
		if b > hi {
			break
		}
	}
	return best, found
}
