package chunker

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"symphonia/internal/domain"
)

var (
	blankLineRe = regexp.MustCompile(`\n\s*\n`)
	spaceRunRe  = regexp.MustCompile(`\s{2,}`)
	sentenceRe  = regexp.MustCompile(`[^.!?]+[.!?]+`)
)

// ParagraphChunker merges paragraph and sentence units into overlapping
// windows of roughly targetChars characters. Chunk text is always a
// byte-exact slice of the normalized corpus, and no window boundary
// falls inside a word.
type ParagraphChunker struct {
	targetChars int
	minChars    int
	overlap     float64
}

// NewParagraphChunker validates the window parameters up front.
// overlap is a fraction of the window length in [0, 1).
func NewParagraphChunker(targetChars, minChars int, overlap float64) (*ParagraphChunker, error) {
	if targetChars < 1 {
		return nil, fmt.Errorf("%w: target chars must be >= 1, got %d", domain.ErrInvalidArgument, targetChars)
	}
	if minChars < 0 || minChars > targetChars {
		return nil, fmt.Errorf("%w: min chars %d outside [0, %d]", domain.ErrInvalidArgument, minChars, targetChars)
	}
	if overlap < 0 || overlap >= 1 {
		return nil, fmt.Errorf("%w: overlap fraction %g outside [0, 1)", domain.ErrInvalidArgument, overlap)
	}
	return &ParagraphChunker{
		targetChars: targetChars,
		minChars:    minChars,
		overlap:     overlap,
	}, nil
}

// unit is a paragraph, sentence, or fixed-width segment addressed by
// corpus byte offsets. Units never start or end inside a word.
type unit struct {
	start int
	end   int
}

// Chunk normalizes and concatenates the pages into one corpus, then
// emits overlapping windows snapped to unit boundaries. An empty
// corpus yields no chunks and no error.
func (c *ParagraphChunker) Chunk(pages []domain.PageRecord) ([]domain.Chunk, error) {
	corpus, units, pageStarts, pageNums, err := c.buildCorpus(pages)
	if err != nil {
		return nil, err
	}
	if len(units) == 0 {
		return nil, nil
	}

	var chunks []domain.Chunk
	seen := make(map[string]struct{})
	startIdx := 0
	chunkIndex := 0
	total := len(units)

	for startIdx < total {
		endIdx := startIdx
		for endIdx < total {
			if endIdx > startIdx {
				charCount := units[endIdx-1].end - units[startIdx].start
				anticipated := units[endIdx].end - units[startIdx].start
				if anticipated > c.targetChars && charCount >= c.minChars {
					break
				}
			}
			endIdx++
			if units[endIdx-1].end-units[startIdx].start >= c.targetChars {
				break
			}
		}

		first, last := units[startIdx], units[endIdx-1]
		text := corpus[first.start:last.end]
		if _, dup := seen[text]; !dup {
			seen[text] = struct{}{}
			chunks = append(chunks, domain.Chunk{
				ID:        fmt.Sprintf("sym-%06d", chunkIndex),
				Text:      text,
				PageStart: pageFor(pageStarts, pageNums, first.start),
				PageEnd:   pageFor(pageStarts, pageNums, last.end-1),
				StartChar: first.start,
				EndChar:   last.end,
			})
			chunkIndex++
		}

		if endIdx >= total {
			break
		}
		startIdx = c.advanceStart(units, startIdx, endIdx, last.end-first.start)
	}

	return chunks, nil
}

// buildCorpus joins normalized page texts with "\n\n" separators while
// recording the unit boundaries and the page start offsets used for
// citation lookups.
func (c *ParagraphChunker) buildCorpus(pages []domain.PageRecord) (string, []unit, []int, []int, error) {
	var b strings.Builder
	var units []unit
	var pageStarts, pageNums []int

	prevPage := 0
	for _, rec := range pages {
		if rec.Page < 1 {
			return "", nil, nil, nil, fmt.Errorf("%w: page number %d", domain.ErrInvalidArgument, rec.Page)
		}
		if rec.Page <= prevPage {
			return "", nil, nil, nil, fmt.Errorf("%w: pages out of order at page %d", domain.ErrInvalidArgument, rec.Page)
		}
		prevPage = rec.Page

		norm := normalizePage(rec.Text)
		if norm == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		base := b.Len()
		pageStarts = append(pageStarts, base)
		pageNums = append(pageNums, rec.Page)
		b.WriteString(norm)

		off := 0
		for _, par := range strings.Split(norm, "\n\n") {
			units = append(units, c.paragraphUnits(par, base+off)...)
			off += len(par) + 2
		}
	}

	return b.String(), units, pageStarts, pageNums, nil
}

// paragraphUnits returns the paragraph as a single unit, or, when it
// exceeds the target on its own, its sentence segments. A blob with no
// sentence boundaries at all degrades to fixed-width windows snapped
// to whitespace.
func (c *ParagraphChunker) paragraphUnits(par string, start int) []unit {
	if len(par) <= c.targetChars {
		return []unit{{start: start, end: start + len(par)}}
	}

	locs := sentenceRe.FindAllStringIndex(par, -1)
	if len(locs) == 0 {
		return fixedWidthUnits(par, start, c.targetChars)
	}

	var units []unit
	last := 0
	for _, loc := range locs {
		seg := par[loc[0]:loc[1]]
		trimmed := strings.TrimLeft(seg, " ")
		s := loc[0] + (len(seg) - len(trimmed))
		units = append(units, unit{start: start + s, end: start + loc[1]})
		last = loc[1]
	}
	if tail := strings.TrimSpace(par[last:]); tail != "" {
		s := last + strings.Index(par[last:], tail)
		units = append(units, unit{start: start + s, end: start + s + len(tail)})
	}
	return units
}

// fixedWidthUnits is the last-resort segmentation for text with no
// recognizable sentence boundaries. Cuts land on spaces whenever the
// segment contains one.
func fixedWidthUnits(text string, start, width int) []unit {
	var units []unit
	pos := 0
	for pos < len(text) {
		end := pos + width
		if end >= len(text) {
			end = len(text)
		} else if cut := strings.LastIndexByte(text[pos:end], ' '); cut > 0 {
			end = pos + cut
		}
		segEnd := end
		for segEnd > pos && text[segEnd-1] == ' ' {
			segEnd--
		}
		if segEnd > pos {
			units = append(units, unit{start: start + pos, end: start + segEnd})
		}
		pos = end
		for pos < len(text) && text[pos] == ' ' {
			pos++
		}
	}
	return units
}

// advanceStart moves the window start back by the configured overlap,
// snapped forward to the first unit boundary past the overlap limit.
// Guarantees forward progress by at least one unit.
func (c *ParagraphChunker) advanceStart(units []unit, startIdx, endIdx, windowLen int) int {
	overlapChars := int(float64(windowLen) * c.overlap)
	if overlapChars <= 0 {
		return endIdx
	}
	limit := units[endIdx-1].end - overlapChars
	next := startIdx
	for next < endIdx && units[next].end <= limit {
		next++
	}
	if next > startIdx {
		return next
	}
	return endIdx
}

// pageFor finds the page owning a corpus offset: the greatest recorded
// page start that is <= offset.
func pageFor(pageStarts, pageNums []int, offset int) int {
	idx := sort.SearchInts(pageStarts, offset+1) - 1
	if idx < 0 {
		idx = 0
	}
	return pageNums[idx]
}

// normalizePage folds line endings, joins the lines of each paragraph
// with single spaces, and separates paragraphs with exactly "\n\n", so
// that chunk texts are stable byte slices of the corpus.
func normalizePage(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var paragraphs []string
	for _, block := range blankLineRe.Split(text, -1) {
		var lines []string
		for _, line := range strings.Split(block, "\n") {
			line = strings.TrimSpace(line)
			if line != "" {
				lines = append(lines, line)
			}
		}
		if len(lines) == 0 {
			continue
		}
		paragraphs = append(paragraphs, spaceRunRe.ReplaceAllString(strings.Join(lines, " "), " "))
	}
	return strings.Join(paragraphs, "\n\n")
}
