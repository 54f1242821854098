package chunking

import (
	"strings"
	"unicode/utf8"
)

// span is a byte range [lo, hi) of the source holding n runes.
type span struct {
	lo, hi int
	n      int
}

// Separator levels, coarsest first. levelSection splits at heading boundaries and
// levelRune splits between characters.
const (
	levelSection = iota
	levelParagraph
	levelLine
	levelSentence
	levelWord
	levelRune
)

var levelSeparators = map[int]string{
	levelParagraph: "\n\n",
	levelLine:      "\n",
	levelSentence:  ". ",
	levelWord:      " ",
}

// splitter is a recursive character splitter over byte offsets of one source text.
// Separators stay attached to the end of the piece they terminate, so consecutive
// pieces are contiguous and chunk spans cover the source.
type splitter struct {
	src      string
	size     int
	overlap  int
	sections []int
	markers  markers
}

func (s *splitter) runes(lo, hi int) int {
	return utf8.RuneCountInString(s.src[lo:hi])
}

func (s *splitter) split() []span {
	if len(s.src) == 0 {
		return nil
	}
	return s.splitRange(0, len(s.src), levelSection)
}

func (s *splitter) splitRange(lo, hi, level int) []span {
	// Coarsest separator present in this range.
	var cuts []int
	for ; level <= levelRune; level++ {
		cuts = s.cuts(lo, hi, level)
		if len(cuts) > 0 || level == levelRune {
			break
		}
	}

	var pieces []span
	prev := lo
	for _, c := range append(cuts, hi) {
		if c > prev {
			pieces = append(pieces, span{lo: prev, hi: c, n: s.runes(prev, c)})
			prev = c
		}
	}

	var out, good []span
	for _, p := range pieces {
		if p.n <= s.size {
			good = append(good, p)
			continue
		}
		if len(good) > 0 {
			out = append(out, s.merge(good)...)
			good = nil
		}
		if level >= levelRune {
			// A protected phrase longer than a chunk; cut it by size.
			out = append(out, s.hardSplit(p)...)
			continue
		}
		out = append(out, s.splitRange(p.lo, p.hi, level+1)...)
	}
	if len(good) > 0 {
		out = append(out, s.merge(good)...)
	}
	return out
}

// cuts returns the positions strictly inside (lo, hi) where level may split.
func (s *splitter) cuts(lo, hi, level int) []int {
	var out []int
	switch level {
	case levelSection:
		for _, off := range s.sections {
			if off > lo && off < hi {
				out = append(out, off)
			}
		}
	case levelRune:
		for i := lo; i < hi; {
			_, w := utf8.DecodeRuneInString(s.src[i:])
			i += w
			if i >= hi {
				break
			}
			if m, ok := s.markers.containing(i); ok && s.runes(m.lo, m.hi) <= s.size {
				i = m.hi
				if i < hi {
					out = append(out, i)
				}
				continue
			}
			out = append(out, i)
		}
	default:
		sep := levelSeparators[level]
		for pos := lo; pos < hi; {
			idx := strings.Index(s.src[pos:hi], sep)
			if idx < 0 {
				break
			}
			cut := pos + idx + len(sep)
			if cut < hi && !s.markers.inside(cut) {
				out = append(out, cut)
			}
			pos = cut
		}
	}
	return out
}

// merge packs contiguous pieces into spans of at most size runes. Each new span starts
// with the trailing pieces of the previous one, up to overlap runes.
func (s *splitter) merge(pieces []span) []span {
	var (
		out   []span
		cur   []span
		total int
	)
	for _, p := range pieces {
		if total+p.n > s.size && len(cur) > 0 {
			out = append(out, span{lo: cur[0].lo, hi: cur[len(cur)-1].hi, n: total})
			for len(cur) > 0 && (total > s.overlap || total+p.n > s.size) {
				total -= cur[0].n
				cur = cur[1:]
			}
		}
		cur = append(cur, p)
		total += p.n
	}
	if len(cur) > 0 {
		out = append(out, span{lo: cur[0].lo, hi: cur[len(cur)-1].hi, n: total})
	}
	return out
}

// hardSplit cuts p into windows of size runes with no regard for separators.
func (s *splitter) hardSplit(p span) []span {
	var out []span
	lo := p.lo
	for lo < p.hi {
		hi, n := lo, 0
		for hi < p.hi && n < s.size {
			_, w := utf8.DecodeRuneInString(s.src[hi:])
			hi += w
			n++
		}
		out = append(out, span{lo: lo, hi: hi, n: n})
		lo = hi
	}
	return out
}

// windowSplit is the fallback splitter: fixed windows of size runes, each cut back to the
// coarsest separator found in its second half, advancing by size-overlap.
func windowSplit(src string, size, overlap int) []span {
	runes := []rune(src)
	offsets := make([]int, len(runes)+1)
	for i, pos := 0, 0; i < len(runes); i++ {
		offsets[i] = pos
		pos += utf8.RuneLen(runes[i])
		offsets[i+1] = pos
	}

	var out []span
	for start := 0; start < len(runes); {
		end := min(start+size, len(runes))
		if end < len(runes) {
			window := string(runes[start:end])
			for _, sep := range []string{"\n\n", "\n", ". ", " "} {
				idx := strings.LastIndex(window, sep)
				if idx < 0 {
					continue
				}
				cut := start + utf8.RuneCountInString(window[:idx+len(sep)])
				if cut-start > size/2 {
					end = cut
					break
				}
			}
		}
		out = append(out, span{lo: offsets[start], hi: offsets[end], n: end - start})
		if end == len(runes) {
			break
		}
		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return out
}
