package chunking

import (
	"bytes"
	"regexp"
	"sort"
	"strings"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"go.abhg.dev/goldmark/toc"
)

// section is a heading boundary in the source text.
type section struct {
	Offset int // byte offset of the heading line
	Title  string
}

// Upper-case title lines are how brochures and spec sheets mark sections once the PDF has
// been flattened to text ("ENGINE & TRANSMISSION", "DIMENSIONS:").
var capsHeadingPattern = regexp.MustCompile(`(?m)^[ \t]*([A-Z][A-Z0-9&/,\- ]{3,60}):?[ \t]*$`)

// findSections returns heading boundaries sorted by offset. Markdown headings come from
// the goldmark AST (page markers and the OCR supplement heading are markdown); the rest
// come from upper-case title lines.
func (c *Chunker) findSections(source []byte) []section {
	doc := c.parser.Parser().Parse(text.NewReader(source))

	var out []section
	tree, err := toc.Inspect(doc, source,
		toc.MinDepth(1),
		toc.MaxDepth(3),
		toc.Compact(true),
	)
	if err == nil {
		c.collectSections(doc, source, tree.Items, &out)
	}

	for _, loc := range capsHeadingPattern.FindAllSubmatchIndex(source, -1) {
		title := strings.TrimSpace(string(source[loc[2]:loc[3]]))
		if len(strings.Fields(title)) == 0 || !hasLetters(title, 3) {
			continue
		}
		out = append(out, section{Offset: loc[0], Title: title})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Offset < out[j].Offset })
	deduped := out[:0]
	for _, s := range out {
		if n := len(deduped); n > 0 && deduped[n-1].Offset == s.Offset {
			continue
		}
		deduped = append(deduped, s)
	}
	return deduped
}

// collectSections walks TOC items depth-first, locating each heading in the AST.
func (c *Chunker) collectSections(doc ast.Node, source []byte, items toc.Items, out *[]section) {
	for _, item := range items {
		if node := findHeaderByID(doc, string(item.ID)); node != nil && node.Lines().Len() > 0 {
			*out = append(*out, section{
				Offset: lineStart(source, node.Lines().At(0).Start),
				Title:  string(item.Title),
			})
		}
		if len(item.Items) > 0 {
			c.collectSections(doc, source, item.Items, out)
		}
	}
}

// findHeaderByID locates a heading node by its auto-generated ID.
func findHeaderByID(node ast.Node, id string) ast.Node {
	var found ast.Node
	ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering && n.Kind() == ast.KindHeading {
			headingID, ok := n.AttributeString("id")
			if ok {
				if b, isBytes := headingID.([]byte); isBytes && string(b) == id {
					found = n
					return ast.WalkStop, nil
				}
			}
		}
		return ast.WalkContinue, nil
	})
	return found
}

func lineStart(source []byte, pos int) int {
	if pos > len(source) {
		pos = len(source)
	}
	return bytes.LastIndexByte(source[:pos], '\n') + 1
}

func hasLetters(s string, n int) bool {
	count := 0
	for _, r := range s {
		if r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z' {
			count++
			if count >= n {
				return true
			}
		}
	}
	return false
}

// sectionAt returns the title of the section a chunk spanning [start, end) belongs to.
func sectionAt(sections []section, start, end int) string {
	title := ""
	for _, s := range sections {
		if s.Offset > start {
			if title == "" && s.Offset < end {
				return s.Title
			}
			break
		}
		title = s.Title
	}
	return title
}
