// Package render displays the documents returned by the generation
// collaborator. The collaborator answers with HTML tables or documents,
// sometimes wrapped in a light Markdown dialect; Blocks tokenizes that
// dialect and HTML turns the blocks into markup.
package render

import (
	"iter"
	"regexp"
	"strings"

	"github.com/a-h/templ"
)

// Kind is the kind of a block.
type Kind int

const (
	KindDocument  Kind = iota // whole input is an HTML document or table, passed through
	KindTable                 // embedded <table>...</table> run, passed through
	KindCode                  // fenced code block
	KindHeading               // "# ", "## " or "### " line
	KindPipeRow               // Markdown table row, shown as is
	KindBlank                 // empty line
	KindParagraph             // any other line
)

func (k Kind) String() string {
	switch k {
	case KindDocument:
		return "document"
	case KindTable:
		return "table"
	case KindCode:
		return "code"
	case KindHeading:
		return "heading"
	case KindPipeRow:
		return "pipe_row"
	case KindBlank:
		return "blank"
	case KindParagraph:
		return "paragraph"
	}
	return "unknown"
}

// Span is a run of paragraph text.
type Span struct {
	Text string
	Bold bool
}

// Block is one display unit.
type Block struct {
	Kind  Kind
	Text  string // raw text; empty for paragraphs
	Lang  string // code blocks only
	Level int    // headings only, 1 to 3
	Spans []Span // paragraphs only
}

// IsDocument reports whether content is a complete HTML document or a
// single HTML table, which are displayed without tokenizing.
func IsDocument(content string) bool {
	t := strings.TrimSpace(content)
	lower := strings.ToLower(t)
	if strings.HasPrefix(lower, "<!doctype html") || strings.HasPrefix(lower, "<html") {
		return true
	}
	return strings.HasPrefix(t, "<table") && strings.HasSuffix(t, "</table>")
}

// Blocks returns the blocks of content. The sequence is lazy and can be
// ranged over any number of times; each range scans content afresh.
func Blocks(content string) iter.Seq[Block] {
	return func(yield func(Block) bool) {
		if strings.TrimSpace(content) == "" {
			return
		}
		if IsDocument(content) {
			yield(Block{Kind: KindDocument, Text: content})
			return
		}
		t := tokenizer{rest: content}
		for {
			b, ok := t.next()
			if !ok || !yield(b) {
				return
			}
		}
	}
}

type tokenizer struct {
	rest string
	eof  bool
}

func (t *tokenizer) line() (string, bool) {
	if t.eof {
		return "", false
	}
	line, rest, found := strings.Cut(t.rest, "\n")
	t.rest = rest
	t.eof = !found
	return strings.TrimSuffix(line, "\r"), true
}

func (t *tokenizer) next() (Block, bool) {
	line, ok := t.line()
	if !ok {
		return Block{}, false
	}
	trimmed := strings.TrimSpace(line)

	switch {
	case strings.HasPrefix(trimmed, "<table"):
		// An unterminated table runs to the end of input.
		buf := []string{line}
		for !strings.HasSuffix(trimmed, "</table>") {
			l, ok := t.line()
			if !ok {
				break
			}
			buf = append(buf, l)
			trimmed = strings.TrimSpace(l)
		}
		return Block{Kind: KindTable, Text: strings.Join(buf, "\n")}, true

	case strings.HasPrefix(trimmed, "```"):
		lang := strings.TrimSpace(strings.Trim(trimmed, "`"))
		var body []string
		for {
			l, ok := t.line()
			if !ok || strings.HasPrefix(strings.TrimSpace(l), "```") {
				break
			}
			body = append(body, l)
		}
		return Block{Kind: KindCode, Lang: lang, Text: strings.Join(body, "\n")}, true

	case strings.HasPrefix(line, "# "):
		return Block{Kind: KindHeading, Level: 1, Text: line[2:]}, true
	case strings.HasPrefix(line, "## "):
		return Block{Kind: KindHeading, Level: 2, Text: line[3:]}, true
	case strings.HasPrefix(line, "### "):
		return Block{Kind: KindHeading, Level: 3, Text: line[4:]}, true

	case strings.HasPrefix(trimmed, "|"):
		return Block{Kind: KindPipeRow, Text: line}, true

	case trimmed == "":
		return Block{Kind: KindBlank}, true
	}
	return Block{Kind: KindParagraph, Spans: Spans(line)}, true
}

var boldRegex = regexp.MustCompile(`\*\*(.*?)\*\*`)

// Spans splits a line into plain and **bold** runs. Unpaired markers are
// kept as text.
func Spans(line string) []Span {
	var out []Span
	last := 0
	for _, m := range boldRegex.FindAllStringSubmatchIndex(line, -1) {
		if m[0] > last {
			out = append(out, Span{Text: line[last:m[0]]})
		}
		out = append(out, Span{Text: line[m[2]:m[3]], Bold: true})
		last = m[1]
	}
	if last < len(line) {
		out = append(out, Span{Text: line[last:]})
	}
	return out
}

// HTML renders content as markup. Text is escaped; documents and tables
// are emitted unchanged.
func HTML(content string) string {
	var b strings.Builder
	for blk := range Blocks(content) {
		writeBlock(&b, blk)
	}
	return b.String()
}

// Component renders content inside a templ page.
func Component(content string) templ.Component {
	return templ.Raw(HTML(content))
}

var headingTags = [...]string{"", "h1", "h2", "h3"}

func writeBlock(b *strings.Builder, blk Block) {
	esc := templ.EscapeString[string]
	switch blk.Kind {
	case KindDocument:
		b.WriteString(`<div class="doc">`)
		b.WriteString(blk.Text)
		b.WriteString("</div>\n")
	case KindTable:
		b.WriteString(`<div class="table-wrap">`)
		b.WriteString(blk.Text)
		b.WriteString("</div>\n")
	case KindCode:
		lang := blk.Lang
		if lang == "" {
			lang = "code"
		}
		b.WriteString(`<div class="code"><div class="code-lang">` + esc(lang) + `</div><pre>`)
		b.WriteString(esc(blk.Text))
		b.WriteString("</pre></div>\n")
	case KindHeading:
		tag := headingTags[blk.Level]
		b.WriteString("<" + tag + ">" + esc(blk.Text) + "</" + tag + ">\n")
	case KindPipeRow:
		b.WriteString(`<div class="pipe-row">` + esc(blk.Text) + "</div>\n")
	case KindBlank:
		b.WriteString(`<div class="blank"></div>` + "\n")
	case KindParagraph:
		b.WriteString("<p>")
		for _, s := range blk.Spans {
			if s.Bold {
				b.WriteString("<strong>" + esc(s.Text) + "</strong>")
			} else {
				b.WriteString(esc(s.Text))
			}
		}
		b.WriteString("</p>\n")
	}
}
