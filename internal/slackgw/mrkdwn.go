package slackgw

import (
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// ToMrkdwn converts standard markdown (what models emit) into Slack's mrkdwn
// dialect. Conversion is lossy by nature; unknown constructs degrade to their
// literal text.
func ToMrkdwn(src string) string {
	source := []byte(src)
	doc := goldmark.DefaultParser().Parse(text.NewReader(source))

	var w mrkdwnWriter
	w.walkChildren(doc, source)
	return strings.TrimRight(w.b.String(), "\n")
}

type mrkdwnWriter struct {
	b strings.Builder
	// listDepth tracks nesting for indentation; listOrdinal carries the
	// current ordered-list counter per depth.
	listDepth   int
	listOrdinal []int
}

func (w *mrkdwnWriter) walkChildren(node ast.Node, source []byte) {
	for child := node.FirstChild(); child != nil; child = child.NextSibling() {
		w.walk(child, source)
	}
}

func (w *mrkdwnWriter) walk(node ast.Node, source []byte) {
	switch n := node.(type) {
	case *ast.Heading:
		w.b.WriteString("*")
		w.walkChildren(n, source)
		w.b.WriteString("*\n\n")
	case *ast.Paragraph:
		w.walkChildren(n, source)
		w.b.WriteString("\n\n")
	case *ast.TextBlock:
		w.walkChildren(n, source)
		w.b.WriteString("\n")
	case *ast.Blockquote:
		var inner mrkdwnWriter
		inner.walkChildren(n, source)
		for _, line := range strings.Split(strings.TrimRight(inner.b.String(), "\n"), "\n") {
			w.b.WriteString("> " + line + "\n")
		}
		w.b.WriteString("\n")
	case *ast.FencedCodeBlock, *ast.CodeBlock:
		w.b.WriteString("```\n")
		lines := node.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			w.b.Write(seg.Value(source))
		}
		w.b.WriteString("```\n\n")
	case *ast.List:
		w.listDepth++
		w.listOrdinal = append(w.listOrdinal, int(n.Start))
		for child := n.FirstChild(); child != nil; child = child.NextSibling() {
			w.writeListItem(child, source, n.IsOrdered())
		}
		w.listOrdinal = w.listOrdinal[:len(w.listOrdinal)-1]
		w.listDepth--
		if w.listDepth == 0 {
			w.b.WriteString("\n")
		}
	case *ast.ThematicBreak:
		w.b.WriteString("———\n\n")
	case *ast.Text:
		w.b.Write(n.Segment.Value(source))
		if n.SoftLineBreak() || n.HardLineBreak() {
			w.b.WriteString("\n")
		}
	case *ast.String:
		w.b.Write(n.Value)
	case *ast.CodeSpan:
		w.b.WriteString("`")
		w.walkChildren(n, source)
		w.b.WriteString("`")
	case *ast.Emphasis:
		marker := "_"
		if n.Level >= 2 {
			marker = "*"
		}
		w.b.WriteString(marker)
		w.walkChildren(n, source)
		w.b.WriteString(marker)
	case *ast.Link:
		var label mrkdwnWriter
		label.walkChildren(n, source)
		labelText := strings.TrimSpace(label.b.String())
		url := string(n.Destination)
		if labelText == "" || labelText == url {
			w.b.WriteString("<" + url + ">")
		} else {
			w.b.WriteString("<" + url + "|" + labelText + ">")
		}
	case *ast.AutoLink:
		w.b.WriteString("<" + string(n.URL(source)) + ">")
	case *ast.Image:
		// Slack has no inline images in mrkdwn; link instead.
		w.b.WriteString("<" + string(n.Destination) + ">")
	default:
		w.walkChildren(node, source)
	}
}

func (w *mrkdwnWriter) writeListItem(item ast.Node, source []byte, ordered bool) {
	indent := strings.Repeat("    ", w.listDepth-1)
	marker := "•"
	if ordered {
		i := len(w.listOrdinal) - 1
		if w.listOrdinal[i] <= 0 {
			w.listOrdinal[i] = 1
		}
		marker = strconv.Itoa(w.listOrdinal[i]) + "."
		w.listOrdinal[i]++
	}

	var inner mrkdwnWriter
	inner.listDepth = w.listDepth
	inner.listOrdinal = append([]int(nil), w.listOrdinal...)
	inner.walkChildren(item, source)
	body := strings.TrimRight(inner.b.String(), "\n")

	for i, line := range strings.Split(body, "\n") {
		if i == 0 {
			w.b.WriteString(indent + marker + " " + line + "\n")
		} else if strings.TrimSpace(line) != "" {
			w.b.WriteString(indent + "  " + line + "\n")
		}
	}
}
