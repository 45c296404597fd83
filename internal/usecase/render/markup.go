package render

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

type flavor int

const (
	flavorMrkdwn flavor = iota
	flavorPlain
)

// HTMLToMrkdwn переводит HTML рецензии в разметку mrkdwn.
// Поддерживаются br, b/strong, i/em, a[href] и blockquote, остальные теги отбрасываются с сохранением текста.
func HTMLToMrkdwn(fragment string) string {
	return convert(fragment, flavorMrkdwn)
}

// HTMLToText переводит HTML рецензии в простой текст без разметки.
// Ссылка записывается как "текст (адрес)".
func HTMLToText(fragment string) string {
	return convert(fragment, flavorPlain)
}

func convert(fragment string, f flavor) string {
	context := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), context)
	if err != nil {
		return fragment
	}
	var b strings.Builder
	for _, n := range nodes {
		writeNode(&b, n, f)
	}
	return b.String()
}

// QuoteLines добавляет "> " к каждой непустой строке, пустые строки выбрасываются.
func QuoteLines(text string) string {
	lines := nonBlankLines(text)
	for i, line := range lines {
		lines[i] = "> " + line
	}
	return strings.Join(lines, "\n")
}

// CompactLines выбрасывает пустые строки.
func CompactLines(text string) string {
	return strings.Join(nonBlankLines(text), "\n")
}

func nonBlankLines(text string) []string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		out = append(out, line)
	}
	return out
}

func writeNode(b *strings.Builder, n *html.Node, f flavor) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.CommentNode, html.DoctypeNode:
		return
	case html.ElementNode:
		switch n.DataAtom {
		case atom.Br:
			b.WriteString("\n")
			return
		case atom.B, atom.Strong:
			b.WriteString(wrap(textContent(n), "*", f))
			return
		case atom.I, atom.Em:
			b.WriteString(wrap(textContent(n), "_", f))
			return
		case atom.A:
			if href, ok := attr(n, "href"); ok {
				if f == flavorPlain {
					b.WriteString(textContent(n) + " (" + href + ")")
				} else {
					b.WriteString("<" + href + "|" + textContent(n) + ">")
				}
				return
			}
		case atom.Blockquote:
			var inner strings.Builder
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				writeNode(&inner, c, f)
			}
			if f == flavorPlain {
				b.WriteString(CompactLines(inner.String()))
			} else {
				b.WriteString(QuoteLines(inner.String()))
			}
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeNode(b, c, f)
	}
}

func wrap(text, marker string, f flavor) string {
	if f == flavorPlain {
		return text
	}
	return marker + text + marker
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		switch {
		case node.Type == html.TextNode:
			b.WriteString(node.Data)
			return
		case node.Type == html.ElementNode && node.DataAtom == atom.Br:
			b.WriteString("\n")
			return
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}
