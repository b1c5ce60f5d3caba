package indexer

import (
	"path/filepath"
	"strings"
	"unicode"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var markdownParser = goldmark.New()

// ExtractTitle derives a display title for a document:
// the first level-1 heading, else the first level-2 heading, else the
// filename with its extension stripped and words capitalized.
func ExtractTitle(content, path string) string {
	var firstH1, firstH2 string

	if strings.TrimSpace(content) != "" {
		source := []byte(content)
		doc := markdownParser.Parser().Parse(text.NewReader(source))

		_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
			if !entering {
				return ast.WalkContinue, nil
			}
			if heading, ok := n.(*ast.Heading); ok {
				headingText := extractTextFromNode(heading, source)
				if heading.Level == 1 && firstH1 == "" {
					firstH1 = headingText
				} else if heading.Level == 2 && firstH2 == "" && firstH1 == "" {
					firstH2 = headingText
				}
				if firstH1 != "" {
					return ast.WalkStop, nil
				}
			}
			return ast.WalkContinue, nil
		})
	}

	if firstH1 != "" {
		return firstH1
	}
	if firstH2 != "" {
		return firstH2
	}
	return titleFromFilename(path)
}

// titleFromFilename strips the extension and capitalizes each word.
func titleFromFilename(path string) string {
	name := filepath.Base(path)
	if ext := filepath.Ext(name); ext != "" {
		name = name[:len(name)-len(ext)]
	}
	name = strings.NewReplacer("-", " ", "_", " ").Replace(name)

	words := strings.Fields(name)
	for i, word := range words {
		runes := []rune(word)
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}

// extractTextFromNode collects the plain text of a node and its children.
func extractTextFromNode(n ast.Node, source []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch v := node.(type) {
		case *ast.Text:
			b.Write(v.Segment.Value(source))
		case *ast.String:
			b.Write(v.Value)
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}
