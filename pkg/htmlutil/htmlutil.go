package htmlutil

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

func GetText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer)
	return buffer.String()
}

func getTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		return
	}
	child := node.FirstChild
	for child != nil {
		getTextRecursive(child, buffer)
		child = child.NextSibling
	}
}

var innerWhitespace = regexp.MustCompile(`\s\s+`)

func removeNonPrintable(s string) string {
	newStr := strings.Builder{}
	for _, c := range s {
		if unicode.IsPrint(c) || unicode.IsSpace(c) {
			newStr.WriteRune(c)
		}
	}
	return newStr.String()
}

// CleanText returns the text of a selection with non-printable characters
// dropped, surrounding whitespace trimmed and inner whitespace collapsed.
func CleanText(sel *goquery.Selection) string {
	var buffer strings.Builder
	for _, n := range sel.Nodes {
		buffer.WriteString(GetText(n))
	}
	text := removeNonPrintable(buffer.String())
	text = strings.TrimSpace(text)
	return innerWhitespace.ReplaceAllString(text, " ")
}

// Stage is one step of a Chain, Name is what gets reported when the
// selector does not match.
type Stage struct {
	Name     string
	Selector string
}

// StageError reports the first stage of a Chain that matched nothing.
type StageError struct {
	Index int
	Stage Stage
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %d (%s) not found: %s", e.Index, e.Stage.Name, e.Stage.Selector)
}

// Chain descends from root through each stage in order, every stage is
// searched for within the first match of the previous one.
func Chain(root *goquery.Selection, stages ...Stage) (*goquery.Selection, error) {
	current := root
	for i, stage := range stages {
		next := current.Find(stage.Selector).First()
		if next.Length() == 0 {
			return nil, &StageError{Index: i, Stage: stage}
		}
		current = next
	}
	return current, nil
}
