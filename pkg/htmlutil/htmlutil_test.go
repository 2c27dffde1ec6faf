package htmlutil

import (
	"errors"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

func parse(t testing.TB, body string) *goquery.Document {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	return doc
}

func TestChain(t *testing.T) {
	doc := parse(t, `
		<table id="outer"><tr><td id="cell">
			<div class="main"><span>first</span></div>
			<div class="main"><span>second</span></div>
		</td></tr></table>`)

	sel, err := Chain(
		doc.Selection,
		Stage{Name: "outer", Selector: "table#outer"},
		Stage{Name: "cell", Selector: "td#cell"},
		Stage{Name: "main", Selector: "div.main"},
		Stage{Name: "span", Selector: "span"},
	)
	require.NoError(t, err)
	require.Equal(t, "first", sel.Text())

	_, err = Chain(
		doc.Selection,
		Stage{Name: "outer", Selector: "table#outer"},
		Stage{Name: "results", Selector: "div#PrintResults"},
		Stage{Name: "cell", Selector: "td#cell"},
	)
	var stageErr *StageError
	require.True(t, errors.As(err, &stageErr))
	require.Equal(t, 1, stageErr.Index)
	require.Equal(t, "results", stageErr.Stage.Name)
}

func TestCleanText(t *testing.T) {
	testCases := []struct {
		body     string
		expected string
	}{
		{body: `<td>  COLORADO </td>`, expected: "COLORADO"},
		{body: "<td>\n\tJOHN\n\n   DOE\t</td>", expected: "JOHN DOE"},
		{body: `<td><a href="x">2021</a>-<b>0001</b></td>`, expected: "2021-0001"},
		{body: `<td></td>`, expected: ""},
	}

	for _, test := range testCases {
		doc := parse(t, "<table><tr>"+test.body+"</tr></table>")
		require.Equal(t, test.expected, CleanText(doc.Find("td")))
	}
}
