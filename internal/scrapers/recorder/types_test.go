package recorder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseDateRange(t *testing.T) {
	dateRange, err := ParseDateRange("01-01-2020", "01-01-2022")
	require.NoError(t, err)
	require.Equal(t, "01-01-2020", dateRange.StartText())
	require.Equal(t, "01-01-2022", dateRange.EndText())

	_, err = ParseDateRange("2020-01-01", "01-01-2022")
	require.Error(t, err)
	_, err = ParseDateRange("01-01-2020", "13-01-2022")
	require.Error(t, err)
	_, err = ParseDateRange("01-02-2022", "01-01-2022")
	require.Error(t, err)

	single, err := ParseDateRange("06-15-2021", "06-15-2021")
	require.NoError(t, err)
	require.True(t, single.Contains(time.Date(2021, 6, 15, 23, 59, 59, 0, time.UTC)))
}

func TestDateRangeContains(t *testing.T) {
	dateRange, err := ParseDateRange("01-01-2020", "01-01-2022")
	require.NoError(t, err)

	testCases := []struct {
		text     string
		expected bool
	}{
		{text: "01-01-2020", expected: true},
		{text: "01-01-2022", expected: true},
		{text: "01-01-2022 11:59:59 PM", expected: true},
		{text: "01-01-2020 12:00:00 AM", expected: true},
		{text: "12-31-2019 11:59:59 PM", expected: false},
		{text: "01-02-2022", expected: false},
		{text: "07-04-2021 3:30:00 PM", expected: true},
	}

	for _, test := range testCases {
		parsed, err := parseRecordingDate(test.text)
		require.NoError(t, err, test.text)
		require.Equal(t, test.expected, dateRange.Contains(parsed), test.text)
	}
}

func TestParseRecordingDate(t *testing.T) {
	parsed, err := parseRecordingDate("03-04-2021 10:15:00 AM")
	require.NoError(t, err)
	require.Equal(t, time.Date(2021, 3, 4, 10, 15, 0, 0, time.UTC), parsed)

	parsed, err = parseRecordingDate("03-04-2021")
	require.NoError(t, err)
	require.Equal(t, time.Date(2021, 3, 4, 0, 0, 0, 0, time.UTC), parsed)

	testCases := []struct {
		text     string
		expected time.Time
	}{
		{text: "03-04-2021 10:15:00 am", expected: time.Date(2021, 3, 4, 10, 15, 0, 0, time.UTC)},
		{text: "03-04-2021 3:30:00 pm", expected: time.Date(2021, 3, 4, 15, 30, 0, 0, time.UTC)},
		{text: "3-4-2021", expected: time.Date(2021, 3, 4, 0, 0, 0, 0, time.UTC)},
		{text: "3-4-2021 9:05:00 AM", expected: time.Date(2021, 3, 4, 9, 5, 0, 0, time.UTC)},
		{text: "12-31-2021 11:59:59 PM", expected: time.Date(2021, 12, 31, 23, 59, 59, 0, time.UTC)},
	}
	for _, test := range testCases {
		parsed, err := parseRecordingDate(test.text)
		require.NoError(t, err, test.text)
		require.Equal(t, test.expected, parsed, test.text)
	}

	for _, text := range []string{"", "2021-03-04", "03/04/2021", "03-04-2021 10:15", "13-04-2021"} {
		_, err := parseRecordingDate(text)
		require.Error(t, err, text)
	}
}

func TestPageCount(t *testing.T) {
	n, ok := Pages(4).Get()
	require.True(t, ok)
	require.Equal(t, 4, n)
	require.Equal(t, "4", Pages(4).String())

	require.Equal(t, Unavailable, Pages(0))
	require.Equal(t, Unavailable, Pages(-2))
	require.False(t, Unavailable.Available())
	require.Equal(t, "N/A", Unavailable.String())
	// the zero value is unavailable
	require.Equal(t, "N/A", PageCount{}.String())
}

func TestExtractTokens(t *testing.T) {
	doc := parseHtml(t, `<form>
		<input type="hidden" name="__VIEWSTATE" value="dDwtMTA4NzE=" />
		<input type="hidden" name="__EVENTVALIDATION" value="" />
	</form>`)

	tokens, err := extractTokens(doc, SessionTokens{Generation: 3})
	require.NoError(t, err)
	require.Equal(t, SessionTokens{
		ViewState:       "dDwtMTA4NzE=",
		EventValidation: "",
		Generation:      4,
	}, tokens)
	require.False(t, tokens.Empty())

	prior := SessionTokens{ViewState: "old", EventValidation: "old", Generation: 2}
	tokens, err = extractTokens(parseHtml(t, `<input type="hidden" name="__VIEWSTATE" value="new" />`), prior)
	require.ErrorIs(t, err, ErrTokenMissing)
	require.Equal(t, prior, tokens)

	require.True(t, SessionTokens{}.Empty())
}

func TestTrailingRange(t *testing.T) {
	denver, err := time.LoadLocation("America/Denver")
	require.NoError(t, err)
	// late in the evening in Denver is already the next day in UTC
	now := time.Date(2021, 3, 1, 22, 30, 0, 0, denver)

	dateRange, err := TrailingRange(now, 7)
	require.NoError(t, err)
	require.Equal(t, "02-23-2021", dateRange.StartText())
	require.Equal(t, "03-01-2021", dateRange.EndText())

	single, err := TrailingRange(now, 1)
	require.NoError(t, err)
	require.Equal(t, single.StartText(), single.EndText())

	_, err = TrailingRange(now, 0)
	require.Error(t, err)
}
