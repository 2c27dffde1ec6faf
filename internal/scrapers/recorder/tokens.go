package recorder

import (
	"errors"
	"fmt"

	"github.com/PuerkitoBio/goquery"
)

const (
	field_view_state       = "__VIEWSTATE"
	field_event_validation = "__EVENTVALIDATION"
)

var ErrTokenMissing = errors.New("session token missing")

// SessionTokens are the round-trip form tokens the site issues on every
// response. Generation counts how many times a fresh pair was taken from a
// response, zero means no tokens have been seen yet.
type SessionTokens struct {
	ViewState       string
	EventValidation string
	Generation      int
}

func (t SessionTokens) Empty() bool {
	return t.Generation == 0
}

// fields are the form fields every token-carrying post must include.
func (t SessionTokens) fields() map[string]string {
	return map[string]string{
		field_view_state:       t.ViewState,
		field_event_validation: t.EventValidation,
	}
}

func hiddenInput(doc *goquery.Document, name string) (string, bool) {
	return doc.Find(fmt.Sprintf(`input[name="%s"]`, name)).First().Attr("value")
}

// extractTokens reads a fresh token pair out of doc, the result is one
// generation newer than prior.
func extractTokens(doc *goquery.Document, prior SessionTokens) (SessionTokens, error) {
	viewState, ok := hiddenInput(doc, field_view_state)
	if !ok {
		return prior, fmt.Errorf("%w: %s", ErrTokenMissing, field_view_state)
	}
	eventValidation, ok := hiddenInput(doc, field_event_validation)
	if !ok {
		return prior, fmt.Errorf("%w: %s", ErrTokenMissing, field_event_validation)
	}
	return SessionTokens{
		ViewState:       viewState,
		EventValidation: eventValidation,
		Generation:      prior.Generation + 1,
	}, nil
}
