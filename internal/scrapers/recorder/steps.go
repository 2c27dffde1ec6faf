package recorder

import (
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	select_states_id         = "MainContent_searchMainContent_ctl01_ctl00_cboStates"
	select_counties_id       = "MainContent_searchMainContent_ctl01_ctl00_cboCounties"
	select_document_group_id = "MainContent_searchMainContent_ctl00_cboDocumentType"

	field_states          = "ctl00$ctl00$MainContent$searchMainContent$ctl01$ctl00$cboStates"
	field_counties        = "ctl00$ctl00$MainContent$searchMainContent$ctl01$ctl00$cboCounties"
	field_change_county   = "ctl00$ctl00$MainContent$searchMainContent$ctl01$ctl00$btnChangeCounty"
	field_accept          = "ctl00$ctl00$MainContent$searchMainContent$ctl01$btnAccept"
	field_document_group  = "ctl00$ctl00$MainContent$searchMainContent$ctl00$cboDocumentType"
	field_date_start      = "ctl00$ctl00$MainContent$searchMainContent$ctl00$tbDateStart"
	field_date_end        = "ctl00$ctl00$MainContent$searchMainContent$ctl00$tbDateEnd"
	field_search_document = "ctl00$ctl00$MainContent$searchMainContent$ctl00$btnSearchDocuments"

	endpoint_home       = "/"
	endpoint_disclaimer = "/Disclaimer.aspx?RU=%2FIntroduction.aspx"
	endpoint_search     = "/Search.aspx"
)

// DefaultDocumentGroup is the "Lien" document group of the search form.
const DefaultDocumentGroup = "365|LIEN"

var (
	ErrOptionNotFound    = errors.New("dropdown option not found")
	ErrFormActionMissing = errors.New("form action missing")
)

type StepKind int

const (
	STEP_SELECT_JURISDICTION StepKind = iota
	STEP_SELECT_SUB_JURISDICTION
	STEP_ACCEPT_DISCLAIMER
	STEP_SUBMIT_SEARCH
)

func (k StepKind) String() string {
	switch k {
	case STEP_SELECT_JURISDICTION:
		return "select-jurisdiction"
	case STEP_SELECT_SUB_JURISDICTION:
		return "select-sub-jurisdiction"
	case STEP_ACCEPT_DISCLAIMER:
		return "accept-disclaimer"
	case STEP_SUBMIT_SEARCH:
		return "submit-search"
	}
	return fmt.Sprintf("step(%d)", int(k))
}

// Submission is a composed form post.
type Submission struct {
	Action string
	Fields map[string]string
}

// Step is one form submission of the navigation sequence.
type Step interface {
	Kind() StepKind
	// Page is the endpoint loaded when the current response cannot serve the step.
	Page() string
	// Refetch steps always load Page, even if the current response came from it.
	Refetch() bool
	// RequiresTokens steps fail when the page they compose against has no tokens.
	RequiresTokens() bool
	// Compose builds the post continuing `page`, `tokens` are the ones carried by
	// `page` (empty when it has none).
	Compose(page *Page, tokens SessionTokens) (Submission, error)
	// FollowUp is loaded after the post succeeded, empty means nothing.
	FollowUp() string
}

// findOption returns the value of the option of the dropdown `selectId`
// whose display text equals `name`, ignoring case and surrounding whitespace.
func findOption(doc *goquery.Document, selectId, name string) (string, error) {
	dropdown := doc.Find(fmt.Sprintf("select#%s", selectId))
	if dropdown.Length() == 0 {
		return "", fmt.Errorf("%w: no dropdown %s", ErrOptionNotFound, selectId)
	}

	name = strings.TrimSpace(name)
	var value string
	found := false
	dropdown.Find("option").EachWithBreak(func(_ int, option *goquery.Selection) bool {
		text := strings.TrimSpace(option.Text())
		if !strings.EqualFold(text, name) {
			return true
		}
		value = option.AttrOr("value", text)
		found = true
		return false
	})
	if !found {
		return "", fmt.Errorf("%w: %q in %s", ErrOptionNotFound, name, selectId)
	}
	return value, nil
}

func withTokens(tokens SessionTokens, fields map[string]string) map[string]string {
	out := map[string]string{}
	if !tokens.Empty() {
		out = tokens.fields()
	}
	for k, v := range fields {
		out[k] = v
	}
	return out
}

type SelectJurisdiction struct {
	Name string
}

func (SelectJurisdiction) Kind() StepKind       { return STEP_SELECT_JURISDICTION }
func (SelectJurisdiction) Page() string         { return endpoint_home }
func (SelectJurisdiction) Refetch() bool        { return false }
func (SelectJurisdiction) RequiresTokens() bool { return true }
func (SelectJurisdiction) FollowUp() string     { return "" }

func (s SelectJurisdiction) Compose(page *Page, tokens SessionTokens) (Submission, error) {
	value, err := findOption(page.Doc, select_states_id, s.Name)
	if err != nil {
		return Submission{}, err
	}
	return Submission{
		Action: endpoint_home,
		Fields: withTokens(tokens, map[string]string{
			field_states:        value,
			field_change_county: "Go",
		}),
	}, nil
}

type SelectSubJurisdiction struct {
	Name string
}

func (SelectSubJurisdiction) Kind() StepKind       { return STEP_SELECT_SUB_JURISDICTION }
func (SelectSubJurisdiction) Page() string         { return endpoint_home }
func (SelectSubJurisdiction) Refetch() bool        { return false }
func (SelectSubJurisdiction) RequiresTokens() bool { return true }
func (SelectSubJurisdiction) FollowUp() string     { return "" }

func (s SelectSubJurisdiction) Compose(page *Page, tokens SessionTokens) (Submission, error) {
	value, err := findOption(page.Doc, select_counties_id, s.Name)
	if err != nil {
		return Submission{}, err
	}
	return Submission{
		Action: endpoint_home,
		Fields: withTokens(tokens, map[string]string{
			field_counties:      value,
			field_change_county: "Go",
		}),
	}, nil
}

// AcceptDisclaimer posts to whatever action the disclaimer form declares, the
// page redirects back to the introduction so the search page is loaded
// afterwards.
type AcceptDisclaimer struct{}

func (AcceptDisclaimer) Kind() StepKind       { return STEP_ACCEPT_DISCLAIMER }
func (AcceptDisclaimer) Page() string         { return endpoint_disclaimer }
func (AcceptDisclaimer) Refetch() bool        { return true }
func (AcceptDisclaimer) RequiresTokens() bool { return false }
func (AcceptDisclaimer) FollowUp() string     { return endpoint_search }

func (AcceptDisclaimer) Compose(page *Page, tokens SessionTokens) (Submission, error) {
	action, ok := page.Doc.Find("form").First().Attr("action")
	if !ok || strings.TrimSpace(action) == "" {
		return Submission{}, ErrFormActionMissing
	}
	target, err := page.Url.Parse(strings.TrimSpace(action))
	if err != nil {
		return Submission{}, fmt.Errorf("%w: %q: %s", ErrFormActionMissing, action, err)
	}
	return Submission{
		Action: target.String(),
		Fields: withTokens(tokens, map[string]string{
			field_accept: "Yes, I Accept",
		}),
	}, nil
}

// SubmitSearch runs a document search over a date range. DocumentGroup may be
// either the option value (like "365|LIEN") or its display text.
type SubmitSearch struct {
	DocumentGroup string
	Range         DateRange
}

func (SubmitSearch) Kind() StepKind       { return STEP_SUBMIT_SEARCH }
func (SubmitSearch) Page() string         { return endpoint_search }
func (SubmitSearch) Refetch() bool        { return false }
func (SubmitSearch) RequiresTokens() bool { return true }
func (SubmitSearch) FollowUp() string     { return "" }

func (s SubmitSearch) documentGroup(doc *goquery.Document) (string, error) {
	group := s.DocumentGroup
	if group == "" {
		group = DefaultDocumentGroup
	}

	byValue := doc.Find(fmt.Sprintf("select#%s option", select_document_group_id)).
		FilterFunction(func(_ int, option *goquery.Selection) bool {
			return option.AttrOr("value", "") == group
		})
	if byValue.Length() > 0 {
		return group, nil
	}
	return findOption(doc, select_document_group_id, group)
}

func (s SubmitSearch) Compose(page *Page, tokens SessionTokens) (Submission, error) {
	group, err := s.documentGroup(page.Doc)
	if err != nil {
		return Submission{}, err
	}
	return Submission{
		Action: endpoint_search,
		Fields: withTokens(tokens, map[string]string{
			field_document_group:  group,
			field_date_start:      s.Range.StartText(),
			field_date_end:        s.Range.EndText(),
			field_search_document: "Execute Search",
		}),
	}, nil
}

// SearchSteps is the full navigation sequence for a search.
func SearchSteps(jurisdiction, subJurisdiction, documentGroup string, dateRange DateRange) []Step {
	return []Step{
		SelectJurisdiction{Name: jurisdiction},
		SelectSubJurisdiction{Name: subJurisdiction},
		AcceptDisclaimer{},
		SubmitSearch{DocumentGroup: documentGroup, Range: dateRange},
	}
}
