// Package recordertest serves a stand-in for the recorder site over
// httptest. It keeps one form state per session cookie and rejects posts
// that do not carry the tokens of the latest response of their session.
package recordertest

import (
	"bytes"
	"fmt"
	"html"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"
)

const (
	SessionCookie = "ASP.NET_SessionId"

	field_states           = "ctl00$ctl00$MainContent$searchMainContent$ctl01$ctl00$cboStates"
	field_counties         = "ctl00$ctl00$MainContent$searchMainContent$ctl01$ctl00$cboCounties"
	field_accept           = "ctl00$ctl00$MainContent$searchMainContent$ctl01$btnAccept"
	field_document_group   = "ctl00$ctl00$MainContent$searchMainContent$ctl00$cboDocumentType"
	field_date_start       = "ctl00$ctl00$MainContent$searchMainContent$ctl00$tbDateStart"
	field_date_end         = "ctl00$ctl00$MainContent$searchMainContent$ctl00$tbDateEnd"
	field_view_state       = "__VIEWSTATE"
	field_event_validation = "__EVENTVALIDATION"
)

// Row is one row of the search results table.
type Row struct {
	Cells []string
	// LinkQuery is the query of the document link in the second cell, empty
	// means the cell has no link.
	LinkQuery string
}

// Document is what the details, viewer and download pages serve for a
// document id.
type Document struct {
	// Viewable documents have a "view image" control on their details page.
	Viewable bool
	Pages    int
	// BrokenPages serve an html error page instead of an image.
	BrokenPages map[int]bool
	Pdf         []byte
}

// Post is a form post received by the site.
type Post struct {
	Path    string
	Session string
	Form    url.Values
	// Expected is the view state the session was last issued before this post.
	Expected string
}

type session struct {
	id        string
	state     string
	county    string
	accepted  bool
	viewState string
}

type Site struct {
	// States maps state display names to their county display names.
	States map[string][]string
	// Groups maps document group option values to their display text.
	Groups    map[string]string
	Rows      []Row
	Documents map[string]Document
	// DisclaimerAction is the action of the disclaimer form.
	DisclaimerAction string

	server   *httptest.Server
	image    []byte
	mutex    sync.Mutex
	sequence int
	sessions map[string]*session
	posts    []Post
	requests map[string]int
	issued   []string
}

// DetailsQuery is the link query a row uses for a document.
func DetailsQuery(documentId string) string {
	return fmt.Sprintf("DK=%s&X=%s", documentId, strings.Repeat("a", 4)+documentId)
}

// Default is a site with two states and no results.
func Default() *Site {
	return &Site{
		States: map[string][]string{
			"COLORADO": {"ADAMS", "WASHINGTON"},
			"KANSAS":   {"DOUGLAS"},
		},
		Groups: map[string]string{
			"365|LIEN": "Lien",
			"12|DEED":  "Deed",
		},
		Documents:        map[string]Document{},
		DisclaimerAction: "./Disclaimer.aspx?RU=%2fIntroduction.aspx",
	}
}

// Start serves the site until the test ends, it returns the base url.
func (s *Site) Start(t testing.TB) string {
	img := image.NewGray(image.Rect(0, 0, 16, 24))
	for x := 0; x < 16; x++ {
		for y := 0; y < 24; y++ {
			img.SetGray(x, y, color.Gray{Y: uint8(x * y)})
		}
	}
	buffer := &bytes.Buffer{}
	err := jpeg.Encode(buffer, img, nil)
	if err != nil {
		t.Fatal(err)
	}
	s.image = buffer.Bytes()
	s.sessions = map[string]*session{}
	s.requests = map[string]int{}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleHome)
	mux.HandleFunc("/Introduction.aspx", s.handleIntroduction)
	mux.HandleFunc("/Disclaimer.aspx", s.handleDisclaimer)
	mux.HandleFunc("/Search.aspx", s.handleSearch)
	mux.HandleFunc("/DocumentDetails.aspx", s.handleDetails)
	mux.HandleFunc("/Image.aspx", s.handleViewer)
	mux.HandleFunc("/ImageHandler.ashx", s.handleImage)
	mux.HandleFunc("/Document.aspx", s.handleDocument)

	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mutex.Lock()
		key := r.URL.Path
		if dk := r.URL.Query().Get("DK"); dk != "" {
			key = fmt.Sprintf("%s?DK=%s", r.URL.Path, dk)
		}
		s.requests[key]++
		s.mutex.Unlock()
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(s.server.Close)
	return s.server.URL
}

// Image is the jpeg every working page serves.
func (s *Site) Image() []byte {
	return s.image
}

// Posts lists every form post in the order received.
func (s *Site) Posts() []Post {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return append([]Post(nil), s.posts...)
}

// Issued lists every view state handed out in order.
func (s *Site) Issued() []string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return append([]string(nil), s.issued...)
}

// Requests counts the requests to a path, for paths that take a document id
// the key is "<path>?DK=<id>".
func (s *Site) Requests(key string) int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.requests[key]
}

func (s *Site) session(w http.ResponseWriter, r *http.Request) *session {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	cookie, err := r.Cookie(SessionCookie)
	if err == nil {
		if existing, ok := s.sessions[cookie.Value]; ok {
			return existing
		}
	}
	s.sequence++
	created := &session{id: fmt.Sprintf("session-%d", s.sequence)}
	s.sessions[created.id] = created
	http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: created.id, Path: "/"})
	return created
}

func (s *Site) knownSession(r *http.Request) bool {
	cookie, err := r.Cookie(SessionCookie)
	if err != nil {
		return false
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	_, ok := s.sessions[cookie.Value]
	return ok
}

// tokens issues a fresh token pair to a session.
func (s *Site) tokens(sess *session) string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.sequence++
	sess.viewState = fmt.Sprintf("vs-%d", s.sequence)
	s.issued = append(s.issued, sess.viewState)
	return fmt.Sprintf(
		`<input type="hidden" name="%s" id="%s" value="%s" />`+
			`<input type="hidden" name="%s" id="%s" value="ev-%d" />`,
		field_view_state, field_view_state, sess.viewState,
		field_event_validation, field_event_validation, s.sequence,
	)
}

// receive records a post and reports whether it carried the latest tokens.
func (s *Site) receive(r *http.Request, sess *session) bool {
	err := r.ParseForm()
	if err != nil {
		return false
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.posts = append(s.posts, Post{
		Path:     r.URL.Path,
		Session:  sess.id,
		Form:     r.PostForm,
		Expected: sess.viewState,
	})
	return sess.viewState != "" &&
		r.PostForm.Get(field_view_state) == sess.viewState &&
		r.PostForm.Get(field_event_validation) != ""
}

func invalidViewState(w http.ResponseWriter) {
	http.Error(w, "Validation of viewstate MAC failed.", http.StatusInternalServerError)
}

func writeHtml(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, "<!DOCTYPE html><html><body>%s</body></html>", body)
}

func options(values map[string]string) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := strings.Builder{}
	for _, k := range keys {
		fmt.Fprintf(&out, `<option value="%s">%s</option>`, html.EscapeString(k), html.EscapeString(values[k]))
	}
	return out.String()
}

func stateValue(name string) string {
	return "ST_" + strings.ReplaceAll(name, " ", "_")
}

func countyValue(name string) string {
	return "CT_" + strings.ReplaceAll(name, " ", "_")
}

func (s *Site) stateByValue(value string) (string, bool) {
	for name := range s.States {
		if stateValue(name) == value {
			return name, true
		}
	}
	return "", false
}

func (s *Site) renderHome(w http.ResponseWriter, sess *session) {
	states := map[string]string{}
	for name := range s.States {
		states[stateValue(name)] = name
	}
	body := fmt.Sprintf(
		`<form method="post" action="./" id="form1">%s`+
			`<select name="%s" id="MainContent_searchMainContent_ctl01_ctl00_cboStates">%s</select>`,
		s.tokens(sess), field_states, options(states),
	)
	if sess.state != "" {
		counties := map[string]string{}
		for _, name := range s.States[sess.state] {
			counties[countyValue(name)] = name
		}
		body += fmt.Sprintf(
			`<select name="%s" id="MainContent_searchMainContent_ctl01_ctl00_cboCounties">%s</select>`,
			field_counties, options(counties),
		)
	}
	writeHtml(w, body+`<input type="submit" value="Go" /></form>`)
}

func (s *Site) handleHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	sess := s.session(w, r)
	if r.Method == http.MethodPost {
		if !s.receive(r, sess) {
			invalidViewState(w)
			return
		}
		county := r.PostForm.Get(field_counties)
		state := r.PostForm.Get(field_states)
		switch {
		case county != "":
			found := false
			for _, name := range s.States[sess.state] {
				if countyValue(name) == county {
					sess.county = name
					found = true
				}
			}
			if !found {
				invalidViewState(w)
				return
			}
		case state != "":
			name, ok := s.stateByValue(state)
			if !ok {
				invalidViewState(w)
				return
			}
			sess.state = name
			sess.county = ""
		}
	}
	s.renderHome(w, sess)
}

func (s *Site) handleIntroduction(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	writeHtml(w, fmt.Sprintf(`<form method="post" action="./Introduction.aspx">%s<p>Welcome</p></form>`, s.tokens(sess)))
}

func (s *Site) handleDisclaimer(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if r.Method == http.MethodPost {
		s.receive(r, sess)
		if r.PostForm.Get(field_accept) != "Yes, I Accept" || sess.county == "" {
			http.Error(w, "disclaimer not accepted", http.StatusBadRequest)
			return
		}
		sess.accepted = true
		http.Redirect(w, r, "/Introduction.aspx", http.StatusFound)
		return
	}
	writeHtml(w, fmt.Sprintf(
		`<form method="post" action="%s" id="form1">%s<input type="submit" name="%s" value="Yes, I Accept" /></form>`,
		html.EscapeString(s.DisclaimerAction), s.tokens(sess), field_accept,
	))
}

func (s *Site) handleSearch(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if !sess.accepted {
		http.Redirect(w, r, "/Disclaimer.aspx?RU=%2fSearch.aspx", http.StatusFound)
		return
	}
	if r.Method != http.MethodPost {
		writeHtml(w, fmt.Sprintf(
			`<form method="post" action="./Search.aspx">%s`+
				`<select name="%s" id="MainContent_searchMainContent_ctl00_cboDocumentType">%s</select>`+
				`<input name="%s" /><input name="%s" /></form>`,
			s.tokens(sess), field_document_group, options(s.Groups), field_date_start, field_date_end,
		))
		return
	}

	if !s.receive(r, sess) {
		invalidViewState(w)
		return
	}
	if _, ok := s.Groups[r.PostForm.Get(field_document_group)]; !ok {
		invalidViewState(w)
		return
	}

	rows := strings.Builder{}
	for i, row := range s.Rows {
		fmt.Fprintf(&rows, `<tr class="results-data-row listitem-background-color%d">`, i%2+1)
		for j, cell := range row.Cells {
			text := html.EscapeString(cell)
			if j == 1 && row.LinkQuery != "" {
				text = fmt.Sprintf(`<a href="DocumentDetails.aspx?%s">%s</a>`, html.EscapeString(row.LinkQuery), text)
			}
			fmt.Fprintf(&rows, "<td>\n  %s\n</td>", text)
		}
		rows.WriteString("</tr>")
	}
	writeHtml(w, fmt.Sprintf(
		`<form method="post" action="./Search.aspx">%s`+
			`<table id="tableMain"><tr><td id="tableMain_Content"><div class="main"><div id="PrintResults">`+
			`<table class="Results"><tr class="results-header-row"><th>Item#</th><th>Document</th></tr>%s</table>`+
			`</div></div></td></tr></table></form>`,
		s.tokens(sess), rows.String(),
	))
}

func (s *Site) document(w http.ResponseWriter, r *http.Request) (string, Document, bool) {
	id := r.URL.Query().Get("DK")
	doc, ok := s.Documents[id]
	if !ok {
		http.NotFound(w, r)
	}
	return id, doc, ok
}

func (s *Site) handleDetails(w http.ResponseWriter, r *http.Request) {
	s.session(w, r)
	id, doc, ok := s.document(w, r)
	if !ok {
		return
	}
	body := fmt.Sprintf(`<h1>Document %s</h1>`, html.EscapeString(id))
	if doc.Viewable {
		body += fmt.Sprintf(
			`<input type="submit" id="MainContent_searchMainContent_ctl00_btnViewImage" value="View Image" />`+
				`<input type="text" id="MainContent_searchMainContent_ctl00_tbPageCount" value=" %d " />`,
			doc.Pages,
		)
	}
	writeHtml(w, body)
}

func (s *Site) handleViewer(w http.ResponseWriter, r *http.Request) {
	if !s.knownSession(r) {
		http.Error(w, "session expired", http.StatusForbidden)
		return
	}
	id, _, ok := s.document(w, r)
	if !ok {
		return
	}
	writeHtml(w, fmt.Sprintf(
		`<img id="MainContent_searchMainContent_ctl00_Image2" src="ImageHandler.ashx?DK=%s&amp;PN=%s" />`,
		url.QueryEscape(id), url.QueryEscape(r.URL.Query().Get("PN")),
	))
}

func (s *Site) handleImage(w http.ResponseWriter, r *http.Request) {
	if !s.knownSession(r) {
		http.Error(w, "session expired", http.StatusForbidden)
		return
	}
	_, doc, ok := s.document(w, r)
	if !ok {
		return
	}
	var index int
	fmt.Sscanf(r.URL.Query().Get("PN"), "%d", &index)
	if index < 1 || index > doc.Pages {
		http.NotFound(w, r)
		return
	}
	if doc.BrokenPages[index] {
		writeHtml(w, "<p>An error occurred while rendering the image.</p>")
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Write(s.image)
}

func (s *Site) handleDocument(w http.ResponseWriter, r *http.Request) {
	_, doc, ok := s.document(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Write(doc.Pdf)
}
