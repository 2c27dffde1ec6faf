package recorder

import (
	"context"
	"countyrecorder/internal/components/assert"
	"countyrecorder/internal/components/telemetry"
	"errors"
	"fmt"
)

const (
	report_navigator_advance = "navigator.advance"
)

var (
	ErrOutOfOrder        = errors.New("step out of order")
	ErrNavigationStopped = errors.New("an earlier step failed")
)

type NavigationError struct {
	Step StepKind
	Err  error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigation: %s: %s", e.Step, e.Err)
}

func (e *NavigationError) Unwrap() error {
	return e.Err
}

// Navigator walks the search form from the landing page to the search
// results. It owns the session tokens, every post carries the tokens of the
// response immediately preceding it.
type Navigator struct {
	client *Client
	tel    telemetry.API

	current *Page
	tokens  SessionTokens
	// hasTokens is whether `current` carried the tokens in `tokens`.
	hasTokens bool

	next   StepKind
	failed bool
}

func NewNavigator(client *Client, tel telemetry.API) *Navigator {
	assert.NotNil(client)
	assert.NotNil(tel)
	return &Navigator{
		client: client,
		tel:    telemetry.NewScopedAPI("navigator", tel),
		next:   STEP_SELECT_JURISDICTION,
	}
}

// Tokens is the latest token pair seen.
func (n *Navigator) Tokens() SessionTokens {
	return n.tokens
}

// Current is the latest response, after a completed navigation it is the
// search results page.
func (n *Navigator) Current() *Page {
	return n.current
}

func (n *Navigator) observe(page *Page) {
	n.current = page
	fresh, err := extractTokens(page.Doc, n.tokens)
	if err != nil {
		n.hasTokens = false
		return
	}
	n.tokens = fresh
	n.hasTokens = true
}

func (n *Navigator) compose(step Step) (Submission, error) {
	tokens := SessionTokens{}
	if n.hasTokens {
		tokens = n.tokens
	} else if step.RequiresTokens() {
		_, err := extractTokens(n.current.Doc, n.tokens)
		return Submission{}, err
	}
	return step.Compose(n.current, tokens)
}

// prepare composes the step against the current response when it came from
// the step's page, otherwise against a fresh load of that page.
func (n *Navigator) prepare(ctx context.Context, step Step) (Submission, error) {
	if !step.Refetch() && n.client.samePath(n.current, step.Page()) {
		sub, err := n.compose(step)
		if err == nil {
			return sub, nil
		}
		n.tel.ReportDebug("current response cannot serve step, reloading", step.Kind().String(), err)
	}

	page, err := n.client.getPage(ctx, step.Page())
	if err != nil {
		return Submission{}, err
	}
	n.observe(page)
	return n.compose(step)
}

// Advance runs a single step and returns the tokens of its response.
func (n *Navigator) Advance(ctx context.Context, step Step) (SessionTokens, error) {
	fail := func(err error) (SessionTokens, error) {
		n.failed = true
		n.tel.ReportBroken(report_navigator_advance, step.Kind().String(), err)
		return n.tokens, &NavigationError{Step: step.Kind(), Err: err}
	}

	if n.failed {
		return n.tokens, &NavigationError{Step: step.Kind(), Err: ErrNavigationStopped}
	}
	if step.Kind() != n.next {
		return fail(fmt.Errorf("%w: expected %s", ErrOutOfOrder, n.next))
	}

	sub, err := n.prepare(ctx, step)
	if err != nil {
		return fail(err)
	}

	page, err := n.client.postForm(ctx, sub.Action, sub.Fields)
	if err != nil {
		return fail(err)
	}
	n.observe(page)
	if step.RequiresTokens() && !n.hasTokens {
		n.tel.ReportWarning(report_navigator_advance, step.Kind().String(), "response carried no tokens")
	}

	if followUp := step.FollowUp(); followUp != "" {
		page, err = n.client.getPage(ctx, followUp)
		if err != nil {
			return fail(fmt.Errorf("follow up: %w", err))
		}
		n.observe(page)
	}

	n.tel.ReportDebug("step completed", step.Kind().String(), n.tokens.Generation)
	n.next++
	return n.tokens, nil
}

// Run advances through every step in order, stopping at the first failure.
// The returned page is the response of the last step.
func (n *Navigator) Run(ctx context.Context, steps ...Step) (*Page, error) {
	for _, step := range steps {
		_, err := n.Advance(ctx, step)
		if err != nil {
			return nil, err
		}
	}
	return n.current, nil
}
