// Package controller holds the browser actions the agent may call and
// dispatches parsed action calls to them.
//
// The model requests actions as single-key JSON objects:
//
//	{"click_element": {"index": 3}}
//	{"done": {"text": "The price is $12"}}
package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/gobwas/glob"

	"github.com/entrhq/webpilot/pkg/browser"
)

var (
	// ErrUnknownAction is returned when the model names an action that is not registered.
	ErrUnknownAction = errors.New("unknown action")

	// ErrDomainNotAllowed is returned for navigation outside the allowed domains.
	ErrDomainNotAllowed = errors.New("navigation to this domain is not allowed")
)

// Browser is the page surface actions operate on. *browser.Session implements it.
type Browser interface {
	Navigate(url string, opts browser.NavigateOptions) error
	Click(index int) error
	Fill(index int, value string) error
	ExtractContent(opts browser.ExtractOptions) (string, error)
	Scroll(pixels int) error
	GoBack() error
	OpenTab(url string) error
	SwitchTab(id int) error
	SendKeys(keys string) error
	State() (*browser.State, error)
}

// Action is a capability the model can invoke.
type Action interface {
	// Name is the key the model uses, e.g. "go_to_url".
	Name() string

	// Description tells the model when to use the action.
	Description() string

	// Schema is a JSON Schema object for the action's parameters.
	Schema() map[string]any

	// Execute runs the action. A returned error fails the step; recoverable
	// problems the model should see are reported in ActionResult.Error.
	Execute(ctx context.Context, c *Controller, b Browser, params json.RawMessage) (*ActionResult, error)
}

// ActionResult is the outcome of one action.
type ActionResult struct {
	// IsDone ends the run; ExtractedContent is then the final result.
	IsDone  bool
	Success bool

	// ExtractedContent is shown to the operator and, when IncludeInMemory
	// is set, to the model on the next step.
	ExtractedContent string
	IncludeInMemory  bool

	Error string
}

// ActionCall is one requested action, {"<name>": {params}} on the wire.
type ActionCall struct {
	Name   string
	Params json.RawMessage
}

// UnmarshalJSON decodes the single-key object form.
func (a *ActionCall) UnmarshalJSON(data []byte) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("action must be an object: %w", err)
	}
	if len(m) != 1 {
		return fmt.Errorf("action must have exactly one key, got %d", len(m))
	}
	for name, params := range m {
		a.Name = name
		a.Params = params
	}
	return nil
}

// MarshalJSON encodes the single-key object form.
func (a ActionCall) MarshalJSON() ([]byte, error) {
	params := a.Params
	if len(params) == 0 {
		params = json.RawMessage("{}")
	}
	return json.Marshal(map[string]json.RawMessage{a.Name: params})
}

// Options configures a Controller.
type Options struct {
	// AllowedDomains restricts navigation to hosts matching one of these
	// glob patterns (e.g. "*.example.com"). Empty allows every host.
	AllowedDomains []string

	// ExtractMaxLength bounds extract_content output.
	ExtractMaxLength int
}

// Controller is a registry of actions.
type Controller struct {
	actions       map[string]Action
	allowed       []glob.Glob
	allowedRaw    []string
	extractMaxLen int
}

// New creates a controller with the built-in browser actions registered.
func New(opts Options) (*Controller, error) {
	c := &Controller{
		actions:       make(map[string]Action),
		extractMaxLen: opts.ExtractMaxLength,
	}
	if c.extractMaxLen <= 0 {
		c.extractMaxLen = browser.DefaultMaxLength
	}

	for _, pattern := range opts.AllowedDomains {
		pattern = strings.ToLower(strings.TrimSpace(pattern))
		if pattern == "" {
			continue
		}
		g, err := glob.Compile(pattern, '.')
		if err != nil {
			return nil, fmt.Errorf("invalid allowed domain pattern %q: %w", pattern, err)
		}
		c.allowed = append(c.allowed, g)
		c.allowedRaw = append(c.allowedRaw, pattern)
	}

	for _, a := range builtinActions() {
		c.Register(a)
	}
	return c, nil
}

// Register adds or replaces an action.
func (c *Controller) Register(a Action) {
	c.actions[a.Name()] = a
}

// Get returns the named action.
func (c *Controller) Get(name string) (Action, bool) {
	a, ok := c.actions[name]
	return a, ok
}

// Actions returns all registered actions sorted by name.
func (c *Controller) Actions() []Action {
	out := make([]Action, 0, len(c.actions))
	for _, a := range c.actions {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Execute runs one action call.
func (c *Controller) Execute(ctx context.Context, b Browser, call ActionCall) (*ActionResult, error) {
	action, ok := c.actions[call.Name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, call.Name)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return action.Execute(ctx, c, b, call.Params)
}

// CheckURL reports whether navigation to rawURL is permitted.
func (c *Controller) CheckURL(rawURL string) error {
	if len(c.allowed) == 0 || rawURL == browser.BlankURL {
		return nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", rawURL, err)
	}
	host := strings.ToLower(u.Hostname())
	for _, g := range c.allowed {
		if g.Match(host) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s (allowed: %s)", ErrDomainNotAllowed, host, strings.Join(c.allowedRaw, ", "))
}
