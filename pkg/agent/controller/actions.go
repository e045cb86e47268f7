package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/entrhq/webpilot/pkg/browser"
)

const maxWaitSeconds = 30

// funcAction adapts a typed handler to Action. P is decoded from the call's
// params; an empty params payload decodes to the zero value.
type funcAction[P any] struct {
	name        string
	description string
	schema      map[string]any
	run         func(ctx context.Context, c *Controller, b Browser, p P) (*ActionResult, error)
}

func (a *funcAction[P]) Name() string           { return a.name }
func (a *funcAction[P]) Description() string    { return a.description }
func (a *funcAction[P]) Schema() map[string]any { return a.schema }

func (a *funcAction[P]) Execute(ctx context.Context, c *Controller, b Browser, raw json.RawMessage) (*ActionResult, error) {
	var p P
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("invalid parameters for %s: %w", a.name, err)
		}
	}
	return a.run(ctx, c, b, p)
}

// NewAction builds an Action from a typed handler.
func NewAction[P any](name, description string, schema map[string]any,
	run func(ctx context.Context, c *Controller, b Browser, p P) (*ActionResult, error)) Action {
	return &funcAction[P]{name: name, description: description, schema: schema, run: run}
}

// objectSchema builds a JSON Schema object with the given properties.
func objectSchema(properties map[string]any, required ...string) map[string]any {
	if properties == nil {
		properties = map[string]any{}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func prop(typ, description string) map[string]any {
	return map[string]any{"type": typ, "description": description}
}

func memorable(msg string) *ActionResult {
	return &ActionResult{Success: true, ExtractedContent: msg, IncludeInMemory: true}
}

type urlParams struct {
	URL string `json:"url"`
}

type searchParams struct {
	Query string `json:"query"`
}

type indexParams struct {
	Index int `json:"index"`
}

type inputParams struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

type extractParams struct {
	Goal string `json:"goal"`
}

type scrollParams struct {
	Amount *int `json:"amount"`
}

type tabParams struct {
	PageID int `json:"page_id"`
}

type keysParams struct {
	Keys string `json:"keys"`
}

type waitParams struct {
	Seconds int `json:"seconds"`
}

type doneParams struct {
	Text    string `json:"text"`
	Success *bool  `json:"success"`
}

func builtinActions() []Action {
	return []Action{
		NewAction("go_to_url", "Navigate the current tab to a URL.",
			objectSchema(map[string]any{"url": prop("string", "Absolute URL including scheme")}, "url"),
			func(ctx context.Context, c *Controller, b Browser, p urlParams) (*ActionResult, error) {
				if p.URL == "" {
					return nil, fmt.Errorf("url is required")
				}
				if err := c.CheckURL(p.URL); err != nil {
					return &ActionResult{Error: err.Error(), IncludeInMemory: true}, nil
				}
				if err := b.Navigate(p.URL, browser.NavigateOptions{}); err != nil {
					return nil, err
				}
				return memorable(fmt.Sprintf("🔗  Navigated to %s", p.URL)), nil
			}),

		NewAction("search_google", "Search Google in the current tab. Use concrete queries like a human would.",
			objectSchema(map[string]any{"query": prop("string", "Search query")}, "query"),
			func(ctx context.Context, c *Controller, b Browser, p searchParams) (*ActionResult, error) {
				if strings.TrimSpace(p.Query) == "" {
					return nil, fmt.Errorf("query is required")
				}
				target := "https://www.google.com/search?q=" + url.QueryEscape(p.Query) + "&udm=14"
				if err := c.CheckURL(target); err != nil {
					return &ActionResult{Error: err.Error(), IncludeInMemory: true}, nil
				}
				if err := b.Navigate(target, browser.NavigateOptions{}); err != nil {
					return nil, err
				}
				return memorable(fmt.Sprintf("🔍  Searched for %q in Google", p.Query)), nil
			}),

		NewAction("click_element", "Click the interactive element with the given index.",
			objectSchema(map[string]any{"index": prop("integer", "Element index from the page state")}, "index"),
			func(ctx context.Context, c *Controller, b Browser, p indexParams) (*ActionResult, error) {
				if err := b.Click(p.Index); err != nil {
					return nil, err
				}
				return memorable(fmt.Sprintf("🖱️  Clicked element with index %d", p.Index)), nil
			}),

		NewAction("input_text", "Type text into the input element with the given index.",
			objectSchema(map[string]any{
				"index": prop("integer", "Element index from the page state"),
				"text":  prop("string", "Text to enter"),
			}, "index", "text"),
			func(ctx context.Context, c *Controller, b Browser, p inputParams) (*ActionResult, error) {
				if err := b.Fill(p.Index, p.Text); err != nil {
					return nil, err
				}
				return memorable(fmt.Sprintf("⌨️  Input %q into index %d", p.Text, p.Index)), nil
			}),

		NewAction("extract_content", "Read the text of the current page as markdown, e.g. to collect information for the task.",
			objectSchema(map[string]any{"goal": prop("string", "What you are looking for")}),
			func(ctx context.Context, c *Controller, b Browser, p extractParams) (*ActionResult, error) {
				text, err := b.ExtractContent(browser.ExtractOptions{MaxLength: c.extractMaxLen})
				if err != nil {
					return nil, err
				}
				msg := "📄  Extracted page content:\n" + text
				if p.Goal != "" {
					msg = fmt.Sprintf("📄  Extracted page content for %q:\n%s", p.Goal, text)
				}
				return memorable(msg), nil
			}),

		NewAction("scroll_down", "Scroll the page down. Defaults to one screen.",
			objectSchema(map[string]any{"amount": prop("integer", "Pixels to scroll")}),
			func(ctx context.Context, c *Controller, b Browser, p scrollParams) (*ActionResult, error) {
				amount := scrollAmount(p.Amount)
				if err := b.Scroll(amount); err != nil {
					return nil, err
				}
				return memorable(fmt.Sprintf("🔍  Scrolled down the page by %d pixels", amount)), nil
			}),

		NewAction("scroll_up", "Scroll the page up. Defaults to one screen.",
			objectSchema(map[string]any{"amount": prop("integer", "Pixels to scroll")}),
			func(ctx context.Context, c *Controller, b Browser, p scrollParams) (*ActionResult, error) {
				amount := scrollAmount(p.Amount)
				if err := b.Scroll(-amount); err != nil {
					return nil, err
				}
				return memorable(fmt.Sprintf("🔍  Scrolled up the page by %d pixels", amount)), nil
			}),

		NewAction("go_back", "Go back to the previous page.",
			objectSchema(nil),
			func(ctx context.Context, c *Controller, b Browser, _ struct{}) (*ActionResult, error) {
				if err := b.GoBack(); err != nil {
					return nil, err
				}
				return memorable("🔙  Navigated back"), nil
			}),

		NewAction("open_tab", "Open a URL in a new tab and switch to it.",
			objectSchema(map[string]any{"url": prop("string", "Absolute URL including scheme")}, "url"),
			func(ctx context.Context, c *Controller, b Browser, p urlParams) (*ActionResult, error) {
				if err := c.CheckURL(p.URL); err != nil {
					return &ActionResult{Error: err.Error(), IncludeInMemory: true}, nil
				}
				if err := b.OpenTab(p.URL); err != nil {
					return nil, err
				}
				return memorable(fmt.Sprintf("🔗  Opened new tab with %s", p.URL)), nil
			}),

		NewAction("switch_tab", "Switch to the tab with the given id.",
			objectSchema(map[string]any{"page_id": prop("integer", "Tab id from the page state")}, "page_id"),
			func(ctx context.Context, c *Controller, b Browser, p tabParams) (*ActionResult, error) {
				if err := b.SwitchTab(p.PageID); err != nil {
					return nil, err
				}
				return memorable(fmt.Sprintf("🔄  Switched to tab %d", p.PageID)), nil
			}),

		NewAction("send_keys", "Press keys on the focused element, e.g. \"Enter\", \"Escape\" or \"Control+a\".",
			objectSchema(map[string]any{"keys": prop("string", "Playwright key combination")}, "keys"),
			func(ctx context.Context, c *Controller, b Browser, p keysParams) (*ActionResult, error) {
				if p.Keys == "" {
					return nil, fmt.Errorf("keys is required")
				}
				if err := b.SendKeys(p.Keys); err != nil {
					return nil, err
				}
				return memorable(fmt.Sprintf("⌨️  Sent keys: %s", p.Keys)), nil
			}),

		NewAction("wait", "Wait for the page to settle.",
			objectSchema(map[string]any{"seconds": prop("integer", "Seconds to wait, default 3")}),
			func(ctx context.Context, c *Controller, b Browser, p waitParams) (*ActionResult, error) {
				secs := p.Seconds
				if secs <= 0 {
					secs = 3
				}
				if secs > maxWaitSeconds {
					secs = maxWaitSeconds
				}
				timer := time.NewTimer(time.Duration(secs) * time.Second)
				defer timer.Stop()
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-timer.C:
				}
				return memorable(fmt.Sprintf("🕒  Waited for %d seconds", secs)), nil
			}),

		NewAction("done", "Finish the task. text is the final answer returned to the user.",
			objectSchema(map[string]any{
				"text":    prop("string", "Final answer"),
				"success": prop("boolean", "Whether the task was completed, default true"),
			}, "text"),
			func(ctx context.Context, c *Controller, b Browser, p doneParams) (*ActionResult, error) {
				success := true
				if p.Success != nil {
					success = *p.Success
				}
				return &ActionResult{IsDone: true, Success: success, ExtractedContent: p.Text}, nil
			}),
	}
}

func scrollAmount(amount *int) int {
	if amount == nil || *amount <= 0 {
		return browser.DefaultScrollPixels
	}
	return *amount
}
