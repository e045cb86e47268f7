package browser

import (
	"encoding/json"
	"fmt"

	"github.com/playwright-community/playwright-go"
)

// indexAttr is stamped on every interactive element so the agent can address
// it by number in later actions.
const indexAttr = "data-webpilot-index"

// indexScript marks visible interactive elements in document order and
// returns their descriptions. Previous marks are cleared first so indexes
// always describe the latest page state.
const indexScript = `(attr) => {
  document.querySelectorAll('[' + attr + ']').forEach(el => el.removeAttribute(attr));
  const selector = 'a[href], button, input:not([type=hidden]), textarea, select, summary, ' +
    '[role=button], [role=link], [role=checkbox], [role=tab], [role=menuitem], [contenteditable=""], [contenteditable=true], [onclick]';
  const visible = (el) => {
    const r = el.getBoundingClientRect();
    if (r.width === 0 || r.height === 0) return false;
    const s = window.getComputedStyle(el);
    return s.visibility !== 'hidden' && s.display !== 'none' && s.opacity !== '0';
  };
  const out = [];
  let i = 0;
  for (const el of document.querySelectorAll(selector)) {
    if (!visible(el) || el.disabled) continue;
    el.setAttribute(attr, String(i));
    const text = (el.innerText || el.value || '').replace(/\s+/g, ' ').trim().slice(0, 80);
    out.push({
      index: i,
      tag: el.tagName.toLowerCase(),
      text: text,
      type: el.getAttribute('type') || '',
      placeholder: el.getAttribute('placeholder') || '',
      href: el.tagName === 'A' ? (el.getAttribute('href') || '') : '',
      ariaLabel: el.getAttribute('aria-label') || '',
    });
    i++;
  }
  return out;
}`

const scrollInfoScript = `() => ({
  above: Math.round(window.scrollY),
  below: Math.max(0, Math.round(document.documentElement.scrollHeight - window.scrollY - window.innerHeight)),
})`

// IndexElements stamps and returns the interactive elements of page.
func IndexElements(page playwright.Page) ([]Element, error) {
	raw, err := page.Evaluate(indexScript, indexAttr)
	if err != nil {
		return nil, fmt.Errorf("failed to index elements: %w", err)
	}
	var elements []Element
	if err := decodeEvaluated(raw, &elements); err != nil {
		return nil, fmt.Errorf("failed to decode elements: %w", err)
	}
	return elements, nil
}

// elementSelector addresses an element stamped by IndexElements.
func elementSelector(index int) string {
	return fmt.Sprintf(`[%s="%d"]`, indexAttr, index)
}

type scrollInfo struct {
	Above int `json:"above"`
	Below int `json:"below"`
}

func readScrollInfo(page playwright.Page) (scrollInfo, error) {
	var info scrollInfo
	raw, err := page.Evaluate(scrollInfoScript)
	if err != nil {
		return info, err
	}
	err = decodeEvaluated(raw, &info)
	return info, err
}

// decodeEvaluated converts the generic value Evaluate returns into out.
func decodeEvaluated(raw any, out any) error {
	data, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
