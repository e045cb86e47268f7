package agent

import (
	"time"

	"github.com/entrhq/webpilot/pkg/agent/controller"
)

// StepRecord is what happened in one step.
type StepRecord struct {
	Step     int
	URL      string
	Output   *Output
	Results  []*controller.ActionResult
	Err      string
	Started  time.Time
	Duration time.Duration
}

// History is the ordered record of a run.
type History struct {
	Steps []StepRecord
}

func (h *History) add(r StepRecord) {
	h.Steps = append(h.Steps, r)
}

// FinalResult returns the done action's text when the run finished.
func (h *History) FinalResult() (string, bool) {
	if h == nil || len(h.Steps) == 0 {
		return "", false
	}
	last := h.Steps[len(h.Steps)-1]
	for i := len(last.Results) - 1; i >= 0; i-- {
		if last.Results[i].IsDone {
			return last.Results[i].ExtractedContent, true
		}
	}
	return "", false
}

// IsDone reports whether the agent called done.
func (h *History) IsDone() bool {
	_, ok := h.FinalResult()
	return ok
}

// Errors returns the failure text of every failed step.
func (h *History) Errors() []string {
	if h == nil {
		return nil
	}
	var out []string
	for _, s := range h.Steps {
		if s.Err != "" {
			out = append(out, s.Err)
		}
	}
	return out
}

// URLs returns the page URL observed at each step.
func (h *History) URLs() []string {
	if h == nil {
		return nil
	}
	out := make([]string, 0, len(h.Steps))
	for _, s := range h.Steps {
		out = append(out, s.URL)
	}
	return out
}

// Duration is the summed step time.
func (h *History) Duration() time.Duration {
	if h == nil {
		return 0
	}
	var d time.Duration
	for _, s := range h.Steps {
		d += s.Duration
	}
	return d
}
