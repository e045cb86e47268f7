// Package agent drives a browser toward a natural-language task.
//
// Each step the agent reads the page state, asks the LLM for the next batch
// of actions, and executes them through the controller:
//
//	ag, err := agent.New(agent.Params{
//	    Task:    "Find the opening hours of the Louvre",
//	    LLM:     provider,
//	    Browser: session,
//	    Sink:    logger,
//	})
//	history, err := ag.Run(ctx, 100)
//	if text, ok := history.FinalResult(); ok {
//	    fmt.Println(text)
//	}
//
// Progress is reported through the LogSink as info lines, one idea per line,
// so a relay can forward them to observers as they happen.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/entrhq/webpilot/pkg/agent/controller"
	"github.com/entrhq/webpilot/pkg/agent/prompts"
	"github.com/entrhq/webpilot/pkg/llm"
	"github.com/entrhq/webpilot/pkg/llm/tokenizer"
	"github.com/entrhq/webpilot/pkg/metrics"
)

// DefaultMaxSteps bounds a run when the caller passes no limit.
const DefaultMaxSteps = 100

var (
	// ErrTooManyFailures is returned after MaxFailures consecutive failed steps.
	ErrTooManyFailures = errors.New("too many consecutive failures")

	errNoLLM     = errors.New("LLM provider is required")
	errNoBrowser = errors.New("browser is required")
	errNoTask    = errors.New("task is required")
)

// pageChanging actions end the batch early; later actions were planned
// against a page that no longer exists.
var pageChanging = map[string]bool{
	"go_to_url":     true,
	"search_google": true,
	"go_back":       true,
	"open_tab":      true,
	"switch_tab":    true,
}

// Runner is what the supervisor needs from an agent.
type Runner interface {
	Run(ctx context.Context, maxSteps int) (*History, error)
}

// Config tunes the step loop.
type Config struct {
	MaxActionsPerStep int
	MaxFailures       int
	MaxInputTokens    int
	StepTimeout       time.Duration
	ExtractMaxLength  int
	AllowedDomains    []string

	// TokenCounter sizes prompt messages. Defaults to tiktoken's cl100k_base.
	TokenCounter func(string) int
}

// DefaultConfig returns the loop defaults.
func DefaultConfig() Config {
	return Config{
		MaxActionsPerStep: 10,
		MaxFailures:       3,
		MaxInputTokens:    128000,
		StepTimeout:       2 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxActionsPerStep <= 0 {
		c.MaxActionsPerStep = d.MaxActionsPerStep
	}
	if c.MaxFailures <= 0 {
		c.MaxFailures = d.MaxFailures
	}
	if c.MaxInputTokens == 0 {
		c.MaxInputTokens = d.MaxInputTokens
	}
	if c.StepTimeout <= 0 {
		c.StepTimeout = d.StepTimeout
	}
	if c.TokenCounter == nil {
		c.TokenCounter = tokenizer.CountTokens
	}
	return c
}

// Params are the collaborators of one agent.
type Params struct {
	Task    string
	LLM     llm.Provider
	Browser controller.Browser

	// Controller defaults to the built-in actions, restricted to
	// Config.AllowedDomains.
	Controller *controller.Controller

	// SystemPrompt overrides the prompt built from the controller's actions.
	SystemPrompt string

	// Sink receives progress; nil discards it.
	Sink LogSink

	Config Config
}

// Agent runs the step loop for one task. It is not safe for concurrent use.
type Agent struct {
	task       string
	llm        llm.Provider
	browser    controller.Browser
	controller *controller.Controller
	sink       LogSink
	cfg        Config
	messages   *MessageManager
	history    *History

	consecutiveFailures int
	lastFeedback        []prompts.ActionFeedback
}

// New validates params and builds an agent.
func New(p Params) (*Agent, error) {
	if p.Task == "" {
		return nil, errNoTask
	}
	if p.LLM == nil {
		return nil, errNoLLM
	}
	if p.Browser == nil {
		return nil, errNoBrowser
	}

	cfg := p.Config.withDefaults()

	ctrl := p.Controller
	if ctrl == nil {
		var err error
		ctrl, err = controller.New(controller.Options{
			AllowedDomains:   cfg.AllowedDomains,
			ExtractMaxLength: cfg.ExtractMaxLength,
		})
		if err != nil {
			return nil, err
		}
	}

	sink := p.Sink
	if sink == nil {
		sink = NopSink
	}

	system := p.SystemPrompt
	if system == "" {
		system = prompts.NewPromptBuilder().
			WithActions(ctrl.Actions()).
			WithMaxActions(cfg.MaxActionsPerStep).
			Build()
	}

	return &Agent{
		task:       p.Task,
		llm:        p.LLM,
		browser:    p.Browser,
		controller: ctrl,
		sink:       sink,
		cfg:        cfg,
		messages:   NewMessageManager(system, prompts.TaskMessage(p.Task), cfg.MaxInputTokens, cfg.TokenCounter),
		history:    &History{},
	}, nil
}

// Run executes up to maxSteps steps. It returns when the agent calls done,
// when the context ends, after too many consecutive failures (with an error
// wrapping ErrTooManyFailures), or when the step budget runs out (with a
// history that has no final result and a nil error).
func (a *Agent) Run(ctx context.Context, maxSteps int) (*History, error) {
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	a.sink.Infof("🚀 Starting task: %s", a.task)

	for step := 1; step <= maxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return a.history, err
		}

		done, err := a.step(ctx, step, maxSteps)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return a.history, ctxErr
			}
			a.handleStepError(err)
			if a.consecutiveFailures >= a.cfg.MaxFailures {
				a.sink.Errorf("❌ Stopping due to %d consecutive failures", a.consecutiveFailures)
				return a.history, fmt.Errorf("%w: %w", ErrTooManyFailures, err)
			}
			continue
		}

		if done {
			a.sink.Infof("✅ Task completed successfully")
			return a.history, nil
		}
	}

	a.sink.Infof("❌ Failed to complete task in maximum steps")
	return a.history, nil
}

func (a *Agent) step(ctx context.Context, n, maxSteps int) (done bool, err error) {
	metrics.AgentSteps.Inc()
	record := StepRecord{Step: n, Started: time.Now()}
	defer func() {
		record.Duration = time.Since(record.Started)
		if err != nil {
			record.Err = err.Error()
		}
		a.history.add(record)
	}()

	a.sink.Infof("📍 Step %d", n)

	state, err := a.browser.State()
	if err != nil {
		return false, fmt.Errorf("failed to read browser state: %w", err)
	}
	record.URL = state.URL

	a.messages.AddState(prompts.StateMessage(state, a.lastFeedback, n, maxSteps))
	a.lastFeedback = nil

	stepCtx, cancel := context.WithTimeout(ctx, a.cfg.StepTimeout)
	reply, err := a.llm.Complete(stepCtx, a.messages.Messages())
	cancel()
	a.messages.RemoveState()
	if err != nil {
		return false, fmt.Errorf("LLM request failed: %w", err)
	}

	out, err := ParseOutput(reply.Content)
	if err != nil {
		return false, err
	}
	record.Output = out

	a.sink.Infof("%s Eval: %s", out.CurrentState.EvalEmoji(), out.CurrentState.EvaluationPreviousGoal)
	a.sink.Infof("🧠 Memory: %s", out.CurrentState.Memory)
	a.sink.Infof("🎯 Next goal: %s", out.CurrentState.NextGoal)

	a.messages.AddAssistant(reply.Content)

	results, done, err := a.execute(ctx, out.Actions)
	record.Results = results
	a.remember(results)
	if err != nil {
		return false, err
	}

	a.consecutiveFailures = 0
	return done, nil
}

// describe renders call for the log, falling back to its name when the
// params cannot be encoded.
func (a *Agent) describe(call controller.ActionCall) string {
	encoded, err := json.Marshal(call)
	if err != nil {
		a.sink.Warnf("Cannot encode action %s: %v", call.Name, err)
		return call.Name
	}
	return string(encoded)
}

func (a *Agent) execute(ctx context.Context, calls []controller.ActionCall) ([]*controller.ActionResult, bool, error) {
	if len(calls) > a.cfg.MaxActionsPerStep {
		a.sink.Warnf("Model returned %d actions, executing the first %d", len(calls), a.cfg.MaxActionsPerStep)
		calls = calls[:a.cfg.MaxActionsPerStep]
	}

	results := make([]*controller.ActionResult, 0, len(calls))
	for i, call := range calls {
		a.sink.Infof("🛠️  Action %d/%d: %s", i+1, len(calls), a.describe(call))

		res, err := a.controller.Execute(ctx, a.browser, call)
		if err != nil {
			return results, false, fmt.Errorf("action %s failed: %w", call.Name, err)
		}
		results = append(results, res)

		switch {
		case res.IsDone:
			a.sink.Infof("📄 Result: %s", res.ExtractedContent)
			return results, true, nil
		case res.Error != "":
			a.sink.Infof("⚠ %s", res.Error)
			return results, false, nil
		case res.ExtractedContent != "":
			a.sink.Infof("%s", res.ExtractedContent)
		}

		if pageChanging[call.Name] && i < len(calls)-1 {
			a.sink.Infof("Page changed after action %d/%d, replanning", i+1, len(calls))
			break
		}
	}
	return results, false, nil
}

// remember keeps memorable results in the conversation and hands the rest to
// the next state message.
func (a *Agent) remember(results []*controller.ActionResult) {
	for _, r := range results {
		if r.IsDone {
			continue
		}
		if r.IncludeInMemory {
			if r.ExtractedContent != "" {
				a.messages.AddUser("Action result: " + r.ExtractedContent)
			}
			if r.Error != "" {
				a.messages.AddUser("Action error: " + r.Error)
			}
			continue
		}
		a.lastFeedback = append(a.lastFeedback, prompts.ActionFeedback{Content: r.ExtractedContent, Error: r.Error})
	}
}

func (a *Agent) handleStepError(err error) {
	a.consecutiveFailures++
	a.sink.Errorf("❌ Result failed %d/%d times:\n %v", a.consecutiveFailures, a.cfg.MaxFailures, err)
	a.lastFeedback = append(a.lastFeedback, prompts.ActionFeedback{Error: err.Error()})
}
