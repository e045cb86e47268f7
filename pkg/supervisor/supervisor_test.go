package supervisor

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/webpilot/pkg/agent"
	"github.com/entrhq/webpilot/pkg/browser"
	"github.com/entrhq/webpilot/pkg/browser/browsertest"
	"github.com/entrhq/webpilot/pkg/llm"
	"github.com/entrhq/webpilot/pkg/llm/llmtest"
	"github.com/entrhq/webpilot/pkg/llm/tokenizer"
	"github.com/entrhq/webpilot/pkg/logging"
	"github.com/entrhq/webpilot/pkg/types"
)

type eventLog struct {
	mu     sync.Mutex
	events []types.Event
}

func (l *eventLog) Broadcast(e types.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) snapshot() []types.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]types.Event(nil), l.events...)
}

func (l *eventLog) logs() []string {
	var out []string
	for _, e := range l.snapshot() {
		if e.Type == types.EventTypeLog {
			out = append(out, e.Text())
		}
	}
	return out
}

type fakeLauncher struct {
	mu       sync.Mutex
	calls    int
	err      error
	page     *browsertest.Page
	browser  *browsertest.Browser
	context  *browsertest.Context
	lastOpts browser.LaunchOptions
}

func newFakeLauncher() *fakeLauncher {
	page := browsertest.NewPage("https://example.com")
	page.ScreenshotData = []byte("jpeg")
	return &fakeLauncher{
		page:    page,
		browser: browsertest.NewBrowser(),
		context: browsertest.NewContext(page),
	}
}

func (f *fakeLauncher) Launch(ctx context.Context, opts browser.LaunchOptions) (*browser.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastOpts = opts
	if f.err != nil {
		return nil, f.err
	}
	return browser.NewSession(f.browser, f.context), nil
}

func (f *fakeLauncher) launches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// runnerFunc adapts a function to agent.Runner.
type runnerFunc func(ctx context.Context, maxSteps int) (*agent.History, error)

func (f runnerFunc) Run(ctx context.Context, maxSteps int) (*agent.History, error) {
	return f(ctx, maxSteps)
}

type fixture struct {
	sup      *Supervisor
	events   *eventLog
	launcher *fakeLauncher
	llm      *llmtest.Provider
	llmCfgs  []llm.ClientConfig
	logs     *bytes.Buffer
}

func newFixture(t *testing.T, factory AgentFactory, replies ...string) *fixture {
	t.Helper()
	t.Setenv("OPENAI_API_KEY", "sk-test")

	f := &fixture{
		events:   &eventLog{},
		launcher: newFakeLauncher(),
		llm:      llmtest.New(replies...),
		logs:     &bytes.Buffer{},
	}
	var mu sync.Mutex
	sup, err := New(Options{
		Broadcaster: f.events,
		Launcher:    f.launcher,
		LLMFactory: func(cfg llm.ClientConfig) (llm.Provider, error) {
			mu.Lock()
			defer mu.Unlock()
			f.llmCfgs = append(f.llmCfgs, cfg)
			return f.llm, nil
		},
		AgentFactory:  factory,
		LaunchOptions: browser.LaunchOptions{Headless: true},
		AgentConfig:   agent.Config{TokenCounter: tokenizer.Estimate},
		MaxSteps:      5,
		Logger:        logging.NewWriterLogger("supervisor", f.logs),
	})
	require.NoError(t, err)
	f.sup = sup
	return f
}

func openAIRequest(task string) types.RunRequest {
	return types.RunRequest{Task: task, Provider: "openai"}
}

func waitRun(t *testing.T, run *Run) {
	t.Helper()
	select {
	case <-run.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("run did not finish")
	}
}

func TestSuccessfulRunEventSequence(t *testing.T) {
	f := newFixture(t, nil,
		`{"current_state": {"evaluation_previous_goal": "Unknown", "memory": "", "next_goal": "answer"}, "action": [{"done": {"text": "42"}}]}`)

	run, err := f.sup.Start(openAIRequest("  what is the answer  "))
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, "what is the answer", run.Request.Task)
	waitRun(t, run)

	events := f.events.snapshot()
	require.GreaterOrEqual(t, len(events), 4)
	assert.Equal(t, types.NewLogEvent(MsgBrowserStarting), events[0])
	assert.Equal(t, types.NewLogEvent("Agent starting for task: what is the answer"), events[1])
	assert.Equal(t, types.NewResultEvent("42"), events[len(events)-2])
	assert.Equal(t, types.NewLogEvent(MsgSessionClosed), events[len(events)-1])
	assert.Contains(t, f.events.logs(), "📍 Step 1")

	result, ok := run.Result()
	assert.True(t, ok)
	assert.Equal(t, "42", result)
	assert.NoError(t, run.Err())

	assert.Equal(t, 1, f.launcher.context.CloseCalls())
	assert.Equal(t, 1, f.launcher.browser.CloseCalls())
	assert.True(t, f.launcher.lastOpts.Headless)
	assert.False(t, f.sup.Active())
	assert.Nil(t, f.sup.Current())
	assert.Nil(t, f.sup.Pages())

	require.Len(t, f.llmCfgs, 1)
	assert.Equal(t, llm.ClientConfig{Provider: "openai", Model: "gpt-4o", Temperature: 0.6, APIKey: "sk-test"}, f.llmCfgs[0])
	assert.Contains(t, f.logs.String(), "✅ Agent finished. Final result: 42")
}

func TestRunWithoutFinalResultSendsNull(t *testing.T) {
	f := newFixture(t, func(agent.Params) (agent.Runner, error) {
		return runnerFunc(func(context.Context, int) (*agent.History, error) {
			return &agent.History{}, nil
		}), nil
	})

	run, err := f.sup.Start(openAIRequest("browse"))
	require.NoError(t, err)
	waitRun(t, run)

	events := f.events.snapshot()
	assert.Equal(t, types.NewResultEvent(nil), events[len(events)-2])
	_, ok := run.Result()
	assert.False(t, ok)
}

func TestAgentFailureBroadcastsErrorAndTearsDown(t *testing.T) {
	f := newFixture(t, func(agent.Params) (agent.Runner, error) {
		return runnerFunc(func(context.Context, int) (*agent.History, error) {
			return nil, errors.New("LLM quota exceeded")
		}), nil
	})

	run, err := f.sup.Start(openAIRequest("browse"))
	require.NoError(t, err)
	waitRun(t, run)

	events := f.events.snapshot()
	assert.Equal(t, types.Event{Type: types.EventTypeError, Data: "LLM quota exceeded"}, events[len(events)-2])
	assert.Equal(t, types.NewLogEvent(MsgSessionClosed), events[len(events)-1])

	var execErr *ExecutionError
	require.ErrorAs(t, run.Err(), &execErr)
	assert.Equal(t, StageAgent, execErr.Stage)
	assert.Equal(t, 1, f.launcher.context.CloseCalls())
	assert.Equal(t, 1, f.launcher.browser.CloseCalls())
	assert.False(t, f.sup.Active())
}

func TestAgentPanicIsRecovered(t *testing.T) {
	f := newFixture(t, func(agent.Params) (agent.Runner, error) {
		return runnerFunc(func(context.Context, int) (*agent.History, error) {
			panic("nil map write")
		}), nil
	})

	run, err := f.sup.Start(openAIRequest("browse"))
	require.NoError(t, err)
	waitRun(t, run)

	events := f.events.snapshot()
	assert.Equal(t, types.Event{Type: types.EventTypeError, Data: "panic: nil map write"}, events[len(events)-2])
	assert.Equal(t, types.NewLogEvent(MsgSessionClosed), events[len(events)-1])
	assert.Equal(t, 1, f.launcher.context.CloseCalls())
	assert.Equal(t, 1, f.launcher.browser.CloseCalls())
	assert.False(t, f.sup.Active())
}

func TestMissingCredentialAcquiresNothing(t *testing.T) {
	f := newFixture(t, nil)
	t.Setenv("DEEPSEEK_API_KEY", "")

	run, err := f.sup.Start(types.RunRequest{Task: "browse", Provider: "deepseek"})
	require.NoError(t, err)
	waitRun(t, run)

	assert.Equal(t, []types.Event{
		{Type: types.EventTypeError, Data: "DeepSeek API key not found! Please set the DEEPSEEK_API_KEY environment variable or provide it in the UI."},
		types.NewLogEvent(MsgSessionClosed),
	}, f.events.snapshot())

	var missing *MissingCredentialError
	assert.ErrorAs(t, run.Err(), &missing)
	assert.Zero(t, f.launcher.launches())
	assert.Empty(t, f.llmCfgs)
	assert.Zero(t, f.launcher.browser.CloseCalls())
}

func TestExplicitKeyWinsOverEnvironment(t *testing.T) {
	f := newFixture(t, func(agent.Params) (agent.Runner, error) {
		return runnerFunc(func(context.Context, int) (*agent.History, error) { return &agent.History{}, nil }), nil
	})
	req := openAIRequest("browse")
	req.APIKey = "sk-explicit"

	run, err := f.sup.Start(req)
	require.NoError(t, err)
	waitRun(t, run)

	require.Len(t, f.llmCfgs, 1)
	assert.Equal(t, "sk-explicit", f.llmCfgs[0].APIKey)
}

func TestLaunchFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.launcher.err = errors.New("chromium not installed")

	run, err := f.sup.Start(openAIRequest("browse"))
	require.NoError(t, err)
	waitRun(t, run)

	assert.Equal(t, []types.Event{
		types.NewLogEvent(MsgBrowserStarting),
		{Type: types.EventTypeError, Data: "chromium not installed"},
		types.NewLogEvent(MsgSessionClosed),
	}, f.events.snapshot())
	assert.Zero(t, f.launcher.browser.CloseCalls())
}

func TestTeardownErrorsAreSwallowed(t *testing.T) {
	f := newFixture(t, func(agent.Params) (agent.Runner, error) {
		return runnerFunc(func(context.Context, int) (*agent.History, error) { return &agent.History{}, nil }), nil
	})
	f.launcher.context.CloseErr = errors.New("context already gone")

	run, err := f.sup.Start(openAIRequest("browse"))
	require.NoError(t, err)
	waitRun(t, run)

	assert.NoError(t, run.Err())
	assert.Equal(t, 1, f.launcher.browser.CloseCalls(), "browser closed after context failure")
	assert.Contains(t, f.logs.String(), "Error while closing browser session")
	events := f.events.snapshot()
	assert.Equal(t, types.NewLogEvent(MsgSessionClosed), events[len(events)-1])
}

func TestInvalidRequestIsRejected(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.sup.Start(types.RunRequest{Task: "   "})
	assert.ErrorContains(t, err, "task is required")
	assert.False(t, f.sup.Active())
}

func TestAdmissionRaceAdmitsExactlyOne(t *testing.T) {
	release := make(chan struct{})
	var agentsBuilt atomic.Int32
	f := newFixture(t, func(agent.Params) (agent.Runner, error) {
		agentsBuilt.Add(1)
		return runnerFunc(func(context.Context, int) (*agent.History, error) {
			<-release
			return &agent.History{}, nil
		}), nil
	})

	const callers = 50
	var (
		wg       sync.WaitGroup
		admitted atomic.Int32
		rejected atomic.Int32
		runs     = make(chan *Run, callers)
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			run, err := f.sup.Start(openAIRequest("race"))
			switch {
			case err == nil:
				admitted.Add(1)
				runs <- run
			case errors.Is(err, ErrRunInProgress):
				rejected.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), admitted.Load())
	assert.Equal(t, int32(callers-1), rejected.Load())
	assert.True(t, f.sup.Active())

	close(release)
	waitRun(t, <-runs)
	assert.Equal(t, int32(1), agentsBuilt.Load())
	assert.Equal(t, 1, f.launcher.launches())
}

func TestRejectedStartDoesNotDisturbRun(t *testing.T) {
	release := make(chan struct{})
	f := newFixture(t, func(agent.Params) (agent.Runner, error) {
		return runnerFunc(func(context.Context, int) (*agent.History, error) {
			<-release
			return &agent.History{}, nil
		}), nil
	})

	first, err := f.sup.Start(openAIRequest("first"))
	require.NoError(t, err)

	_, err = f.sup.Start(openAIRequest("second"))
	assert.ErrorIs(t, err, ErrRunInProgress)
	assert.Same(t, first, f.sup.Current())

	require.Eventually(t, func() bool { return f.sup.Pages() != nil }, time.Second, 5*time.Millisecond)
	assert.Len(t, f.sup.Pages(), 1)

	close(release)
	waitRun(t, first)

	// the run state resets and a new run can be admitted
	second, err := f.sup.Start(openAIRequest("second"))
	require.NoError(t, err)
	waitRun(t, second)
	assert.Equal(t, 2, f.launcher.launches())
}

func TestShutdownCancelsStuckRun(t *testing.T) {
	f := newFixture(t, func(agent.Params) (agent.Runner, error) {
		return runnerFunc(func(ctx context.Context, _ int) (*agent.History, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}), nil
	})

	run, err := f.sup.Start(openAIRequest("forever"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = f.sup.Shutdown(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	waitRun(t, run)
	assert.ErrorIs(t, run.Err(), context.Canceled)
	assert.Equal(t, 1, f.launcher.browser.CloseCalls())
}

func TestStartAfterShutdownIsRejected(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.sup.Shutdown(context.Background()))

	run, err := f.sup.Start(openAIRequest("too late"))
	assert.Nil(t, run)
	assert.ErrorIs(t, err, ErrShuttingDown)
	assert.False(t, f.sup.Active())
	assert.Equal(t, 0, f.launcher.launches())
}

func TestShutdownClosesAdmissionWhileWaiting(t *testing.T) {
	release := make(chan struct{})
	f := newFixture(t, func(agent.Params) (agent.Runner, error) {
		return runnerFunc(func(context.Context, int) (*agent.History, error) {
			<-release
			return &agent.History{}, nil
		}), nil
	})

	run, err := f.sup.Start(openAIRequest("first"))
	require.NoError(t, err)

	shutdown := make(chan error, 1)
	go func() { shutdown <- f.sup.Shutdown(context.Background()) }()

	assert.Eventually(t, func() bool {
		_, err := f.sup.Start(openAIRequest("second"))
		return errors.Is(err, ErrShuttingDown)
	}, 2*time.Second, 5*time.Millisecond)

	close(release)
	waitRun(t, run)
	require.NoError(t, <-shutdown)
	assert.Equal(t, 1, f.launcher.launches())
}

func TestWaitWithoutRun(t *testing.T) {
	f := newFixture(t, nil)
	assert.NoError(t, f.sup.Wait(context.Background()))
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Options{Launcher: newFakeLauncher()})
	assert.Error(t, err)
	_, err = New(Options{Broadcaster: &eventLog{}})
	assert.Error(t, err)
}
