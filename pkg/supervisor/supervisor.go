// Package supervisor admits and executes at most one agent run at a time.
//
// A run acquires an LLM client and a browser session, hands them to the
// agent, and reports progress to observers through a Broadcaster:
//
//	log("Browser starting...")
//	log("Agent starting for task: ...")
//	log(...)                      agent progress
//	result(<final text or null>)  or error(<message>)
//	log("Session closed.")
//
// Teardown runs on every exit path, including panics inside the agent.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/webpilot/pkg/agent"
	"github.com/entrhq/webpilot/pkg/broadcast"
	"github.com/entrhq/webpilot/pkg/browser"
	"github.com/entrhq/webpilot/pkg/config"
	"github.com/entrhq/webpilot/pkg/llm"
	"github.com/entrhq/webpilot/pkg/llm/openai"
	"github.com/entrhq/webpilot/pkg/logging"
	"github.com/entrhq/webpilot/pkg/metrics"
	"github.com/entrhq/webpilot/pkg/relay"
	"github.com/entrhq/webpilot/pkg/types"
)

// Messages broadcast around a run.
const (
	MsgBrowserStarting = "Browser starting..."
	MsgSessionClosed   = "Session closed."
)

// abortGrace bounds how long Shutdown waits after cancelling a run.
const abortGrace = 5 * time.Second

// Launcher acquires a browser session. *browser.Launcher implements it.
type Launcher interface {
	Launch(ctx context.Context, opts browser.LaunchOptions) (*browser.Session, error)
}

// AgentFactory builds the agent for a run.
type AgentFactory func(agent.Params) (agent.Runner, error)

// DefaultAgentFactory builds the step-loop agent.
func DefaultAgentFactory(p agent.Params) (agent.Runner, error) {
	a, err := agent.New(p)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Options wires a Supervisor to its collaborators.
type Options struct {
	Broadcaster broadcast.Broadcaster
	Launcher    Launcher

	// LLMFactory defaults to openai.NewClient.
	LLMFactory llm.Factory

	// AgentFactory defaults to DefaultAgentFactory.
	AgentFactory AgentFactory

	LaunchOptions browser.LaunchOptions
	AgentConfig   agent.Config
	MaxSteps      int

	Logger *logging.Logger
}

// Run is one admitted agent run.
type Run struct {
	ID        string
	Request   types.RunRequest
	StartedAt time.Time

	done   chan struct{}
	err    error
	result *string
}

// Done is closed after the run's final "Session closed." event.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Err returns the run's failure, if any. Only meaningful after Done.
func (r *Run) Err() error {
	select {
	case <-r.done:
		return r.err
	default:
		return nil
	}
}

// Result returns the agent's final result. Only meaningful after Done.
func (r *Run) Result() (string, bool) {
	select {
	case <-r.done:
	default:
		return "", false
	}
	if r.result == nil {
		return "", false
	}
	return *r.result, true
}

// Supervisor owns the run state.
type Supervisor struct {
	opts Options
	log  *logging.Logger

	// ctx outlives HTTP requests; cancel aborts an in-flight run on shutdown.
	ctx    context.Context
	cancel context.CancelFunc

	// admitMu orders admission against Shutdown so no run starts unseen
	// once closing is set.
	admitMu sync.Mutex
	closing bool
	current atomic.Pointer[Run]

	sessionMu sync.RWMutex
	session   *browser.Session
}

// New creates a supervisor.
func New(opts Options) (*Supervisor, error) {
	if opts.Broadcaster == nil {
		return nil, errors.New("broadcaster is required")
	}
	if opts.Launcher == nil {
		return nil, errors.New("launcher is required")
	}
	if opts.LLMFactory == nil {
		opts.LLMFactory = openai.NewClient
	}
	if opts.AgentFactory == nil {
		opts.AgentFactory = DefaultAgentFactory
	}
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = agent.DefaultMaxSteps
	}
	if opts.Logger == nil {
		opts.Logger = logging.MustLogger("supervisor")
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		opts:   opts,
		log:    opts.Logger,
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Start admits req and executes it in the background. It returns
// ErrRunInProgress when a run is already in flight, without affecting it,
// and ErrShuttingDown once Shutdown has been called.
func (s *Supervisor) Start(req types.RunRequest) (*Run, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	run := &Run{
		ID:        uuid.NewString(),
		Request:   req,
		StartedAt: time.Now(),
		done:      make(chan struct{}),
	}
	s.admitMu.Lock()
	if s.closing {
		s.admitMu.Unlock()
		metrics.RunsRejected.Inc()
		return nil, ErrShuttingDown
	}
	admitted := s.current.CompareAndSwap(nil, run)
	s.admitMu.Unlock()
	if !admitted {
		metrics.RunsRejected.Inc()
		return nil, ErrRunInProgress
	}

	metrics.RunsStarted.Inc()
	metrics.RunActive.Set(1)
	s.log.Infof("Run %s admitted: %s", run.ID, req.Task)

	go s.execute(run)
	return run, nil
}

// Active reports whether a run is in flight.
func (s *Supervisor) Active() bool {
	return s.current.Load() != nil
}

// Current returns the in-flight run, or nil.
func (s *Supervisor) Current() *Run {
	return s.current.Load()
}

// Pages returns the pages of the current browser session, or nil when no
// session is open.
func (s *Supervisor) Pages() []playwright.Page {
	s.sessionMu.RLock()
	defer s.sessionMu.RUnlock()
	if s.session == nil {
		return nil
	}
	return s.session.Pages()
}

// Wait blocks until no run is in flight or ctx ends.
func (s *Supervisor) Wait(ctx context.Context) error {
	for {
		run := s.current.Load()
		if run == nil {
			return nil
		}
		select {
		case <-run.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Shutdown stops admitting runs and waits for the in-flight one. If ctx
// ends first the run is cancelled and given a short grace period to tear
// down.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.admitMu.Lock()
	s.closing = true
	s.admitMu.Unlock()

	err := s.Wait(ctx)
	if err == nil {
		s.cancel()
		return nil
	}

	s.log.Warnf("Shutdown timed out waiting for run, cancelling it")
	s.cancel()
	graceCtx, cancel := context.WithTimeout(context.Background(), abortGrace)
	defer cancel()
	if waitErr := s.Wait(graceCtx); waitErr != nil {
		s.log.Errorf("Run did not tear down after cancellation: %v", waitErr)
	}
	return err
}

func (s *Supervisor) publish(session *browser.Session) {
	s.sessionMu.Lock()
	s.session = session
	s.sessionMu.Unlock()
}

func (s *Supervisor) broadcast(e types.Event) {
	s.opts.Broadcaster.Broadcast(e)
}

func (s *Supervisor) execute(run *Run) {
	var (
		session *browser.Session
		sink    *relay.Interceptor
	)

	defer s.teardown(run, &session, &sink)
	defer func() {
		if r := recover(); r != nil {
			s.fail(run, &ExecutionError{Stage: StagePanic, Err: fmt.Errorf("panic: %v", r)})
		}
	}()

	req := run.Request

	apiKey, envVar := config.ResolveAPIKey(req.APIKey, req.Provider)
	if apiKey == "" {
		s.fail(run, &MissingCredentialError{Provider: req.Provider, EnvVar: envVar})
		return
	}

	provider, err := s.opts.LLMFactory(llm.ClientConfig{
		Provider:    req.Provider,
		Model:       config.ResolveModel(req.ModelName, req.Provider),
		Temperature: req.GetTemperature(),
		BaseURL:     req.BaseURL,
		APIKey:      apiKey,
	})
	if err != nil {
		s.fail(run, &ExecutionError{Stage: StageLLM, Err: err})
		return
	}

	s.broadcast(types.NewLogEvent(MsgBrowserStarting))
	session, err = s.opts.Launcher.Launch(s.ctx, s.opts.LaunchOptions)
	if err != nil {
		s.fail(run, &ExecutionError{Stage: StageBrowser, Err: err})
		return
	}
	s.publish(session)

	sink = relay.Install(s.log, s.opts.Broadcaster)
	sink.Infof("Agent starting for task: %s", req.Task)

	runner, err := s.opts.AgentFactory(agent.Params{
		Task:    req.Task,
		LLM:     provider,
		Browser: session,
		Sink:    sink,
		Config:  s.opts.AgentConfig,
	})
	if err != nil {
		s.fail(run, &ExecutionError{Stage: StageAgent, Err: err})
		return
	}

	history, err := runner.Run(s.ctx, s.opts.MaxSteps)
	if err != nil {
		s.fail(run, &ExecutionError{Stage: StageAgent, Err: err})
		return
	}

	var data any
	if text, ok := history.FinalResult(); ok {
		run.result = &text
		data = text
	}
	s.log.Infof("✅ Agent finished. Final result: %v", data)
	s.broadcast(types.NewResultEvent(data))
}

func (s *Supervisor) fail(run *Run, err error) {
	run.err = err
	s.log.Errorf("❌ Agent run %s failed (%s): %v", run.ID, stageOf(err), err)
	s.broadcast(types.NewErrorEvent(err))
}

func (s *Supervisor) teardown(run *Run, session **browser.Session, sink **relay.Interceptor) {
	if *sink != nil {
		(*sink).Uninstall()
	}

	s.publish(nil)
	if *session != nil {
		if err := (*session).Close(); err != nil {
			s.log.Warnf("Error while closing browser session: %v", err)
		}
	}

	outcome := metrics.OutcomeSuccess
	if run.err != nil {
		outcome = metrics.OutcomeError
	}
	metrics.RunsFinished.WithLabelValues(outcome).Inc()
	metrics.RunDuration.Observe(time.Since(run.StartedAt).Seconds())
	metrics.RunActive.Set(0)

	s.current.CompareAndSwap(run, nil)
	s.broadcast(types.NewLogEvent(MsgSessionClosed))
	s.log.Infof("Run %s finished in %s", run.ID, time.Since(run.StartedAt).Round(time.Millisecond))
	close(run.done)
}
