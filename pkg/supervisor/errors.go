package supervisor

import (
	"errors"
	"fmt"

	"github.com/entrhq/webpilot/pkg/config"
)

// ErrRunInProgress is returned by Start while another run is in flight.
var ErrRunInProgress = errors.New("an agent is already running")

// ErrShuttingDown is returned by Start once Shutdown has begun.
var ErrShuttingDown = errors.New("server is shutting down")

// Stages at which a run can fail.
const (
	StageCredentials = "credentials"
	StageLLM         = "llm"
	StageBrowser     = "browser"
	StageAgent       = "agent"
	StagePanic       = "panic"
)

// MissingCredentialError means no API key was supplied or found in the
// environment. No resources have been acquired when it is returned.
type MissingCredentialError struct {
	Provider string
	EnvVar   string
}

func (e *MissingCredentialError) Error() string {
	return fmt.Sprintf("%s API key not found! Please set the %s environment variable or provide it in the UI.",
		config.DisplayName(e.Provider), e.EnvVar)
}

// ExecutionError wraps a failure during a run. Its text is the wrapped
// error's text so observers see the underlying message unchanged.
type ExecutionError struct {
	Stage string
	Err   error
}

func (e *ExecutionError) Error() string {
	return e.Err.Error()
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

func stageOf(err error) string {
	var missing *MissingCredentialError
	if errors.As(err, &missing) {
		return StageCredentials
	}
	var exec *ExecutionError
	if errors.As(err, &exec) {
		return exec.Stage
	}
	return "unknown"
}
