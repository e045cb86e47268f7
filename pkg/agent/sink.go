package agent

// LogSink receives the agent's progress log. *logging.Logger satisfies it,
// and the supervisor injects a sink that also relays info lines to observers.
type LogSink interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

type nopSink struct{}

func (nopSink) Infof(string, ...any)  {}
func (nopSink) Warnf(string, ...any)  {}
func (nopSink) Errorf(string, ...any) {}

// NopSink discards everything.
var NopSink LogSink = nopSink{}
