// Package relay turns the agent's info logs into log events for observers
// while a run is in progress.
//
// The interceptor is handed to the agent as its LogSink. Info lines are
// formatted and broadcast; warnings and errors keep going to the prior sink
// only. After Uninstall every call goes to the prior sink.
package relay

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"github.com/entrhq/webpilot/pkg/agent"
	"github.com/entrhq/webpilot/pkg/broadcast"
	"github.com/entrhq/webpilot/pkg/types"
)

// Interceptor is an agent.LogSink that broadcasts info lines.
type Interceptor struct {
	prior       agent.LogSink
	broadcaster broadcast.Broadcaster
	detached    atomic.Bool
	once        sync.Once
}

var _ agent.LogSink = (*Interceptor)(nil)

// Install wraps prior. A nil prior discards non-broadcast output.
func Install(prior agent.LogSink, b broadcast.Broadcaster) *Interceptor {
	if prior == nil {
		prior = agent.NopSink
	}
	return &Interceptor{prior: prior, broadcaster: b}
}

// Uninstall detaches the interceptor and returns the prior sink. Only the
// first call has an effect.
func (i *Interceptor) Uninstall() agent.LogSink {
	i.once.Do(func() {
		i.detached.Store(true)
	})
	return i.prior
}

// Installed reports whether info lines are still broadcast.
func (i *Interceptor) Installed() bool {
	return !i.detached.Load()
}

// Infof broadcasts the formatted line. It only enqueues and never waits on
// observers.
func (i *Interceptor) Infof(format string, args ...any) {
	if i.detached.Load() {
		i.prior.Infof(format, args...)
		return
	}
	i.broadcaster.Broadcast(types.NewLogEvent(Format(format, args...)))
}

func (i *Interceptor) Warnf(format string, args ...any) {
	i.prior.Warnf(format, args...)
}

func (i *Interceptor) Errorf(format string, args ...any) {
	i.prior.Errorf(format, args...)
}

// Format applies args to template with fmt semantics. Without args the
// template is returned as is. The raw template is also returned when the
// directives do not match args: a count mismatch, a verb the argument cannot
// take, a panicking Stringer, or explicit argument indexes.
func Format(template string, args ...any) (out string) {
	if len(args) == 0 {
		return template
	}
	defer func() {
		if recover() != nil {
			out = template
		}
	}()

	lits, dirs, ok := parse(template)
	if !ok {
		return template
	}
	need := 0
	for _, d := range dirs {
		need += d.nargs
	}
	if need != len(args) {
		return template
	}

	var b strings.Builder
	next := 0
	for k, d := range dirs {
		b.WriteString(lits[k])
		piece := fmt.Sprintf(d.spec, args[next:next+d.nargs]...)
		next += d.nargs
		if strings.HasPrefix(piece, "%!(") || strings.HasPrefix(piece, "%!"+string(d.verb)+"(") {
			return template
		}
		b.WriteString(piece)
	}
	b.WriteString(lits[len(dirs)])
	return b.String()
}

// directive is one %-verb of a template, such as "%-8.3f". nargs counts
// the * width and precision it consumes along with its operand.
type directive struct {
	spec  string
	verb  rune
	nargs int
}

// parse splits template into len(dirs)+1 literal runs around its
// directives. It fails on a trailing % or an explicit argument index.
func parse(template string) (lits []string, dirs []directive, ok bool) {
	start := 0
	for i := 0; i < len(template); {
		if template[i] != '%' {
			i++
			continue
		}
		lits = append(lits, template[start:i])
		d, n, good := scanDirective(template[i:])
		if !good {
			return nil, nil, false
		}
		dirs = append(dirs, d)
		i += n
		start = i
	}
	lits = append(lits, template[start:])
	return lits, dirs, true
}

func scanDirective(s string) (directive, int, bool) {
	var d directive
	i := 1
	for i < len(s) && strings.IndexByte("+-# 0", s[i]) >= 0 {
		i++
	}
	i = skipNum(s, i, &d)
	if i < len(s) && s[i] == '.' {
		i = skipNum(s, i+1, &d)
	}
	if i >= len(s) || s[i] == '[' {
		return d, 0, false
	}
	r, size := utf8.DecodeRuneInString(s[i:])
	i += size
	d.verb = r
	d.spec = s[:i]
	if r != '%' {
		d.nargs++
	}
	return d, i, true
}

func skipNum(s string, i int, d *directive) int {
	if i < len(s) && s[i] == '*' {
		d.nargs++
		return i + 1
	}
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	return i
}
