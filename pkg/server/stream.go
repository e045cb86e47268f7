package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"nhooyr.io/websocket"

	"github.com/entrhq/webpilot/pkg/broadcast"
	"github.com/entrhq/webpilot/pkg/snapshot"
	"github.com/entrhq/webpilot/pkg/supervisor"
	"github.com/entrhq/webpilot/pkg/types"
)

const (
	wsPingInterval = 20 * time.Second
	wsPingTimeout  = 5 * time.Second

	// drainTimeout bounds how long a closing stream waits for its queued
	// events to be written.
	drainTimeout = 5 * time.Second

	// closeTimeout bounds the close handshake once the server is shutting down.
	closeTimeout = time.Second
)

// wsObserver writes events to one websocket connection.
type wsObserver struct {
	conn *websocket.Conn
	id   string
}

func (o *wsObserver) Send(ctx context.Context, event types.Event) error {
	data, err := event.Marshal()
	if err != nil {
		return err
	}
	return o.conn.Write(ctx, websocket.MessageText, data)
}

// handleStream serves /ws/stream. The connection receives every broadcast
// event from registration on, plus screenshots of the active page while a
// run is in flight. It is closed once that run ends, or after the grace
// period when no run is active.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		s.log.Warnf("WebSocket upgrade failed: %v", err)
		return
	}

	s.streams.Add(1)
	defer s.streams.Done()

	obs := &wsObserver{conn: conn, id: middleware.GetReqID(r.Context())}
	sub := s.hub.Register(obs)
	s.log.Infof("Client connected (%s), %d observer(s)", obs.id, s.hub.Count())

	// No inbound messages are expected; CloseRead surfaces the remote close.
	// Cancelling readCtx tears the connection down, so it is only cancelled
	// once queued events are flushed.
	readCtx, abortRead := context.WithCancel(context.Background())
	defer abortRead()
	remote := conn.CloseRead(readCtx)

	ctx, cancel := context.WithCancel(remote)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()
	startWSPing(ctx, conn)

	if run := s.awaitRun(ctx, sub); run != nil {
		s.hold(ctx, obs, sub, run)
	}

	s.hub.Unregister(obs)
	select {
	case <-sub.Done():
	case <-time.After(drainTimeout):
		s.log.Warnf("Timed out flushing events to %s", obs.id)
	}

	if remote.Err() != nil {
		s.log.Infof("Client disconnected.")
	}
	if err := sub.Err(); err != nil {
		// The observer was evicted and missed events.
		s.log.Warnf("Stream %s lost events: %v", obs.id, err)
		s.closeConn(conn, abortRead, websocket.StatusInternalError, "events lost")
		return
	}
	if s.ctx.Err() != nil {
		s.closeConn(conn, abortRead, websocket.StatusGoingAway, "server shutting down")
		return
	}
	s.closeConn(conn, abortRead, websocket.StatusNormalClosure, "")
}

// closeConn sends a close frame. During shutdown the handshake is bounded:
// abort drops the connection if the peer has not answered by closeTimeout.
func (s *Server) closeConn(conn *websocket.Conn, abort context.CancelFunc, code websocket.StatusCode, reason string) {
	if s.ctx.Err() == nil {
		_ = conn.Close(code, reason)
		return
	}
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		_ = conn.Close(code, reason)
	}()
	select {
	case <-closed:
	case <-time.After(closeTimeout):
		abort()
		<-closed
	}
}

// awaitRun waits out the grace period and returns the run in flight, if any.
func (s *Server) awaitRun(ctx context.Context, sub *broadcast.Subscription) *supervisor.Run {
	timer := time.NewTimer(s.cfg.Server.StreamGracePeriod)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil
	case <-sub.Done():
		return nil
	case <-timer.C:
	}
	return s.sup.Current()
}

// hold streams screenshots to obs until run ends, ctx is cancelled, or the
// hub drops the subscription.
func (s *Server) hold(ctx context.Context, obs *wsObserver, sub *broadcast.Subscription, run *supervisor.Run) {
	pollCtx, stopPoller := context.WithCancel(ctx)
	poller := snapshot.New(s.sup, func(e types.Event) {
		s.hub.Deliver(obs, e)
	}, snapshot.Options{
		Interval: s.cfg.Stream.Interval,
		Quality:  s.cfg.Stream.JPEGQuality,
		Logger:   s.log,
	})

	pollerDone := make(chan struct{})
	go func() {
		defer close(pollerDone)
		poller.RunWhile(pollCtx, s.sup.Active)
	}()

	select {
	case <-ctx.Done():
	case <-run.Done():
	case <-sub.Done():
	}
	stopPoller()
	<-pollerDone
}

func startWSPing(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(wsPingInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				pingCtx, cancel := context.WithTimeout(ctx, wsPingTimeout)
				_ = conn.Ping(pingCtx)
				cancel()
			}
		}
	}()
}
