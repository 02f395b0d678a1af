package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/traffic.replay/internal/monitoring"
	"github.com/banshee-data/traffic.replay/internal/protocol"
	"github.com/banshee-data/traffic.replay/internal/timeutil"
)

var streamLogf = monitoring.Prefixed("Stream")

// Pacing defaults.
const (
	DefaultFPS    = 25.0
	DefaultMaxFPS = 60.0
)

// Sink delivers messages to one client in send order. A returned error ends
// the stream that produced the message.
type Sink interface {
	Send(ctx context.Context, msg protocol.Message) error
}

// StreamerConfig bounds the requested frame rate.
type StreamerConfig struct {
	DefaultFPS float64
	MaxFPS     float64
}

// Request starts one stream.
type Request struct {
	SessionID string
	ClientID  string
	Transport string
	FPS       float64 // <= 0 selects the default
}

// Result summarises a finished stream.
type Result struct {
	SessionID   string
	TotalFrames int
	FramesSent  int
	FPS         float64
	Outcome     string
	Err         error
}

type streamKey struct {
	sessionID string
	clientID  string
}

type activeStream struct {
	cancel    context.CancelFunc
	done      chan struct{}
	startedAt time.Time
}

// Streamer paces session frames to sinks. Each (session, client) pair may
// have at most one active stream; every stream runs as its own cancellable
// task so one client's pacing never delays another's.
type Streamer struct {
	registry *Registry
	clock    timeutil.Clock
	cfg      StreamerConfig

	mu     sync.Mutex
	active map[streamKey]*activeStream
	wg     sync.WaitGroup
}

// NewStreamer creates a streamer over a registry. A nil clock uses real time.
func NewStreamer(reg *Registry, cfg StreamerConfig, clock timeutil.Clock) *Streamer {
	if cfg.DefaultFPS <= 0 {
		cfg.DefaultFPS = DefaultFPS
	}
	if cfg.MaxFPS <= 0 {
		cfg.MaxFPS = DefaultMaxFPS
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Streamer{
		registry: reg,
		clock:    clock,
		cfg:      cfg,
		active:   make(map[streamKey]*activeStream),
	}
}

// ResolveFPS applies the default for non-positive rates and the cap.
func (s *Streamer) ResolveFPS(fps float64) float64 {
	if fps <= 0 {
		fps = s.cfg.DefaultFPS
	}
	if fps > s.cfg.MaxFPS {
		fps = s.cfg.MaxFPS
	}
	return fps
}

// StartStream validates the request and delivers the session's frames in a
// background task bound to ctx. Rejections are reported to the sink as an
// error message and returned; no state changes in that case.
func (s *Streamer) StartStream(ctx context.Context, req Request, sink Sink) error {
	sess, st, streamCtx, err := s.acquire(ctx, &req, sink)
	if err != nil {
		return err
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.deliver(streamCtx, sess, st, req, sink)
	}()
	return nil
}

// Run is the blocking form of StartStream, for transports that serve one
// stream per call.
func (s *Streamer) Run(ctx context.Context, req Request, sink Sink) (Result, error) {
	sess, st, streamCtx, err := s.acquire(ctx, &req, sink)
	if err != nil {
		return Result{SessionID: req.SessionID, Outcome: monitoring.OutcomeRejected, Err: err}, err
	}
	res := s.deliver(streamCtx, sess, st, req, sink)
	return res, res.Err
}

// StopStream cancels the active stream for (sessionID, clientID). The
// stream emits session_stream_stopped before it exits.
func (s *Streamer) StopStream(sessionID, clientID string) bool {
	s.mu.Lock()
	st, ok := s.active[streamKey{sessionID, clientID}]
	s.mu.Unlock()
	if ok {
		st.cancel()
	}
	return ok
}

// StopClient cancels every stream of a client, as when its connection closes.
func (s *Streamer) StopClient(clientID string) int {
	s.mu.Lock()
	var cancels []context.CancelFunc
	for k, st := range s.active {
		if k.clientID == clientID {
			cancels = append(cancels, st.cancel)
		}
	}
	s.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
	return len(cancels)
}

// Active returns the number of streams currently delivering.
func (s *Streamer) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Done returns a channel closed when the stream for (sessionID, clientID)
// ends, or nil if no such stream is active.
func (s *Streamer) Done(sessionID, clientID string) <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.active[streamKey{sessionID, clientID}]; ok {
		return st.done
	}
	return nil
}

// Wait blocks until every stream started with StartStream has returned.
func (s *Streamer) Wait() { s.wg.Wait() }

// Shutdown cancels all streams and waits for them, or for ctx.
func (s *Streamer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for _, st := range s.active {
		st.cancel()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Streamer) acquire(ctx context.Context, req *Request, sink Sink) (*Session, *activeStream, context.Context, error) {
	req.FPS = s.ResolveFPS(req.FPS)

	sess, err := s.registry.Get(req.SessionID)
	if err != nil {
		s.reject(ctx, sink, req, fmt.Sprintf("Session '%s' not found on server.", req.SessionID))
		return nil, nil, nil, err
	}
	if sess.TotalFrames() == 0 {
		s.reject(ctx, sink, req, fmt.Sprintf("Session '%s' has no frames to stream.", req.SessionID))
		return nil, nil, nil, ErrEmptyFrameBuffer
	}

	key := streamKey{req.SessionID, req.ClientID}
	s.mu.Lock()
	if _, busy := s.active[key]; busy {
		s.mu.Unlock()
		s.reject(ctx, sink, req, fmt.Sprintf("Session '%s' is already streaming to this client.", req.SessionID))
		return nil, nil, nil, ErrStreamActive
	}
	streamCtx, cancel := context.WithCancel(ctx)
	st := &activeStream{cancel: cancel, done: make(chan struct{}), startedAt: s.clock.Now()}
	s.active[key] = st
	s.mu.Unlock()

	sess.beginStream(st.startedAt)
	monitoring.StreamStarted()
	return sess, st, streamCtx, nil
}

func (s *Streamer) reject(ctx context.Context, sink Sink, req *Request, msg string) {
	monitoring.RecordStreamRejected()
	streamLogf("rejected %s for client %s: %s", req.SessionID, req.ClientID, msg)
	if err := sink.Send(ctx, protocol.Error(req.SessionID, msg)); err != nil {
		streamLogf("failed to send error to client %s: %v", req.ClientID, err)
	}
}

// deliver emits started, every frame in index order with a fixed pacing
// delay after each, then completed. It checks for cancellation between
// frames and stops on the first send error. The (session, client) slot is
// vacated and the session updated before the final message goes out, so a
// client reacting to completed or stopped may start again at once.
func (s *Streamer) deliver(ctx context.Context, sess *Session, st *activeStream, req Request, sink Sink) Result {
	key := streamKey{req.SessionID, req.ClientID}
	startedAt := st.startedAt
	res := Result{SessionID: sess.ID, TotalFrames: sess.TotalFrames(), FPS: req.FPS}
	defer func() {
		st.cancel()
		close(st.done)
	}()

	interval := time.Duration(float64(time.Second) / req.FPS)
	streamLogf("streaming %s to client %s: %d frames at %.1f fps", sess.ID, req.ClientID, res.TotalFrames, req.FPS)

	if err := sink.Send(ctx, protocol.StreamStarted(sess.ID, res.TotalFrames, req.FPS)); err != nil {
		res.Outcome, res.Err = s.classify(ctx, err)
	} else {
		res.Outcome = monitoring.OutcomeCompleted
		for i := range sess.Frames {
			if ctx.Err() != nil {
				res.Outcome = monitoring.OutcomeCancelled
				break
			}
			sendStart := time.Now()
			if err := sink.Send(ctx, protocol.Frame(sess.ID, i, &sess.Frames[i])); err != nil {
				res.Outcome, res.Err = s.classify(ctx, err)
				break
			}
			monitoring.RecordFrameSent(req.Transport, time.Since(sendStart).Seconds())
			res.FramesSent++
			if !s.pause(ctx, interval) {
				res.Outcome = monitoring.OutcomeCancelled
				break
			}
		}
	}

	finishedAt := s.clock.Now()
	s.vacate(key, st)
	sess.endStream(finishedAt, res.Outcome == monitoring.OutcomeCompleted)

	switch res.Outcome {
	case monitoring.OutcomeCompleted:
		if err := sink.Send(ctx, protocol.StreamCompleted(sess.ID)); err != nil {
			res.Outcome, res.Err = s.classify(ctx, err)
		}
	case monitoring.OutcomeCancelled:
		// The connection may still be open (explicit stop), so report it.
		if err := sink.Send(context.WithoutCancel(ctx), protocol.StreamStopped(sess.ID, res.FramesSent)); err != nil {
			streamLogf("could not report stop of %s to client %s: %v", sess.ID, req.ClientID, err)
		}
	}

	monitoring.StreamFinished(res.Outcome)
	if res.Err != nil {
		streamLogf("stream %s to client %s ended after %d/%d frames: %v", sess.ID, req.ClientID, res.FramesSent, res.TotalFrames, res.Err)
	} else {
		streamLogf("stream %s to client %s %s after %d/%d frames", sess.ID, req.ClientID, res.Outcome, res.FramesSent, res.TotalFrames)
	}

	run := StreamRun{
		SessionID:   sess.ID,
		ClientID:    req.ClientID,
		Transport:   req.Transport,
		FPS:         req.FPS,
		TotalFrames: res.TotalFrames,
		FramesSent:  res.FramesSent,
		Outcome:     res.Outcome,
		StartedAt:   startedAt,
		FinishedAt:  finishedAt,
	}
	if res.Err != nil {
		run.Error = res.Err.Error()
	}
	s.registry.recordRun(run)
	return res
}

func (s *Streamer) classify(ctx context.Context, err error) (string, error) {
	// A stalled sink may tear down its own context while failing the send.
	if errors.Is(err, ErrSinkStalled) {
		return monitoring.OutcomeSendError, fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	if ctx.Err() != nil {
		return monitoring.OutcomeCancelled, nil
	}
	return monitoring.OutcomeSendError, fmt.Errorf("%w: %v", ErrSendFailed, err)
}

func (s *Streamer) pause(ctx context.Context, d time.Duration) bool {
	t := s.clock.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C():
		return true
	}
}

// vacate frees the slot for (session, client) unless a newer stream
// already holds it.
func (s *Streamer) vacate(key streamKey, st *activeStream) {
	s.mu.Lock()
	if s.active[key] == st {
		delete(s.active, key)
	}
	s.mu.Unlock()
}
