package relay

import (
	"context"
	"errors"
	"io"
	"time"
	"unicode/utf8"

	"graphrag-gateway/internal/pkg/logger"
)

const (
	logModule        = "StreamRelay"
	defaultChunkSize = 4096

	msgUnavailable = "LLM service unavailable"
	msgBadStatus   = "LLM service returned an error"
)

// Sink accepts outbound events in order. A non-nil error means the client
// can no longer receive anything.
type Sink interface {
	Send(event Event) error
}

// SinkFunc adapts a plain function to Sink.
type SinkFunc func(event Event) error

func (f SinkFunc) Send(event Event) error { return f(event) }

// Request is everything one exchange needs from the caller.
type Request struct {
	Query   string
	Context []string
	Sources []Citation
}

// Termination says which path led to the terminal state.
type Termination string

const (
	TermCompleted      Termination = "completed"
	TermDialFailed     Termination = "dial_failed"
	TermUpstreamStatus Termination = "upstream_status"
	TermReadError      Termination = "read_error"
	TermClientGone     Termination = "client_gone"
)

// Outcome summarises a finished exchange for logs and metrics.
type Outcome struct {
	Termination    Termination
	Tokens         int
	SkippedChunks  int
	DiscardedLines int
	Duration       time.Duration
}

type state int

const (
	stateAnnounce state = iota
	stateDial
	stateDrain
	stateTerminate
)

// Relay turns one upstream generation stream into the client event sequence:
// sources first, then tokens, then a single done marker.
type Relay struct {
	generator Generator
	logger    logger.ILogger
	timeout   time.Duration
	chunkSize int
}

// New creates a relay. A zero timeout leaves the upstream call unbounded.
func New(generator Generator, log logger.ILogger, timeout time.Duration) *Relay {
	return &Relay{
		generator: generator,
		logger:    log,
		timeout:   timeout,
		chunkSize: defaultChunkSize,
	}
}

type exchange struct {
	sink       Sink
	outcome    Outcome
	clientGone bool
}

func (ex *exchange) emit(event Event) bool {
	if ex.clientGone {
		return false
	}
	if err := ex.sink.Send(event); err != nil {
		ex.clientGone = true
		ex.outcome.Termination = TermClientGone
		return false
	}
	return true
}

// Run drives one exchange to completion. It never fails: every upstream
// problem becomes an error event or a silent stop, and the done marker is
// always the last event unless the client has already gone away.
func (r *Relay) Run(ctx context.Context, sink Sink, req Request) (out Outcome) {
	started := time.Now()

	var cancel context.CancelFunc
	if r.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	ex := &exchange{sink: sink, outcome: Outcome{Termination: TermCompleted}}

	var body io.ReadCloser
	defer func() {
		if body != nil {
			body.Close()
		}
		ex.emit(DoneEvent())
		ex.outcome.Duration = time.Since(started)
		out = ex.outcome
	}()

	st := stateAnnounce
	for st != stateTerminate {
		switch st {
		case stateAnnounce:
			st = stateDial
			if !ex.emit(SourcesEvent(req.Sources)) {
				st = stateTerminate
			}
		case stateDial:
			body, st = r.dial(ctx, ex, req)
		case stateDrain:
			r.drain(ex, body)
			st = stateTerminate
		}
	}
	return ex.outcome
}

func (r *Relay) dial(ctx context.Context, ex *exchange, req Request) (io.ReadCloser, state) {
	body, err := r.generator.OpenStream(ctx, req.Query, req.Context)
	if err == nil {
		return body, stateDrain
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		r.logger.Error(logModule, "Generation service returned non-success status", map[string]interface{}{
			"status": statusErr.StatusCode,
		})
		ex.outcome.Termination = TermUpstreamStatus
		ex.emit(ErrorEvent(msgBadStatus))
		return nil, stateTerminate
	}

	r.logger.Error(logModule, "Generation service request failed", map[string]interface{}{
		"error": err,
	})
	ex.outcome.Termination = TermDialFailed
	ex.emit(ErrorEvent(msgUnavailable))
	return nil, stateTerminate
}

func (r *Relay) drain(ex *exchange, body io.Reader) {
	chunk := make([]byte, r.chunkSize)
	var pending, carry []byte

	for {
		n, readErr := body.Read(chunk)
		if n > 0 {
			data := chunk[:n]
			if len(carry) > 0 {
				data = append(carry, data...)
			}
			// A character cut by the read boundary waits for the next read.
			cut := len(data) - incompleteSuffix(data)
			carry = append([]byte(nil), data[cut:]...)
			data = data[:cut]

			if !utf8.Valid(data) {
				ex.outcome.SkippedChunks++
				r.logger.Warn(logModule, "Skipping chunk with invalid UTF-8", map[string]interface{}{
					"bytes": len(data),
				})
			} else {
				var lines []string
				lines, pending = SplitLines(pending, data)
				for _, line := range lines {
					content, ok := ParseDataLine(line)
					if !ok {
						ex.outcome.DiscardedLines++
						continue
					}
					if !ex.emit(TokenEvent(content)) {
						return
					}
					ex.outcome.Tokens++
				}
			}
		}

		if readErr == io.EOF {
			return
		}
		if readErr != nil {
			r.logger.Error(logModule, "Error reading generation stream chunk", map[string]interface{}{
				"error": readErr,
			})
			ex.outcome.Termination = TermReadError
			return
		}
	}
}

// incompleteSuffix reports how many trailing bytes of p start a multi-byte
// character that is not finished yet.
func incompleteSuffix(p []byte) int {
	for i := 1; i < utf8.UTFMax && i <= len(p); i++ {
		if utf8.RuneStart(p[len(p)-i]) {
			if utf8.FullRune(p[len(p)-i:]) {
				return 0
			}
			return i
		}
	}
	return 0
}
