package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"graphrag-gateway/internal/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chunkReader hands out one chunk per Read and then fails with err (io.EOF
// when err is nil).
type chunkReader struct {
	chunks [][]byte
	err    error
	mu     sync.Mutex
	closed bool
}

func newChunkReader(err error, chunks ...string) *chunkReader {
	r := &chunkReader{err: err}
	for _, c := range chunks {
		r.chunks = append(r.chunks, []byte(c))
	}
	return r
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		return 0, io.EOF
	}
	n := copy(p, r.chunks[0])
	r.chunks[0] = r.chunks[0][n:]
	if len(r.chunks[0]) == 0 {
		r.chunks = r.chunks[1:]
	}
	return n, nil
}

func (r *chunkReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *chunkReader) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

type fakeGenerator struct {
	body        io.ReadCloser
	err         error
	gotQuery    string
	gotContext  []string
	calls       int
	openStreamF func(ctx context.Context) (io.ReadCloser, error)
}

func (g *fakeGenerator) OpenStream(ctx context.Context, query string, contextTexts []string) (io.ReadCloser, error) {
	g.calls++
	g.gotQuery = query
	g.gotContext = contextTexts
	if g.openStreamF != nil {
		return g.openStreamF(ctx)
	}
	return g.body, g.err
}

type recorder struct {
	events []Event
	failAt int // 1-based index of the Send that fails; 0 never fails
}

func (r *recorder) Send(e Event) error {
	if r.failAt > 0 && len(r.events)+1 >= r.failAt {
		return errors.New("client closed connection")
	}
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) bodies(t *testing.T) []string {
	t.Helper()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		b, err := json.Marshal(e)
		require.NoError(t, err)
		out = append(out, string(b))
	}
	return out
}

func assertWellFormed(t *testing.T, events []Event) {
	t.Helper()
	require.NotEmpty(t, events)
	assert.Equal(t, KindSources, events[0].Kind, "sources must come first")
	assert.Equal(t, KindDone, events[len(events)-1].Kind, "done must come last")
	sources, done := 0, 0
	for _, e := range events {
		switch e.Kind {
		case KindSources:
			sources++
		case KindDone:
			done++
		}
	}
	assert.Equal(t, 1, sources)
	assert.Equal(t, 1, done)
}

func newTestRelay(gen Generator) *Relay {
	return New(gen, logger.NewNopLogger(), 0)
}

func TestRunRelaysFragmentedStream(t *testing.T) {
	body := newChunkReader(nil,
		"data: {\"con", "tent\":\"Hel\"}\r\n",
		"\ndata: {\"content\":\"lo\"}\n: ping\nevent: x\ndata: not-json\n",
		"data: {\"done\":true}\n",
		"data: {\"content\":\"tail-without-newline\"}",
	)
	gen := &fakeGenerator{body: body}
	rec := &recorder{}
	sources := []Citation{{DocumentID: "d1", FileName: "a.md", Heading: "H", Score: 0.9}}

	out := newTestRelay(gen).Run(context.Background(), rec, Request{
		Query:   "what is graphrag",
		Context: []string{"ctx one", "ctx two"},
		Sources: sources,
	})

	assert.Equal(t, []string{
		`{"sources":[{"document_id":"d1","file_name":"a.md","heading":"H","score":0.9}]}`,
		`{"content":"Hel"}`,
		`{"content":"lo"}`,
		`{"done":true}`,
	}, rec.bodies(t))
	assertWellFormed(t, rec.events)

	assert.Equal(t, TermCompleted, out.Termination)
	assert.Equal(t, 2, out.Tokens)
	assert.Equal(t, "what is graphrag", gen.gotQuery)
	assert.Equal(t, []string{"ctx one", "ctx two"}, gen.gotContext)
	assert.True(t, body.isClosed())
}

func TestRunDialFailure(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("connection refused")}
	rec := &recorder{}

	out := newTestRelay(gen).Run(context.Background(), rec, Request{Query: "q"})

	assert.Equal(t, []string{
		`{"sources":[]}`,
		`{"error":"LLM service unavailable"}`,
		`{"done":true}`,
	}, rec.bodies(t))
	assert.Equal(t, TermDialFailed, out.Termination)
	assert.Equal(t, 1, gen.calls, "generation call is never retried")
}

func TestRunUpstreamStatus(t *testing.T) {
	gen := &fakeGenerator{err: &StatusError{StatusCode: http.StatusBadGateway}}
	rec := &recorder{}

	out := newTestRelay(gen).Run(context.Background(), rec, Request{Query: "q"})

	assert.Equal(t, []string{
		`{"sources":[]}`,
		`{"error":"LLM service returned an error"}`,
		`{"done":true}`,
	}, rec.bodies(t))
	assert.Equal(t, TermUpstreamStatus, out.Termination)
}

func TestRunReadErrorEndsSilently(t *testing.T) {
	body := newChunkReader(errors.New("connection reset by peer"),
		"data: {\"content\":\"a\"}\n",
		"data: {\"content\":\"b",
	)
	rec := &recorder{}

	out := newTestRelay(&fakeGenerator{body: body}).Run(context.Background(), rec, Request{Query: "q"})

	assert.Equal(t, []string{
		`{"sources":[]}`,
		`{"content":"a"}`,
		`{"done":true}`,
	}, rec.bodies(t))
	assert.Equal(t, TermReadError, out.Termination)
	assert.True(t, body.isClosed())
}

func TestRunSkipsInvalidUTF8Chunk(t *testing.T) {
	body := newChunkReader(nil,
		"data: {\"content\":\"a\"}\n",
		"\xff\xfe garbage\n",
		"data: {\"content\":\"b\"}\n",
	)
	rec := &recorder{}

	out := newTestRelay(&fakeGenerator{body: body}).Run(context.Background(), rec, Request{Query: "q"})

	assert.Equal(t, []string{
		`{"sources":[]}`,
		`{"content":"a"}`,
		`{"content":"b"}`,
		`{"done":true}`,
	}, rec.bodies(t))
	assert.Equal(t, 1, out.SkippedChunks)
}

func TestRunKeepsCharacterSplitAcrossReads(t *testing.T) {
	frame := "data: {\"content\":\"あ\"}\n"
	cut := strings.Index(frame, "あ") + 1
	body := newChunkReader(nil,
		frame[:cut],
		frame[cut:],
		"data: {\"content\":\"b\"}\n",
	)
	rec := &recorder{}

	out := newTestRelay(&fakeGenerator{body: body}).Run(context.Background(), rec, Request{Query: "q"})

	assert.Equal(t, []string{
		`{"sources":[]}`,
		`{"content":"あ"}`,
		`{"content":"b"}`,
		`{"done":true}`,
	}, rec.bodies(t))
	assert.Equal(t, 2, out.Tokens)
	assert.Zero(t, out.SkippedChunks)
}

func TestRunCharacterSplitOneByteAtATime(t *testing.T) {
	frame := "data: {\"content\":\"héllo 😀\"}\n"
	chunks := make([]string, 0, len(frame))
	for i := 0; i < len(frame); i++ {
		chunks = append(chunks, frame[i:i+1])
	}
	rec := &recorder{}

	out := newTestRelay(&fakeGenerator{body: newChunkReader(nil, chunks...)}).Run(context.Background(), rec, Request{Query: "q"})

	assert.Equal(t, []string{
		`{"sources":[]}`,
		`{"content":"héllo 😀"}`,
		`{"done":true}`,
	}, rec.bodies(t))
	assert.Zero(t, out.SkippedChunks)
}

func TestIncompleteSuffix(t *testing.T) {
	a := []byte("あ")
	tests := []struct {
		name string
		in   []byte
		want int
	}{
		{"empty", nil, 0},
		{"ascii", []byte("abc"), 0},
		{"complete multibyte", []byte("xあ"), 0},
		{"one byte of three", append([]byte("x"), a[:1]...), 1},
		{"two bytes of three", append([]byte("x"), a[:2]...), 2},
		{"invalid byte", []byte("x\xff"), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, incompleteSuffix(tt.in))
		})
	}
}

func TestRunStopsWhenClientGoes(t *testing.T) {
	body := newChunkReader(nil,
		"data: {\"content\":\"a\"}\n",
		"data: {\"content\":\"b\"}\n",
		"data: {\"content\":\"c\"}\n",
	)
	rec := &recorder{failAt: 3}

	out := newTestRelay(&fakeGenerator{body: body}).Run(context.Background(), rec, Request{Query: "q"})

	assert.Equal(t, []string{`{"sources":[]}`, `{"content":"a"}`}, rec.bodies(t))
	assert.Equal(t, TermClientGone, out.Termination)
	assert.Equal(t, 1, out.Tokens)
	assert.True(t, body.isClosed(), "upstream released once the client is gone")
}

func TestRunClientGoneBeforeAnnounceSkipsDial(t *testing.T) {
	gen := &fakeGenerator{body: newChunkReader(nil)}
	rec := &recorder{failAt: 1}

	out := newTestRelay(gen).Run(context.Background(), rec, Request{Query: "q"})

	assert.Empty(t, rec.events)
	assert.Equal(t, 0, gen.calls)
	assert.Equal(t, TermClientGone, out.Termination)
}

func TestRunGenerationTimeout(t *testing.T) {
	gen := &fakeGenerator{openStreamF: func(ctx context.Context) (io.ReadCloser, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	rec := &recorder{}

	out := New(gen, logger.NewNopLogger(), 20*time.Millisecond).Run(context.Background(), rec, Request{Query: "q"})

	assert.Equal(t, TermDialFailed, out.Termination)
	assertWellFormed(t, rec.events)
}

func TestRunAgainstHTTPGenerator(t *testing.T) {
	var got generationRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/chat/stream", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, part := range []string{"data: {\"content\":\"a\"}\n\n", "data: {\"content\"", ":\"b\"}\n\n"} {
			io.WriteString(w, part)
			flusher.Flush()
		}
	}))
	defer srv.Close()

	rec := &recorder{}
	out := newTestRelay(NewHTTPGenerator(srv.URL, http.DefaultTransport)).Run(context.Background(), rec, Request{
		Query: "q",
	})

	assert.Equal(t, []string{`{"sources":[]}`, `{"content":"a"}`, `{"content":"b"}`, `{"done":true}`}, rec.bodies(t))
	assert.Equal(t, TermCompleted, out.Termination)
	assert.Equal(t, "q", got.Query)
	assert.Equal(t, []string{}, got.Context)
}

func TestHTTPGeneratorStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewHTTPGenerator(srv.URL, http.DefaultTransport).OpenStream(context.Background(), "q", nil)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
}

func TestHTTPGeneratorUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewHTTPGenerator(url, http.DefaultTransport).OpenStream(context.Background(), "q", nil)
	require.Error(t, err)

	var statusErr *StatusError
	assert.False(t, errors.As(err, &statusErr))
}
