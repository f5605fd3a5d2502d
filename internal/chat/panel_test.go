package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"asasense/internal/api"
	"asasense/internal/testutils"
)

// fakeRunner records requests and replies with canned results.
type fakeRunner struct {
	mu       sync.Mutex
	requests []api.RunRequest
	raw      string
	err      error
	chunks   []string
	gate     chan struct{}
	calls    atomic.Int32
	nilReply bool
}

func (f *fakeRunner) record(req api.RunRequest) {
	f.calls.Add(1)
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.gate != nil {
		<-f.gate
	}
}

func (f *fakeRunner) Run(_ context.Context, req api.RunRequest) (*api.RunResponse, error) {
	f.record(req)
	if f.err != nil {
		return nil, f.err
	}
	if f.nilReply {
		return nil, nil
	}
	return &api.RunResponse{Raw: json.RawMessage(f.raw)}, nil
}

func (f *fakeRunner) RunStream(_ context.Context, req api.RunRequest, onChunk func(string)) error {
	f.record(req)
	for _, c := range f.chunks {
		onChunk(c)
	}
	return f.err
}

func TestPanel_SubmitAppendsUserThenAgent(t *testing.T) {
	runner := &fakeRunner{raw: `{"output":{"parts":[{"content":"Price up 2%"}]}}`}
	p := NewPanel(runner)

	sent, err := p.Submit(context.Background(), "  BTCUSDT status  ")
	require.NoError(t, err)
	assert.True(t, sent)

	history := p.History()
	require.Len(t, history, 2)
	assert.Equal(t, RoleUser, history[0].Role)
	assert.Equal(t, "BTCUSDT status", history[0].Text)
	assert.Equal(t, RoleAgent, history[1].Role)
	assert.Equal(t, "Price up 2%", history[1].Text)
	assert.Empty(t, history[1].Steps)
	assert.True(t, history[1].HasRaw())
	assert.NotEqual(t, history[0].ID, history[1].ID)

	require.Len(t, runner.requests, 1)
	assert.Equal(t, api.NewRunRequest("finance_agent", "BTCUSDT status", api.ModeSync), runner.requests[0])
	assert.False(t, p.Loading())
}

func TestPanel_EmptyInputDoesNothing(t *testing.T) {
	runner := &fakeRunner{}
	p := NewPanel(runner)

	for _, text := range []string{"", "   ", "\n\t "} {
		sent, err := p.Submit(context.Background(), text)
		assert.NoError(t, err)
		assert.False(t, sent)
	}

	assert.Zero(t, p.Len())
	assert.Zero(t, runner.calls.Load())
}

func TestPanel_FallbackWhenNoOutputParts(t *testing.T) {
	p := NewPanel(&fakeRunner{raw: `{"output":{"parts":[]}}`})

	_, err := p.Submit(context.Background(), "hello")
	require.NoError(t, err)

	history := p.History()
	require.Len(t, history, 2)
	assert.Equal(t, DefaultFallbackText, history[1].Text)
}

func TestPanel_ErrorBecomesAgentEntry(t *testing.T) {
	p := NewPanel(&fakeRunner{err: errors.New("dial tcp: connection refused")})

	sent, err := p.Submit(context.Background(), "hello")
	assert.NoError(t, err)
	assert.True(t, sent)

	history := p.History()
	require.Len(t, history, 2)
	assert.Equal(t, RoleAgent, history[1].Role)
	assert.Equal(t, DefaultErrorText, history[1].Text)
	assert.False(t, history[1].HasRaw())
	assert.False(t, p.Loading())
}

func TestPanel_StepsExtracted(t *testing.T) {
	raw := `{
		"output": {"parts": [{"content": "BTC at 42000"}]},
		"steps": [{"tool_name": "price_lookup", "arguments": {"symbol": "BTCUSDT"}, "observation": "42000"}]
	}`
	p := NewPanel(&fakeRunner{raw: raw})

	_, err := p.Submit(context.Background(), "price?")
	require.NoError(t, err)

	agent := p.History()[1]
	require.Len(t, agent.Steps, 1)
	assert.Equal(t, "price_lookup", agent.Steps[0].ToolName)
	obs, ok := agent.Steps[0].ObservationString()
	assert.True(t, ok)
	assert.Equal(t, "42000", obs)
}

func TestPanel_SubmitInputClearsInput(t *testing.T) {
	p := NewPanel(&fakeRunner{raw: `{}`})
	p.SetInput("what is the RSI?")

	sent, err := p.SubmitInput(context.Background())
	require.NoError(t, err)
	assert.True(t, sent)
	assert.Empty(t, p.Input())
	assert.Equal(t, "what is the RSI?", p.History()[0].Text)
}

func TestPanel_SubmitCanned(t *testing.T) {
	runner := &fakeRunner{raw: `{}`}
	p := NewPanel(runner)

	sent, err := p.SubmitCanned(context.Background())
	require.NoError(t, err)
	assert.True(t, sent)

	require.Len(t, runner.requests, 1)
	assert.Equal(t, DefaultCannedQuery, runner.requests[0].Input[0].Parts[0].Content)
	assert.Equal(t, DefaultCannedQuery, p.History()[0].Text)
}

func TestPanel_NilResponseUsesFallback(t *testing.T) {
	p := NewPanel(&fakeRunner{nilReply: true})

	sent, err := p.Submit(context.Background(), "hello")
	require.NoError(t, err)
	assert.True(t, sent)

	history := p.History()
	require.Len(t, history, 2)
	assert.Equal(t, DefaultFallbackText, history[1].Text)
	assert.False(t, history[1].HasRaw())
	assert.Empty(t, history[1].Steps)
}

func TestPanel_SubmitCannedGoesThroughInput(t *testing.T) {
	runner := &fakeRunner{raw: `{}`, gate: make(chan struct{})}
	var inputs []string
	var p *Panel
	p = NewPanel(runner, WithObserver(func(ev Event) {
		if ev.Kind == EventEntryAppended && ev.Entry.Role == RoleUser {
			inputs = append(inputs, p.Input())
		}
	}))
	p.SetInput("draft")

	done := make(chan error)
	go func() {
		_, err := p.SubmitCanned(context.Background())
		done <- err
	}()
	require.Eventually(t, p.Loading, time.Second, time.Millisecond)

	// A rejected canned submission leaves the query pending, like the web input box.
	sent, err := p.SubmitCanned(context.Background())
	assert.False(t, sent)
	assert.ErrorIs(t, err, ErrBusy)
	assert.Equal(t, DefaultCannedQuery, p.Input())

	close(runner.gate)
	require.NoError(t, <-done)

	assert.Equal(t, []string{""}, inputs)
	require.Len(t, p.History(), 2)
	assert.Equal(t, DefaultCannedQuery, p.History()[0].Text)
}

func TestPanel_Options(t *testing.T) {
	runner := &fakeRunner{err: errors.New("x")}
	p := NewPanel(runner,
		WithAgentName("crypto_agent"),
		WithErrorText("offline"),
		WithCannedQuery("ETH weekly"),
	)

	_, err := p.SubmitCanned(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "crypto_agent", runner.requests[0].AgentName)
	assert.Equal(t, "ETH weekly", runner.requests[0].Input[0].Parts[0].Content)
	assert.Equal(t, "offline", p.History()[1].Text)
}

func TestPanel_ConcurrentSubmitIsRejected(t *testing.T) {
	runner := &fakeRunner{raw: `{}`, gate: make(chan struct{})}
	p := NewPanel(runner)

	done := make(chan error)
	go func() {
		_, err := p.Submit(context.Background(), "first")
		done <- err
	}()

	require.Eventually(t, p.Loading, time.Second, time.Millisecond)

	sent, err := p.Submit(context.Background(), "second")
	assert.False(t, sent)
	assert.ErrorIs(t, err, ErrBusy)

	sent, err = p.SubmitCanned(context.Background())
	assert.False(t, sent)
	assert.ErrorIs(t, err, ErrBusy)

	close(runner.gate)
	require.NoError(t, <-done)

	history := p.History()
	require.Len(t, history, 2)
	assert.Equal(t, "first", history[0].Text)
	assert.Equal(t, int32(1), runner.calls.Load())

	// The guard is released once the reply lands.
	sent, err = p.Submit(context.Background(), "third")
	assert.NoError(t, err)
	assert.True(t, sent)
	assert.Equal(t, 4, p.Len())
}

func TestPanel_RacingSubmitsProduceOneExchange(t *testing.T) {
	runner := &fakeRunner{raw: `{}`, gate: make(chan struct{})}
	p := NewPanel(runner)

	var (
		wg       sync.WaitGroup
		accepted atomic.Int32
		busy     atomic.Int32
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sent, err := p.Submit(context.Background(), "same message")
			if sent {
				accepted.Add(1)
			}
			if errors.Is(err, ErrBusy) {
				busy.Add(1)
			}
		}()
	}

	require.Eventually(t, func() bool { return busy.Load() == 15 }, time.Second, time.Millisecond)
	close(runner.gate)
	wg.Wait()

	assert.Equal(t, int32(1), accepted.Load())
	assert.Equal(t, 2, p.Len())
}

func TestPanel_CloseDropsLateReply(t *testing.T) {
	runner := &fakeRunner{raw: `{"output":{"parts":[{"content":"late"}]}}`, gate: make(chan struct{})}

	var appended []Entry
	p := NewPanel(runner, WithObserver(func(ev Event) {
		if ev.Kind == EventEntryAppended {
			appended = append(appended, ev.Entry)
		}
	}))

	done := make(chan struct{})
	go func() {
		_, _ = p.Submit(context.Background(), "hello")
		close(done)
	}()
	require.Eventually(t, p.Loading, time.Second, time.Millisecond)

	p.Close()
	close(runner.gate)
	<-done

	history := p.History()
	require.Len(t, history, 1)
	assert.Equal(t, RoleUser, history[0].Role)
	assert.Len(t, appended, 1)

	sent, err := p.Submit(context.Background(), "again")
	assert.False(t, sent)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestPanel_ObserverSequence(t *testing.T) {
	var kinds []EventKind
	var loading []bool
	p := NewPanel(&fakeRunner{raw: `{}`}, WithObserver(func(ev Event) {
		kinds = append(kinds, ev.Kind)
		if ev.Kind == EventLoadingChanged {
			loading = append(loading, ev.Loading)
		}
	}))

	_, err := p.Submit(context.Background(), "hi")
	require.NoError(t, err)

	assert.Equal(t, []EventKind{EventEntryAppended, EventLoadingChanged, EventEntryAppended, EventLoadingChanged}, kinds)
	assert.Equal(t, []bool{true, false}, loading)
}

func TestPanel_StreamMode(t *testing.T) {
	runner := &fakeRunner{chunks: []string{"Price ", "up ", "2%"}}

	var chunks []string
	p := NewPanel(runner, WithMode(api.ModeStream), WithObserver(func(ev Event) {
		if ev.Kind == EventChunk {
			chunks = append(chunks, ev.Chunk)
		}
	}))

	_, err := p.Submit(context.Background(), "status")
	require.NoError(t, err)

	assert.Equal(t, []string{"Price ", "up ", "2%"}, chunks)
	agent := p.History()[1]
	assert.Equal(t, "Price up 2%", agent.Text)
	assert.False(t, agent.HasRaw())
	assert.Equal(t, api.ModeStream, runner.requests[0].Mode)
}

func TestPanel_StreamModeEmptyAndFailure(t *testing.T) {
	p := NewPanel(&fakeRunner{}, WithMode(api.ModeStream))
	_, err := p.Submit(context.Background(), "status")
	require.NoError(t, err)
	assert.Equal(t, DefaultFallbackText, p.History()[1].Text)

	p = NewPanel(&fakeRunner{chunks: []string{"partial"}, err: api.ErrTransport}, WithMode(api.ModeStream))
	_, err = p.Submit(context.Background(), "status")
	require.NoError(t, err)
	assert.Equal(t, DefaultErrorText, p.History()[1].Text)
}

func TestPanel_DeterministicEntries(t *testing.T) {
	seq := testutils.NewSequence()
	p := NewPanel(&fakeRunner{raw: `{}`}, WithClock(seq.Now), WithIDGenerator(seq.UUID))

	_, err := p.Submit(context.Background(), "hi")
	require.NoError(t, err)

	history := p.History()
	require.Len(t, history, 2)
	assert.Equal(t, "00000001-0000-4000-8000-000000000001", history[0].ID)
	assert.Equal(t, "00000002-0000-4000-8000-000000000002", history[1].ID)
	assert.Equal(t, testutils.BaseTime.Add(time.Second), history[0].CreatedAt)
	assert.True(t, history[1].CreatedAt.After(history[0].CreatedAt))
}

func TestPanel_AgainstFakeBackend(t *testing.T) {
	backend := testutils.NewFakeBackend(t)
	p := NewPanel(api.New(backend.URL), WithAgentName("crypto_agent"))

	_, err := p.SubmitCanned(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "echo: "+DefaultCannedQuery, p.History()[1].Text)
	requests := backend.Requests()
	require.Len(t, requests, 1)
	assert.Equal(t, api.NewRunRequest("crypto_agent", DefaultCannedQuery, api.ModeSync), requests[0])
}

func TestPanel_AgainstHTTPBackend(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantText string
	}{
		{"success", http.StatusOK, `{"output":{"parts":[{"content":"Price up 2%"}]}}`, "Price up 2%"},
		{"server error", http.StatusInternalServerError, `{"detail":"boom"}`, DefaultErrorText},
		{"malformed body", http.StatusOK, `not json`, DefaultErrorText},
		{"missing output", http.StatusOK, `{"status":"completed"}`, DefaultFallbackText},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, api.RunsPath, r.URL.Path)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			p := NewPanel(api.New(server.URL))
			sent, err := p.Submit(context.Background(), "BTCUSDT status")
			require.NoError(t, err)
			require.True(t, sent)

			history := p.History()
			require.Len(t, history, 2)
			assert.Equal(t, tt.wantText, history[1].Text)
		})
	}
}

func TestEntry_IsImage(t *testing.T) {
	assert.True(t, Entry{Text: "data:image/png;base64,iVBORw0KGgo="}.IsImage())
	assert.False(t, Entry{Text: "the chart data:image is attached"}.IsImage())
}
