package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"asasense/internal/api"
	"asasense/internal/logger"
)

// Defaults carried over from the web client.
const (
	DefaultAgentName    = "finance_agent"
	DefaultFallbackText = "Resposta vazia do agente."
	DefaultErrorText    = "Erro ao conectar com o agente."
	DefaultCannedQuery  = "Analise técnica do BTCUSDT semanal com todos os indicadores"
)

var (
	// ErrBusy is returned when a submission is already in flight.
	ErrBusy = errors.New("a message is already being sent")
	// ErrClosed is returned by Submit after Close.
	ErrClosed = errors.New("chat panel closed")
)

// Runner talks to the run endpoint. *api.Client satisfies it.
type Runner interface {
	Run(ctx context.Context, req api.RunRequest) (*api.RunResponse, error)
	RunStream(ctx context.Context, req api.RunRequest, onChunk func(string)) error
}

// EventKind distinguishes observer notifications.
type EventKind int

const (
	EventEntryAppended EventKind = iota
	EventLoadingChanged
	EventChunk
)

// Event is delivered to the panel observer.
type Event struct {
	Kind    EventKind
	Entry   Entry
	Loading bool
	Chunk   string
}

// Option configures a Panel.
type Option func(*Panel)

// WithAgentName sets the agent_name sent with each run.
func WithAgentName(name string) Option {
	return func(p *Panel) { p.agentName = name }
}

// WithMode selects api.ModeSync or api.ModeStream.
func WithMode(mode string) Option {
	return func(p *Panel) { p.mode = mode }
}

// WithFallbackText sets the text used when the reply carries no content.
func WithFallbackText(text string) Option {
	return func(p *Panel) { p.fallbackText = text }
}

// WithErrorText sets the text of the entry appended when a run fails.
func WithErrorText(text string) Option {
	return func(p *Panel) { p.errorText = text }
}

// WithCannedQuery sets the query used by SubmitCanned.
func WithCannedQuery(query string) Option {
	return func(p *Panel) { p.cannedQuery = query }
}

// WithObserver registers fn for panel events. fn runs on the submitting
// goroutine and must not call back into Submit.
func WithObserver(fn func(Event)) Option {
	return func(p *Panel) { p.observer = fn }
}

// WithClock overrides the entry timestamp source.
func WithClock(now func() time.Time) Option {
	return func(p *Panel) { p.now = now }
}

// WithIDGenerator overrides the entry ID source.
func WithIDGenerator(newID func() string) Option {
	return func(p *Panel) { p.newID = newID }
}

// Panel holds one conversation. At most one submission runs at a time.
type Panel struct {
	runner       Runner
	agentName    string
	mode         string
	fallbackText string
	errorText    string
	cannedQuery  string
	observer     func(Event)
	now          func() time.Time
	newID        func() string

	inFlight atomic.Bool

	mu      sync.RWMutex
	history []Entry
	input   string
	loading bool
	closed  bool
}

// NewPanel returns an idle panel with an empty history.
func NewPanel(runner Runner, opts ...Option) *Panel {
	p := &Panel{
		runner:       runner,
		agentName:    DefaultAgentName,
		mode:         api.ModeSync,
		fallbackText: DefaultFallbackText,
		errorText:    DefaultErrorText,
		cannedQuery:  DefaultCannedQuery,
		now:          time.Now,
		newID:        uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// History returns a copy of the conversation in insertion order.
func (p *Panel) History() []Entry {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Entry, len(p.history))
	copy(out, p.history)
	return out
}

// Len returns the number of entries.
func (p *Panel) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.history)
}

// Loading reports whether a submission is awaiting its reply.
func (p *Panel) Loading() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.loading
}

// Input returns the pending input text.
func (p *Panel) Input() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.input
}

// SetInput replaces the pending input text.
func (p *Panel) SetInput(text string) {
	p.mu.Lock()
	p.input = text
	p.mu.Unlock()
}

// Mode returns the run mode in use.
func (p *Panel) Mode() string {
	return p.mode
}

// Submit sends text to the agent. It reports false without side effects
// when the trimmed text is empty. Otherwise it appends the user entry
// immediately, clears the pending input, waits for the reply and appends
// exactly one agent entry. Backend failures become an agent entry carrying
// the error text and are not returned.
func (p *Panel) Submit(ctx context.Context, text string) (bool, error) {
	return p.submit(ctx, text)
}

// SubmitInput submits the pending input.
func (p *Panel) SubmitInput(ctx context.Context) (bool, error) {
	return p.submit(ctx, p.Input())
}

// SubmitCanned puts the canned analysis query in the pending input and
// submits it. If a submission is already in flight the query stays in the
// input and ErrBusy is returned.
func (p *Panel) SubmitCanned(ctx context.Context) (bool, error) {
	p.SetInput(p.cannedQuery)
	return p.SubmitInput(ctx)
}

func (p *Panel) submit(ctx context.Context, text string) (bool, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return false, nil
	}

	if !p.inFlight.CompareAndSwap(false, true) {
		return false, ErrBusy
	}
	defer p.inFlight.Store(false)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false, ErrClosed
	}
	user := p.newEntry(RoleUser, text)
	p.history = append(p.history, user)
	p.input = ""
	p.loading = true
	p.mu.Unlock()

	p.notify(Event{Kind: EventEntryAppended, Entry: user})
	p.notify(Event{Kind: EventLoadingChanged, Loading: true})

	req := api.NewRunRequest(p.agentName, text, p.mode)
	var reply Entry
	if p.mode == api.ModeStream {
		reply = p.runStream(ctx, req)
	} else {
		reply = p.runSync(ctx, req)
	}

	p.mu.Lock()
	p.loading = false
	if p.closed {
		p.mu.Unlock()
		logger.Debug("Dropping reply for closed panel", "entry_id", reply.ID)
		return true, nil
	}
	p.history = append(p.history, reply)
	p.mu.Unlock()

	p.notify(Event{Kind: EventEntryAppended, Entry: reply})
	p.notify(Event{Kind: EventLoadingChanged, Loading: false})
	return true, nil
}

func (p *Panel) runSync(ctx context.Context, req api.RunRequest) Entry {
	resp, err := p.runner.Run(ctx, req)
	if err != nil {
		logger.Debug("Run failed", "agent", req.AgentName, "error", err)
		return p.newEntry(RoleAgent, p.errorText)
	}
	if resp == nil {
		return p.newEntry(RoleAgent, p.fallbackText)
	}

	entry := p.newEntry(RoleAgent, resp.Text(p.fallbackText))
	entry.Raw = resp.Raw
	entry.Steps = resp.Steps()
	return entry
}

func (p *Panel) runStream(ctx context.Context, req api.RunRequest) Entry {
	var sb strings.Builder
	err := p.runner.RunStream(ctx, req, func(chunk string) {
		sb.WriteString(chunk)
		p.notify(Event{Kind: EventChunk, Chunk: chunk})
	})
	if err != nil {
		logger.Debug("Stream run failed", "agent", req.AgentName, "error", err)
		return p.newEntry(RoleAgent, p.errorText)
	}

	text := sb.String()
	if strings.TrimSpace(text) == "" {
		text = p.fallbackText
	}
	return p.newEntry(RoleAgent, text)
}

// Close detaches the panel. Replies that arrive afterwards are dropped.
func (p *Panel) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}

func (p *Panel) newEntry(role Role, text string) Entry {
	return Entry{
		ID:        p.newID(),
		Role:      role,
		Text:      text,
		CreatedAt: p.now(),
	}
}

func (p *Panel) notify(ev Event) {
	if p.observer != nil {
		p.observer(ev)
	}
}
