// Package shell provides the interactive AsaSense shell. It wires the chat
// panel, context viewer, health indicator and navigation state to an ishell
// REPL and routes user input to them.
package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"asasense/internal/chat"
	"asasense/internal/health"
	"asasense/internal/logger"
	"asasense/internal/nav"
	"asasense/internal/render"
	"asasense/internal/usercontext"
)

// Backend is everything the shell needs from the agent API. *api.Client
// satisfies it.
type Backend interface {
	chat.Runner
	health.Prober
	usercontext.Fetcher
}

// Options configures a Session.
type Options struct {
	AgentName     string
	Mode          string
	ContextFormat string
	Theme         *render.Theme
	Renderer      *render.Renderer
	Out           io.Writer
}

// Session is one interactive client: a chat panel, a context viewer, a
// health indicator and the navigation state.
type Session struct {
	panel     *chat.Panel
	viewer    *usercontext.Viewer
	indicator *health.Indicator
	renderer  *render.Renderer
	theme     *render.Theme
	format    string

	mu       sync.Mutex
	nav      nav.State
	out      io.Writer
	streamed strings.Builder

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Session backed by backend.
func New(backend Backend, opts Options) (*Session, error) {
	if opts.Theme == nil {
		opts.Theme = render.AutoTheme()
	}
	if opts.Renderer == nil {
		r, err := render.New(render.WithTheme(opts.Theme))
		if err != nil {
			return nil, err
		}
		opts.Renderer = r
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.ContextFormat == "" {
		opts.ContextFormat = "json"
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		viewer:    usercontext.NewViewer(backend),
		indicator: health.NewIndicator(backend),
		renderer:  opts.Renderer,
		theme:     opts.Theme,
		format:    opts.ContextFormat,
		out:       opts.Out,
		ctx:       ctx,
		cancel:    cancel,
	}

	panelOpts := []chat.Option{chat.WithObserver(s.observe)}
	if opts.AgentName != "" {
		panelOpts = append(panelOpts, chat.WithAgentName(opts.AgentName))
	}
	if opts.Mode != "" {
		panelOpts = append(panelOpts, chat.WithMode(opts.Mode))
	}
	s.panel = chat.NewPanel(backend, panelOpts...)

	return s, nil
}

// Panel returns the session's chat panel.
func (s *Session) Panel() *chat.Panel {
	return s.panel
}

// Nav returns a copy of the navigation state.
func (s *Session) Nav() nav.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nav
}

// Context returns the session context, cancelled by Close.
func (s *Session) Context() context.Context {
	return s.ctx
}

// Close cancels outstanding requests and detaches the panel and viewer.
func (s *Session) Close() {
	s.cancel()
	s.panel.Close()
	s.viewer.Close()
}

// CheckHealth runs the one-shot health probe and prints the light.
func (s *Session) CheckHealth(ctx context.Context) health.State {
	state := s.indicator.Check(ctx)
	s.println(s.renderer.Health(state))
	return state
}

// Dispatch handles one line of input. It reports whether the shell should
// exit.
func (s *Session) Dispatch(ctx context.Context, line string) (bool, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}

	if !strings.HasPrefix(line, `\`) {
		return false, s.send(ctx, line)
	}

	fields := strings.Fields(strings.TrimPrefix(line, `\`))
	if len(fields) == 0 {
		return false, nil
	}
	name, args := strings.ToLower(fields[0]), fields[1:]
	logger.Debug("Dispatching shell command", "command", name, "args", args)

	switch name {
	case "exit", "quit":
		return true, nil
	case "help":
		s.println(helpText)
		return false, nil
	case "health":
		s.showPanel(ctx, nav.Health)
		return false, nil
	case "context":
		return false, s.context(ctx, args)
	case "menu":
		return false, s.menu(ctx, args)
	case "sidebar":
		s.mu.Lock()
		s.nav.ToggleSidebar()
		state := s.nav
		s.mu.Unlock()
		s.println(state.Render(s.theme, s.indicator.State()))
		return false, nil
	case "btc":
		_, err := s.panel.SubmitCanned(ctx)
		return false, s.submitError(err)
	case "raw":
		return false, s.raw(args)
	case "history":
		history := s.panel.History()
		if len(history) == 0 {
			s.println("Nenhuma mensagem ainda.")
			return false, nil
		}
		s.println(s.renderer.History(history))
		return false, nil
	default:
		return false, fmt.Errorf("unknown command %q", `\`+name)
	}
}

func (s *Session) send(ctx context.Context, text string) error {
	_, err := s.panel.Submit(ctx, text)
	return s.submitError(err)
}

func (s *Session) submitError(err error) error {
	if errors.Is(err, chat.ErrBusy) {
		return fmt.Errorf("%w; wait for the current reply", err)
	}
	return err
}

func (s *Session) context(ctx context.Context, args []string) error {
	s.mu.Lock()
	s.nav.Active = nav.Context
	s.mu.Unlock()

	if len(args) == 0 {
		return s.printContext(s.viewer.Result())
	}
	return s.printContext(s.viewer.Fetch(ctx, args[0]))
}

func (s *Session) printContext(res usercontext.Result) error {
	out, err := s.renderer.Context(res, s.format)
	if err != nil {
		return err
	}
	s.println(out)
	return nil
}

func (s *Session) menu(ctx context.Context, args []string) error {
	if len(args) == 0 {
		state := s.Nav()
		s.println(state.Render(s.theme, s.indicator.State()))
		return nil
	}

	s.mu.Lock()
	p, err := s.nav.Select(args[0])
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.showPanel(ctx, p)
	return nil
}

func (s *Session) showPanel(ctx context.Context, p nav.Panel) {
	s.mu.Lock()
	s.nav.Active = p
	s.mu.Unlock()

	switch p {
	case nav.Health:
		s.CheckHealth(ctx)
	case nav.Context:
		if err := s.printContext(s.viewer.Result()); err != nil {
			s.println(err.Error())
		}
	case nav.User, nav.History, nav.Transaction:
		s.println(fmt.Sprintf("%s: %s", p.Label(), nav.NotImplementedText))
	default:
		s.println(nav.NotImplementedText)
	}
}

// raw prints the full response of the n-th entry, or of the latest agent
// reply when n is omitted.
func (s *Session) raw(args []string) error {
	history := s.panel.History()

	idx := -1
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 || n > len(history) {
			return fmt.Errorf("invalid entry number %q", args[0])
		}
		idx = n - 1
	} else {
		for i := len(history) - 1; i >= 0; i-- {
			if history[i].HasRaw() {
				idx = i
				break
			}
		}
	}

	if idx < 0 || !history[idx].HasRaw() {
		return errors.New("no raw response for that entry")
	}
	s.println(s.renderer.JSON(history[idx].Raw))
	return nil
}

func (s *Session) observe(ev chat.Event) {
	switch ev.Kind {
	case chat.EventLoadingChanged:
		if ev.Loading {
			s.println(s.renderer.Loading())
		}
	case chat.EventChunk:
		s.mu.Lock()
		s.streamed.WriteString(ev.Chunk)
		s.mu.Unlock()
		s.print(ev.Chunk)
	case chat.EventEntryAppended:
		if ev.Entry.Role != chat.RoleAgent {
			return
		}
		s.mu.Lock()
		streamed := s.streamed.String()
		s.streamed.Reset()
		s.mu.Unlock()

		if streamed != "" {
			s.println("")
			if streamed == ev.Entry.Text {
				return
			}
		}
		s.println(s.renderer.Entry(s.panel.Len(), ev.Entry))
	}
}

func (s *Session) print(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = io.WriteString(s.out, text)
}

func (s *Session) println(text string) {
	s.print(text + "\n")
}

const helpText = `Comandos:
  \health            verifica a API
  \context [id]      carrega o contexto de um usuário
  \menu [painel]     health, user, history, context, transaction
  \sidebar           expande ou recolhe o menu
  \btc               análise técnica do BTCUSDT semanal
  \raw [n]           JSON completo da resposta n
  \history           mostra a conversa
  \help              esta ajuda
  \exit              sai
Qualquer outro texto é enviado ao agente.`
