package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/tidwall/gjson"

	"asasense/internal/api"
	"asasense/internal/chat"
	"asasense/internal/health"
	"asasense/internal/logger"
	"asasense/internal/usercontext"
)

// Labels shown next to each entry and section, as in the web client.
const (
	UserLabel        = "Você:"
	AgentLabel       = "IA:"
	StepsTitle       = "📚 Etapas da execução:"
	ObservationTitle = "🔍 Observação:"
	RawTitle         = "📦 JSON completo"
	ImageTitle       = "Gráfico técnico"
	LoadingText      = "⏳ Aguardando resposta do agente..."
	NoContextText    = "Nenhum contexto carregado."
)

const imagePreviewLen = 48

// Renderer formats client state for the terminal. The zero value is not
// usable; call New.
type Renderer struct {
	theme    *Theme
	markdown *glamour.TermRenderer
	color    bool
	width    int
	imageDir string
	showRaw  bool
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithTheme sets the style theme. Passing PlainTheme also disables markdown
// rendering and JSON highlighting.
func WithTheme(theme *Theme) Option {
	return func(r *Renderer) {
		if theme != nil {
			r.theme = theme
			r.color = theme.Name != "plain"
		}
	}
}

// WithWidth sets the word-wrap width for markdown.
func WithWidth(width int) Option {
	return func(r *Renderer) {
		if width > 0 {
			r.width = width
		}
	}
}

// WithImageDir saves decoded reply images under dir.
func WithImageDir(dir string) Option {
	return func(r *Renderer) { r.imageDir = dir }
}

// WithShowRaw prints the full response JSON under every agent entry.
func WithShowRaw(show bool) Option {
	return func(r *Renderer) { r.showRaw = show }
}

// New creates a Renderer. Markdown rendering is enabled on color terminals.
func New(opts ...Option) (*Renderer, error) {
	r := &Renderer{
		theme: AutoTheme(),
		width: 80,
	}
	r.color = r.theme.Name != "plain"
	for _, opt := range opts {
		opt(r)
	}

	if r.color {
		md, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(r.width),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create markdown renderer: %w", err)
		}
		r.markdown = md
	}
	return r, nil
}

// Entry renders the n-th (1-based) entry of the history.
func (r *Renderer) Entry(n int, e chat.Entry) string {
	var b strings.Builder

	if e.Role == chat.RoleUser {
		b.WriteString(r.paint(r.theme.UserLabel, UserLabel))
		b.WriteString("\n")
		b.WriteString(e.Text)
		return b.String()
	}

	b.WriteString(r.paint(r.theme.AgentLabel, AgentLabel))
	b.WriteString("\n")

	if e.IsImage() {
		b.WriteString(r.image(e))
	} else {
		b.WriteString(r.text(e.Text))
	}

	if len(e.Steps) > 0 {
		b.WriteString("\n")
		b.WriteString(r.Steps(e.Steps))
	}

	if e.HasRaw() {
		b.WriteString("\n")
		if r.showRaw {
			b.WriteString(r.paint(r.theme.Section, RawTitle+":"))
			b.WriteString("\n")
			b.WriteString(r.JSON(e.Raw))
		} else {
			b.WriteString(r.paint(r.theme.Muted, fmt.Sprintf("%s: \\raw %d", RawTitle, n)))
		}
	}

	return b.String()
}

// History renders every entry separated by blank lines.
func (r *Renderer) History(entries []chat.Entry) string {
	blocks := make([]string, 0, len(entries))
	for i, e := range entries {
		blocks = append(blocks, r.Entry(i+1, e))
	}
	return strings.Join(blocks, "\n\n")
}

// Steps renders an execution trace. Absent or empty fields are omitted.
func (r *Renderer) Steps(steps []api.Step) string {
	var b strings.Builder
	b.WriteString(r.paint(r.theme.Section, StepsTitle))

	for i, step := range steps {
		header := fmt.Sprintf("Step %d", i+1)
		if step.ToolName != "" {
			header += " → Tool: " + step.ToolName
		}
		b.WriteString("\n")
		b.WriteString(r.paint(r.theme.StepHeader, header))

		if truthy(step.Arguments) {
			b.WriteString("\n")
			b.WriteString(indent(r.paint(r.theme.Code, PrettyJSON(step.Arguments)), "  "))
		}

		if truthy(step.Observation) {
			b.WriteString("\n")
			b.WriteString(indent(r.paint(r.theme.Section, ObservationTitle), "  "))
			b.WriteString("\n")
			obs, isString := step.ObservationString()
			if !isString {
				obs = PrettyJSON(step.Observation)
			}
			b.WriteString(indent(r.paint(r.theme.Code, obs), "  "))
		}
	}
	return b.String()
}

// JSON pretty-prints raw, highlighted on color terminals.
func (r *Renderer) JSON(raw []byte) string {
	if r.color {
		return ColorJSON(raw)
	}
	return PrettyJSON(raw)
}

// Loading renders the waiting indicator.
func (r *Renderer) Loading() string {
	return r.paint(r.theme.Muted, LoadingText)
}

// Health renders the tri-state light.
func (r *Renderer) Health(state health.State) string {
	style := r.theme.Pending
	switch state {
	case health.Online:
		style = r.theme.Online
	case health.Offline:
		style = r.theme.Offline
	}
	return r.paint(style, "●") + " API " + state.String()
}

// Context renders a context viewer result as json or yaml.
func (r *Renderer) Context(res usercontext.Result, format string) (string, error) {
	switch res.Status {
	case usercontext.NotFetched:
		return r.paint(r.theme.Muted, NoContextText), nil
	case usercontext.Loading:
		return r.paint(r.theme.Muted, fmt.Sprintf("Carregando contexto de %q...", res.UserID)), nil
	case usercontext.Failed:
		return r.paint(r.theme.Offline, fmt.Sprintf("Falha ao carregar contexto de %q: %v", res.UserID, res.Err)), nil
	}

	switch format {
	case "", "json":
		return r.JSON(res.Data), nil
	case "yaml":
		return YAML(res.Data)
	default:
		return "", fmt.Errorf("unsupported output format %q (expected json or yaml)", format)
	}
}

// paint leaves text untouched on plain output so multi-line blocks are not
// padded to a common width.
func (r *Renderer) paint(style lipgloss.Style, text string) string {
	if !r.color {
		return text
	}
	return style.Render(text)
}

func (r *Renderer) text(text string) string {
	if r.markdown == nil {
		return text
	}
	out, err := r.markdown.Render(text)
	if err != nil {
		logger.Debug("Markdown rendering failed, using plain text", "error", err)
		return text
	}
	return strings.Trim(out, "\n")
}

func (r *Renderer) image(e chat.Entry) string {
	preview := e.Text
	if len(preview) > imagePreviewLen {
		preview = preview[:imagePreviewLen] + fmt.Sprintf("… (%d chars)", len(e.Text))
	}

	img, err := ParseDataURI(e.Text)
	if err != nil {
		return preview + "\n" + r.paint(r.theme.Warning, fmt.Sprintf("🖼 %s: %v", ImageTitle, err))
	}

	line := fmt.Sprintf("🖼 %s: %s, %s", ImageTitle, img.MediaType, humanSize(len(img.Data)))
	if r.imageDir != "" {
		path, err := img.Save(r.imageDir, e.ID)
		if err != nil {
			logger.Warn("Could not save reply image", "error", err)
		} else {
			line += " → " + path
		}
	}
	return preview + "\n" + r.paint(r.theme.Section, line)
}

// truthy mirrors the web client's field checks: null, false, 0 and "" are
// treated as absent.
func truthy(raw []byte) bool {
	if len(raw) == 0 {
		return false
	}
	res := gjson.ParseBytes(raw)
	switch res.Type {
	case gjson.Null, gjson.False:
		return false
	case gjson.String:
		return res.Str != ""
	case gjson.Number:
		return res.Num != 0
	default:
		return true
	}
}

func indent(text, prefix string) string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}
