// Package nav holds the navigation state: which panel is active and whether
// the sidebar is expanded.
package nav

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/x/ansi"

	"asasense/internal/health"
	"asasense/internal/render"
)

// Panel identifies a navigation target.
type Panel int

const (
	Health Panel = iota
	User
	History
	Context
	Transaction
)

// Panels lists every panel in sidebar order.
var Panels = []Panel{Health, User, History, Context, Transaction}

// SidebarWidth is the maximum visible width of an expanded sidebar label.
const SidebarWidth = 24

// NotImplementedText is shown for panels without content.
const NotImplementedText = "Painel ainda não implementado."

// String returns the menu name used by Select.
func (p Panel) String() string {
	switch p {
	case Health:
		return "health"
	case User:
		return "user"
	case History:
		return "history"
	case Context:
		return "context"
	case Transaction:
		return "transaction"
	default:
		return fmt.Sprintf("panel(%d)", int(p))
	}
}

// Label is the sidebar caption.
func (p Panel) Label() string {
	switch p {
	case Health:
		return "Health Check"
	case User:
		return "Usuário"
	case History:
		return "Histórico"
	case Context:
		return "Contexto"
	case Transaction:
		return "Transação"
	default:
		return p.String()
	}
}

// Icon is the marker shown when the sidebar is collapsed.
func (p Panel) Icon() string {
	switch p {
	case Health:
		return "♥"
	case User:
		return "👤"
	case History:
		return "🕘"
	case Context:
		return "📄"
	case Transaction:
		return "💳"
	default:
		return "?"
	}
}

// Implemented reports whether the panel has content.
func (p Panel) Implemented() bool {
	switch p {
	case Health, Context:
		return true
	case User, History, Transaction:
		return false
	default:
		return false
	}
}

// Parse converts a menu name to a Panel.
func Parse(name string) (Panel, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, p := range Panels {
		if p.String() == name {
			return p, nil
		}
	}
	return Health, fmt.Errorf("unknown panel %q (expected one of %s)", name, strings.Join(panelNames(), ", "))
}

func panelNames() []string {
	names := make([]string, len(Panels))
	for i, p := range Panels {
		names[i] = p.String()
	}
	return names
}

// State is the navigation state. The zero value is Health with the sidebar
// collapsed.
type State struct {
	Active      Panel
	SidebarOpen bool
}

// Select activates the named panel. On error the state is unchanged.
func (s *State) Select(name string) (Panel, error) {
	p, err := Parse(name)
	if err != nil {
		return s.Active, err
	}
	s.Active = p
	return p, nil
}

// ToggleSidebar flips the sidebar and returns the new value.
func (s *State) ToggleSidebar() bool {
	s.SidebarOpen = !s.SidebarOpen
	return s.SidebarOpen
}

// Render draws the sidebar with the health light on top.
func (s *State) Render(theme *render.Theme, light health.State) string {
	if theme == nil {
		theme = render.PlainTheme()
	}

	lines := []string{indicator(theme, light, s.SidebarOpen)}
	for _, p := range Panels {
		item := p.Icon()
		if s.SidebarOpen {
			item = ansi.Truncate(item+" "+p.Label(), SidebarWidth, "…")
		}

		if p == s.Active {
			lines = append(lines, theme.Active.Render("> "+item))
		} else {
			lines = append(lines, "  "+item)
		}
	}
	return strings.Join(lines, "\n")
}

func indicator(theme *render.Theme, light health.State, open bool) string {
	style := theme.Pending
	switch light {
	case health.Online:
		style = theme.Online
	case health.Offline:
		style = theme.Offline
	}
	dot := style.Render("●")
	if !open {
		return "  " + dot
	}
	return "  " + dot + " API " + light.String()
}
