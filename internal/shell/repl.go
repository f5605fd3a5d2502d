package shell

import (
	"errors"
	"io"
	"strings"

	"github.com/abiosoft/ishell/v2"
	"github.com/abiosoft/readline"

	"asasense/internal/logger"
	"asasense/internal/version"
)

// Run starts the interactive shell and blocks until the user exits. The
// session is closed on return.
func (s *Session) Run() {
	defer s.Close()

	sh := ishell.New()
	sh.SetPrompt("asasense> ")

	sh.Println(version.GetFormattedVersion() + " - cliente do agente financeiro")
	sh.Println(`Digite '\help' para ver os comandos ou '\exit' para sair.`)

	s.CheckHealth(s.ctx)
	s.repl(sh)
	logger.Debug("Shell stopped")
}

// repl reads raw lines from sh until EOF, a second consecutive Ctrl+C or
// \exit. Lines are read whole so chat messages keep quotes, heredoc markers
// and trailing backslashes exactly as typed; ishell's own command routing is
// not used.
func (s *Session) repl(sh *ishell.Shell) {
	// Built-ins would shadow chat messages such as "clear".
	for _, name := range []string{"exit", "help", "clear"} {
		sh.DeleteCmd(name)
	}

	interrupts := 0
	for {
		line, err := sh.ReadLineErr()
		switch {
		case errors.Is(err, io.EOF):
			return
		case errors.Is(err, readline.ErrInterrupt):
			interrupts++
			if interrupts >= 2 {
				return
			}
			sh.Println("Pressione Ctrl+C novamente para sair.")
			continue
		case err != nil:
			logger.Error("Failed to read input", "error", err)
			return
		}
		interrupts = 0

		if s.processInput(sh, line) {
			return
		}
	}
}

// processInput dispatches one raw line and reports whether the shell should
// stop.
func (s *Session) processInput(sh *ishell.Shell, line string) bool {
	rawInput := strings.TrimSpace(line)
	if rawInput == "" {
		return false
	}

	quit, err := s.Dispatch(s.ctx, rawInput)
	if err != nil {
		logger.Error("Command failed", "command", rawInput, "error", err)
		sh.Printf("Erro: %s\n", err.Error())
		if strings.HasPrefix(rawInput, `\`) && !strings.Contains(strings.ToLower(rawInput), "help") {
			sh.Println(`Digite \help para ver os comandos disponíveis`)
		}
	}
	return quit
}
