// Package main provides the AsaSense CLI entry point: an interactive client
// for the AsaSense financial agent API.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"asasense/internal/api"
	"asasense/internal/chat"
	"asasense/internal/config"
	"asasense/internal/devproxy"
	"asasense/internal/health"
	"asasense/internal/logger"
	"asasense/internal/render"
	"asasense/internal/shell"
	"asasense/internal/usercontext"
	"asasense/internal/version"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app carries state shared by every command of one invocation.
type app struct {
	v        *viper.Viper
	cfg      *config.Config
	logLevel string
	logFile  string
	output   string
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.New()}

	rootCmd := &cobra.Command{
		Use:   "asasense",
		Short: "AsaSense - terminal client for the AsaSense financial agent",
		Long: `AsaSense talks to the AsaSense agent API: it checks backend health,
shows per-user context and runs chat exchanges with the finance agent.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.initConfig,
		RunE:              a.runShell, // Default behavior is to run the interactive shell
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.logLevel, "log-level", "", "Set log level (debug|info|warn|error) [default: info]")
	flags.StringVar(&a.logFile, "log-file", "", "Write logs to file instead of stderr")
	flags.String("base-url", "", "Agent API base URL [default: http://localhost:8000]")
	flags.String("agent", "", "Agent name sent with each run [default: finance_agent]")
	flags.String("mode", "", "Run mode (sync|stream) [default: sync]")
	flags.Duration("timeout", 0, "Request timeout for non-streaming calls [default: 60s]")
	flags.Bool("show-raw", false, "Print the full response JSON under each reply")
	flags.String("image-dir", "", "Save image replies to this directory")

	for key, flag := range map[string]string{
		config.KeyAPIBaseURL: "base-url",
		config.KeyAgentName:  "agent",
		config.KeyMode:       "mode",
		config.KeyTimeout:    "timeout",
		config.KeyShowRaw:    "show-raw",
		config.KeyImageDir:   "image-dir",
	} {
		if err := a.v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			fmt.Fprintf(os.Stderr, "Error binding %s flag: %v\n", flag, err)
			os.Exit(1)
		}
	}

	rootCmd.AddCommand(
		a.shellCmd(),
		a.askCmd(),
		a.healthCmd(),
		a.contextCmd(),
		a.proxyCmd(),
		a.versionCmd(),
	)
	return rootCmd
}

func (a *app) initConfig(_ *cobra.Command, _ []string) error {
	if err := logger.Configure(a.logLevel, a.logFile); err != nil {
		return fmt.Errorf("error configuring logger: %w", err)
	}
	if err := config.LoadDotEnv(config.DefaultDotEnvPaths()...); err != nil {
		return err
	}
	cfg, err := config.Load(a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg
	logger.Debug("Configuration loaded", "api_base_url", cfg.APIBaseURL, "agent", cfg.AgentName, "mode", cfg.Mode)
	return nil
}

func (a *app) client() *api.Client {
	return api.New(a.cfg.APIBaseURL,
		api.WithTimeout(a.cfg.Timeout),
		api.WithUserAgent(version.UserAgent()),
	)
}

func (a *app) renderer(theme *render.Theme) (*render.Renderer, error) {
	return render.New(
		render.WithTheme(theme),
		render.WithShowRaw(a.cfg.ShowRaw),
		render.WithImageDir(a.cfg.ImageDir),
	)
}

func (a *app) shellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Start the interactive shell",
		Long:  `Start the interactive AsaSense shell. Plain text is sent to the agent; backslash commands drive the panels.`,
		RunE:  a.runShell,
	}
}

func (a *app) runShell(cmd *cobra.Command, _ []string) error {
	logger.Info("Starting AsaSense", "version", version.Version)

	theme := render.AutoTheme()
	r, err := a.renderer(theme)
	if err != nil {
		return err
	}
	sess, err := shell.New(a.client(), shell.Options{
		AgentName: a.cfg.AgentName,
		Mode:      a.cfg.Mode,
		Theme:     theme,
		Renderer:  r,
		Out:       cmd.OutOrStdout(),
	})
	if err != nil {
		return err
	}
	sess.Run()
	return nil
}

func (a *app) askCmd() *cobra.Command {
	var canned bool
	cmd := &cobra.Command{
		Use:   "ask [message...]",
		Short: "Send one message to the agent and print the reply",
		Args: func(_ *cobra.Command, args []string) error {
			if !canned && len(args) == 0 {
				return fmt.Errorf("requires a message or --btc")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.renderer(render.AutoTheme())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			var streamed strings.Builder
			panel := chat.NewPanel(a.client(),
				chat.WithAgentName(a.cfg.AgentName),
				chat.WithMode(a.cfg.Mode),
				chat.WithObserver(func(ev chat.Event) {
					if ev.Kind == chat.EventChunk {
						streamed.WriteString(ev.Chunk)
						_, _ = io.WriteString(out, ev.Chunk)
					}
				}),
			)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if canned {
				_, err = panel.SubmitCanned(ctx)
			} else {
				_, err = panel.Submit(ctx, strings.Join(args, " "))
			}
			if err != nil {
				return err
			}

			history := panel.History()
			if len(history) < 2 {
				return fmt.Errorf("no reply received")
			}
			reply := history[len(history)-1]
			if streamed.Len() > 0 {
				fmt.Fprintln(out)
				if streamed.String() == reply.Text {
					return nil
				}
			}
			fmt.Fprintln(out, r.Entry(len(history), reply))
			return nil
		},
	}
	cmd.Flags().BoolVar(&canned, "btc", false, "Send the weekly BTCUSDT technical analysis query")
	return cmd
}

func (a *app) healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check whether the agent API is reachable",
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := a.renderer(render.AutoTheme())
			if err != nil {
				return err
			}
			state := health.NewIndicator(a.client()).Check(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), r.Health(state))
			if state != health.Online {
				return fmt.Errorf("agent API at %s is %s", a.cfg.APIBaseURL, state)
			}
			return nil
		},
	}
}

func (a *app) contextCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "context <user-id>",
		Short: "Fetch and print a user's context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.renderer(render.AutoTheme())
			if err != nil {
				return err
			}
			res := usercontext.NewViewer(a.client()).Fetch(cmd.Context(), args[0])
			if res.Status == usercontext.Failed {
				return fmt.Errorf("failed to load context for %q: %w", args[0], res.Err)
			}
			out, err := r.Context(res, a.output)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&a.output, "output", "o", "json", "Output format (json|yaml)")
	return cmd
}

func (a *app) proxyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "proxy",
		Short: "Run the development proxy",
		Long: `Forward requests under the proxy prefix to the secondary local service,
rewriting the Host header, and everything else to the fallback URL if set.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p := a.cfg.Proxy
			handler, err := devproxy.New(devproxy.Options{Prefix: p.Prefix, Target: p.Target, Fallback: p.Fallback})
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return devproxy.Serve(ctx, p.Listen, handler)
		},
	}

	flags := cmd.Flags()
	flags.String("listen", "", "Listen address [default: :5173]")
	flags.String("prefix", "", "Path prefix to forward [default: /asasense]")
	flags.String("target", "", "Target for the prefix [default: http://0.0.0.0:8001]")
	flags.String("fallback", "", "Target for all other paths (e.g. the API base URL)")
	for key, flag := range map[string]string{
		config.KeyProxyListen:   "listen",
		config.KeyProxyPrefix:   "prefix",
		config.KeyProxyTarget:   "target",
		config.KeyProxyFallback: "fallback",
	} {
		if err := a.v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			fmt.Fprintf(os.Stderr, "Error binding %s flag: %v\n", flag, err)
			os.Exit(1)
		}
	}
	return cmd
}

func (a *app) versionCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			info, err := version.GetInfo()
			if err != nil {
				return err
			}
			switch format {
			case "":
				fmt.Fprintln(out, version.GetFormattedVersion())
			case "json":
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			case "yaml":
				return yaml.NewEncoder(out).Encode(info)
			default:
				return fmt.Errorf("unsupported output format %q (expected json or yaml)", format)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "output", "o", "", "Output format (json|yaml)")
	return cmd
}
