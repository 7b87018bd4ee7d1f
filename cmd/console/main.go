// console is the billing admin terminal dashboard. It signs operators in
// with a one-time code and then browses the billing resources.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/BradenHooton/billdesk/internal/apiclient"
	"github.com/BradenHooton/billdesk/internal/authclient"
	"github.com/BradenHooton/billdesk/internal/clock"
	"github.com/BradenHooton/billdesk/internal/config"
	"github.com/BradenHooton/billdesk/internal/device"
	"github.com/BradenHooton/billdesk/internal/loginflow"
	"github.com/BradenHooton/billdesk/internal/session"
	"github.com/BradenHooton/billdesk/internal/storage"
	"github.com/BradenHooton/billdesk/internal/tokenstore"
	"github.com/BradenHooton/billdesk/internal/tui"
	pkglogger "github.com/BradenHooton/billdesk/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var envFile, apiURL, storePath, logOutput string
	var inMemory, plain bool

	flagSet := pflag.NewFlagSet("console", pflag.ContinueOnError)
	flagSet.StringVar(&envFile, "env-file", "", "load settings from this dotenv file")
	flagSet.StringVar(&apiURL, "api-url", "", "backend base URL (overrides API_BASE_URL)")
	flagSet.StringVar(&storePath, "store", "", "token store path (overrides TOKEN_STORE_PATH)")
	flagSet.BoolVar(&inMemory, "in-memory", false, "keep the session in memory only")
	flagSet.StringVar(&logOutput, "log-output", "", "write JSON log records to this file")
	flagSet.BoolVar(&plain, "plain", false, "line-based prompts instead of the full-screen interface")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}

	cfg, err := loadConfig(envFile)
	if err != nil {
		return err
	}
	if apiURL != "" {
		cfg.API.BaseURL = strings.TrimRight(apiURL, "/")
	}
	if storePath != "" {
		cfg.Storage.Path = storePath
	}
	if inMemory {
		cfg.Storage.InMemory = true
	}

	interactive := term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
	if !interactive {
		plain = true
	}

	logger, closeLog, err := newLogger(logOutput, cfg.Console.LogLevel, plain)
	if err != nil {
		return err
	}
	defer closeLog()

	app := wire(cfg, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if plain {
		return runPlain(ctx, app, os.Stdin, os.Stdout)
	}
	return runTUI(ctx, app)
}

func loadConfig(envFile string) (*config.Config, error) {
	if envFile != "" {
		return config.LoadFile(envFile)
	}
	return config.Load()
}

// newLogger picks where logs go. The full-screen interface owns the
// terminal, so without --log-output logs are discarded there; plain mode
// logs warnings to stderr, as text on a terminal and JSON otherwise.
func newLogger(logOutput, level string, plain bool) (*slog.Logger, func(), error) {
	options := &slog.HandlerOptions{Level: parseLevel(level)}

	if logOutput != "" {
		file, err := os.OpenFile(logOutput, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log output %s: %w", logOutput, err)
		}
		return slog.New(slog.NewJSONHandler(file, options)), func() { file.Close() }, nil
	}

	if !plain {
		return slog.New(slog.NewTextHandler(io.Discard, nil)), func() {}, nil
	}

	options.Level = slog.LevelWarn
	var handler slog.Handler
	if term.IsTerminal(int(os.Stderr.Fd())) {
		handler = slog.NewTextHandler(os.Stderr, options)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, options)
	}
	return slog.New(handler), func() {}, nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// application holds the wired console components.
type application struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *tokenstore.Store
	auth    *authclient.Client
	gate    *session.Gate
	lister  *apiclient.Client
	newFlow func(onChange func(loginflow.Snapshot)) *loginflow.Controller
}

func wire(cfg *config.Config, logger *slog.Logger) *application {
	clk := clock.Real()

	var kv storage.KV
	if cfg.Storage.InMemory {
		kv = storage.NewMemory()
	} else {
		kv = storage.NewFile(cfg.Storage.Path, cfg.Storage.Passphrase)
	}

	store := tokenstore.New(kv, clk, logger)
	dev := device.LoadOrCreate(kv, cfg.Device, clk, logger)
	authClient := authclient.New(nil, cfg.API, cfg.Login.DefaultTempTokenTTL, store, dev, clk, logger)
	gate := session.NewGate(store, authClient, logger)

	auditLogger := pkglogger.NewAuditLogger(logger)
	gate.Subscribe(func(state session.State) {
		if state.Authenticated {
			auditLogger.LogSessionAction("session_started", state.User.String("id"), nil)
			return
		}
		auditLogger.LogSessionAction("session_ended", "", nil)
	})

	// A 401 from any resource call means the token is no longer honoured.
	bearer := &apiclient.BearerTransport{
		Tokens: store,
		OnUnauthorized: func(req *http.Request) {
			logger.Warn("resource request rejected, ending session", slog.String("path", req.URL.Path))
			gate.OnLogout(context.WithoutCancel(req.Context()))
		},
	}
	lister := apiclient.New(&http.Client{Transport: bearer, Timeout: cfg.API.RequestTimeout}, cfg.API.BaseURL, logger)

	newFlow := func(onChange func(loginflow.Snapshot)) *loginflow.Controller {
		return loginflow.NewController(authClient, store, loginflow.Options{
			Clock:          clk,
			Logger:         logger,
			ResendCooldown: cfg.Login.ResendCooldown,
			SuccessDelay:   cfg.Login.SuccessDelay,
			OnLogin:        gate.OnLogin,
			OnChange:       onChange,
		})
	}

	return &application{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		auth:    authClient,
		gate:    gate,
		lister:  lister,
		newFlow: newFlow,
	}
}

func runTUI(ctx context.Context, app *application) error {
	var program *tea.Program

	send := func(msg tea.Msg) {
		if program != nil {
			program.Send(msg)
		}
	}

	model := tui.New(ctx, tui.Config{
		Gate: app.gate,
		NewFlow: func() tui.Flow {
			return app.newFlow(func(s loginflow.Snapshot) { send(tui.FlowMsg{Snapshot: s}) })
		},
		Lister:    app.lister,
		Resources: apiclient.Resources,
		Keys:      tui.DefaultKeyMap,
		Theme:     tui.DefaultTheme,
	})

	program = tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	unsubscribe := app.gate.Subscribe(func(state session.State) { send(tui.SessionMsg{State: state}) })
	defer unsubscribe()

	_, err := program.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `Billing admin console: sign in with a one-time code and browse billing resources.

Settings come from the environment (or a .env file). See API_BASE_URL,
TOKEN_STORE_PATH, TOKEN_STORE_PASSPHRASE and OTP_RESEND_COOLDOWN.

Usage:
  console [flags]

Examples:
  # Sign in against a local development backend
  console --api-url http://localhost:8080

  # Scripted sign-in without the full-screen interface
  console --plain --in-memory

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
