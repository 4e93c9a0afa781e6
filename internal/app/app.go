package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/five82/tether/internal/config"
	"github.com/five82/tether/internal/logging"
	"github.com/five82/tether/internal/logtail"
	"github.com/five82/tether/internal/pipeline"
	"github.com/five82/tether/internal/prefs"
	"github.com/five82/tether/internal/search"
	"github.com/five82/tether/internal/source"
	"github.com/five82/tether/internal/state"
	"github.com/five82/tether/internal/ui"
)

// flushTimeout bounds the wait for queued lines when a headless run ends.
const flushTimeout = 2 * time.Second

// Options configure the tether application.
type Options struct {
	ConfigPath string
	PrefsPath  string // empty uses ~/.config/tether/prefs.toml
	// File is a saved log whose tail is shown before any session starts.
	File string
	// Connect overrides default_connection from the config.
	Connect string
	Console bool
	Debug   bool

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	// Headless forces plain output. Without it, output is plain when Stdout
	// is not a terminal.
	Headless bool
}

// Run boots tether until the user quits, the context is cancelled or, when
// headless, the session ends.
func Run(ctx context.Context, opts Options) error {
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, closeLog, err := logging.New(logging.Options{
		Dir:     cfg.LogDir,
		Console: opts.Console,
		Debug:   opts.Debug,
		Stderr:  opts.Stderr,
	})
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer func() { _ = closeLog() }()
	log.Infow("starting", "config", config.Path(opts.ConfigPath), "log_dir", cfg.LogDir)

	rules := newRuleSource(cfg, log.Named("rules"))
	store := &state.Store{}
	dialer := &source.Dialer{
		BaudRate: cfg.BaudRate,
		Stdin:    opts.Stdin,
		Logger:   log.Named("source"),
	}
	identity := opts.Connect
	if identity == "" {
		identity = cfg.DefaultConnection
	}

	base := pipeline.Options{
		Source:         dialer,
		Rules:          rules.RuleSet,
		Logger:         log.Named("pipeline"),
		Capacity:       cfg.MaxLines,
		RenderInterval: cfg.RenderInterval,
		PollInterval:   cfg.PollInterval,
		LogDir:         cfg.LogDir,
		LogPrefix:      cfg.LogPrefix,
		LogLayout:      cfg.LogTimestampLayout,
		LogExtension:   cfg.LogExtension,
	}

	if opts.Headless || !isTerminal(opts.Stdout) {
		return runHeadless(ctx, base, opts, cfg, identity, log)
	}
	return runInteractive(ctx, base, opts, cfg, identity, rules, store, log)
}

func runInteractive(ctx context.Context, base pipeline.Options, opts Options, cfg config.Config, identity string, rules *ruleSource, store *state.Store, log *zap.SugaredLogger) error {
	userPrefs, err := prefs.Load(opts.PrefsPath)
	if err != nil {
		log.Warnw("preferences not loaded, using defaults", "error", err)
	}
	if identity == "" && opts.File == "" {
		identity = userPrefs.LastConnection
	}

	view := ui.NewLineView()
	sched := ui.NewScheduler()
	base.Display = view
	base.Executor = sched.Post
	base.OnStatus = store.Update
	sup := pipeline.New(base)

	engine := search.New(search.Options{
		Index:     view,
		Pauser:    sup.Render(),
		Post:      sched.Post,
		ChunkSize: cfg.SearchChunk,
		OnChange:  view.Touch,
	})
	sup.Render().SetObserver(engine)

	if err := sup.Start(); err != nil {
		return fmt.Errorf("start pipeline: %w", err)
	}
	defer sup.Shutdown()

	if opts.File != "" {
		if err := loadFile(opts.File, cfg.MaxLines, sup, log); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return runPoller(gctx, store, supervisorProbe{sup: sup}, defaultPollInterval)
	})

	if identity != "" {
		userPrefs.LastConnection = identity
		g.Go(func() error {
			if err := sup.Connect(identity); err != nil {
				log.Warnw("initial connect failed", "identity", identity, "error", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		defer cancel()
		final, err := ui.Run(ui.Options{
			Context:    gctx,
			Controller: controller{Supervisor: sup, rules: rules},
			View:       view,
			Search:     engine,
			Scheduler:  sched,
			Store:      store,
			Rules:      rules.Rules,
			Prefs:      userPrefs,
			PrefsPath:  opts.PrefsPath,
			Logger:     log.Named("ui"),
		})
		if saveErr := prefs.Save(prefsPath(opts.PrefsPath), final); saveErr != nil {
			log.Warnw("save preferences", "error", saveErr)
		}
		return err
	})

	return g.Wait()
}

// runHeadless prints rendered lines to stdout until the session ends.
func runHeadless(ctx context.Context, base pipeline.Options, opts Options, cfg config.Config, identity string, log *zap.SugaredLogger) error {
	if identity == "" && opts.File == "" {
		return errors.New("nothing to show: give a log file or --connect")
	}

	printer := ui.NewPrinter(opts.Stdout)
	ended := make(chan struct{})
	var once sync.Once
	var connected atomic.Bool
	base.Display = printer
	base.OnStatus = func(st pipeline.Status) {
		switch st.State {
		case pipeline.StateConnected:
			connected.Store(true)
		case pipeline.StateDisconnected:
			if connected.Load() || st.Err != nil {
				once.Do(func() { close(ended) })
			}
		}
	}
	sup := pipeline.New(base)
	if err := sup.Start(); err != nil {
		return fmt.Errorf("start pipeline: %w", err)
	}
	defer sup.Shutdown()

	if opts.File != "" {
		if err := loadFile(opts.File, cfg.MaxLines, sup, log); err != nil {
			return err
		}
	}

	var sessionErr error
	if identity != "" {
		if err := sup.Connect(identity); err != nil {
			return fmt.Errorf("connect %s: %w", identity, err)
		}
		select {
		case <-ctx.Done():
		case <-ended:
		}
		if err := sup.Disconnect(); err != nil {
			log.Warnw("disconnect", "error", err)
		}
		sessionErr = sup.Status().Err
	}

	quit := make(chan struct{})
	timer := time.AfterFunc(flushTimeout, func() { close(quit) })
	defer timer.Stop()
	if !sup.Drain(quit) {
		log.Warnw("output truncated, lines still queued at exit")
	}
	if err := printer.Err(); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	var te *pipeline.TransportError
	if errors.As(sessionErr, &te) && te.Op == "read" && errors.Is(te.Err, io.EOF) {
		return nil
	}
	return sessionErr
}

func loadFile(path string, maxLines int, sup *pipeline.Supervisor, log *zap.SugaredLogger) error {
	n, err := logtail.Load(path, maxLines, sup.Highlight())
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	log.Infow("log file loaded", "path", path, "lines", n)
	return nil
}

func prefsPath(path string) string {
	if path == "" {
		return prefs.DefaultPath()
	}
	return path
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
