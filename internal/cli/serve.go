package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"focuser/internal/agents"
	"focuser/internal/background"
	"focuser/internal/blocking"
	"focuser/internal/browser"
	"focuser/internal/bus"
	"focuser/internal/config"
	"focuser/internal/host"
	"focuser/internal/logging"
	"focuser/internal/models"
	"focuser/internal/pomodoro"
	"focuser/internal/server"
	"focuser/internal/storage"
	"focuser/internal/tasks"
)

const (
	agentTabs   = "agent"
	browserTabs = "browser"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the focuser daemon",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	manager, err := config.NewManager(configPath)
	if err != nil {
		return err
	}
	cfg := manager.GetConfig()

	logger, level, err := logging.New(logging.Options{Level: cfg.Log.Level, Development: cfg.Log.Development})
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := newDaemon(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer d.close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return d.server.Run(gctx)
	})
	g.Go(func() error {
		return manager.WatchConfig(gctx, logger, func(next *config.Config) {
			if l, err := logging.ParseLevel(next.Log.Level); err == nil {
				level.SetLevel(l)
			} else {
				logger.Warn("ignoring log level", zap.Error(err))
			}
			d.controller.Timer().SetBroadcastInterval(next.Pomodoro.BroadcastInterval)
		})
	})
	if d.browser != nil {
		g.Go(func() error {
			if err := d.browser.Run(gctx); err != nil {
				// The daemon stays useful to page agents without the browser.
				logger.Error("browser driver stopped", zap.Error(err))
			}
			return nil
		})
	}

	logger.Info("focuser daemon started",
		zap.String("listen", cfg.Server.Listen),
		zap.String("config", manager.Path()),
		zap.String("storage", cfg.Storage.Path),
	)
	err = g.Wait()
	d.controller.Stop(context.Background())
	return err
}

// daemon is the wired set of components behind "serve".
type daemon struct {
	db         *storage.Database
	tabs       *host.TabGroup
	hub        *agents.Hub
	browser    *browser.Driver
	controller *background.Controller
	server     *server.Server
	logger     *zap.Logger
}

func newDaemon(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*daemon, error) {
	db, err := storage.NewDatabase(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	store := storage.NewManager(db, logger.Named("storage"))

	var notifier host.Notifier = host.NewLogNotifier(logger.Named("notify"))
	if dir := cfg.Notifications.SoundDir; dir != "" {
		sound, err := host.NewSoundNotifier(notifier, dir, cfg.Notifications.Volume, func(ctx context.Context) bool {
			settings, err := store.Settings(ctx)
			return err == nil && settings.SoundEnabled
		}, logger.Named("sound"))
		if err != nil {
			logger.Warn("sound notifications disabled", zap.Error(err))
		} else {
			notifier = sound
		}
	}

	clock := host.SystemClock{}
	rules := host.NewMemoryRules()
	tabs := host.NewTabGroup()
	baseURL := "http://" + cfg.Server.Listen

	d := &daemon{db: db, tabs: tabs, logger: logger}

	blockingManager := blocking.NewManager(blocking.Options{
		Store:       store,
		Rules:       rules,
		Tabs:        tabs,
		Notifier:    notifier,
		Clock:       clock,
		Logger:      logger.Named("blocking"),
		BlockedPage: cfg.Blocking.BlockedPage,
	})
	timer := pomodoro.NewTimer(pomodoro.Options{
		Store:             store,
		Alarms:            host.NewAlarms(clock),
		Tabs:              tabs,
		Notifier:          notifier,
		Clock:             clock,
		Logger:            logger.Named("pomodoro"),
		BroadcastInterval: cfg.Pomodoro.BroadcastInterval,
	})
	d.controller = background.NewController(background.Options{
		Store:          store,
		Blocking:       blockingManager,
		Timer:          timer,
		Tasks:          tasks.NewManager(store, clock, logger.Named("tasks")),
		Matcher:        rules,
		Tabs:           tabs,
		Clock:          clock,
		Logger:         logger.Named("background"),
		BypassDuration: cfg.Blocking.BypassDuration,
		BaseURL:        baseURL,
	})

	d.hub = agents.NewHub(tabScope{prefix: agentTabs, next: d.controller}, logger.Named("agents"))
	tabs.Add(agentTabs, d.hub)

	if cfg.Browser.Enabled {
		d.browser = browser.New(browser.Config{
			ControlURL: cfg.Browser.ControlURL,
			Headless:   cfg.Browser.Headless,
		}, d.browserNavigated, logger.Named("browser"))
		tabs.Add(browserTabs, d.browser)
	}

	d.server = server.New(server.Options{
		Addr:        cfg.Server.Listen,
		Dispatcher:  d.controller,
		Agents:      d.hub,
		BlockedPage: cfg.Blocking.BlockedPage,
		Logger:      logger.Named("http"),
	})

	if err := d.controller.Install(ctx); err != nil {
		d.close()
		return nil, err
	}
	if err := d.controller.Start(ctx); err != nil {
		d.close()
		return nil, err
	}
	return d, nil
}

// browserNavigated checks a controlled page's new URL. A page that stays
// open gets the timer overlay back while a session is active, since the
// navigation dropped it.
func (d *daemon) browserNavigated(ctx context.Context, pageID, url string) {
	tabID := d.tabs.TabID(browserTabs, pageID)
	blocked, err := d.controller.HandleNavigation(ctx, tabID, url)
	if err != nil {
		d.logger.Warn("navigation check failed", zap.String("url", url), zap.Error(err))
		return
	}
	timer := d.controller.Timer()
	if blocked || timer.State() == models.StateIdle {
		return
	}
	push := host.Push{Action: host.ActionShowTimer, Data: timer.Display()}
	if err := d.tabs.SendMessage(ctx, tabID, push); err != nil {
		d.logger.Debug("failed to restore timer overlay", zap.String("tab", tabID), zap.Error(err))
	}
}

func (d *daemon) close() {
	d.hub.Close()
	if d.browser != nil {
		d.browser.Close()
	}
	d.db.Close()
}

// tabScope qualifies the tab ids of one provider's requests with the name
// it is registered under in the tab group.
type tabScope struct {
	prefix string
	next   agents.Dispatcher
}

func (s tabScope) Dispatch(ctx context.Context, msg bus.Message) bus.Response {
	if msg.TabID != "" && !strings.Contains(msg.TabID, ":") {
		msg.TabID = s.prefix + ":" + msg.TabID
	}
	return s.next.Dispatch(ctx, msg)
}
