// The racebot daemon opens race rooms for scheduled races, runs the
// per-room chat bot and rolls seeds. Configuration comes from the
// environment (optionally via a .env file):
//
//	RACETIME_HOST            race service host (default racetime.gg)
//	RACETIME_CLIENT_ID       OAuth2 client id (required)
//	RACETIME_CLIENT_SECRET   OAuth2 client secret (required)
//	RACETIME_CATEGORY        race category slug (default ootr)
//	DATABASE_URL             postgres DSN; in-memory store when unset
//	OOTR_API_KEY             seed service API key
//	OOTR_ENCRYPTION_API_KEY  seed service key for encrypted seeds
//	OOTR_KNOWN_GOOD_VERSIONS extra versions assumed present on the service
//	SEED_DIR                 public directory for patch files (default seed)
//	REPOS_DIR                root of local randomizer checkouts
//	ROM_PATH                 base rom for local generation
//	PAL_ROM_PATH             PAL rom for French and German seeds
//	MULTIWORLD_SLOTS         concurrent multiworld rolls (default 2)
//	METRICS_ADDR             metrics listen address (default :9090)
//	OPEN_LEAD                how early rooms open (default 30m)
//	DRAIN_TIMEOUT            shutdown wait for open rooms (default 1h)
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/midoshouse/racebot"
	"github.com/midoshouse/racebot/gate"
	"github.com/midoshouse/racebot/gateway"
	"github.com/midoshouse/racebot/internal/config"
	"github.com/midoshouse/racebot/lifecycle"
	"github.com/midoshouse/racebot/metrics"
	"github.com/midoshouse/racebot/pkg/version"
	"github.com/midoshouse/racebot/racetime"
	"github.com/midoshouse/racebot/roller"
	"github.com/midoshouse/racebot/room"
	"github.com/midoshouse/racebot/source/local"
	"github.com/midoshouse/racebot/source/thirdparty"
	"github.com/midoshouse/racebot/source/web"
	"github.com/midoshouse/racebot/store"
	"github.com/midoshouse/racebot/store/memory"
	"github.com/midoshouse/racebot/store/postgres"
)

func main() {
	if err := config.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "loading .env: %v\n", err)
		os.Exit(1)
	}
	logger := config.NewLogger()
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("racebot exited", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	logger.Info("starting racebot", "version", version.String())

	clientID := config.GetEnv("RACETIME_CLIENT_ID", "")
	clientSecret := config.GetEnv("RACETIME_CLIENT_SECRET", "")
	if clientID == "" || clientSecret == "" {
		return errors.New("RACETIME_CLIENT_ID and RACETIME_CLIENT_SECRET are required")
	}

	var st store.RaceStore
	if dsn := config.GetEnv("DATABASE_URL", ""); dsn != "" {
		db, err := sql.Open("postgres", dsn)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			return fmt.Errorf("pinging database: %w", err)
		}
		st = postgres.New(db)
	} else {
		logger.Warn("DATABASE_URL not set, races and seeds are not persisted")
		st = memory.New()
	}

	knownGood, err := config.KnownGoodVersions("OOTR_KNOWN_GOOD_VERSIONS")
	if err != nil {
		return fmt.Errorf("parsing OOTR_KNOWN_GOOD_VERSIONS: %w", err)
	}

	seedDir := config.GetEnv("SEED_DIR", "seed")
	mwGate := gate.New(config.GetEnvInt("MULTIWORLD_SLOTS", 2))
	webClient := web.New(web.Config{
		Gateway:          gateway.New(gateway.Config{}),
		Gate:             mwGate,
		APIKey:           config.GetEnv("OOTR_API_KEY", ""),
		EncryptionAPIKey: config.GetEnv("OOTR_ENCRYPTION_API_KEY", ""),
		SeedDir:          seedDir,
		KnownGood:        knownGood,
	})
	localGen := local.New(local.Config{
		SeedDir:    seedDir,
		ReposDir:   config.GetEnv("REPOS_DIR", "repos"),
		RomPath:    config.GetEnv("ROM_PATH", ""),
		PALRomPath: config.GetEnv("PAL_ROM_PATH", ""),
	})
	tpClient := thirdparty.New(thirdparty.Config{})

	rt := racetime.New(racetime.Config{
		Host:         config.GetEnv("RACETIME_HOST", "racetime.gg"),
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Logger:       logger,
	})

	app := &app{
		logger:   logger,
		store:    st,
		racetime: rt,
		web:      webClient,
		local:    localGen,
		thirdp:   tpClient,
		category: config.GetEnv("RACETIME_CATEGORY", "ootr"),
		seedDir:  seedDir,
	}

	manager := lifecycle.New(lifecycle.Config{
		Store:    st,
		Opener:   app,
		RunRoom:  app.runRoom,
		OpenLead: config.GetEnvDuration("OPEN_LEAD", 0),
		Logger:   logger,
	})

	var prerollGoals []lifecycle.PrerollGoal
	for _, g := range goals {
		if g.Preroll == racebot.PrerollLong {
			req := racebot.NewSeedRequest(g.Version, g.Settings, g.Unlock)
			req.RandomSettings = g.RandomSettings
			prerollGoals = append(prerollGoals, lifecycle.PrerollGoal{
				Goal:    g.Name,
				Request: req,
			})
		}
	}
	preroller := lifecycle.NewPreroller(lifecycle.PrerollerConfig{
		Store:  st,
		Roller: roller.New(roller.Config{Web: webClient, Local: localGen}),
		Goals:  prerollGoals,
		Logger: logger,
	})

	metricsServer := metrics.NewServer(config.GetEnv("METRICS_ADDR", ":9090"))
	metricsServer.Start()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		metricsServer.Shutdown(ctx)
	}()

	// Rooms run on runCtx, which outlives the shutdown signal so open
	// races can finish during the drain.
	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()

	go manager.Run(runCtx)
	go preroller.Run(runCtx)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	sig := <-sigs
	logger.Info("shutdown signal received, draining open rooms", "signal", sig.String(), "open_rooms", manager.OpenRooms())

	drainCtx, cancelDrain := context.WithTimeout(context.Background(), config.GetEnvDuration("DRAIN_TIMEOUT", time.Hour))
	defer cancelDrain()
	if err := manager.CleanShutdown(drainCtx); err != nil {
		logger.Warn("shutdown with rooms still open", "open_rooms", manager.OpenRooms(), "error", err)
	}
	cancelRun()
	logger.Info("racebot stopped")
	return nil
}

// app wires the race service, the stores and the seed sources into the
// lifecycle manager's callbacks.
type app struct {
	logger   *slog.Logger
	store    store.RaceStore
	racetime *racetime.Client
	web      *web.Client
	local    *local.Generator
	thirdp   *thirdparty.Client
	category string
	seedDir  string
}

var _ lifecycle.RoomOpener = (*app)(nil)

// OpenRoom starts a race room for the scheduled race and returns its
// public URL.
func (a *app) OpenRoom(ctx context.Context, race store.Race) (string, error) {
	goal := goalForRace(race)
	roomPath, err := a.racetime.StartRace(ctx, a.category, racetime.StartRace{
		Goal:                  goal.Name,
		InfoUser:              fmt.Sprintf("%s: %s", race.Event, race.Goal),
		StartDelay:            15,
		TimeLimit:             24,
		TimeLimitAutoComplete: false,
		AutoStart:             true,
		AllowComments:         true,
		AllowPreraceChat:      true,
		AllowMidraceChat:      true,
		ChatMessageDelay:      0,
	})
	if err != nil {
		return "", err
	}
	return "https://" + config.GetEnv("RACETIME_HOST", "racetime.gg") + roomPath, nil
}

// runRoom connects to the room's websocket and drives the chat handler
// until the race finishes or is cancelled.
func (a *app) runRoom(ctx context.Context, race store.Race, roomURL string) {
	goal := goalForRace(race)
	logger := a.logger.With("race", race.ID, "room", roomURL)

	var seedRoller room.SeedRoller = roller.New(roller.Config{
		Web:        a.web,
		Local:      a.local,
		ThirdParty: a.thirdp.ForRoom(roomURL),
	})
	if goal.Preroll == racebot.PrerollLong {
		seedRoller = &lifecycle.CachedRoller{Goal: goal.Name, Store: a.store, Roller: seedRoller, Logger: logger}
	}

	// A re-opened room replays the seed rolled before the restart.
	existing, err := a.store.Seed(ctx, race.ID)
	if err != nil && !errors.Is(err, store.ErrSeedNotFound) {
		logger.Error("loading saved seed failed", "error", err)
	}

	slug := path.Base(roomURL)
	rm := a.racetime.Room("/ws/o/bot/" + slug)

	handler := room.New(room.Config{
		Chat:         rm,
		Monitor:      rm,
		Roller:       seedRoller,
		Goal:         goal,
		Spoilers:     a.web,
		Saver:        a.store,
		Official:     true,
		StartTime:    race.Start,
		RaceID:       race.ID,
		ExistingSeed: existing,
		SeedDir:      a.seedDir,
		Logger:       logger,
	})

	roomCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		rm.Run(roomCtx)
	}()

	if err := handler.Start(roomCtx); err != nil {
		logger.Error("starting room handler failed", "error", err)
	}

	monitors := make(map[string]bool)
	for ev := range rm.Events() {
		switch {
		case ev.Race != nil:
			monitors = make(map[string]bool, len(ev.Race.Monitors))
			for _, u := range ev.Race.Monitors {
				monitors[u.ID] = true
			}
			status := ev.Race.Status.Value
			if err := handler.HandleStatus(roomCtx, status); err != nil {
				logger.Error("handling status change failed", "status", status, "error", err)
			}
			if status == racebot.RaceStatusFinished || status == racebot.RaceStatusCancelled {
				cancel()
			}
		case ev.Chat != nil:
			msg, cmd, args, ok := parseCommand(ev.Chat, monitors)
			if !ok {
				continue
			}
			if err := handler.HandleCommand(roomCtx, msg, cmd, args); err != nil {
				logger.Error("handling command failed", "cmd", cmd, "error", err)
			}
		}
	}
	<-runDone
	logger.Info("room closed")
}

// parseCommand extracts a "!verb args" chat command. Bot and system
// messages never carry commands.
func parseCommand(chat *racetime.ChatMessage, monitors map[string]bool) (room.Message, string, []string, bool) {
	if chat.User == nil || chat.Bot != "" || chat.IsSystem {
		return room.Message{}, "", nil, false
	}
	text := strings.TrimSpace(chat.MessagePlain)
	if text == "" {
		text = strings.TrimSpace(chat.Message)
	}
	if !strings.HasPrefix(text, "!") {
		return room.Message{}, "", nil, false
	}
	fields := strings.Fields(text[1:])
	if len(fields) == 0 {
		return room.Message{}, "", nil, false
	}
	msg := room.Message{
		UserID:   chat.User.ID,
		UserName: chat.User.Name,
		Monitor:  monitors[chat.User.ID],
	}
	return msg, fields[0], fields[1:], true
}

// goalForRace resolves the event context a race room runs under. The
// lookup falls back to a latest-dev seed with monitor-gated settings
// for goals the bot has no specific configuration for.
func goalForRace(race store.Race) room.Goal {
	for _, g := range goals {
		if strings.EqualFold(g.Name, race.Goal) {
			return g
		}
	}
	g := defaultGoal
	g.Name = race.Goal
	return g
}
