// cmd/roomsim/main.go joins a room from the configured catalog, plays one
// scripted round against a simulated remote player and logs every notification.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jason-s-yu/roomsim/internal/catalog"
	"github.com/jason-s-yu/roomsim/internal/config"
	"github.com/jason-s-yu/roomsim/internal/models"
	"github.com/jason-s-yu/roomsim/internal/notify"
	"github.com/jason-s-yu/roomsim/internal/simulator"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func main() {
	logger := logrus.New()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config: %v", err)
	}
	logger.SetLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cat, closeCatalog, err := openCatalog(ctx, cfg)
	if err != nil {
		logger.Fatalf("catalog: %v", err)
	}
	defer closeCatalog()

	sim := simulator.New(simulator.Config{
		Catalog:   cat,
		LocalUser: cfg.LocalUser,
		Log:       logger,
	})
	sub := sim.Subscribe(cfg.NotificationBuffer)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logEvents(logger, sub)
		return nil
	})
	g.Go(func() error {
		defer sim.Close(context.Background())
		return playRound(ctx, logger, sim, cfg)
	})

	if err := g.Wait(); err != nil {
		logger.Fatalf("round failed: %v", err)
	}
	logger.Info("round complete")
}

func openCatalog(ctx context.Context, cfg config.Config) (catalog.Catalog, func(), error) {
	switch cfg.CatalogSource {
	case config.SourceRedis:
		rdb, err := catalog.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisDB)
		if err != nil {
			return nil, nil, err
		}
		return catalog.NewRedisCatalog(rdb, cfg.RedisPrefix), func() { rdb.Close() }, nil
	case config.SourcePostgres:
		pg := cfg.Postgres
		pool, err := catalog.ConnectPostgres(ctx, pg.User, pg.Password, pg.Host, pg.Port, pg.Database)
		if err != nil {
			return nil, nil, err
		}
		return catalog.NewPostgresCatalog(pool), pool.Close, nil
	default:
		mem, err := catalog.LoadFile(cfg.CatalogPath)
		if err != nil {
			return nil, nil, err
		}
		return mem, func() {}, nil
	}
}

func logEvents(logger *logrus.Logger, sub *notify.Subscription) {
	for e := range sub.C {
		entry := logger.WithFields(logrus.Fields{
			"seq":     e.Seq,
			"room_id": e.RoomID,
			"event":   e.Type,
		})
		if e.UserID != 0 {
			entry = entry.WithField("user_id", e.UserID)
		}
		switch {
		case e.RoomState != "":
			entry = entry.WithField("room_state", e.RoomState)
		case e.UserState != "":
			entry = entry.WithField("user_state", e.UserState)
		case e.Item != nil:
			entry = entry.WithFields(logrus.Fields{
				"item_id":        e.Item.ID,
				"beatmap_id":     e.Item.BeatmapID,
				"expired":        e.Item.Expired,
				"playlist_order": e.Item.PlaylistOrder,
			})
		case e.Countdown != nil:
			entry = entry.WithField("remaining", e.Countdown.TimeRemaining)
		}
		entry.Info("notification")
	}
}

const remoteUserID = -1

// playRound drives both the local user and a simulated remote player through
// ready, load, play and results.
func playRound(ctx context.Context, logger logrus.FieldLogger, sim *simulator.Simulator, cfg config.Config) error {
	room, err := sim.Join(ctx, cfg.RoomID, cfg.RoomPassword)
	if err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{
		"room_id":   room.RoomID,
		"name":      room.Settings.Name,
		"items":     len(room.Playlist),
		"current":   room.Settings.PlaylistItemID,
		"queue":     room.Settings.QueueMode,
		"autostart": room.Settings.AutoStartDuration,
	}).Info("joined")

	remote := models.User{ID: remoteUserID, Username: "remote"}
	if remote.ID == sim.LocalUser().ID {
		remote.ID--
	}

	steps := []struct {
		name string
		fn   func() error
	}{
		{"add remote user", func() error { return sim.AddUser(ctx, remote) }},
		{"remote ready", func() error { return sim.ChangeUserState(ctx, remote.ID, models.UserStateReady) }},
		{"local available", func() error { return sim.ChangeBeatmapAvailability(ctx, models.LocallyAvailable()) }},
		{"local ready", func() error { return sim.ChangeState(ctx, models.UserStateReady) }},
		{"start match", func() error { return startMatch(ctx, sim) }},
		{"local loaded", func() error { return sim.ChangeState(ctx, models.UserStateLoaded) }},
		{"remote loaded", func() error { return sim.ChangeUserState(ctx, remote.ID, models.UserStateLoaded) }},
		{"local finished", func() error { return sim.ChangeState(ctx, models.UserStateFinishedPlay) }},
		{"remote finished", func() error { return sim.ChangeUserState(ctx, remote.ID, models.UserStateFinishedPlay) }},
	}
	for _, step := range steps {
		if err := step.fn(); err != nil {
			return fmt.Errorf("%s: %w", step.name, err)
		}
	}

	room, err = sim.Room(ctx)
	if err != nil {
		return err
	}
	fields := logrus.Fields{
		"state":   room.State,
		"current": room.Settings.PlaylistItemID,
		"items":   len(room.Playlist),
	}
	if item, ok := room.CurrentItem(); ok {
		fields["beatmap_id"] = item.BeatmapID
		fields["expired"] = item.Expired
	}
	logger.WithFields(fields).Info("round finished")

	return sim.Leave(ctx)
}

// startMatch skips the auto-start countdown when one is running, and starts
// the match directly otherwise.
func startMatch(ctx context.Context, sim *simulator.Simulator) error {
	room, err := sim.Room(ctx)
	if err != nil {
		return err
	}
	if room.Countdown != nil {
		return sim.SkipCountdown(ctx)
	}
	return sim.StartMatch(ctx)
}
