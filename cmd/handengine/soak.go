package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	rand "math/rand/v2"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/lox/handengine/cmd/handengine/shared"
	"github.com/lox/handengine/internal/bot"
	"github.com/lox/handengine/internal/broadcast"
	"github.com/lox/handengine/internal/config"
	"github.com/lox/handengine/internal/engine"
	"github.com/lox/handengine/internal/hand"
	"github.com/lox/handengine/internal/handlog"
	"github.com/lox/handengine/internal/randutil"
	"github.com/lox/handengine/internal/settlement"
	"github.com/lox/handengine/internal/table"
	"github.com/lox/handengine/internal/wallet"
)

// SoakCmd plays seeded hands on many tables at once and audits every log.
type SoakCmd struct {
	Config     string `default:"handengine.hcl" help:"Configuration file"`
	Tables     int    `default:"4" help:"Number of tables"`
	Hands      int    `default:"100" help:"Hands per table"`
	Players    int    `default:"3" help:"Players per table"`
	Stack      int64  `default:"200" help:"Starting stack for every hand"`
	SmallBlind int64  `default:"1" help:"Small blind amount"`
	BigBlind   int64  `default:"2" help:"Big blind amount"`
	Seed       *int64 `help:"Deterministic RNG seed (optional)"`
	DataDir    string `help:"Directory for hand logs and the wallet (defaults to a temp dir)"`
	Debug      bool   `help:"Enable debug logging"`
	JSONLogs   bool   `name:"json-logs" help:"Log structured JSON instead of console output"`
}

// soakResult is what a soak run reports.
type soakResult struct {
	Hands         int
	Actions       int
	Rejected      int
	Audited       int
	AuditFailures int
	DroppedFrames uint64
	Rake          int64
	Elapsed       time.Duration
	DataDir       string
}

func (c *SoakCmd) Run() error {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return err
	}
	logger, err := shared.NewLogger(shared.LogOptions{Level: cfg.Server.LogLevel, Debug: c.Debug, JSON: c.JSONLogs})
	if err != nil {
		return err
	}
	ctx, stop := shared.SignalContext(context.Background(), logger)
	defer stop()

	res, err := c.soak(ctx, cfg, logger)
	if err != nil {
		return err
	}
	logger.Info().
		Int("hands", res.Hands).
		Int("actions", res.Actions).
		Int("rejected", res.Rejected).
		Int("audited", res.Audited).
		Int("audit_failures", res.AuditFailures).
		Uint64("dropped_frames", res.DroppedFrames).
		Int64("rake", res.Rake).
		Dur("elapsed", res.Elapsed).
		Str("data_dir", res.DataDir).
		Msg("Soak complete")
	if res.AuditFailures > 0 {
		return fmt.Errorf("%d of %d hands failed audit", res.AuditFailures, res.Audited)
	}
	return nil
}

func (c *SoakCmd) soak(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (soakResult, error) {
	if c.Tables <= 0 || c.Hands <= 0 || c.Players < 2 || c.Players > hand.MaxSeats {
		return soakResult{}, fmt.Errorf("soak needs tables > 0, hands > 0 and 2..%d players", hand.MaxSeats)
	}

	var seed int64
	if c.Seed != nil {
		seed = *c.Seed
		logger.Info().Int64("seed", seed).Msg("Using deterministic seed")
	} else {
		seed = time.Now().UnixNano()
		logger.Info().Int64("seed", seed).Msg("Using random seed")
	}

	dir := c.DataDir
	if dir == "" {
		var err error
		if dir, err = os.MkdirTemp("", "handengine-soak-*"); err != nil {
			return soakResult{}, err
		}
	}
	res := soakResult{DataDir: dir}

	w, err := wallet.Open(filepath.Join(dir, "wallet.db"), logger)
	if err != nil {
		return res, err
	}
	defer w.Close()

	hub := broadcast.NewHub(logger, broadcast.HubConfig{})
	defer hub.Close()
	if cfg.Redis.Addr != "" {
		client, err := broadcast.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return res, err
		}
		defer client.Close()
		relay := broadcast.NewRedisPublisher(client, logger)
		sub := hub.Subscribe("", "")
		go func() {
			if err := relay.Run(ctx, sub); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn().Err(err).Msg("Redis relay stopped")
			}
		}()
	}
	spectators := hub.Subscribe("", "")
	go drain(spectators)

	store := handlog.NewStore(logger, handlog.StoreConfig{
		BaseDir:       dir,
		FlushInterval: cfg.Server.FlushIntervalDuration(),
	})
	defaults, overrides := cfg.TableConfigs()
	defaults.BigBlind = c.BigBlind
	manager := table.NewManager(table.Deps{
		Store:     store,
		Wallet:    w,
		Evaluator: settlement.PokerEvaluator{},
		Publisher: hub,
		Entropy:   &lockedReader{r: randutil.Reader(seed)},
		Logger:    logger,
	}, defaults, overrides)

	start := time.Now()
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for i := range c.Tables {
		tableID := fmt.Sprintf("soak-%02d", i+1)
		rng := randutil.New(seed + int64(i) + 1)
		seats := c.seats(tableID)
		for _, s := range seats {
			if err := w.Deposit(ctx, s.ID, c.Stack*int64(c.Hands), "soak-deposit-"+s.ID, defaults.Currency); err != nil {
				return res, err
			}
		}

		g.Go(func() error {
			actor, err := manager.Get(gctx, tableID)
			if err != nil {
				return err
			}
			d := bot.NewDealer(actor, c.bots(seats, rng), bot.Limits{BigBlind: c.BigBlind, MaxBet: defaults.MaxBet}, logger)
			for range c.Hands {
				if _, err := d.PlayHand(gctx, seats, c.SmallBlind, c.BigBlind); err != nil {
					return fmt.Errorf("table %s: %w", tableID, err)
				}
			}
			stats := d.Stats()
			mu.Lock()
			res.Hands += stats.Hands
			res.Actions += stats.Actions
			res.Rejected += stats.Rejected
			mu.Unlock()
			return nil
		})
	}
	runErr := g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := manager.Shutdown(shutdownCtx); err != nil {
		runErr = errors.Join(runErr, err)
	}
	res.Elapsed = time.Since(start)
	res.DroppedFrames = spectators.Dropped()
	if runErr != nil {
		return res, runErr
	}

	if err := c.audit(dir, logger, &res); err != nil {
		return res, err
	}
	res.Rake, err = w.HouseBalance(ctx, "rake", defaults.Currency)
	if errors.Is(err, wallet.ErrAccountNotFound) {
		err = nil
	}
	return res, err
}

func (c *SoakCmd) seats(tableID string) []hand.Seat {
	seats := make([]hand.Seat, c.Players)
	for i := range seats {
		seats[i] = hand.Seat{ID: fmt.Sprintf("%s-p%d", tableID, i+1), Stack: c.Stack}
	}
	return seats
}

// bots mixes random players with callers so hands reach showdown.
func (c *SoakCmd) bots(seats []hand.Seat, rng *rand.Rand) map[string]bot.Bot {
	bots := make(map[string]bot.Bot, len(seats))
	for i, s := range seats {
		switch {
		case i%3 == 2:
			bots[s.ID] = bot.NewCallBot()
		case rng.IntN(10) == 0:
			bots[s.ID] = bot.NewFoldBot()
		default:
			bots[s.ID] = bot.NewRandBot(randutil.New(rng.Int64()))
		}
	}
	return bots
}

// audit checks every sealed log the run wrote.
func (c *SoakCmd) audit(dir string, logger zerolog.Logger, res *soakResult) error {
	store := handlog.NewStore(logger, handlog.StoreConfig{BaseDir: dir})
	defer store.Shutdown()

	tables, err := store.Tables()
	if err != nil {
		return err
	}
	for _, tableID := range tables {
		hands, err := store.Hands(tableID)
		if err != nil {
			return err
		}
		for _, handID := range hands {
			l, err := store.Load(tableID, handID)
			if err != nil {
				return err
			}
			res.Audited++
			report, err := engine.Audit(l)
			if err == nil && report.OK() {
				continue
			}
			res.AuditFailures++
			logger.Error().Err(err).
				Str("table_id", tableID).
				Str("hand_id", handID).
				Strs("problems", report.Problems).
				Int("mismatches", len(report.Mismatches)).
				Msg("Hand failed audit")
		}
	}
	return nil
}

// lockedReader serializes reads so tables can share one seeded source.
type lockedReader struct {
	mu sync.Mutex
	r  io.Reader
}

func (l *lockedReader) Read(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Read(p)
}

func drain(sub *broadcast.Subscriber) {
	for range sub.Frames() {
	}
}
