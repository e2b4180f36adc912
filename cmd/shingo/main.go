// Command shingo runs a layout under automated control.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"nyiyui.ca/hato/shingo"
	"nyiyui.ca/hato/shingo/config"
	"nyiyui.ca/hato/shingo/conn"
	"nyiyui.ca/hato/shingo/conn/mqtt"
	"nyiyui.ca/hato/shingo/journal"
	"nyiyui.ca/hato/shingo/kujo"
	"nyiyui.ca/hato/shingo/sakuragi"
	"nyiyui.ca/hato/shingo/sim"
	"nyiyui.ca/hato/shingo/tal"
	"nyiyui.ca/hato/shingo/tal/guide"
	"nyiyui.ca/hato/shingo/tal/layout"
	"nyiyui.ca/hato/shingo/tal/plan"
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults if empty)")
	level := zap.LevelFlag("log-level", zap.InfoLevel, "set log level (overrides config)")
	flag.Parse()

	c, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}
	setupLog(c.Log, *level)
	defer zap.S().Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, c); err != nil && !errors.Is(err, context.Canceled) {
		zap.S().Fatalf("run: %s", err)
	}
	zap.S().Info("bye")
}

func setupLog(lc config.LogConfig, flagLevel zapcore.Level) {
	cfg := zap.NewProductionConfig()
	if lc.Development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(flagLevel)
	explicit := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "log-level" {
			explicit = true
		}
	})
	if !explicit && lc.Level != "" {
		l, err := zap.ParseAtomicLevel(lc.Level)
		if err != nil {
			panic(err)
		}
		cfg.Level = l
	}
	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	zap.ReplaceGlobals(logger)
}

func run(ctx context.Context, c *config.Config) error {
	y, err := c.BuildLayout()
	if err != nil {
		return err
	}

	rec := journal.Discard
	var reader kujo.JournalReader
	if c.Journal.Driver != "none" {
		store, err := journal.Open(c.Journal.Driver, c.Journal.Path)
		if err != nil {
			return err
		}
		j, err := journal.New(store)
		if err != nil {
			return err
		}
		defer j.Close()
		rec, reader = j, j
	}

	var adapter conn.Adapter
	var simulator *sim.Simulator
	switch c.Adapter.Kind {
	case "sim":
		simulator = sim.New(sim.Conf{
			Layout:     y,
			Relation:   plan.Linear(c.Adapter.Sim.Scale),
			SwitchTime: c.Adapter.Sim.SwitchTime(),
			Tick:       c.Adapter.Sim.Tick(),
		})
		for _, t := range c.Trains {
			simulator.Place(t.ID, y.MustLookup(t.Block))
		}
		simulator.Report()
		adapter = simulator
	case "mqtt":
		a, err := mqtt.Connect(mqtt.Conf{
			Broker:   c.MQTT.Broker.URL(),
			ClientID: c.MQTT.Broker.ClientID,
			Username: c.MQTT.Auth.Username,
			Password: c.MQTT.Auth.Password,
			Prefix:   c.MQTT.TopicPrefix,
			QoS:      byte(c.MQTT.QoS),
		}, y)
		if err != nil {
			return err
		}
		defer a.Close()
		adapter = a
	}

	metric, err := plan.ParseMetric(c.Guide.Metric)
	if err != nil {
		return err
	}
	track := tal.New(y, rec)
	g := guide.New(track, adapter, rec, guide.Conf{
		Lookahead:     c.Guide.Lookahead,
		StallTimeout:  c.Guide.StallTimeout(),
		ClearDebounce: c.Guide.ClearDebounce(),
		MaxReplans:    c.Guide.MaxReplans,
		Metric:        metric,
	})
	for _, t := range c.Trains {
		err := g.Register(t.ID, y.MustLookup(t.Block), guide.TrainConf{
			Comment:      t.Name,
			Cruise:       shingo.Speed(t.Cruise),
			Caution:      shingo.Speed(t.Caution),
			Relation:     t.Relation(),
			Deceleration: t.Deceleration,
			RampStep:     shingo.Speed(t.RampStep),
			RampInterval: t.RampInterval(),
		})
		if err != nil {
			return err
		}
	}

	if c.Kujo.Enabled {
		k := kujo.NewServer(g, reader)
		k.AllowOrigins(c.Kujo.AllowedOrigins)
		defer k.Close()
		serve(ctx, "kujo", c.Kujo.Listen, k)
	}
	if c.Sakuragi.Enabled {
		serve(ctx, "sakuragi", c.Sakuragi.Listen, sakuragi.New(g))
	}
	if simulator != nil {
		go simulator.Run(ctx)
	}
	for _, d := range c.Drives {
		go scheduleDrive(ctx, g, d, y.MustLookup(d.Goal))
	}
	zap.S().Infow("running", "layout", c.Layout.Preset, "adapter", c.Adapter.Kind, "trains", len(c.Trains))
	return g.Run(ctx, adapter.Vals())
}

func serve(ctx context.Context, name, addr string, h http.Handler) {
	s := &http.Server{Addr: addr, Handler: h}
	go func() {
		zap.S().Infof("starting %s on %s…", name, addr)
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.S().Fatalf("%s: %s", name, err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.Shutdown(shutdownCtx)
	}()
}

type driver interface {
	Drive(req guide.DriveRequest) (uuid.UUID, error)
}

// scheduleDrive issues a configured drive after its delay. A drive with no
// route is tried again up to d.Retries times, since the blocking train may
// have moved on by then.
func scheduleDrive(ctx context.Context, g driver, d config.DriveConfig, goal layout.BlockI) {
	wait := d.After()
	for attempt := 0; ; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
		id, err := g.Drive(guide.DriveRequest{Train: d.Train, Goal: goal})
		if err == nil {
			zap.S().Infow("scripted drive", "train", d.Train, "goal", d.Goal, "request", id, "attempt", attempt)
			return
		}
		if !errors.Is(err, tal.ErrNoPath) || attempt >= d.Retries {
			zap.S().Errorw("scripted drive", "train", d.Train, "goal", d.Goal, "attempt", attempt, "err", err)
			return
		}
		wait = d.RetryAfter()
		zap.S().Warnw("scripted drive: no route, retrying", "train", d.Train, "goal", d.Goal, "attempt", attempt, "in", wait)
	}
}
