package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"yieldopt/internal/application/usecase/rebalance"
	"yieldopt/internal/domain/model"
	"yieldopt/internal/infrastructure/config"
	"yieldopt/internal/infrastructure/logger"
	"yieldopt/internal/infrastructure/svc"
)

func main() {
	logger.Setup()
	_ = godotenv.Load()

	configPath := flag.String("config", "configs/config.toml", "path to config.toml")
	mode := flag.String("mode", "run", "run | analyze | latest")
	market := flag.String("market", "", "market unique key (analyze/latest modes)")
	days := flag.Int("days", 30, "trailing window in days (analyze mode)")
	funds := flag.Float64("funds", 0, "available funds override (USD)")
	maxRisk := flag.Float64("max-risk", 0, "max risk override")
	maxUtil := flag.Float64("max-util", 0, "max utilization override")
	once := flag.Bool("once", false, "run a single cycle even when schedule is enabled")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("config", *configPath).Msg("load config failed")
	}

	sc, err := svc.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("initialization failed")
	}
	defer sc.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch *mode {
	case "run":
		params := runParams(cfg, *funds, *maxRisk, *maxUtil)
		if cfg.Schedule.Enabled && !*once {
			runScheduled(ctx, sc, params, cfg.Schedule.Cron)
			return
		}
		if _, err := sc.Rebalance.Run(ctx, params); err != nil {
			log.Fatal().Err(err).Msg("optimization run failed")
		}

	case "analyze":
		if *market == "" {
			log.Fatal().Msg("-market is required in analyze mode")
		}
		summary, err := sc.Trend.Analyze(ctx, *market, *days)
		if err != nil {
			log.Fatal().Err(err).Str("market", *market).Msg("trend analysis failed")
		}
		f := rebalance.NewFormatter()
		for _, line := range f.TrendLines(summary) {
			_ = sc.Sink.WriteLine(line)
		}

	case "latest":
		if sc.Cache == nil {
			log.Fatal().Msg("latest mode requires redis enabled")
		}
		if *market == "" {
			log.Fatal().Msg("-market is required in latest mode")
		}
		snap, err := sc.Cache.Latest(ctx, *market)
		if err != nil {
			log.Fatal().Err(err).Str("market", *market).Msg("latest lookup failed")
		}
		_ = sc.Sink.WriteLine(rebalance.NewFormatter().SnapshotLine(*snap))

	default:
		log.Fatal().Str("mode", *mode).Msg("unknown mode")
	}
}

func runParams(cfg *config.Config, funds, maxRisk, maxUtil float64) model.ParamSet {
	p := model.ParamSet{
		AvailableFunds: cfg.Optimizer.AvailableFunds,
		MaxRisk:        cfg.Optimizer.MaxRisk,
		MaxUtilization: cfg.Optimizer.MaxUtilization,
	}
	if funds > 0 {
		p.AvailableFunds = funds
	}
	if maxRisk > 0 {
		p.MaxRisk = maxRisk
	}
	if maxUtil > 0 {
		p.MaxUtilization = maxUtil
	}
	return p
}

func runScheduled(ctx context.Context, sc *svc.ServiceContext, params model.ParamSet, spec string) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		if _, err := sc.Rebalance.Run(ctx, params); err != nil {
			log.Error().Err(err).Msg("scheduled run failed")
		}
	})
	if err != nil {
		log.Fatal().Err(err).Str("cron", spec).Msg("invalid schedule")
	}
	c.Start()
	log.Info().Str("cron", spec).Msg("scheduler started")
	<-ctx.Done()
	<-c.Stop().Done()
	log.Warn().Msg("exit")
}
