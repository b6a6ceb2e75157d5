package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/bbque-go/bbqued/internal/config"
	"github.com/bbque-go/bbqued/internal/logging"
	"github.com/bbque-go/bbqued/pkg/accounter"
	"github.com/bbque-go/bbqued/pkg/adminapi"
	"github.com/bbque-go/bbqued/pkg/appmanager"
	"github.com/bbque-go/bbqued/pkg/binding"
	"github.com/bbque-go/bbqued/pkg/metrics"
	"github.com/bbque-go/bbqued/pkg/policy"
	"github.com/bbque-go/bbqued/pkg/recipe"
	"github.com/bbque-go/bbqued/pkg/respath"
	"github.com/bbque-go/bbqued/pkg/restree"
	"github.com/bbque-go/bbqued/pkg/trigger"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run the resource manager daemon",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("bbqued: %w", err)
	}

	log := logging.New(logging.Config{
		Level:          logging.Level(cfg.Logging.Level),
		Format:         logging.Format(cfg.Logging.Format),
		ServiceName:    "bbqued",
		ServiceVersion: "dev",
		Environment:    cfg.Node.Environment,
	})
	log = logging.Component(log, "serve")

	tree, err := buildTree(cfg.Platform.Resources)
	if err != nil {
		return fmt.Errorf("bbqued: %w", err)
	}

	binder := binding.New()
	for _, name := range cfg.Platform.BindingDomains {
		t := respath.TypeFromString(name)
		if !t.Valid() {
			return fmt.Errorf("bbqued: unknown binding domain %q", name)
		}
		tmpl, err := respath.ParseString("sys."+name, true)
		if err != nil {
			return fmt.Errorf("bbqued: binding domain %q: %w", name, err)
		}
		binder.Configure(t, tmpl)
	}
	if err := binder.Init(tree); err != nil {
		return fmt.Errorf("bbqued: %w", err)
	}

	acc := accounter.New(tree, logging.Component(log, "accounter"))
	acc.SetReady()

	reg := recipe.NewRegistry()
	mgr := appmanager.New(reg, cfg.Platform.PriorityFloor, logging.Component(log, "appmanager"))

	triggers := trigger.NewRegistry()

	var collector *metrics.Collector
	var metricsSrv *metrics.Server
	if cfg.Metrics.Enabled {
		collector = metrics.New(cfg.Metrics.Namespace, cfg.Metrics.Subsystem)
		metricsSrv = metrics.NewServer(cfg.Metrics, collector, logging.Component(log, "metrics"))
		metricsSrv.Start()
	}

	pol, err := choosePolicy(cfg.Policy.Name, logging.Component(log, "policy"))
	if err != nil {
		return fmt.Errorf("bbqued: %w", err)
	}

	api := adminapi.New(cfg.AdminAPI, acc, mgr, tree, triggers, logging.Component(log, "adminapi"))
	api.Start()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Info().Str("node", cfg.Node.Name).Str("policy", pol.Name()).Msg("bbqued started")

	ticker := time.NewTicker(cfg.Policy.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			runSchedulingRound(ctx, pol, acc, mgr, binder, tree, collector, log)
		case <-ctx.Done():
			log.Info().Msg("shutting down")
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			if err := api.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("admin API shutdown error")
			}
			if metricsSrv != nil {
				if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
					log.Error().Err(err).Msg("metrics server shutdown error")
				}
			}
			return nil
		}
	}
}

func buildTree(seeds []config.ResourceSeed) (*restree.Tree, error) {
	tree := restree.New()
	for _, seed := range seeds {
		p, err := respath.ParseString(seed.Path, false)
		if err != nil {
			return nil, fmt.Errorf("resource seed %q: %w", seed.Path, err)
		}
		tree.Insert(p).SetTotal(seed.Total)
	}
	return tree, nil
}

func choosePolicy(name string, log zerolog.Logger) (policy.Policy, error) {
	switch name {
	case "greedy":
		return policy.NewGreedy(log), nil
	default:
		return nil, fmt.Errorf("unrecognized policy %q", name)
	}
}

func runSchedulingRound(ctx context.Context, pol policy.Policy, acc *accounter.Accounter, mgr *appmanager.Manager, binder *binding.Manager, tree *restree.Tree, collector *metrics.Collector, log zerolog.Logger) {
	start := time.Now()
	token, err := pol.Run(acc, mgr, binder, tree)
	if err != nil {
		collector.ObserveSyncDuration(time.Since(start).Seconds(), "error")
		log.Warn().Err(err).Msg("scheduling round failed")
		collector.RecordScheduleRequest("error")
		return
	}
	collector.ObserveSyncDuration(time.Since(start).Seconds(), "ok")
	collector.RecordScheduleRequest("ok")
	log.Debug().Uint32("view", uint32(token)).Dur("elapsed", time.Since(start)).Msg("scheduling round complete")
}
