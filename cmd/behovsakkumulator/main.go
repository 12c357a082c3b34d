// Command behovsakkumulator consumes the shared need/solution topic,
// accumulates solutions per correlation id, and emits a final record
// once every required answer kind has been observed. See SPEC_FULL.md.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/sasl/plain"
	"go.uber.org/zap"

	"github.com/amouat/dp-behovsakkumulator/accumulator"
	"github.com/amouat/dp-behovsakkumulator/config"
	"github.com/amouat/dp-behovsakkumulator/metrics"
	"github.com/amouat/dp-behovsakkumulator/streams"
)

const groupID = "behovsakkumulator"

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, "building logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	streams.SetLogger(sugar)

	if err := run(sugar); err != nil {
		sugar.Fatalf("behovsakkumulator exited: %v", err)
	}
}

func run(logger *zap.SugaredLogger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := os.MkdirAll(cfg.StateDir, 0o755); err != nil {
		return fmt.Errorf("creating state dir %s: %w", cfg.StateDir, err)
	}

	cluster := streams.NewCluster(clusterOpts(cfg)...)

	metricsHandler := metrics.NewPrometheusHandler(prometheus.DefaultRegisterer)

	changelogClient, err := kgo.NewClient(clusterOpts(cfg)...)
	if err != nil {
		return fmt.Errorf("building changelog producer client: %w", err)
	}
	defer changelogClient.Close()

	changelogTopic := fmt.Sprintf("%s-%s-changelog", cfg.SpleisBehovtopic, groupID)
	produceChangelog := func(ctx context.Context, key, value []byte) error {
		record := &kgo.Record{Topic: changelogTopic, Key: key, Value: value}
		result := changelogClient.ProduceSync(ctx, record)
		return result.FirstErr()
	}

	stateStoreNew := func(partition int32) *accumulator.Store {
		store, err := accumulator.NewStore(cfg.StateDir, cfg.SpleisBehovtopic, partition, produceChangelog, metricsHandler)
		if err != nil {
			logger.Fatalf("opening state store section for partition %d: %v", partition, err)
		}
		return store
	}

	processor := accumulator.NewProcessor(metricsHandler, nil)

	source, err := streams.NewEventSource[*accumulator.Store](streams.EventSourceConfig{
		GroupId:           groupID,
		Topic:             cfg.SpleisBehovtopic,
		StateStoreTopic:   changelogTopic,
		SourceCluster:     cluster,
		BalanceStrategies: []streams.BalanceStrategy{kgo.CooperativeStickyBalancer()},
		CommitIntervalMs:  cfg.CommitIntervalMs,
		MetricsHandler:    metricsHandler,
		OnPartitionActivated: func(_ *streams.Source, partition int32) {
			logger.Infof("partition %d activated", partition)
		},
	}, processor, stateStoreNew)
	if err != nil {
		return fmt.Errorf("building event source: %w", err)
	}

	go serveMetrics(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return source.Run(ctx)
}

func clusterOpts(cfg config.Config) []kgo.Opt {
	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.KafkaBootstrapServers...),
		kgo.ClientID("behovsakkumulator"),
	}
	if cfg.ServiceUser.Username != "" {
		mech := plain.Auth{
			User: cfg.ServiceUser.Username,
			Pass: cfg.ServiceUser.Password,
		}.AsMechanism()
		opts = append(opts, kgo.SASL(mech))
	}
	return opts
}

func serveMetrics(logger *zap.SugaredLogger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(":8080", mux); err != nil {
		logger.Warnf("metrics server stopped: %v", err)
	}
}
