package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/gohangfire/hangfire"
	"github.com/gohangfire/hangfire/metrics"
	"github.com/gohangfire/hangfire/webui"
)

type config struct {
	Redis               string   `yaml:"redis"`
	Db                  int      `yaml:"db"`
	Prefix              string   `yaml:"prefix"`
	Listen              string   `yaml:"listen"`
	MetricsListen       string   `yaml:"metrics_listen"`
	InvisibilityTimeout string   `yaml:"invisibility_timeout"`
	FetchTimeout        string   `yaml:"fetch_timeout"`
	ExpiryCheckInterval string   `yaml:"expiry_check_interval"`
	LifoQueues          []string `yaml:"lifo_queues"`
}

// parseDuration reads a "30m"-style duration, empty meaning the default.
func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

func defaultConfig() config {
	return config{
		Redis:         ":6379",
		Listen:        ":5040",
		MetricsListen: ":5041",
	}
}

func main() {
	cfg := defaultConfig()
	var configPath string

	root := &cobra.Command{
		Use:   "hangfire-webui",
		Short: "Runs the storage background components and the monitoring JSON API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath != "" {
				if err := loadConfig(configPath, &cfg); err != nil {
					return err
				}
			}
			return run(cfg)
		},
	}

	flags := root.Flags()
	flags.StringVarP(&configPath, "config", "c", "", "path to yaml config")
	flags.StringVar(&cfg.Redis, "redis", cfg.Redis, "redis hostport")
	flags.StringVar(&cfg.Listen, "listen", cfg.Listen, "hostport for the HTTP JSON API")
	flags.StringVar(&cfg.MetricsListen, "metrics-listen", cfg.MetricsListen, "hostport for prometheus metrics")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(path string, cfg *config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func run(cfg config) error {
	pool := hangfire.NewPool(cfg.Redis, cfg.Db)
	defer pool.Close()

	invisibilityTimeout, err := parseDuration(cfg.InvisibilityTimeout)
	if err != nil {
		return err
	}
	fetchTimeout, err := parseDuration(cfg.FetchTimeout)
	if err != nil {
		return err
	}
	expiryCheckInterval, err := parseDuration(cfg.ExpiryCheckInterval)
	if err != nil {
		return err
	}

	storage := hangfire.NewStorage(pool, &hangfire.Options{
		Prefix:              cfg.Prefix,
		Db:                  cfg.Db,
		InvisibilityTimeout: invisibilityTimeout,
		FetchTimeout:        fetchTimeout,
		ExpiryCheckInterval: expiryCheckInterval,
		LifoQueues:          cfg.LifoQueues,
	})
	storage.UseMetrics(metrics.NewCollector(prometheus.DefaultRegisterer))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	for _, component := range storage.Components() {
		component := component
		wg.Add(1)
		go func() {
			defer wg.Done()
			component.Execute(ctx)
		}()
	}

	server := webui.NewServer(storage, cfg.Listen)
	server.Start()

	go func() {
		http.Handle("/metrics", promhttp.Handler())
		http.ListenAndServe(cfg.MetricsListen, nil)
	}()

	fmt.Println("hangfire-webui listening on", cfg.Listen)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	fmt.Println("\nshutting down")
	cancel()
	server.Stop()
	wg.Wait()
	return nil
}
