package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/viper"

	"github.com/tasklift/tasklift/pkg/config"
	"github.com/tasklift/tasklift/pkg/genai"
	"github.com/tasklift/tasklift/pkg/genai/openai"
	"github.com/tasklift/tasklift/pkg/persist"
	"github.com/tasklift/tasklift/pkg/telemetry"
)

// buildService wires the enrichment service from the loaded
// configuration: credential source, remote client, storage bridge, and
// optional tracing. Callers must Close() the returned service so
// pending snapshot writes are flushed.
func buildService(extra ...genai.Option) (*genai.Service, *config.Config, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, nil, err
	}

	var creds genai.CredentialSource
	if cfg.AI.KeyFile != "" {
		creds = genai.NewFileSource(cfg.AI.KeyFile)
	} else {
		key := cfg.AI.APIKey
		if key == "" {
			key = os.Getenv("OPENAI_API_KEY")
		}
		creds = genai.NewStaticSource(key)
	}

	client := openai.NewClient(openai.Config{
		BaseURL: cfg.AI.BaseURL,
		Timeout: cfg.AI.Timeout,
	})

	store, err := persist.Open(cfg.Storage.Backend, cfg.Storage.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open storage: %w", err)
	}

	bridge := persist.NewBridge(store, cfg.Storage.FlushDelay, nil)

	opts := []genai.Option{genai.WithBridge(bridge)}

	if cfg.Telemetry.Tracing.Enabled {
		provider, err := telemetry.Init(context.Background(), telemetry.Config{
			Enabled:     true,
			ServiceName: "tasklift",
			Exporter:    cfg.Telemetry.Tracing.Exporter,
			Endpoint:    cfg.Telemetry.Tracing.Endpoint,
			SampleRate:  cfg.Telemetry.Tracing.SampleRate,
			Insecure:    cfg.Telemetry.Tracing.Insecure,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to init tracing: %w", err)
		}
		opts = append(opts, genai.WithTelemetry(provider))
	}
	opts = append(opts, extra...)

	svc := genai.NewService(genai.Config{
		Model:              cfg.AI.Model,
		MaxRetries:         cfg.AI.MaxRetries,
		Cooldown:           cfg.Breaker.Cooldown,
		RefineLimit:        cfg.Throttle.RefineLimit,
		RefineWindow:       cfg.Throttle.RefineWindow,
		MotivationTTL:      cfg.Cache.Motivation.TTL,
		MotivationCapacity: cfg.Cache.Motivation.Capacity,
		MetadataTTL:        cfg.Cache.Metadata.TTL,
		MetadataCapacity:   cfg.Cache.Metadata.Capacity,
		KitTTL:             cfg.Cache.Kit.TTL,
		KitCapacity:        cfg.Cache.Kit.Capacity,
		BreakdownTTL:       cfg.Cache.Breakdown.TTL,
		BreakdownCapacity:  cfg.Cache.Breakdown.Capacity,
	}, client, creds, opts...)

	return svc, cfg, nil
}
