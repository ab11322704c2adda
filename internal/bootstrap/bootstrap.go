// Package bootstrap builds the services shared by the Lambdas and the CLI
// from a loaded configuration.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/prometheus/client_golang/prometheus"

	"where2go-events/internal/config"
	"where2go-events/internal/logger"
	"where2go-events/internal/models"
	"where2go-events/internal/services"
)

const defaultConfigPath = "config.yaml"

// Components holds every service a command may need. Storage fields stay nil
// when the matching section is not configured.
type Components struct {
	Config     *config.Config
	Logger     logger.Logger
	Metrics    *services.AggregationMetrics
	Taxonomy   *models.Taxonomy
	Aggregator *services.Aggregator
	Reader     *services.JinaClient
	Scraper    *services.VenueScraper
	Venues     []models.VenueConfig

	AWS       aws.Config
	Cache     *services.EventCache
	Store     *services.DynamoDBService
	Snapshots *services.S3Client
}

// ConfigPath resolves the config file: explicit, then CONFIG_PATH, then
// config.yaml when present. Empty means defaults plus environment.
func ConfigPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	path := config.GetConfigPath("")
	if path == "" && fileExists(defaultConfigPath) {
		path = defaultConfigPath
	}
	return path
}

// LoadConfig loads and validates the resolved configuration and creates the
// logger it describes
func LoadConfig() (*config.Config, logger.Logger, error) {
	return LoadConfigFile(ConfigPath(""), "")
}

// LoadConfigFile is LoadConfig for an explicit path. A non-empty level
// overrides the configured log level.
func LoadConfigFile(path, level string) (*config.Config, logger.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	if level != "" {
		cfg.Logging.Level = level
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("create logger: %w", err)
	}
	return cfg, log, nil
}

// NewPipeline creates the parsing, aggregation and venue scraping services.
// It needs no network access; a missing venue file leaves Venues empty.
func NewPipeline(cfg *config.Config, log logger.Logger, reg prometheus.Registerer) (*Components, error) {
	log = logger.OrNop(log)
	c := &Components{
		Config:   cfg,
		Logger:   log,
		Taxonomy: models.DefaultTaxonomy(),
	}
	if reg != nil {
		c.Metrics = services.NewAggregationMetrics(reg)
	}

	aggregator, err := services.NewAggregator(c.Taxonomy, log, c.Metrics)
	if err != nil {
		return nil, fmt.Errorf("create aggregator: %w", err)
	}
	if err := aggregator.SetTimezone(cfg.Timezone); err != nil {
		return nil, err
	}
	c.Aggregator = aggregator

	c.Reader = services.NewJinaClient(cfg.Reader, log)
	c.Scraper = services.NewVenueScraper(cfg.Venues, c.Reader, aggregator.Parser(), log)
	c.Scraper.SetMetrics(c.Metrics)

	if cfg.Venues.Path != "" {
		venues, err := models.LoadVenueConfigs(cfg.Venues.Path)
		switch {
		case err == nil:
			c.Venues = venues
		case fileExists(cfg.Venues.Path):
			return nil, err
		default:
			log.Warn("Venue file not found, venue scraping disabled",
				logger.String("path", cfg.Venues.Path))
		}
	}
	return c, nil
}

// LoadAWSConfig loads the default credential chain in the configured region
func LoadAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	if cfg.Storage.Region != "" {
		awsCfg.Region = cfg.Storage.Region
	}
	return awsCfg, nil
}

// SetupStorage connects the cache, DynamoDB and S3 sections that are configured
func (c *Components) SetupStorage(ctx context.Context) error {
	cfg := c.Config

	awsCfg, err := LoadAWSConfig(ctx, cfg)
	if err != nil {
		return err
	}
	c.AWS = awsCfg

	if cfg.Cache.Enabled {
		client, err := services.NewRedisClient(cfg.Cache)
		if err != nil {
			// the cache is an accelerator; DynamoDB still serves reads
			c.Logger.Warn("Redis unavailable, continuing without cache", logger.Error(err))
		} else {
			c.Cache = services.NewEventCache(client, cfg.Cache.TTL, c.Logger)
		}
	}

	if cfg.Storage.EventsTable != "" {
		c.Store = services.NewDynamoDBService(dynamodb.NewFromConfig(awsCfg), cfg.Storage.EventsTable, cfg.Storage.TTL, c.Logger)
	}
	if cfg.Storage.Bucket != "" {
		c.Snapshots, err = services.NewS3ClientWithConfig(ctx, cfg.Storage)
		if err != nil {
			return fmt.Errorf("create S3 client: %w", err)
		}
	}

	c.Logger.Info("Storage configured",
		logger.Bool("cache", c.Cache != nil),
		logger.String("events_table", cfg.Storage.EventsTable),
		logger.String("bucket", cfg.Storage.Bucket))
	return nil
}

// NewRefreshService wires the event finder and the configured sinks
func (c *Components) NewRefreshService() (*services.RefreshService, error) {
	finder, err := services.NewEventFinder(c.Config.Finder, c.Logger)
	if err != nil {
		return nil, fmt.Errorf("create event finder: %w", err)
	}

	deps := services.RefreshDeps{
		Finder:         finder,
		Aggregator:     c.Aggregator,
		Scraper:        c.Scraper,
		Venues:         c.Venues,
		Metrics:        c.Metrics,
		Categories:     c.Config.QueryCategories(c.Taxonomy),
		IncludeUndated: c.Config.Refresh.IncludeUndatedVenueEvents,
		Timezone:       c.Config.Timezone,
	}
	// typed nils must not reach the interfaces
	if c.Cache != nil {
		deps.Cache = c.Cache
	}
	if c.Store != nil {
		deps.Store = c.Store
	}
	if c.Snapshots != nil {
		deps.Snapshots = c.Snapshots
	}
	return services.NewRefreshService(deps, c.Logger)
}

// NewEventLookup creates the cache-then-DynamoDB read path
func (c *Components) NewEventLookup() *services.EventLookup {
	var (
		cache services.ShardCache
		store services.ShardStore
	)
	if c.Cache != nil {
		cache = c.Cache
	}
	if c.Store != nil {
		store = c.Store
	}
	return services.NewEventLookup(cache, store, c.Logger)
}

// Close releases connections and flushes the logger
func (c *Components) Close() error {
	var errs []error
	if c.Cache != nil {
		errs = append(errs, c.Cache.Close())
	}
	if err := c.Logger.Sync(); err != nil {
		c.Logger.Debug("Logger sync failed", logger.Error(err))
	}
	return errors.Join(errs...)
}
