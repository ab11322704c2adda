package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"where2go-events/internal/bootstrap"
	"where2go-events/internal/config"
	"where2go-events/internal/logger"
	"where2go-events/internal/models"
	"where2go-events/internal/services"
)

// cli holds the global flags and the streams commands read and write
type cli struct {
	in      io.Reader
	out     io.Writer
	cfgFile string
	debug   bool
}

// parseOutput is the JSON printed by the parse command
type parseOutput struct {
	Strategy   string               `json:"strategy"`
	Negative   bool                 `json:"negative"`
	Candidates int                  `json:"candidates"`
	Warnings   int                  `json:"warnings"`
	Events     []models.EventRecord `json:"events"`
}

// aggregateOutput is the JSON printed by the aggregate command
type aggregateOutput struct {
	Events []models.EventRecord     `json:"events"`
	Report models.AggregationReport `json:"report"`
}

func newRootCommand(in io.Reader, out io.Writer) *cobra.Command {
	c := &cli{in: in, out: out}

	root := &cobra.Command{
		Use:           "where2go",
		Short:         "Collect, normalize and deduplicate city events",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&c.cfgFile, "config", "", "config file (default is $CONFIG_PATH or ./config.yaml)")
	root.PersistentFlags().BoolVar(&c.debug, "debug", false, "enable debug logging")

	root.AddCommand(c.parseCommand())
	root.AddCommand(c.aggregateCommand())
	root.AddCommand(c.scrapeCommand())
	root.AddCommand(c.refreshCommand())
	root.AddCommand(c.showCommand())
	return root
}

func (c *cli) parseCommand() *cobra.Command {
	var category, date string

	cmd := &cobra.Command{
		Use:   "parse <file>",
		Short: "Parse one raw upstream response into events",
		Long: `Runs the parsing cascade over a raw response and prints the events
together with the winning strategy. Use "-" to read from stdin.

Example:
  where2go parse response.txt --category "Live-Konzerte" --date 2025-01-20`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			components, err := c.pipeline()
			if err != nil {
				return err
			}
			text, err := c.readInput(args[0])
			if err != nil {
				return err
			}

			result := components.Aggregator.Parser().Parse(string(text), services.ParseContext{
				Category: components.Taxonomy.Normalize(category),
				Date:     date,
				Source:   models.SourceAI,
				Location: components.Aggregator.Location(),
			})
			return c.printJSON(parseOutput{
				Strategy:   result.Strategy,
				Negative:   result.Negative,
				Candidates: result.Candidates,
				Warnings:   result.Warnings,
				Events:     result.Records,
			})
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "context category applied to events without one")
	cmd.Flags().StringVar(&date, "date", "", "context date (YYYY-MM-DD) applied to events without one")
	return cmd
}

func (c *cli) aggregateCommand() *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "aggregate <results.json>",
		Short: "Aggregate a JSON array of query results",
		Long: `Parses every {query, response, category} object of the input array,
then deduplicates and categorizes the union. Use "-" to read from stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			components, err := c.pipeline()
			if err != nil {
				return err
			}
			data, err := c.readInput(args[0])
			if err != nil {
				return err
			}

			var results []models.QueryResult
			if err := json.Unmarshal(data, &results); err != nil {
				return fmt.Errorf("decode query results: %w", err)
			}

			events, report := components.Aggregator.AggregateWithReport(results, date)
			return c.printJSON(aggregateOutput{Events: events, Report: report})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "context date (YYYY-MM-DD) applied to events without one")
	return cmd
}

func (c *cli) scrapeCommand() *cobra.Command {
	var venuesPath string

	cmd := &cobra.Command{
		Use:   "scrape <venue>",
		Short: "Scrape one configured venue",
		Long: `Scrapes the venue with the given key from the venue file and prints its
upcoming events. Use "all" to scrape every enabled venue.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := c.loadConfig()
			if err != nil {
				return err
			}
			if venuesPath != "" {
				cfg.Venues.Path = venuesPath
			}
			components, err := bootstrap.NewPipeline(cfg, log, nil)
			if err != nil {
				return err
			}
			if len(components.Venues) == 0 {
				return fmt.Errorf("no venues configured in %s", cfg.Venues.Path)
			}

			if args[0] == "all" {
				records, results := components.Scraper.ScrapeAll(cmd.Context(), components.Venues, "")
				for _, r := range results {
					if r.Err != nil {
						log.Warn("Venue failed", logger.String("venue", r.Venue), logger.Error(r.Err))
					}
				}
				return c.printJSON(records)
			}

			venue, ok := models.FindVenue(components.Venues, args[0])
			if !ok {
				return fmt.Errorf("unknown venue %q", args[0])
			}
			records, err := components.Scraper.Scrape(cmd.Context(), venue)
			if err != nil {
				return err
			}
			return c.printJSON(records)
		},
	}
	cmd.Flags().StringVar(&venuesPath, "venues", "", "venue config file (default from config)")
	return cmd
}

func (c *cli) refreshCommand() *cobra.Command {
	var (
		city, date string
		categories []string
		dryRun     bool
	)

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Run a full refresh for one city and day",
		Long: `Queries the event finder, merges venue events and writes the configured
cache, table and bucket. --dry-run skips every storage backend.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := c.loadConfig()
			if err != nil {
				return err
			}
			components, err := bootstrap.NewPipeline(cfg, log, nil)
			if err != nil {
				return err
			}
			defer func() { _ = components.Close() }()

			if !dryRun {
				if err := components.SetupStorage(cmd.Context()); err != nil {
					return err
				}
			}
			refresh, err := components.NewRefreshService()
			if err != nil {
				return err
			}

			if city == "" {
				city = cfg.Cities[0]
			}
			run, err := refresh.Refresh(cmd.Context(), services.RefreshRequest{
				City:       city,
				Date:       date,
				Categories: categories,
				Trigger:    models.TriggerTypeManual,
			})
			if err != nil {
				return err
			}
			return c.printJSON(run)
		},
	}
	cmd.Flags().StringVar(&city, "city", "", "city to refresh (default: first configured city)")
	cmd.Flags().StringVar(&date, "date", "", "day to refresh, YYYY-MM-DD (default: today)")
	cmd.Flags().StringSliceVar(&categories, "category", nil, "categories to query (default: configured categories)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "do not write cache, table or bucket")
	return cmd
}

// showOutput is the JSON printed by the show command
type showOutput struct {
	City     string               `json:"city"`
	Date     string               `json:"date"`
	Category string               `json:"category"`
	Tier     string               `json:"tier"`
	Events   []models.EventRecord `json:"events"`
}

func (c *cli) showCommand() *cobra.Command {
	var (
		city, date, category string
		snapshot             bool
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print stored events of one city and day",
		Long: `Reads events through the cache and table tiers, or the bucket snapshot
with --snapshot.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := c.loadConfig()
			if err != nil {
				return err
			}
			cfg.Venues.Path = ""
			components, err := bootstrap.NewPipeline(cfg, log, nil)
			if err != nil {
				return err
			}
			defer func() { _ = components.Close() }()
			if err := components.SetupStorage(cmd.Context()); err != nil {
				return err
			}

			if city == "" {
				city = cfg.Cities[0]
			}
			if date == "" {
				date = models.TodayIn(cfg.Timezone, time.Now())
			}

			if snapshot {
				if components.Snapshots == nil {
					return errors.New("storage.bucket is not configured")
				}
				output, err := components.Snapshots.DownloadSnapshot(cmd.Context(), city, date)
				if err != nil {
					return err
				}
				return c.printJSON(output)
			}

			if category != "" {
				category = components.Taxonomy.Normalize(category)
				if !components.Taxonomy.IsMember(category) {
					return fmt.Errorf("unknown category %q", category)
				}
			}
			records, tier, err := components.NewEventLookup().Lookup(cmd.Context(), city, date, category)
			if err != nil {
				return fmt.Errorf("%s %s: %w", city, date, err)
			}
			if category == "" {
				category = models.DayBucketCategory
			}
			return c.printJSON(showOutput{City: city, Date: date, Category: category, Tier: tier, Events: records})
		},
	}
	cmd.Flags().StringVar(&city, "city", "", "city (default: first configured city)")
	cmd.Flags().StringVar(&date, "date", "", "day, YYYY-MM-DD (default: today)")
	cmd.Flags().StringVar(&category, "category", "", "one category instead of the whole day")
	cmd.Flags().BoolVar(&snapshot, "snapshot", false, "read the bucket snapshot instead of cache and table")
	return cmd
}

// loadConfig loads the configuration; logs go to stderr so stdout stays JSON
func (c *cli) loadConfig() (*config.Config, logger.Logger, error) {
	level := ""
	if c.debug {
		level = "debug"
	}
	return bootstrap.LoadConfigFile(bootstrap.ConfigPath(c.cfgFile), level)
}

// pipeline builds the offline services; venues are not needed for parsing
func (c *cli) pipeline() (*bootstrap.Components, error) {
	cfg, log, err := c.loadConfig()
	if err != nil {
		return nil, err
	}
	cfg.Venues.Path = ""
	return bootstrap.NewPipeline(cfg, log, nil)
}

func (c *cli) readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(c.in)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil, errors.New("input is empty")
	}
	return data, nil
}

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
