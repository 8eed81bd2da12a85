package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mxfeinberg/agtalk-scraper/internal/clock/system"
	"github.com/mxfeinberg/agtalk-scraper/internal/config"
	"github.com/mxfeinberg/agtalk-scraper/internal/database"
	"github.com/mxfeinberg/agtalk-scraper/internal/parser"
	"github.com/mxfeinberg/agtalk-scraper/internal/ratelimit"
	"github.com/mxfeinberg/agtalk-scraper/internal/scraper"
)

type scrapeFlags struct {
	forumIDs       []int
	forumIDList    string
	maxPages       int
	startPage      int
	delaySeconds   float64
	maxThreadPages int
	dryRun         bool
	resetDB        bool
}

// newScrapeCmd creates and configures the 'scrape' subcommand.
func newScrapeCmd() *cobra.Command {
	var flags scrapeFlags
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Crawls the configured forums and stores their posts",
		Long: `Crawls forum listing pages round-robin, expands every discovered
thread, and upserts the extracted posts into PostgreSQL. Interrupting with
Ctrl-C stops the crawl after the in-flight request.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScrape(cmd, flags)
		},
	}

	cmd.Flags().IntSliceVar(&flags.forumIDs, "forum-id", nil, "forum ID to scrape (repeatable)")
	cmd.Flags().StringVar(&flags.forumIDList, "forum-ids", "", "comma-separated forum IDs, e.g. 3,7,12")
	cmd.Flags().IntVar(&flags.maxPages, "max-pages", 0, "listing pages to scrape per forum")
	cmd.Flags().IntVar(&flags.startPage, "start-page", 0, "listing page to start from")
	cmd.Flags().Float64Var(&flags.delaySeconds, "delay", 0, "delay between requests in seconds")
	cmd.Flags().IntVar(&flags.maxThreadPages, "max-thread-pages", 0, "continuation pages to follow per thread")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "crawl without writing to the database")
	cmd.Flags().BoolVar(&flags.resetDB, "reset-db", false, "drop and recreate the posts table first")

	return cmd
}

func runScrape(cmd *cobra.Command, flags scrapeFlags) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if err := applyScrapeFlags(&cfg, flags); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sink, err := buildSink(ctx, cfg, flags, logger)
	if err != nil {
		return err
	}
	defer sink.Close()

	s, gate, err := buildScraper(cfg, sink, logger)
	if err != nil {
		return err
	}

	// The listing path must be crawlable at all, otherwise there is nothing
	// to do. This also triggers the run's single robots.txt fetch.
	if !gate.Allowed(ctx, "/forums/") {
		return fmt.Errorf("scraping not allowed by robots.txt")
	}

	total, err := s.Run(ctx)
	if err != nil {
		return fmt.Errorf("scrape run: %w", err)
	}
	logger.Info("Scraping completed", zap.Int("total_posts", total))
	fmt.Fprintf(cmd.OutOrStdout(), "Scraped %d posts\n", total)
	return nil
}

// applyScrapeFlags overlays CLI flags onto the loaded configuration and
// revalidates.
func applyScrapeFlags(cfg *config.Config, flags scrapeFlags) error {
	forums, err := mergeForumIDs(flags.forumIDs, flags.forumIDList)
	if err != nil {
		return err
	}
	if len(forums) > 0 {
		cfg.Scraper.ForumIDs = forums
	}
	if flags.maxPages > 0 {
		cfg.Scraper.MaxPages = flags.maxPages
	}
	if flags.startPage > 0 {
		cfg.Scraper.StartPage = flags.startPage
	}
	if flags.delaySeconds > 0 {
		cfg.Scraper.DelaySeconds = flags.delaySeconds
	}
	if flags.maxThreadPages > 0 {
		cfg.Scraper.MaxThreadPages = flags.maxThreadPages
	}
	return cfg.Validate()
}

// mergeForumIDs combines the repeatable --forum-id values with the
// comma-separated --forum-ids list, dropping duplicates, first wins.
func mergeForumIDs(ids []int, list string) ([]int, error) {
	merged := make([]int, 0, len(ids))
	seen := make(map[int]struct{})
	add := func(id int) {
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		merged = append(merged, id)
	}
	for _, id := range ids {
		add(id)
	}
	if list != "" {
		for _, part := range strings.Split(list, ",") {
			id, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil {
				return nil, fmt.Errorf("invalid forum id %q: %w", part, err)
			}
			add(id)
		}
	}
	return merged, nil
}

func buildSink(ctx context.Context, cfg config.Config, flags scrapeFlags, logger *zap.Logger) (database.Provider, error) {
	if flags.dryRun {
		logger.Info("Dry run: posts will not be persisted")
		return database.NoOpProvider{}, nil
	}
	provider, err := database.NewPostgresProvider(ctx, cfg.DB.DSN, logger)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	if flags.resetDB {
		logger.Info("Resetting database")
		if err := provider.Reset(ctx); err != nil {
			provider.Close()
			return nil, fmt.Errorf("reset database: %w", err)
		}
	} else if err := provider.InitSchema(ctx); err != nil {
		provider.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return provider, nil
}

func buildScraper(cfg config.Config, sink scraper.PostSink, logger *zap.Logger) (*scraper.Scraper, *scraper.RobotsGate, error) {
	clk := system.New()

	gate := scraper.NewRobotsGate(cfg.Site.BaseURL, cfg.Site.UserAgent, cfg.Robots.FailClosed, logger)

	// Respect a robots-declared crawl delay when it is stricter than ours.
	delay := cfg.Delay()
	if robotsDelay := gate.CrawlDelay(context.Background()); robotsDelay > delay {
		logger.Info("Using crawl delay from robots.txt", zap.Duration("delay", robotsDelay))
		delay = robotsDelay
	}
	limiter, err := ratelimit.New(delay, clk)
	if err != nil {
		return nil, nil, fmt.Errorf("init rate limiter: %w", err)
	}

	fetcher, err := scraper.NewHTTPFetcher(scraper.FetcherConfig{
		UserAgent:  cfg.Site.UserAgent,
		Timeout:    cfg.Timeout(),
		MaxRetries: cfg.HTTP.MaxRetries,
		RetryDelay: cfg.RetryDelay(),
	}, clk, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("init fetcher: %w", err)
	}

	extractor := parser.New(parser.Config{
		BaseURL:          cfg.Site.BaseURL,
		MinContentLength: cfg.Parser.MinContentLength,
		MaxTitleLength:   cfg.Parser.MaxTitleLength,
	}, logger)

	s, err := scraper.New(scraper.Config{
		ForumIDs:       cfg.Scraper.ForumIDs,
		StartPage:      cfg.Scraper.StartPage,
		MaxPages:       cfg.Scraper.MaxPages,
		MaxThreadPages: cfg.Scraper.MaxThreadPages,
	}, scraper.NewPlanner(cfg.Site.BaseURL), fetcher, extractor, gate, limiter, sink, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("init scraper: %w", err)
	}
	return s, gate, nil
}
