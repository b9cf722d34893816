package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/redis/go-redis/v9"
)

// analyticsCachePrefix matches the keys written by the analytics service.
const analyticsCachePrefix = "aiq:analytics:"

type cacheClearOptions struct {
	Pattern string
	DryRun  bool
	Yes     bool
}

type cacheListOptions struct {
	Pattern string
	Limit   int
}

type cacheClearConfirmOptions struct {
	opts cacheClearOptions
}

func (c cacheClearConfirmOptions) IsDryRun() bool { return c.opts.DryRun }
func (c cacheClearConfirmOptions) IsYes() bool    { return c.opts.Yes }
func (c cacheClearConfirmOptions) GetTarget() string {
	return fmt.Sprintf("analytics cache keys matching %q", c.opts.Pattern)
}

func (c cacheClearConfirmOptions) GetWarning() string {
	return "WARNING: this will delete cached analytics entries; the next summary request recomputes them."
}

func runListAnalyticsCache(cmdCtx *commandContext, args []string) error {
	opts, err := parseCacheListFlags(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, 2*time.Minute)
	defer cancel()

	_, redisClient, err := connectInfraWithOptions(&connectInfraOptions{
		Logger:    cmdCtx.Logger,
		Config:    &cmdCtx.Config,
		WantRedis: true,
	})
	if err != nil {
		return err
	}
	if redisClient == nil {
		return writeln(os.Stderr, "Redis client is not available")
	}
	defer func() {
		if closeErr := redisClient.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("redis close failed", "error", closeErr)
		}
	}()

	cmdCtx.Logger.Info("scanning redis", "pattern", opts.Pattern)

	entries, total, err := collectCacheEntries(ctx, redisClient, opts)
	if err != nil {
		return err
	}

	return printCacheEntries(entries, total, opts.Limit)
}

type cacheEntry struct {
	Key  string
	TTL  time.Duration
	Size int64
}

func collectCacheEntries(
	ctx context.Context,
	client redis.UniversalClient,
	opts cacheListOptions,
) ([]cacheEntry, int, error) {
	iter := client.Scan(ctx, 0, opts.Pattern, 100).Iterator()

	entries := make([]cacheEntry, 0, opts.Limit)
	total := 0
	for iter.Next(ctx) {
		key := iter.Val()
		total++
		if opts.Limit > 0 && len(entries) >= opts.Limit {
			continue
		}

		ttl, ttlErr := client.TTL(ctx, key).Result()
		if ttlErr != nil {
			return nil, 0, fmt.Errorf("query redis ttl for key %q: %w", key, ttlErr)
		}
		size, sizeErr := client.StrLen(ctx, key).Result()
		if sizeErr != nil {
			size = -1
		}
		entries = append(entries, cacheEntry{Key: key, TTL: ttl, Size: size})
	}
	if err := iter.Err(); err != nil {
		return nil, 0, fmt.Errorf("redis scan: %w", err)
	}
	return entries, total, nil
}

func printCacheEntries(entries []cacheEntry, total, limit int) error {
	if err := writef(os.Stdout, "\nAnalytics cache entries\n"); err != nil {
		return fmt.Errorf("write cache header: %w", err)
	}
	if total == 0 {
		return writeln(os.Stdout, "  (no keys found)")
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	if err := writeln(tw, "KEY\tTTL\tBYTES"); err != nil {
		return fmt.Errorf("write cache table header: %w", err)
	}
	for _, entry := range entries {
		size := "-"
		if entry.Size >= 0 {
			size = fmt.Sprintf("%d", entry.Size)
		}
		if err := writef(tw, "%s\t%s\t%s\n", entry.Key, formatRedisTTL(entry.TTL), size); err != nil {
			return fmt.Errorf("write cache entry: %w", err)
		}
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flush cache table: %w", err)
	}

	if err := writef(os.Stdout, "Total keys matched: %d\n", total); err != nil {
		return fmt.Errorf("write cache total: %w", err)
	}
	if limit > 0 && total > len(entries) {
		if err := writeln(os.Stdout, "More keys available; increase --limit to view additional entries."); err != nil {
			return fmt.Errorf("write cache more-keys message: %w", err)
		}
	}
	return nil
}

func runClearAnalyticsCache(cmdCtx *commandContext, args []string) error {
	opts, err := parseCacheClearFlags(args)
	if err != nil {
		return err
	}
	if confirmErr := confirmAction(cacheClearConfirmOptions{opts}, "clear analytics cache"); confirmErr != nil {
		return confirmErr
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, 2*time.Minute)
	defer cancel()

	_, redisClient, err := connectInfraWithOptions(&connectInfraOptions{
		Logger:    cmdCtx.Logger,
		Config:    &cmdCtx.Config,
		WantRedis: true,
	})
	if err != nil {
		return err
	}
	if redisClient == nil {
		return writeln(os.Stderr, "Redis client is not available")
	}
	defer func() {
		if closeErr := redisClient.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("redis close failed", "error", closeErr)
		}
	}()

	stats, err := deleteCacheKeys(&cacheDeleteRequest{
		Ctx:      ctx,
		Logger:   cmdCtx.Logger,
		Redis:    redisClient,
		Options:  opts,
		BatchCap: 1000,
	})
	if err != nil {
		return err
	}

	if stats.total == 0 {
		return writeln(os.Stdout, "No analytics cache keys found in Redis")
	}
	if opts.DryRun {
		return writef(os.Stdout, "Dry-run: would delete %d/%d keys\n", stats.deleted, stats.total)
	}

	if err = writef(os.Stdout, "Deleted %d/%d keys\n", stats.deleted, stats.total); err != nil {
		return fmt.Errorf("print cache delete summary: %w", err)
	}
	if stats.failures > 0 {
		if err = writef(os.Stdout, "Failed batches: %d\n", stats.failures); err != nil {
			return fmt.Errorf("print cache delete failures: %w", err)
		}
	}
	return nil
}

type cacheDeleteRequest struct {
	Ctx      context.Context
	Logger   *slog.Logger
	Redis    redis.UniversalClient
	Options  cacheClearOptions
	BatchCap int
}

type cacheDeleteStats struct {
	total    int
	deleted  int64
	failures int
}

func deleteCacheKeys(req *cacheDeleteRequest) (cacheDeleteStats, error) {
	batchCap := req.BatchCap
	if batchCap <= 0 {
		batchCap = 1000
	}

	if req.Logger != nil {
		req.Logger.Info("scanning redis", "pattern", req.Options.Pattern, "dry_run", req.Options.DryRun)
	}

	stats := cacheDeleteStats{}
	iter := req.Redis.Scan(req.Ctx, 0, req.Options.Pattern, 100).Iterator()
	batch := make([]string, 0, batchCap)

	for iter.Next(req.Ctx) {
		stats.total++
		batch = append(batch, iter.Val())

		if len(batch) == batchCap {
			flushCacheBatch(req, batch, &stats)
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return stats, fmt.Errorf("redis scan: %w", err)
	}

	flushCacheBatch(req, batch, &stats)
	return stats, nil
}

func flushCacheBatch(req *cacheDeleteRequest, batch []string, stats *cacheDeleteStats) {
	if len(batch) == 0 {
		return
	}
	if req.Options.DryRun {
		stats.deleted += int64(len(batch))
		return
	}
	n, err := req.Redis.Del(req.Ctx, batch...).Result()
	if err != nil {
		stats.failures++
		if req.Logger != nil {
			req.Logger.Error("failed to delete cache keys", "count", len(batch), "error", err)
		}
		return
	}
	stats.deleted += n
}

func parseCacheListFlags(args []string) (cacheListOptions, error) {
	fs := flag.NewFlagSet("list-analytics-cache", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := cacheListOptions{Pattern: analyticsCachePrefix + "*"}
	fs.StringVar(&opts.Pattern, "pattern", opts.Pattern, "Redis key pattern to scan")
	fs.IntVar(&opts.Limit, "limit", 20, "Maximum keys to display (0 for unlimited)")

	if err := fs.Parse(args); err != nil {
		return cacheListOptions{}, err
	}
	if err := validateCachePattern(opts.Pattern); err != nil {
		return cacheListOptions{}, err
	}
	return opts, nil
}

func parseCacheClearFlags(args []string) (cacheClearOptions, error) {
	fs := flag.NewFlagSet("clear-analytics-cache", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := cacheClearOptions{Pattern: analyticsCachePrefix + "*"}
	fs.StringVar(&opts.Pattern, "pattern", opts.Pattern, "Redis key pattern to clear")
	fs.BoolVar(&opts.DryRun, "dry-run", false, "Print actions without executing")
	fs.BoolVar(&opts.Yes, "yes", false, "Skip confirmation prompt")

	if err := fs.Parse(args); err != nil {
		return cacheClearOptions{}, err
	}
	if err := validateCachePattern(opts.Pattern); err != nil {
		return cacheClearOptions{}, err
	}
	return opts, nil
}

// validateCachePattern refuses patterns outside the analytics namespace so a
// typo cannot wipe session or dedup keys.
func validateCachePattern(pattern string) error {
	if !strings.HasPrefix(pattern, analyticsCachePrefix) {
		return errors.New("--pattern must stay within the " + analyticsCachePrefix + " namespace")
	}
	return nil
}

func formatRedisTTL(ttl time.Duration) string {
	if ttl == -1 {
		return "no expiry"
	}
	if ttl == -2 {
		return "missing"
	}
	if ttl < 0 {
		return ttl.String()
	}
	return ttl.Round(time.Millisecond).String()
}
