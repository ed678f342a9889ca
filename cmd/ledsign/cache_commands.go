package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"ledsign/internal/geocache"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the hardware geometry cache",
	}
	cacheCmd.AddCommand(newCacheListCommand(ctx))
	cacheCmd.AddCommand(newCacheClearCommand(ctx))
	return cacheCmd
}

func withCache(ctx *commandContext, fn func(*geocache.Cache) error) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := ctx.ensureLogger()
	if err != nil {
		return err
	}
	cache, err := ctx.openCache(cfg, logger)
	if err != nil {
		return fmt.Errorf("open geometry cache: %w", err)
	}
	defer cache.Close()
	if !cache.Enabled() {
		return errors.New("geometry cache is disabled (set cache.enabled in the config)")
	}
	return fn(cache)
}

func newCacheListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List cached geometry tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(ctx, func(cache *geocache.Cache) error {
				entries, err := cache.List(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(entries) == 0 {
					fmt.Fprintf(out, "Cache at %s is empty\n", cache.Path())
					return nil
				}
				rows := make([][]string, 0, len(entries))
				for _, e := range entries {
					rows = append(rows, []string{
						string(rune(e.Key)),
						e.Name,
						strconv.Itoa(int(e.Width)),
						strconv.Itoa(e.Points),
						e.CachedAt.Local().Format("2006-01-02 15:04:05"),
					})
				}
				renderTable(out, "Key|Name|>Width|>Pixels|Cached", rows)
				return nil
			})
		},
	}
}

func newCacheClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached geometry table",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(ctx, func(cache *geocache.Cache) error {
				if err := cache.Clear(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %s\n", cache.Path())
				return nil
			})
		},
	}
}
