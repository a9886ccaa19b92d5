package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"z-song-ai-api/internal/config"
	"z-song-ai-api/internal/infrastructure/persistence/redis"
)

func newCacheCmd() *cobra.Command {
	cache := &cobra.Command{
		Use:   "cache",
		Short: "Manage the intent and research cache",
	}

	var namespace string
	flush := &cobra.Command{
		Use:   "flush",
		Short: "Delete cached intent or research results",
		RunE: func(cmd *cobra.Command, _ []string) error {
			prefix, err := cachePrefix(namespace)
			if err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			client, err := redis.NewClient(&cfg.Cache.Redis)
			if err != nil {
				return err
			}
			defer client.Close()

			n, err := redis.NewCache(client).InvalidatePrefix(cmd.Context(), prefix)
			if err != nil {
				return fmt.Errorf("flush %s: %w", prefix, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d keys under %s\n", n, prefix)
			return nil
		},
	}
	flush.Flags().StringVar(&namespace, "namespace", "all", "intent, research or all")
	cache.AddCommand(flush)
	return cache
}

func cachePrefix(namespace string) (string, error) {
	switch namespace {
	case "all":
		return "song:", nil
	case "intent", "research":
		return "song:" + namespace + ":", nil
	default:
		return "", fmt.Errorf("unknown cache namespace %q", namespace)
	}
}
