package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"vizdirector/cache"

	"github.com/spf13/cobra"
)

var redisWatch bool

var redisCmd = &cobra.Command{
	Use:   "redis",
	Short: "Check the Redis event bus",
	Long: `Connect to Redis, run a write/read check and print the last event of each
type. With --watch the command stays subscribed to the director event channel
and prints every event.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("Redis: %s:%s, db %d\n", cfg.RedisHost, cfg.RedisPort, cfg.RedisDB)
		if !cfg.RedisEnabled() {
			return fmt.Errorf("REDIS_HOST is not set")
		}

		client, err := cache.ConnectRedis(cfg)
		if err != nil {
			return err
		}
		defer cache.CloseRedis()
		fmt.Println("connected")

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		err = cache.CheckRedis(ctx, client)
		cancel()
		if err != nil {
			return fmt.Errorf("redis check: %w", err)
		}
		fmt.Println("read/write check passed")

		bus := cache.NewEventBus(client, cfg.RedisChannel)
		last, err := bus.Last(cmd.Context())
		if err != nil {
			return err
		}
		for typ, ev := range last {
			fmt.Printf("last %-8s %s %s\n", typ, ev.At.Format(time.RFC3339), ev.Data)
		}

		if !redisWatch {
			return nil
		}
		fmt.Printf("Watching %s (Ctrl+C to stop)...\n", bus.Channel())
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		err = bus.Subscribe(ctx, func(ev cache.Event) {
			fmt.Printf("%s %-8s %-12s %s\n", ev.At.Format("15:04:05.000"), ev.Type, ev.Profile, ev.Data)
		})
		if ctx.Err() != nil {
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(redisCmd)
	redisCmd.Flags().BoolVarP(&redisWatch, "watch", "w", false, "subscribe to director events")
}
