/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/teamboard/apiserver/config"
	"github.com/teamboard/apiserver/internal/events"
	"github.com/teamboard/apiserver/internal/logger"
	"github.com/teamboard/apiserver/internal/mq"
)

var watchChannel string

// eventsCmd groups commands that work with published user events.
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect user events on the message broker",
}

var eventsWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Subscribe to a user event channel and log every event",
	Long: `Subscribes to a user event channel on the configured broker and logs
each event until interrupted. Usage:

	teamboard events watch --channel users.registered
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		log := logger.SetupDefault(os.Stdout, cfg.LogLevel)

		broker, err := mq.Open(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		if broker == nil {
			return errors.New("MQ_BACKEND is not configured")
		}
		defer func() {
			_ = broker.Close()
		}()

		log.Info("watching events", slog.String("channel", watchChannel))
		err = broker.Subscribe(cmd.Context(), watchChannel, func(ctx context.Context, msg mq.Message) error {
			event, err := events.Decode(msg.Data)
			if err != nil {
				// Redelivering a malformed payload would loop forever.
				log.Warn("dropping undecodable event", slog.String("message_id", msg.ID), slog.Any("error", err))
				return nil
			}
			log.Info("user event",
				slog.String("message_id", msg.ID),
				slog.String("type", event.Type),
				slog.String("user_id", event.UserID),
				slog.String("email", event.Email),
				slog.String("team", event.Team),
				slog.Time("occurred_at", event.OccurredAt),
			)
			return nil
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsWatchCmd)

	eventsWatchCmd.Flags().StringVar(&watchChannel, "channel", events.ChannelUserRegistered, "event channel to subscribe to")
}
