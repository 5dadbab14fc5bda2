package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"shorts-pipeline/bot"
	"shorts-pipeline/server"
	"shorts-pipeline/tasks"
	"shorts-pipeline/types"
)

func newRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "shorts-pipeline",
		Short:         "Generate, render and upload YouTube Shorts from a Telegram bot",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the YAML config")

	load := func() (*app, error) { return newApp(configPath) }
	root.AddCommand(
		serveCmd(load),
		generateCmd(load),
		runCmd(load),
		uploadCmd(load),
		authCmd(load),
	)
	return root
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func serveCmd(load func() (*app, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Telegram bot and the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()

			w, err := a.writer()
			if err != nil {
				return err
			}
			registry := tasks.NewRegistry(a.cfg.Pipeline.TaskTTL, a.log)
			coord := tasks.NewCoordinator(registry, w, a.runner, a.oauth, a.cfg.Pipeline, a.cfg.Secrets, a.metrics, a.log)

			g, ctx := errgroup.WithContext(ctx)
			if a.cfg.Server.Enabled {
				srv := server.New(a.cfg.Server, a.cfg.Upload, a.oauth, a.uploader, a.registry, a.log)
				g.Go(func() error { return srv.Run(ctx) })
			}
			if a.cfg.Bot.Enabled {
				if a.cfg.Secrets.TelegramToken == "" {
					return errors.New("TELEGRAM_BOT_TOKEN is not set")
				}
				api, updates, err := bot.Connect(a.cfg.Secrets.TelegramToken, a.cfg.Bot, a.log)
				if err != nil {
					return fmt.Errorf("telegram: %w", err)
				}
				b := bot.New(api, coord, a.oauth, a.cfg.Bot, a.log)
				g.Go(func() error {
					defer api.StopReceivingUpdates()
					b.Run(ctx, updates)
					return nil
				})
			}
			a.log.Info().Msg("🎬 shorts pipeline serving")
			err = g.Wait()
			a.log.Info().Msg("waiting for running pipelines to finish")
			coord.Wait()
			return err
		},
	}
}

func generateCmd(load func() (*app, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "generate",
		Short: "Request one AI payload and print it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			w, err := a.writer()
			if err != nil {
				return err
			}
			payload, err := w.Generate(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), payload)
		},
	}
}

func runCmd(load func() (*app, error)) *cobra.Command {
	var payload types.ContentPayload
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full pipeline once for an ad-hoc payload",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			if reason, bad := payload.ErrorSignal(); bad {
				return fmt.Errorf("payload not usable: %s", reason)
			}
			ctx, stop := signalContext()
			defer stop()

			task := types.TaskRecord{TaskID: uuid.NewString()[:8], Payload: payload, CreatedAt: time.Now().UTC()}
			res := a.runner.Run(ctx, task)
			if err := printJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			return res.Err
		},
	}
	cmd.Flags().StringVar(&payload.GenerationPrompt, "prompt", "", "video generation prompt")
	cmd.Flags().StringVar(&payload.Title, "title", "", "video title")
	cmd.Flags().StringVar(&payload.PlatformDescription, "description", "", "video description")
	_ = cmd.MarkFlagRequired("prompt")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func uploadCmd(load func() (*app, error)) *cobra.Command {
	var title, description string
	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Validate and upload an existing video file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			res, err := a.publisher.Publish(cmd.Context(), args[0], title, description)
			if err != nil {
				return err
			}
			if err := a.history.Add(title); err != nil {
				a.log.Warn().Err(err).Msg("could not record title history")
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "video title")
	cmd.Flags().StringVar(&description, "description", "", "video description")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func authCmd(load func() (*app, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Inspect or clear the YouTube authorization",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "status",
			Short: "Print the YouTube authorization status",
			RunE: func(cmd *cobra.Command, _ []string) error {
				a, err := load()
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), a.oauth.Status(cmd.Context()))
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Delete the stored YouTube token",
			RunE: func(cmd *cobra.Command, _ []string) error {
				a, err := load()
				if err != nil {
					return err
				}
				if err := a.oauth.Clear(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "✅ YouTube token cleared")
				return nil
			},
		},
	)
	return cmd
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
