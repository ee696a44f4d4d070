package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tanpawarit/Chative-Support-Orchestrator/api"
	configx "github.com/tanpawarit/Chative-Support-Orchestrator/pkg/config"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the chat API over HTTP and websocket",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		httpCfg, err := configx.New[api.Config]("HTTP")
		if err != nil {
			return err
		}
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			httpCfg.Addr = addr
		}

		a, err := buildApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		server := api.NewServer(a.orch, a.metrics, *httpCfg)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return server.Run(gctx)
		})
		if err := g.Wait(); err != nil {
			log.Error().Err(err).Msg("server stopped")
			return err
		}
		log.Info().Msg("server stopped")
		return nil
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (overrides HTTP_ADDR)")
}
