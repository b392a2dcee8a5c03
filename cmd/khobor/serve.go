package main

import (
	"github.com/spf13/cobra"

	"github.com/Adda-Baaj/khobor-desk/internal/listing"
	"github.com/Adda-Baaj/khobor-desk/internal/render"
	"github.com/Adda-Baaj/khobor-desk/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the story list, detail and edit pages",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		events, release, err := eventPublisher(ctx)
		if err != nil {
			return err
		}
		defer release()

		html, err := render.NewHTMLRenderer()
		if err != nil {
			return err
		}

		addr := cfg.Server.Addr
		if serveAddr != "" {
			addr = serveAddr
		}

		svc := listing.NewService(store, cfg.Server.PageSize, events, log)
		srv := server.New(svc, html, log, server.Options{
			Addr:            addr,
			Editor:          cfg.Server.Editor,
			ReadTimeout:     cfg.Server.ReadTimeout,
			WriteTimeout:    cfg.Server.WriteTimeout,
			ShutdownTimeout: cfg.Server.ShutdownTimeout,
		})
		return srv.Run(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
}
