package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/sadopc/tempo/internal/server"
	"github.com/sadopc/tempo/internal/store"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the session authority server",
	Long: `Serves the canonical copy of every session over HTTP. Clients with
remote.enabled push their progress here and reconcile against the answer.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := stderrLogger(cfg)

	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	if cfg.Server.Token == "" {
		log.Warn("server.token is empty, requests are not authenticated")
	}

	st, err := store.New(cfg.Server.Database)
	if err != nil {
		return fmt.Errorf("open server database: %w", err)
	}
	defer st.Close()

	if !verbose {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := server.New(st, cfg.Server.Token, server.WithLogger(log))
	return srv.Run(ctx, addr)
}
