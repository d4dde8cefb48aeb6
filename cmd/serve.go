package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/haldis/webchat/internal/config"
	"github.com/haldis/webchat/internal/pprof"
	"github.com/haldis/webchat/internal/relay"
	servechat "github.com/haldis/webchat/internal/serve/chat"
	"github.com/haldis/webchat/internal/session"
)

var (
	serveAddr      string
	serveToken     string
	serveNoPersist bool
	servePprofPort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the browser chat and image UI",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from config)")
	serveCmd.Flags().StringVar(&serveToken, "token", "", "Require this bearer token on chat endpoints")
	serveCmd.Flags().BoolVar(&serveNoPersist, "no-persist", false, "Disable transcript persistence")
	serveCmd.Flags().IntVar(&servePprofPort, "pprof-port", -1, "Serve profiling endpoints on this localhost port (0 = random)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.RequireAPIKey(); err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Serve.Addr = serveAddr
	}
	if serveToken != "" {
		cfg.Serve.Token = serveToken
	}
	if serveNoPersist {
		cfg.Serve.Persist = false
	}

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		With().Timestamp().Logger()

	var store *session.Store
	if cfg.Serve.Persist {
		dataDir, err := config.GetDataDir()
		if err != nil {
			return fmt.Errorf("resolve data dir: %w", err)
		}
		store, err = session.Open(session.Config{Path: session.DefaultPath(dataDir)})
		if err != nil {
			return fmt.Errorf("open session store: %w", err)
		}
		defer store.Close()
	}

	provider := relay.NewOpenAIProvider(cfg.OpenAI.APIKey, cfg.OpenAI.Model, cfg.OpenAI.ImageModel)
	manager := servechat.NewSessionManager(cfg.Serve, servechat.Defaults{
		Model:         cfg.OpenAI.Model,
		ImageModel:    cfg.OpenAI.ImageModel,
		Instructions:  cfg.Chat.Instructions,
		WebSearch:     cfg.Chat.WebSearch,
		PartialImages: cfg.Image.PartialImages,
	}, relay.NewTextRelay(provider), relay.NewImageRelay(provider), store, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go manager.StartGC(ctx)

	if servePprofPort >= 0 {
		profiler := pprof.NewServer(log)
		port, err := profiler.Start(servePprofPort)
		if err != nil {
			return fmt.Errorf("start pprof server: %w", err)
		}
		defer profiler.Stop(context.Background())
		log.Info().Int("port", port).Msg("pprof listening")
	}

	server := &http.Server{
		Addr:    cfg.Serve.Addr,
		Handler: manager.HTTPHandler(),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", cfg.Serve.Addr).Str("model", cfg.OpenAI.Model).Msg("listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
