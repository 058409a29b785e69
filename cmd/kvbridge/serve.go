package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MeteorsLiu/kvbridge/bridge"
	"github.com/MeteorsLiu/kvbridge/common/gorpc"
	"github.com/MeteorsLiu/kvbridge/config"
	"github.com/MeteorsLiu/kvbridge/dispatch"
	"github.com/MeteorsLiu/kvbridge/gateway"
	"github.com/MeteorsLiu/kvbridge/service"
	"github.com/MeteorsLiu/kvbridge/storage"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCommand(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve storage commands over JSON-RPC and, if configured, HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.NewLoader(*cfgPath).Load()
			if err != nil {
				return err
			}
			log := config.NewLogger(cfg.Log)
			defer log.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, log)
		},
	}
}

func rpcServerOptions(cfg config.RPC, log *zap.Logger) ([]gorpc.RPCServerOption, error) {
	opts := []gorpc.RPCServerOption{gorpc.WithServerLogger(log)}
	if cfg.CertFile == "" {
		return opts, nil
	}
	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load rpc certificate: %w", err)
	}
	opts = append(opts, gorpc.WithServerCert(cert))
	if cfg.ClientCA != "" {
		ca, err := os.ReadFile(cfg.ClientCA)
		if err != nil {
			return nil, fmt.Errorf("read client ca: %w", err)
		}
		opts = append(opts, gorpc.WithClientCA(ca))
	}
	return opts, nil
}

func serve(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	store, err := storage.Open(cfg.Storage, log)
	if err != nil {
		return err
	}
	defer store.Close()

	reg := dispatch.NewRegistry()
	sender := dispatch.NewSender(reg, cfg.Bridge.Workers, dispatch.WithSenderLogger(log))
	defer sender.Close()

	opts := []bridge.Option{
		bridge.WithCapability(storage.CapabilityOf(store)),
		bridge.WithLogger(log.Named("bridge")),
	}
	if cfg.Bridge.ReportUnavailable {
		opts = append(opts, bridge.WithUnavailableOutcome())
	}
	b := bridge.New(store, sender, opts...)

	srvOpts, err := rpcServerOptions(cfg.RPC, log.Named("rpc"))
	if err != nil {
		return err
	}
	srv := gorpc.NewGoRPCServer(srvOpts...)
	if err := service.Register(srv, service.New(b, reg, cfg.Bridge.ResultTimeout)); err != nil {
		return err
	}
	lis, err := net.Listen("tcp", cfg.RPC.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.RPC.Listen, err)
	}
	errCh := make(chan error, 2)
	go func() {
		errCh <- srv.Accept(lis)
	}()

	var httpSrv *http.Server
	if cfg.HTTP.Listen != "" {
		gin.SetMode(gin.ReleaseMode)
		r := gin.New()
		r.Use(gin.Recovery())
		gateway.Register(r, b, reg, cfg.Bridge.ResultTimeout, gateway.WithMaxBodyBytes(cfg.HTTP.MaxBodyBytes))
		httpSrv = &http.Server{Addr: cfg.HTTP.Listen, Handler: r}
		go func() {
			log.Info("http gateway listening", zap.String("addr", cfg.HTTP.Listen))
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err = <-errCh:
		log.Error("server failed", zap.Error(err))
	}
	lis.Close()
	if httpSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpSrv.Shutdown(shutdownCtx)
	}
	return err
}
