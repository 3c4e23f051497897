package cmd

import (
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/example/skin-check/internal/config"
	"github.com/example/skin-check/internal/grpcclient"
)

var modelServerCmd = &cobra.Command{
	Use:   "model-server",
	Short: "Serve the local classifier over gRPC",
	Long: `Host the configured classifier backend (onnx or stub) for API
instances running with classifier.backend: grpc.`,
	RunE: runModelServer,
}

func runModelServer(cmd *cobra.Command, args []string) error {
	cfg := appConfig
	if cfg.Classifier.Backend == config.BackendGRPC || cfg.Classifier.Backend == config.BackendNone {
		return fmt.Errorf("model-server needs a local backend, got %q", cfg.Classifier.Backend)
	}

	capability, closeCapability, err := buildCapability(cmd.Context(), cfg.Classifier, logger)
	if err != nil {
		return err
	}
	defer closeCapability()

	listener, err := net.Listen("tcp", cfg.ModelServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.ModelServer.Addr, err)
	}

	server := grpc.NewServer()
	grpcclient.RegisterClassifierServer(server, grpcclient.NewCapabilityServer(capability, logger))

	logger.Info("model server listening", zap.String("addr", listener.Addr().String()), zap.String("backend", cfg.Classifier.Backend))
	return serveGRPC(server, listener, nil)
}

func serveGRPC(server *grpc.Server, listener net.Listener, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		err := server.Serve(listener)
		if errors.Is(err, grpc.ErrServerStopped) {
			err = nil
		}
		errCh <- err
	}()

	sigCh, stopSignals := shutdownSignals(signalCh)
	defer stopSignals()

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-sigCh:
		if !ok {
			server.GracefulStop()
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		server.GracefulStop()
		return <-errCh
	}
}
