package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sweetpotato0/toolmesh/pkg/logging"
	mathserver "github.com/sweetpotato0/toolmesh/servers/math"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logging.WithComponent("mathserver")
	logger.Info("serving math tools over stdio", "version", mathserver.Version)

	if err := mathserver.NewServer().Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		logger.Error("stdio server stopped", "error", err)
		os.Exit(1)
	}
}
