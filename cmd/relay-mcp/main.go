package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/pflag"

	relaymcp "github.com/otp-relay/sms-otp-bridge/internal/mcp"
	"github.com/otp-relay/sms-otp-bridge/internal/observability"
)

var version = "v1.0.0"

// MCP stdio server exposing the relay's liveness as a tool.
// stdout carries the protocol, so logs go to stderr.
func main() {
	defaultURL := os.Getenv("RELAY_URL")
	if defaultURL == "" {
		defaultURL = "http://127.0.0.1:3000"
	}
	url := pflag.String("url", defaultURL, "base URL of the relay's liveness endpoint")
	pflag.Parse()

	logger := observability.New(observability.Options{Level: slog.LevelInfo, Output: os.Stderr})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := relaymcp.NewServer(relaymcp.NewClient(*url), version)
	logger.Info("Serving MCP over stdio", "relay", *url)
	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "MCP server error: %v\n", err)
		os.Exit(1)
	}
}
