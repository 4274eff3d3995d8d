package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/pflag"

	"github.com/otp-relay/sms-otp-bridge/internal/api"
	"github.com/otp-relay/sms-otp-bridge/internal/biz"
	"github.com/otp-relay/sms-otp-bridge/internal/biz/domain"
	"github.com/otp-relay/sms-otp-bridge/internal/biz/usecase"
	"github.com/otp-relay/sms-otp-bridge/internal/conf"
	"github.com/otp-relay/sms-otp-bridge/internal/data"
	"github.com/otp-relay/sms-otp-bridge/internal/observability"
	"github.com/otp-relay/sms-otp-bridge/internal/server"
	"github.com/otp-relay/sms-otp-bridge/internal/service"
)

func main() {
	envFile := pflag.String("env-file", ".env", "dotenv file to load before reading the environment")
	port := pflag.Int("port", 0, "liveness endpoint port (overrides PORT)")
	messages := pflag.String("messages", "", "message templates YAML (overrides MESSAGES_CONFIG_PATH)")
	pflag.Parse()

	if err := run(*envFile, *port, *messages); err != nil {
		slog.Error("Bridge stopped", "error", err)
		os.Exit(1)
	}
}

func run(envFile string, port int, messagesPath string) error {
	// Load .env file
	if err := godotenv.Load(envFile); err != nil {
		if pflag.CommandLine.Changed("env-file") {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
		fmt.Fprintln(os.Stderr, "No .env file found, using environment variables")
	}
	if messagesPath != "" {
		os.Setenv("MESSAGES_CONFIG_PATH", messagesPath)
	}

	// Load configuration
	cfg := conf.LoadFromEnv()
	if port != 0 {
		cfg.HTTP.Port = port
	}

	logger := observability.Install(observability.Options{
		Level:  cfg.Log.SlogLevel(),
		Format: cfg.Log.Format,
	})

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	messageCfg, err := cfg.ToMessageConfig()
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	templates, err := usecase.NewTemplates(messageCfg)
	if err != nil {
		return fmt.Errorf("invalid message templates: %w", err)
	}

	clock := clockwork.NewRealClock()

	// Initialize repository layer
	chat, err := data.NewChat(cfg.Chat.ToChatOptions(), logger)
	if err != nil {
		return err
	}
	source, err := data.NewSourceRepo(cfg.Source.Transport, cfg.Source.ToSourceOptions(), clock, logger)
	if err != nil {
		return err
	}

	// Initialize usecase layer
	ucs := biz.NewUsecases(source, chat.Repo, biz.Options{
		Destinations: cfg.Destinations(),
		Templates:    templates,
		Session:      cfg.Session.ToSessionConfig(),
		PollInterval: cfg.Poll.Interval,
		Clock:        clock,
		Logger:       logger,
	})

	// Initialize service layer
	runner := service.NewPollRunner(ucs.Poll, ucs.Session, cfg.Poll.Interval, cfg.Poll.HealthCheckInterval, clock, logger)
	commandSvc := service.NewCommandService(ucs.Command, chat.Repo, logger)

	// Initialize servers
	apiServer := api.NewServer(ucs.Status, cfg.HTTP.Port, cfg.HTTP.HealthWindow, logger)

	var listener server.Component
	switch {
	case chat.Telegram != nil:
		listener = server.NewTelegramListener(chat.Telegram, commandSvc, clock, logger)
	case chat.Feishu != nil:
		listener = server.NewFeishuListener(chat.Feishu, commandSvc, clock, logger)
	}

	relay := server.NewRelay(ucs.Notify, ucs.Session, logger, runner, apiServer, listener)

	logger.Info("Starting SMS OTP bridge",
		"source", cfg.Source.URL,
		"transport", cfg.Source.Transport,
		"platform", cfg.Chat.Platform,
		"destinations", len(cfg.Destinations()),
		"poll_interval", cfg.Poll.Interval.String(),
		"port", cfg.HTTP.Port,
		"templates", messagesSource(cfg))

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = relay.Run(ctx)
	if errors.Is(err, domain.ErrDuplicateInstance) {
		return fmt.Errorf("make sure only one bridge runs per bot token: %w", err)
	}
	return err
}

func messagesSource(cfg *conf.Config) string {
	if cfg.Messages == nil || cfg.Messages.LoadedFrom == "" {
		return "built-in"
	}
	return cfg.Messages.LoadedFrom
}
