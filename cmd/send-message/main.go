package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/pflag"

	"github.com/otp-relay/sms-otp-bridge/internal/biz/domain"
	"github.com/otp-relay/sms-otp-bridge/internal/biz/usecase"
	"github.com/otp-relay/sms-otp-bridge/internal/conf"
	"github.com/otp-relay/sms-otp-bridge/internal/data"
	"github.com/otp-relay/sms-otp-bridge/internal/observability"
)

// Sends a sample OTP notification to every configured destination, to check
// chat credentials and templates without touching the SMS gateway.
func main() {
	envFile := pflag.String("env-file", ".env", "dotenv file to load")
	from := pflag.String("from", "TEST", "source address of the sample record")
	to := pflag.String("to", "", "destination address of the sample record")
	pflag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: send-message [flags] [message]")
		pflag.PrintDefaults()
	}
	pflag.Parse()

	_ = godotenv.Load(*envFile)

	text := "Your verification code is 123456"
	if pflag.NArg() > 0 {
		text = strings.Join(pflag.Args(), " ")
	}

	cfg := conf.LoadFromEnv()
	logger := observability.New(observability.Options{Level: cfg.Log.SlogLevel(), Format: cfg.Log.Format, Output: os.Stderr})

	messageCfg, err := cfg.ToMessageConfig()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	templates, err := usecase.NewTemplates(messageCfg)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	chat, err := data.NewChat(cfg.Chat.ToChatOptions(), logger)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	dests := cfg.Destinations()
	if len(dests) == 0 {
		fmt.Println("Error: no destinations configured")
		os.Exit(1)
	}

	notifier := usecase.NewNotifyUsecase(chat.Repo, dests, templates, clockwork.NewRealClock(), logger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	report := notifier.Deliver(ctx, &domain.SMSRecord{
		ID:              time.Now().Unix(),
		SourceAddr:      *from,
		DestinationAddr: *to,
		ShortMessage:    text,
	})

	for dest, err := range report.Failed {
		fmt.Printf("Failed: %s: %v\n", dest, err)
	}
	fmt.Printf("Sent to %d of %d destinations\n", report.Succeeded(), report.Attempted)
	if len(report.Failed) > 0 {
		os.Exit(1)
	}
}
