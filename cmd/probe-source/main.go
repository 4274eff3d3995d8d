package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/pflag"

	"github.com/otp-relay/sms-otp-bridge/internal/conf"
	"github.com/otp-relay/sms-otp-bridge/internal/data"
	"github.com/otp-relay/sms-otp-bridge/internal/observability"
)

// Opens a session against the SMS gateway, fetches one page and prints it as JSON.
func main() {
	envFile := pflag.String("env-file", ".env", "dotenv file to load")
	cursor := pflag.Int64("cursor", 0, "only return records with an id above this")
	transport := pflag.String("transport", "", "browser or http (overrides SOURCE_TRANSPORT)")
	headful := pflag.Bool("headful", false, "show the browser window")
	timeout := pflag.Duration("timeout", 2*time.Minute, "overall timeout")
	pflag.Parse()

	_ = godotenv.Load(*envFile)

	cfg := conf.LoadFromEnv()
	if *transport != "" {
		cfg.Source.Transport = *transport
	}
	if *headful {
		cfg.Source.Headless = false
	}
	logger := observability.New(observability.Options{Level: cfg.Log.SlogLevel(), Format: cfg.Log.Format, Output: os.Stderr})

	if cfg.Source.Username == "" || cfg.Source.Password == "" {
		fmt.Fprintln(os.Stderr, "Error: API_USERNAME and API_PASSWORD must be set")
		os.Exit(1)
	}

	clock := clockwork.NewRealClock()
	source, err := data.NewSourceRepo(cfg.Source.Transport, cfg.Source.ToSourceOptions(), clock, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer source.Teardown()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	start := time.Now()
	if err := source.Initialize(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: session initialization failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "Session ready in %s\n", time.Since(start).Round(time.Millisecond))

	records, err := source.Fetch(ctx, *cursor)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: fetch failed: %v\n", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "%d records\n", len(records))
}
