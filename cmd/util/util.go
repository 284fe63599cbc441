// Package util holds shared command-line plumbing for docstore: flags,
// viper/env wiring, and the store constructor every command group needs
// (internal use).
package util

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/docdbgo/driver/conventions"
	"github.com/docdbgo/driver/executor"
	"github.com/docdbgo/driver/logging"
	"github.com/docdbgo/driver/store"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 60
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupStoreFlags adds the flags every store-backed command group needs.
func SetupStoreFlags(cmd *cobra.Command) {
	key := "urls"
	cmd.PersistentFlags().String(key, "http://127.0.0.1:8080", WrapString("Comma-separated list of bootstrap node urls"))

	key = "database"
	cmd.PersistentFlags().String(key, "default", WrapString("Database name to operate against"))

	key = "timeout"
	cmd.PersistentFlags().Int(key, 30, WrapString("Per-request timeout in seconds"))

	key = "retry-on-failure"
	cmd.PersistentFlags().Bool(key, false, WrapString("Whether to retry retryable failures"))

	key = "retry-count"
	cmd.PersistentFlags().Int(key, 3, WrapString("Number of retries when retry-on-failure is set"))

	key = "retry-backoff-ms"
	cmd.PersistentFlags().Int(key, 100, WrapString("Constant backoff between retries, in milliseconds"))

	key = "optimistic-concurrency"
	cmd.PersistentFlags().Bool(key, false, WrapString("Send change vectors with writes and reject on mismatch"))

	key = "disable-topology-update"
	cmd.PersistentFlags().Bool(key, false, WrapString("Never refresh topology, always talk to the bootstrap nodes"))

	key = "log-level"
	cmd.PersistentFlags().String(key, "info", WrapString("Log level (debug, info, warn, error)"))
}

// InitConfig loads .env files and wires viper's env prefix.
func InitConfig() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix("docstore")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// OpenStore builds a store.Store from the bound viper configuration.
func OpenStore() (*store.Store, error) {
	if err := logging.Init(viper.GetString("log-level")); err != nil {
		return nil, err
	}

	conv := conventions.New()
	conv.UseOptimisticConcurrency = viper.GetBool("optimistic-concurrency")
	conv.DisableTopologyUpdate = viper.GetBool("disable-topology-update")
	conv.Timeout = time.Duration(viper.GetInt("timeout")) * time.Second

	retry := conventions.RetryPolicy{
		RetryOnFailure: viper.GetBool("retry-on-failure"),
		RetryCount:     viper.GetInt("retry-count"),
		RetryBackoff:   time.Duration(viper.GetInt("retry-backoff-ms")) * time.Millisecond,
	}

	cfg := store.Config{
		InitialURLs: strings.Split(viper.GetString("urls"), ","),
		Database:    viper.GetString("database"),
		Conventions: conv,
		RetryPolicy: retry,
		NodePolicy:  executor.NodePolicy{RetryOnStale: false},
	}

	return store.Open(cfg)
}
