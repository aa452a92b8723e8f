package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/minichat/internal/flagx"
)

// parseFlags populates Config fields from command-line flags.
//
// Supported flags:
//
//	-b string        backend type: memory, durable, postgresql, auto
//	-f               fall back to the in-memory backend if PostgreSQL is not ready
//	-d string        PostgreSQL connection string
//	-i               ask interactively before falling back
//	-s string        session token signing secret
//	-t int           session token validity, minutes
//	-e string        settings file holding SESSION_TOKEN
//	-l string        log level (debug, info, warn, error)
//	-log-format      log format (text, json)
//
// Boolean flags take no separate value; use -f=false to switch one off.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-b", "-d", "-s", "-t", "-e", "-l", "-log-format"})
	args = append(args, flagx.FilterBoolArgs(os.Args[1:], []string{"-f", "-i"})...)

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.BackendType, "b", config.BackendType, "database backend (memory, durable, auto)")
	fs.BoolVar(&config.FallbackToMemory, "f", config.FallbackToMemory, "fall back to in-memory backend")
	fs.StringVar(&config.DatabaseURL, "d", config.DatabaseURL, "database URL")
	fs.BoolVar(&config.InteractiveFallback, "i", config.InteractiveFallback, "prompt before falling back to in-memory backend")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	tokenValidity := fs.Int("t", int(config.TokenValidityDuration.Minutes()), "session token validity (in minutes)")

	fs.StringVar(&config.SettingsFile, "e", config.SettingsFile, "settings file")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")
	fs.StringVar(&config.LogFormat, "log-format", config.LogFormat, "log format")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	// -t only counts in whole minutes, so an unset flag must not round
	// away a finer value from JSON or the environment.
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "t" {
			config.TokenValidityDuration = time.Duration(*tokenValidity) * time.Minute
		}
	})
}
