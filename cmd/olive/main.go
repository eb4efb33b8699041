package main

import (
	"fmt"
	"os"

	"github.com/anime-shed/olive-inspector-go/internal/logger"
)

// Version is set via ldflags
var Version = "dev"

func main() {
	// keep stdout for command output
	logger.SetOutput(os.Stderr)
	logger.SetLevel(getEnv("LOG_LEVEL", "warn"))

	if err := runCLI(os.Stdout, loadContainer, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
