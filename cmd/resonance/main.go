package main

import (
	"os"

	"github.com/joho/godotenv"
)

func main() {
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
