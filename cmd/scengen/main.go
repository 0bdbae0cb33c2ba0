package main

import (
	"os"

	"github.com/joho/godotenv"
)

func main() {
	// Missing .env is fine; the API key may come from the environment.
	_ = godotenv.Load()

	if err := Execute(); err != nil {
		fatal(err)
		os.Exit(1)
	}
}
