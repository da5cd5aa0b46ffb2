package main

import (
	"os"

	"github.com/joho/godotenv"
)

const (
	envCheckpoint = "ENCODEMIDIS_CHECKPOINT"
	envModelURL   = "ENCODEMIDIS_MODEL_URL"
	envConfig     = "ENCODEMIDIS_CONFIG"
	envSentryDSN  = "SENTRY_DSN"
	envSentryEnv  = "SENTRY_ENVIRONMENT"

	defaultConfig     = "cat-mel_2bar_big"
	defaultCheckpoint = "cat-mel_2bar_big.tar"
)

// loadEnv reads an optional .env file. Variables already set win.
func loadEnv() bool {
	return godotenv.Load() == nil
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return defaultValue
}
