// Package config loads configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Env holds the configuration values for the application. Each handler loads
// only the slice of it that its stage needs.
type Env struct {
	Region           string
	Table            string
	UploadQueueURL   string
	ResultQueueURL   string
	CallTimeout      time.Duration
	BatchConcurrency int
	LogLevel         string
	DevBypassAuth    bool
}

// MustLoadExtractor reads the environment for the text-extraction stage.
func MustLoadExtractor() Env {
	e := common()
	e.UploadQueueURL = must("UPLOAD_QUEUE_URL")
	e.ResultQueueURL = must("RESULT_QUEUE_URL")
	return e
}

// MustLoadPersister reads the environment for the persistence stage.
func MustLoadPersister() Env {
	e := common()
	e.Table = must("POSTS_TABLE")
	e.ResultQueueURL = must("RESULT_QUEUE_URL")
	return e
}

// MustLoadAPI reads the environment for the HTTP-facing handlers.
func MustLoadAPI() Env {
	e := common()
	e.Table = must("POSTS_TABLE")
	return e
}

func common() Env {
	// Local runs keep settings in a .env file; in Lambda this is a no-op.
	_ = godotenv.Load()

	timeoutSec, _ := strconv.Atoi(get("CALL_TIMEOUT_SECONDS", "15"))
	conc, _ := strconv.Atoi(get("BATCH_CONCURRENCY", "4"))
	if conc < 1 {
		conc = 1
	}
	return Env{
		Region:           get("AWS_REGION", "us-east-1"),
		CallTimeout:      time.Duration(timeoutSec) * time.Second,
		BatchConcurrency: conc,
		LogLevel:         get("LOG_LEVEL", "info"),
		DevBypassAuth:    get("DEV_BYPASS_AUTH", "") == "true",
	}
}

// get returns the value of the environment variable k or def if not set.
func get(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// must returns the value of the environment variable k or panics if not set.
func must(k string) string {
	v := os.Getenv(k)
	if v == "" {
		panic(fmt.Errorf("missing env %s", k))
	}
	return v
}
