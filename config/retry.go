package config

import (
	"log"
	"time"
)

const maxConnectBackoff = 30 * time.Second

// connectBackoff is 2s, 4s, 8s ... capped at maxConnectBackoff.
func connectBackoff(attempt int) time.Duration {
	if attempt > 5 {
		attempt = 5
	}
	sleep := time.Second * time.Duration(1<<attempt)
	if sleep > maxConnectBackoff {
		sleep = maxConnectBackoff
	}
	return sleep
}

// retryForever calls connect until it returns nil. The attempt number starts
// at 1. Startup code uses it so the HTTP port can open before dependencies.
func retryForever(what string, connect func(attempt int) error) {
	for attempt := 1; ; attempt++ {
		err := connect(attempt)
		if err == nil {
			log.Printf("%s ready (attempt=%d)", what, attempt)
			return
		}
		sleep := connectBackoff(attempt)
		log.Printf("%s not ready (attempt=%d): %v; retrying in %s", what, attempt, err, sleep)
		time.Sleep(sleep)
	}
}
