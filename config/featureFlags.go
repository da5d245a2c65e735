package config

import (
	"os"
	"strings"
)

// AllowOverReceipt disables clamping of received quantities to the line's
// remaining quantity. The UI may offer an override, but by default the
// receiving service clamps so that total received never exceeds ordered.
//
// Set via env:
// - ALLOW_OVER_RECEIPT=true
func AllowOverReceipt() bool {
	return boolFromEnv("ALLOW_OVER_RECEIPT")
}

// DisableReconcileLock turns off the per-order Redis lock around receiving
// operations. Only useful for single-writer dev environments without Redis.
//
// Set via env:
// - DISABLE_RECONCILE_LOCK=true
func DisableReconcileLock() bool {
	return boolFromEnv("DISABLE_RECONCILE_LOCK")
}

func boolFromEnv(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}
