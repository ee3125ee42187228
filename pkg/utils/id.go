package utils

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GenerateRunID generates a run ID with a timestamp prefix
func GenerateRunID() string {
	timestamp := time.Now().UTC().Format("20060102-150405")
	return fmt.Sprintf("run-%s-%s", timestamp, uuid.NewString()[:8])
}

// FormatTrialID formats a sequential trial number the way trial files are named
func FormatTrialID(n int) string {
	return fmt.Sprintf("%05d", n)
}

// ParseTrialID parses a trial ID produced by FormatTrialID.
// Leading zeros are optional.
func ParseTrialID(id string) (int, error) {
	trimmed := strings.TrimSpace(id)
	n, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("invalid trial id %q: %w", id, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("invalid trial id %q: negative", id)
	}
	return n, nil
}
