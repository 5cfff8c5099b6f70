package notify

import (
	"fmt"
	"strconv"
	"strings"

	"signal_bot/internal/model"
)

// ParseIDArg extracts a numeric schedule ID from a command argument string.
func ParseIDArg(args string) (int64, error) {
	s := strings.TrimSpace(args)
	if s == "" {
		return 0, fmt.Errorf("schedule ID is required")
	}
	id, err := strconv.ParseInt(strings.Fields(s)[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid schedule ID %q", s)
	}
	return id, nil
}

// ParseFrequencyArgs extracts a schedule ID and a run frequency in hours.
func ParseFrequencyArgs(args string) (int64, float64, error) {
	parts := strings.Fields(args)
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("usage: /frequency <id> <hours>")
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid schedule ID %q", parts[0])
	}
	hours, err := strconv.ParseFloat(parts[1], 64)
	minHours := model.MinFrequency.Hours()
	if err != nil || hours < minHours || hours > 24*30 {
		return 0, 0, fmt.Errorf("frequency must be between %g and 720 hours", minHours)
	}
	return id, hours, nil
}
