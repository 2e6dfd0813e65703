package handler

import (
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// parseOptionalDate reads a YYYY-MM-DD field; blank means unset.
func parseOptionalDate(value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	parsed, err := time.Parse(dateLayout, value)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}
