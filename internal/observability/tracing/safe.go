package tracing

import (
	"errors"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

var blockedAttributeKeys = map[attribute.Key]struct{}{
	"authorization":    {},
	"stripe_signature": {},
	"cron_secret":      {},
	"email":            {},
	"prompt":           {},
}

// SafeAttributes drops attributes that could carry secrets or user content.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, blocked := blockedAttributeKeys[attribute.Key(strings.ToLower(string(attr.Key)))]; blocked {
			continue
		}
		out = append(out, attr)
	}
	return out
}

var secretPattern = regexp.MustCompile(`(?i)(sk_(live|test)_[A-Za-z0-9]+|whsec_[A-Za-z0-9]+|bearer\s+[A-Za-z0-9\-_.]+)`)

// SafeError returns an error whose message has credentials redacted.
func SafeError(err error) error {
	if err == nil {
		return nil
	}
	msg := secretPattern.ReplaceAllString(err.Error(), "[redacted]")
	return errors.New(msg)
}
