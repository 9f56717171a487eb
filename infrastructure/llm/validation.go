package llm

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"time"
)

// Parameter bounds shared by the providers. Temperature tops out at 2.0,
// the widest range any supported provider accepts.
const (
	MinTemperature = 0.0
	MaxTemperature = 2.0
	MinTopP        = 0.0
	MaxTopP        = 1.0
	MinPenalty     = -2.0
	MaxPenalty     = 2.0
	MinTimeout     = 1 * time.Second
	MaxTimeout     = 10 * time.Minute
)

// IsValidTemperature reports whether v is within [MinTemperature, MaxTemperature].
func IsValidTemperature(v float64) bool { return v >= MinTemperature && v <= MaxTemperature }

// IsValidTopP reports whether v is within [MinTopP, MaxTopP].
func IsValidTopP(v float64) bool { return v >= MinTopP && v <= MaxTopP }

func isPositive(v int) bool { return v > 0 }

func isNonEmpty(v string) bool { return v != "" }

// ExtractOption returns opts[key] when it holds a T that passes valid, and
// def otherwise. A nil valid accepts any T.
func ExtractOption[T any](opts map[string]any, key string, def T, valid func(T) bool) T {
	v, ok := opts[key].(T)
	if !ok || (valid != nil && !valid(v)) {
		return def
	}
	return v
}

// ValidateBaseURL normalizes an http(s) base URL. An empty URL is returned
// unchanged so the SDK default applies.
func ValidateBaseURL(baseURL string) (string, error) {
	if baseURL == "" {
		return "", nil
	}
	u, err := url.Parse(baseURL)
	switch {
	case err != nil:
		return "", fmt.Errorf("invalid URL format: %w", err)
	case u.Scheme == "":
		return "", errors.New("URL must include a scheme (e.g., http:// or https://)")
	case u.Scheme != "http" && u.Scheme != "https":
		return "", fmt.Errorf("URL scheme must be http or https, but got: %s", u.Scheme)
	case u.Host == "":
		return "", errors.New("URL must include a host")
	}
	return u.String(), nil
}

// ValidateTimeout clamps a client timeout to [MinTimeout, MaxTimeout].
// Zero or negative means the SDK default and is returned as zero.
func ValidateTimeout(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return 0
	}
	return min(max(timeout, MinTimeout), MaxTimeout)
}

// SafeFloat32 converts an option value to float32, rejecting values out of
// float32 range.
func SafeFloat32(value any) (float32, bool) {
	switch v := value.(type) {
	case float32:
		return v, true
	case float64:
		if math.Abs(v) > math.MaxFloat32 {
			return 0, false
		}
		return float32(v), true
	case int:
		return float32(v), true
	default:
		return 0, false
	}
}

// ClampFloat64 limits val to [lo, hi].
func ClampFloat64(val, lo, hi float64) float64 { return min(max(val, lo), hi) }
