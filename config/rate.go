package config

import (
	"fmt"
	"time"
)

// RateLimitConfig bounds outbound push-provider request QPS per limiter key
// (the notification topic).
type RateLimitConfig struct {
	// The maximum size of the leaky bucket. This is the maximum "burst" of requests that will be allowed
	BucketSize int `yaml:"bucketSize"`
	// The amount of requests that will be added (up to BucketSize) per LeakRateDuration
	LeakRateScalar int `yaml:"leakRateScalar"`
	// The period at which LeakRateScalar additional requests will be allowed
	LeakRateDuration time.Duration `yaml:"leakRateDuration"`
}

func (r *RateLimitConfig) validate() []string {
	var errs []string
	if r.BucketSize < 0 {
		errs = append(errs, fmt.Sprintf("invalid BucketSize: %v", r.BucketSize))
	}
	if r.LeakRateScalar < 0 {
		errs = append(errs, fmt.Sprintf("invalid LeakRateScalar: %v", r.LeakRateScalar))
	}
	return errs
}
