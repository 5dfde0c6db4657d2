package config

import "time"

// forceUTC pins the process timezone to UTC. Newsletter scheduling and the
// recency window are reasoned about in UTC; a host-local timezone would skew
// logs and any time math against the provider's expectations.
func forceUTC() {
	time.Local = time.UTC
}
