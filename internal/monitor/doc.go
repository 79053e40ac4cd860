// Package monitor implements the job monitoring service. It records stage
// execution state reported by external workers, accumulates errors, derives
// job completion, and fans live updates out through a non-blocking hub to
// per-job subscribers and pluggable sinks such as Prometheus metrics or a
// pub/sub topic.
package monitor
