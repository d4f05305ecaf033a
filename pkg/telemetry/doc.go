// Package telemetry exports client metrics to Prometheus.
package telemetry
