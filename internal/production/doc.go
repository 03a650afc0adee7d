// Package production holds the snapshot sinks a simulation run publishes to:
// the bounded StateBuffer read by front ends, trace recording to JSON or YAML
// files, Prometheus metrics and MQTT telemetry.
package production
