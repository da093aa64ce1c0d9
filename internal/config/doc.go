// Package config manages the pipetrack user configuration file.
//
// The configuration is a single YAML document stored under the pipetrack
// home directory (default ~/.pipetrack, overridable with PIPETRACK_HOME).
// Besides the cloud API key it may hold unrelated settings such as the
// telemetry opt-out flag; those are preserved across key writes.
package config
