// Package cloud is the client for the pipetrack tracking API: CRUD on
// pipeline run records plus project upload. Every operation authenticates
// with the API key from the local credential store (or the
// PIPETRACK_CLOUD_KEY environment variable).
//
// Failures a user can act on (missing key, invalid key, unknown pipeline
// id, empty input) are returned as plain-message errors; callers print
// them rather than aborting.
package cloud
