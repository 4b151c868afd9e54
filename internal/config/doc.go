// Package config provides YAML configuration loading and validation for the
// transcription server and the recording client.
package config
