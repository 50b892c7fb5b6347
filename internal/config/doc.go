// Package config provides configuration management for exitwatch.
package config
