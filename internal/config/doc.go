// Package config handles YAML configuration loading with environment variable substitution.
//
// Configuration files support ${VAR} syntax for environment variable interpolation.
// A minimal client config:
//
//	client:
//	  url: wss://eu-1.example.net/play
//	auth:
//	  token_env: GAMELINK_TOKEN
//
// Leaving client.url empty selects an endpoint from the directory section.
package config
