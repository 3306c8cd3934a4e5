// Package config loads the coven-client configuration.
//
// # File Format
//
// Configuration is YAML, or TOML when the file name ends in .toml:
//
//	api:
//	  base_url: "https://gateway.example.com"
//	  request_timeout: "30s"
//	  upload_timeout: "5m"
//	credentials:
//	  backend: "file"            # file, sqlite or memory
//	  secret: "${COVEN_CLIENT_SECRET}"
//	cache:
//	  backend: "redis"           # memory or redis
//	  list_ttl: "5m"
//	  history_ttl: "3m"
//	  redis:
//	    addr: "localhost:6379"
//	netlog:
//	  enabled: true
//	  max_age: "168h"
//	session:
//	  bootstrap_cooldown: "30s"
//	logging:
//	  level: "debug"
//	  format: "json"
//
// # Environment Variables
//
// ${VAR_NAME} anywhere in the file is replaced by the variable's value, or by
// an empty string when unset.
//
// # Defaults
//
// Every field not present in the file keeps its value from Default. Durations
// are written as Go duration strings and exposed as time.Duration.
package config
