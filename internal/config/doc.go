// Package config loads gateway settings.
//
// # Sources
//
// Settings are resolved in three layers, each overriding the previous one:
//
//  1. Built-in defaults ([Default]).
//  2. An optional HCL file (by default /etc/tunnelgate/tunnelgate.hcl, or
//     the path in TUNNELGATE_CONFIG). Expressions may call env("NAME") to
//     read an environment variable, plus coalesce, lower and upper.
//  3. Environment variables with the wg-easy names (PORT, PASSWORD_HASH,
//     WG_HOST, ...). An empty variable counts as unset.
//
// The result is checked by [Config.Validate]. A legacy PASSWORD variable is
// always fatal: plaintext operator passwords are not supported.
//
// # File layout
//
//	port    = 51821
//	release = "14"
//
//	auth {
//	  password_hash   = env("PASSWORD_HASH")
//	  max_age         = 60 # minutes
//	  trusted_proxies = ["127.0.0.1"]
//	}
//
//	metrics {
//	  enabled       = true
//	  password_hash = "$2a$12$..."
//	}
//
//	wireguard {
//	  host            = "vpn.example.com"
//	  default_address = "10.8.0.x"
//	}
//
// Boolean environment flags follow the wg-easy convention: only the exact
// string "true" enables them.
package config
