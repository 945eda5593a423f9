// Command admin-token prints a signed bearer token for the admin HTTP API.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"telegram-vpn-provisioning/internal/config"
	"telegram-vpn-provisioning/internal/infra/web"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	subject := flag.String("sub", "admin", "token subject")
	ttl := flag.Duration("ttl", 0, "token lifetime (defaults to web.token_ttl)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Web.JWTSecret == "" {
		fmt.Fprintln(os.Stderr, "web.jwt_secret is not set")
		os.Exit(1)
	}
	lifetime := cfg.Web.TokenTTL
	if *ttl > 0 {
		lifetime = *ttl
	}

	token, err := web.NewAuthManager(cfg.Web.JWTSecret, lifetime).Mint(*subject)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mint: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "expires at %s\n", time.Now().Add(lifetime).UTC().Format(time.RFC3339))
}
