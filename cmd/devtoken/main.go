// Command devtoken mints an HS256 bearer token for local testing against AUTH_MODE=hs256.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"ms-rental/internal/auth"
	"ms-rental/internal/config"
	"ms-rental/internal/models"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	subject := flag.String("sub", "renter-1", "actor id")
	role := flag.String("role", string(models.RoleRenter), "RENTER, STAFF or ADMIN")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	actor := models.Actor{ID: *subject, Role: models.Role(*role)}
	if !actor.Role.Valid() {
		fmt.Fprintf(os.Stderr, "invalid role %q\n", *role)
		os.Exit(2)
	}
	if cfg.Auth.JWTSecret == "" {
		fmt.Fprintln(os.Stderr, "JWT_SECRET is not set")
		os.Exit(2)
	}

	tok, err := auth.IssueToken(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, actor, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sign token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(tok.AccessToken)
}
