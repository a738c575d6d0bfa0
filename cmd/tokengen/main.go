// Command tokengen mints access tokens for local development.  Production
// tokens come from the authentication service; this tool signs with the same
// JWT_SECRET so the server accepts them.
//
//	tokengen -user alice -role admin -ttl 2h
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/iliyamo/live-auction/internal/middleware"
	"github.com/iliyamo/live-auction/internal/utils"
)

func main() {
	var (
		user   = flag.String("user", "", "user id placed in the sub claim (required)")
		role   = flag.String("role", middleware.RoleUser, "role claim: user or admin")
		ttl    = flag.Duration("ttl", time.Hour, "token lifetime")
		secret = flag.String("secret", "", "signing secret (defaults to JWT_SECRET)")
	)
	flag.Parse()

	_ = godotenv.Load()
	if *secret == "" {
		*secret = os.Getenv("JWT_SECRET")
	}
	if *user == "" || *secret == "" {
		fmt.Fprintln(os.Stderr, "tokengen: -user is required and JWT_SECRET (or -secret) must be set")
		flag.Usage()
		os.Exit(2)
	}

	tok, err := utils.NewAccessToken(*secret, *user, *role, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tokengen: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(tok.Token)
	fmt.Fprintf(os.Stderr, "expires %s\n", tok.Exp.Format(time.RFC3339))
}
