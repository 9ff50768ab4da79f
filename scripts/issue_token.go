package main

import (
	"flag"
	"fmt"
	"os"

	"maidlink/internal/auth"
	"maidlink/internal/config"
)

// Issues a development bearer token signed with the configured secret.
//
//	go run ./scripts/issue_token.go -subject cust-1 -role customer
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = flag.String("config", "configs/config.yaml", "path to config.yaml")
		subject    = flag.String("subject", "", "user id to put in the token")
		role       = flag.String("role", "customer", "customer, cleaner or admin")
	)
	flag.Parse()

	if *subject == "" {
		return fmt.Errorf("-subject is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	token, err := auth.NewManager(cfg.Auth).Issue(*subject, *role)
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}
	fmt.Println(token)
	return nil
}
