// ledger-admin seeds the identities the API trusts: it creates users and
// issues their bearer tokens directly against the database.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"cashledger/internal/config"
	"cashledger/internal/storage"
)

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg := config.Load()

	repo, err := storage.NewRepository(cfg.SQLiteDBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open repository: %v\n", err)
		os.Exit(1)
	}
	defer repo.Close()

	ctx := context.Background()

	switch os.Args[1] {
	case "adduser":
		fs := flag.NewFlagSet("adduser", flag.ExitOnError)
		username := fs.String("username", "", "username for the new user")
		fs.Parse(os.Args[2:])
		if *username == "" {
			fmt.Fprintln(os.Stderr, "adduser: -username is required")
			os.Exit(2)
		}

		user, err := repo.CreateUser(ctx, *username)
		if err != nil {
			fmt.Fprintf(os.Stderr, "create user: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("user %q created with id %d\n", user.Name, user.ID)

	case "addtoken":
		fs := flag.NewFlagSet("addtoken", flag.ExitOnError)
		userID := fs.Int64("user", 0, "id of the user to issue a token for")
		token := fs.String("token", "", "token value (random when omitted)")
		fs.Parse(os.Args[2:])
		if *userID == 0 {
			fmt.Fprintln(os.Stderr, "addtoken: -user is required")
			os.Exit(2)
		}

		value := *token
		if value == "" {
			value = randomToken()
		}
		if err := repo.IssueToken(ctx, *userID, value); err != nil {
			fmt.Fprintf(os.Stderr, "issue token: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("token for user %d: %s\n", *userID, value)

	default:
		usage()
		os.Exit(2)
	}
}

func randomToken() string {
	bytes := make([]byte, 24)
	if _, err := rand.Read(bytes); err != nil {
		fmt.Fprintf(os.Stderr, "generate token: %v\n", err)
		os.Exit(1)
	}
	return hex.EncodeToString(bytes)
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage:
  ledger-admin adduser -username <name>
  ledger-admin addtoken -user <id> [-token <value>]`)
}
