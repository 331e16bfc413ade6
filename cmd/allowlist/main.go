// Administration CLI for the allowlist: approve accounts waiting for
// approval, remove accounts, and list who is waiting.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"pkgforge/bot/allowlist"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const usage = `usage: allowlist [-env <file>] <command> [args]

commands:
  approve <account_name>   approve an account waiting on the allowlist
  remove <account_name>    remove an account from the allowlist
  waiting                  show accounts waiting for approval
`

func openRepository() *allowlist.Repository {
	databaseUri := os.Getenv("DATABASE_URI")
	if databaseUri == "" {
		log.Fatal("DATABASE_URI env var must be set")
	}

	db, err := gorm.Open(postgres.Open(databaseUri), &gorm.Config{})
	if err != nil {
		log.Fatalf("error opening database connection: %v", err)
	}

	return allowlist.NewRepository(db)
}

func main() {
	envFile := flag.String("env", "", "File to load env variables from.")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
	}
	flag.Parse()

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			log.Fatalf("error loading .env file '%v': %v", *envFile, err)
		}
	}

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	requireAccount := func() string {
		if len(args) < 2 {
			flag.Usage()
			os.Exit(2)
		}
		return args[1]
	}

	switch args[0] {
	case "approve":
		account := requireAccount()
		if err := openRepository().Approve(account); err != nil {
			log.Fatalf("error approving account %v: %v", account, err)
		}
		fmt.Printf("Account approved: %v\n", account)

	case "remove":
		account := requireAccount()
		if err := openRepository().Remove(account); err != nil {
			log.Fatalf("error removing account %v: %v", account, err)
		}
		fmt.Printf("Account removed: %v\n", account)

	case "waiting":
		accounts, err := openRepository().AccountsWaiting()
		if err != nil {
			log.Fatalf("error listing waiting accounts: %v", err)
		}
		fmt.Printf("Accounts waiting for approval: %v\n", strings.Join(accounts, ", "))

	default:
		flag.Usage()
		os.Exit(2)
	}
}
