// Command salonctl manages the identity directory: the allow-list that
// decides who may call the API. Changes take effect on the server's next
// request; no restart or redeploy needed.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/hangle/salonbook/internal/directory"
)

func main() {
	allowCmd := flag.NewFlagSet("allow", flag.ExitOnError)
	allowEmail := allowCmd.String("email", "", "Email to enable")
	allowName := allowCmd.String("name", "", "Display name shown on order rows (optional)")

	denyCmd := flag.NewFlagSet("deny", flag.ExitOnError)
	denyEmail := denyCmd.String("email", "", "Email to disable")

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "allow":
		allowCmd.Parse(os.Args[2:])
		if *allowEmail == "" {
			log.Fatal("-email is required")
		}
		runAllow(*allowEmail, *allowName)
	case "deny":
		denyCmd.Parse(os.Args[2:])
		if *denyEmail == "" {
			log.Fatal("-email is required")
		}
		runDeny(*denyEmail)
	case "list":
		runList()
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("Usage: salonctl <allow|deny|list> [flags]")
}

func openDirectory() *directory.Directory {
	_ = godotenv.Load()

	dbPath := os.Getenv("DIRECTORY_DB")
	if dbPath == "" {
		dbPath = "./directory.db"
	}

	dir, err := directory.Open(dbPath)
	if err != nil {
		log.Fatalf("Failed to open directory: %v", err)
	}
	return dir
}

func runAllow(email, name string) {
	dir := openDirectory()
	defer dir.Close()

	if err := dir.Allow(context.Background(), email, name); err != nil {
		log.Fatalf("Failed to allow %s: %v", email, err)
	}
	fmt.Printf("'%s' is now allowed.\n", email)
}

func runDeny(email string) {
	dir := openDirectory()
	defer dir.Close()

	if err := dir.Deny(context.Background(), email); err != nil {
		log.Fatalf("Failed to deny %s: %v", email, err)
	}
	fmt.Printf("'%s' is now denied.\n", email)
}

func runList() {
	dir := openDirectory()
	defer dir.Close()

	entries, err := dir.List(context.Background())
	if err != nil {
		log.Fatalf("Failed to list directory: %v", err)
	}
	if len(entries) == 0 {
		fmt.Println("Directory is empty.")
		return
	}
	for _, e := range entries {
		state := "enabled"
		if !e.Enabled {
			state = "disabled"
		}
		fmt.Printf("%-40s %-20s %s\n", e.Email, e.DisplayName, state)
	}
}
