package main

import (
	"context"
	"fmt"
	"os"

	"github.com/haverford/chatcore/internal/store"
)

// RunCLI handles subcommand execution before the flag-based server startup
// path. Returns true if a subcommand was handled.
func RunCLI(args []string, dbPath string) bool {
	if len(args) == 0 {
		return false
	}

	switch args[0] {
	case "version":
		fmt.Printf("chatcore %s\n", Version)
		return true
	case "status":
		return cliStatus(dbPath)
	case "users":
		return cliUsers(dbPath)
	case "groups":
		return cliGroups(dbPath)
	default:
		return false
	}
}

func openCLIStore(dbPath string) *store.Store {
	st, err := store.New(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening database: %v\n", err)
		os.Exit(1)
	}
	return st
}

func cliStatus(dbPath string) bool {
	st := openCLIStore(dbPath)
	defer st.Close()

	stats, err := st.CountStats(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Database: %s\n", dbPath)
	fmt.Printf("Users: %d\n", stats.Users)
	fmt.Printf("Groups: %d\n", stats.Groups)
	fmt.Printf("Messages: %d\n", stats.Messages)
	fmt.Printf("Version: %s\n", Version)
	return true
}

func cliUsers(dbPath string) bool {
	st := openCLIStore(dbPath)
	defer st.Close()

	users, err := st.ListAllUsers(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if len(users) == 0 {
		fmt.Println("No users found.")
		return true
	}
	for _, u := range users {
		fmt.Printf("  [%d] %s <%s>\n", u.ID, u.Username, u.Email)
	}
	return true
}

func cliGroups(dbPath string) bool {
	st := openCLIStore(dbPath)
	defer st.Close()

	groups, err := st.ListAllGroups(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if len(groups) == 0 {
		fmt.Println("No groups found.")
		return true
	}
	for _, g := range groups {
		fmt.Printf("  [%d] %s (creator=%d)\n", g.ID, g.Name, g.CreatorID)
	}
	return true
}
