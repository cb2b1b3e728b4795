// cleanup-agents wipes the agent directory. It lists what would be removed
// by default; pass --force to actually delete.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"

	"github.com/somniax/backend/internal/database"
)

func main() {
	force := flag.Bool("force", false, "actually delete; default is a dry run")
	flag.Parse()

	_ = godotenv.Load()

	client, err := database.NewSupabaseClient()
	if err != nil {
		log.Fatalf("initialize Supabase client: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	agents, err := client.ListAgents(ctx, 1000)
	if err != nil {
		log.Fatalf("list agents: %v", err)
	}
	if len(agents) == 0 {
		fmt.Println("Directory is already empty.")
		return
	}

	fmt.Printf("Found %d agents:\n", len(agents))
	for _, agent := range agents {
		fmt.Printf("  - %s (%s) by %s\n", agent.Name, agent.Slug, agent.CreatorWallet)
	}

	if !*force {
		fmt.Println("\nDry run: nothing deleted. Re-run with --force to remove all listings.")
		return
	}

	if err := client.DeleteAllAgents(ctx); err != nil {
		log.Fatalf("delete agents: %v", err)
	}
	fmt.Printf("Deleted %d agents.\n", len(agents))
}
