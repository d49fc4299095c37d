// import-proposals submits a batch of proposals from a YAML or JSON file to
// the ledger. Every proposal lands pending; nothing is approved.
//
// Usage: go run ./scripts/import-proposals [-dry-run] [-created-by name] <file>
//
// Database connection: Uses config.yaml and the standard PG* environment variables
//
// Flags:
//
//	-dry-run      Validate every proposal without storing anything
//	-created-by   Submitter recorded when the file names none (default: import-proposals)
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/kudwa-ai/kudwa-engine/pkg/config"
	"github.com/kudwa-ai/kudwa-engine/pkg/database"
	"github.com/kudwa-ai/kudwa-engine/pkg/models"
	"github.com/kudwa-ai/kudwa-engine/pkg/services"
)

func main() {
	dryRun := flag.Bool("dry-run", false, "Validate proposals without storing them")
	createdBy := flag.String("created-by", "import-proposals", "Submitter recorded when the file names none")
	flag.Parse()

	args := flag.Args()
	if len(args) != 1 {
		fmt.Fprintf(os.Stderr, "Usage: %s [-dry-run] [-created-by name] <file.yaml|file.json>\n", os.Args[0])
		os.Exit(1)
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read %s: %v\n", args[0], err)
		os.Exit(1)
	}
	requests, err := parseBatch(args[0], data, *createdBy)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	if *dryRun {
		fmt.Println("DRY RUN - no proposals will be stored")
		failed := 0
		for i, req := range requests {
			if _, err := models.DecodePayload(req.Type, defaultAction(req.Action), req.Payload); err != nil {
				failed++
				fmt.Printf("  %3d %-15s INVALID: %v\n", i+1, req.Type, err)
				continue
			}
			fmt.Printf("  %3d %-15s ok\n", i+1, req.Type)
		}
		fmt.Printf("\n%d of %d proposals valid\n", len(requests)-failed, len(requests))
		if failed > 0 {
			os.Exit(1)
		}
		return
	}

	_ = godotenv.Load()
	cfg, err := config.Load("script")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := database.NewConnection(ctx, &database.Config{URL: cfg.Database.ConnectionURL(), MaxConnections: 2})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	ledger := services.NewProposalLedger(&services.ProposalLedgerDeps{
		Store:  services.NewPostgresStore(),
		Logger: zap.NewNop(),
	})

	ctx = db.WithPool(ctx)
	submitted, failed := 0, 0
	for i, req := range requests {
		proposal, err := ledger.Submit(ctx, req)
		if err != nil {
			failed++
			fmt.Printf("  %3d %-15s FAILED: %v\n", i+1, req.Type, err)
			continue
		}
		submitted++
		fmt.Printf("  %3d %-15s %s\n", i+1, req.Type, proposal.ID)
	}

	fmt.Printf("\nSubmitted %d proposals, %d failed\n", submitted, failed)
	if failed > 0 {
		os.Exit(1)
	}
}

func defaultAction(a models.ProposalAction) models.ProposalAction {
	if a == "" {
		return models.ProposalActionUpsert
	}
	return a
}
