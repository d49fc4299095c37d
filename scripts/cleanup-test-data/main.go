// cleanup-test-data rejects pending proposals that look like test data left
// behind by pipeline and agent trials.
//
// A proposal matches when the name it introduces (entity name, class id or
// label, relation endpoint names) matches one of these patterns, case-insensitive:
// - ^test (starts with "test")
// - test$ (ends with "test")
// - ^debug, ^dummy, ^sample, ^example, ^todo, ^fixme
// - ^lorem (placeholder text)
//
// Matching proposals are rejected through the review service, so the decision
// is audited and published like any other rejection. Nothing is deleted.
//
// Usage: go run ./scripts/cleanup-test-data [-dry-run=false] [-reviewer name]
//
// Database connection: Uses config.yaml and the standard PG* environment variables
//
// Flags:
//
//	-dry-run    Show what would be rejected without rejecting (default: true)
//	-reviewer   Name recorded as reviewer (default: cleanup-test-data)
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
	dryRun := flag.Bool("dry-run", true, "Show what would be rejected without rejecting")
	reviewer := flag.String("reviewer", "cleanup-test-data", "Name recorded as reviewer")
	flag.Parse()

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

	store := services.NewPostgresStore()
	ledger := services.NewProposalLedger(&services.ProposalLedgerDeps{Store: store, Logger: zap.NewNop()})
	review := services.NewReviewService(&services.ReviewServiceDeps{DB: db, Store: store, Logger: zap.NewNop()})

	if *dryRun {
		fmt.Println("DRY RUN - no changes will be made")
		fmt.Println("Run with -dry-run=false to actually reject proposals")
		fmt.Println()
	}

	// Collect first: rejecting while iterating would shift the pages.
	var matches []*models.Proposal
	ctx = db.WithPool(ctx)
	for proposal, err := range ledger.Iterate(ctx, models.ProposalStatusPending, models.ProposalFilter{}) {
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to list pending proposals: %v\n", err)
			os.Exit(1)
		}
		if name, pattern, ok := matchTestProposal(proposal); ok {
			matches = append(matches, proposal)
			fmt.Printf("  [%s] %s %q (%s, by %s)\n", pattern, proposal.Type, truncate(name, 60), proposal.ID, proposal.CreatedBy)
		}
	}

	if *dryRun {
		fmt.Printf("\nTotal proposals that would be rejected: %d\n", len(matches))
		return
	}

	rejected := 0
	for _, proposal := range matches {
		if _, err := review.Reject(ctx, proposal.ID, *reviewer); err != nil {
			// Another reviewer may have decided it in the meantime.
			fmt.Fprintf(os.Stderr, "Skipping %s: %v\n", proposal.ID, err)
			continue
		}
		rejected++
	}
	fmt.Printf("\nTotal proposals rejected: %d\n", rejected)
}

// truncate shortens a string to maxLen characters, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
