// resync-neo4j rebuilds the Neo4j mirror from the approved graph in Postgres.
// Run it after enabling the mirror on an existing database or when the mirror
// missed decisions while Neo4j was unreachable.
//
// Usage: go run ./scripts/resync-neo4j [-dry-run=false]
//
// Connections: Uses config.yaml, PG* and NEO4J_* environment variables
//
// Flags:
//
//	-dry-run   Print what would be written without touching Neo4j (default: true)
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/kudwa-ai/kudwa-engine/pkg/config"
	"github.com/kudwa-ai/kudwa-engine/pkg/database"
	"github.com/kudwa-ai/kudwa-engine/pkg/graphsync"
	"github.com/kudwa-ai/kudwa-engine/pkg/models"
	"github.com/kudwa-ai/kudwa-engine/pkg/services"
)

func main() {
	dryRun := flag.Bool("dry-run", true, "Print what would be written without touching Neo4j")
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := config.Load("script")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if !cfg.Neo4j.Enabled() {
		fmt.Fprintln(os.Stderr, "NEO4J_URI is not set; nothing to resync")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	db, err := database.NewConnection(ctx, &database.Config{URL: cfg.Database.ConnectionURL(), MaxConnections: 2})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	graph := services.NewGraphProjectionService(services.NewPostgresStore(), zap.NewNop())
	projection, err := graph.Project(db.WithPool(ctx), models.GraphFilter{IncludeDocuments: true})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to project graph: %v\n", err)
		os.Exit(1)
	}

	counts := map[models.NodeType]int{}
	for _, n := range projection.Nodes {
		counts[n.Type]++
	}
	fmt.Printf("Approved graph: %d classes, %d entities, %d documents, %d edges\n",
		counts[models.NodeTypeOntologyClass],
		counts[models.NodeTypeFinancialEntity],
		counts[models.NodeTypeDocument],
		len(projection.Edges))

	if *dryRun {
		fmt.Println("DRY RUN - Neo4j was not modified")
		fmt.Println("Run with -dry-run=false to replace the mirror")
		return
	}

	driver, err := graphsync.NewDriver(ctx, &cfg.Neo4j)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to Neo4j: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = driver.Close(context.Background()) }()

	mirror := graphsync.NewMirror(driver, cfg.Neo4j.Database, zap.NewNop())
	if err := mirror.EnsureSchema(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create Neo4j schema: %v\n", err)
		os.Exit(1)
	}
	if err := mirror.Rebuild(ctx, projection); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to rebuild mirror: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Neo4j mirror rebuilt")
}
