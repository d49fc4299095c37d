package services

import (
	"github.com/kudwa-ai/kudwa-engine/pkg/repositories"
)

// Store bundles the repositories of the knowledge graph and the proposal
// ledger. Every repository reads its connection from the context, so the
// same Store serves pooled reads and transactional writes.
type Store struct {
	Classes   repositories.OntologyClassRepository
	Entities  repositories.EntityRepository
	Relations repositories.RelationRepository
	Instances repositories.InstanceRepository
	Documents repositories.DocumentRepository
	Proposals repositories.ProposalRepository
}

// NewPostgresStore returns a Store backed by the Postgres repositories.
func NewPostgresStore() *Store {
	return &Store{
		Classes:   repositories.NewOntologyClassRepository(),
		Entities:  repositories.NewEntityRepository(),
		Relations: repositories.NewRelationRepository(),
		Instances: repositories.NewInstanceRepository(),
		Documents: repositories.NewDocumentRepository(),
		Proposals: repositories.NewProposalRepository(),
	}
}
