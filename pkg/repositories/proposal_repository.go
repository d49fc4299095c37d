package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kudwa-ai/kudwa-engine/pkg/models"
)

// maxListLimit caps a single ledger page when the caller asks for "everything".
const maxListLimit = 10000

// ProposalRepository provides data access for the proposal ledger.
type ProposalRepository interface {
	// Create stores a new pending proposal.
	Create(ctx context.Context, p *models.Proposal) error

	// GetByID returns a proposal, or nil if it does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*models.Proposal, error)

	// GetForUpdate returns a proposal and locks its row until the surrounding
	// transaction ends. Must be called inside database.DB.InTx.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Proposal, error)

	// ListByStatus returns proposals in the given status ordered by
	// (created_at, id) ascending, starting after filter.After.
	ListByStatus(ctx context.Context, status models.ProposalStatus, filter models.ProposalFilter) ([]*models.Proposal, error)

	// MarkDecided records the review outcome. It only touches pending rows and
	// returns false when the proposal was already decided.
	MarkDecided(ctx context.Context, id uuid.UUID, status models.ProposalStatus, reviewer string, decision *models.MergeDecision) (bool, error)

	// CountByStatus returns the number of proposals per status.
	CountByStatus(ctx context.Context) (*models.ProposalCounts, error)
}

type proposalRepository struct{}

// NewProposalRepository creates a new ProposalRepository.
func NewProposalRepository() ProposalRepository {
	return &proposalRepository{}
}

var _ ProposalRepository = (*proposalRepository)(nil)

const proposalColumns = `id, type, action, payload, status, source, created_by, created_at,
		       reviewed_by, reviewed_at, merge_result, base_version, source_document_id`

func (r *proposalRepository) Create(ctx context.Context, p *models.Proposal) error {
	q, err := querier(ctx)
	if err != nil {
		return err
	}

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.Status = models.ProposalStatusPending

	query := `
		INSERT INTO proposals (
			id, type, action, payload, status, source, created_by,
			base_version, source_document_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at`

	err = q.QueryRow(ctx, query,
		p.ID,
		p.Type,
		p.Action,
		[]byte(p.Payload),
		p.Status,
		p.Source,
		p.CreatedBy,
		p.BaseVersion,
		p.SourceDocumentID,
	).Scan(&p.CreatedAt)
	if err != nil {
		return mapWriteError(err, "create proposal")
	}

	return nil
}

func (r *proposalRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Proposal, error) {
	q, err := querier(ctx)
	if err != nil {
		return nil, err
	}

	return scanProposal(q.QueryRow(ctx, `SELECT `+proposalColumns+` FROM proposals WHERE id = $1`, id))
}

func (r *proposalRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Proposal, error) {
	q, err := querier(ctx)
	if err != nil {
		return nil, err
	}

	return scanProposal(q.QueryRow(ctx, `SELECT `+proposalColumns+` FROM proposals WHERE id = $1 FOR UPDATE`, id))
}

func (r *proposalRepository) ListByStatus(ctx context.Context, status models.ProposalStatus, filter models.ProposalFilter) ([]*models.Proposal, error) {
	q, err := querier(ctx)
	if err != nil {
		return nil, err
	}

	limit := filter.Limit
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}

	var proposalType *string
	if filter.Type != nil {
		t := string(*filter.Type)
		proposalType = &t
	}

	// A cursor that no longer exists yields an empty page.
	query := `
		SELECT ` + proposalColumns + `
		FROM proposals
		WHERE status = $1
		  AND ($2::text IS NULL OR type = $2)
		  AND ($3::uuid IS NULL OR (created_at, id) > (
		      SELECT created_at, id FROM proposals WHERE id = $3))
		ORDER BY created_at, id
		LIMIT $4`

	rows, err := q.Query(ctx, query, status, proposalType, filter.After, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list proposals: %w", err)
	}
	defer rows.Close()

	var proposals []*models.Proposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, err
		}
		proposals = append(proposals, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating proposals: %w", err)
	}

	return proposals, nil
}

func (r *proposalRepository) MarkDecided(ctx context.Context, id uuid.UUID, status models.ProposalStatus, reviewer string, decision *models.MergeDecision) (bool, error) {
	q, err := querier(ctx)
	if err != nil {
		return false, err
	}

	var mergeResult []byte
	if decision != nil {
		mergeResult, err = json.Marshal(decision)
		if err != nil {
			return false, fmt.Errorf("failed to marshal merge result: %w", err)
		}
	}

	query := `
		UPDATE proposals
		SET status = $2, reviewed_by = $3, reviewed_at = now(), merge_result = $4
		WHERE id = $1 AND status = 'pending'`

	result, err := q.Exec(ctx, query, id, status, reviewer, mergeResult)
	if err != nil {
		return false, mapWriteError(err, "mark proposal "+string(status))
	}

	return result.RowsAffected() == 1, nil
}

func (r *proposalRepository) CountByStatus(ctx context.Context) (*models.ProposalCounts, error) {
	q, err := querier(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx, `SELECT status, COUNT(*) FROM proposals GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count proposals: %w", err)
	}
	defer rows.Close()

	counts := &models.ProposalCounts{}
	for rows.Next() {
		var status models.ProposalStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan proposal count: %w", err)
		}
		switch status {
		case models.ProposalStatusPending:
			counts.Pending = n
		case models.ProposalStatusApproved:
			counts.Approved = n
		case models.ProposalStatusRejected:
			counts.Rejected = n
		}
		counts.Total += n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating proposal counts: %w", err)
	}

	return counts, nil
}

func scanProposal(row pgx.Row) (*models.Proposal, error) {
	var p models.Proposal
	var payload, mergeResult []byte
	var reviewedAt *time.Time

	err := row.Scan(
		&p.ID,
		&p.Type,
		&p.Action,
		&payload,
		&p.Status,
		&p.Source,
		&p.CreatedBy,
		&p.CreatedAt,
		&p.ReviewedBy,
		&reviewedAt,
		&mergeResult,
		&p.BaseVersion,
		&p.SourceDocumentID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan proposal: %w", err)
	}

	p.Payload = json.RawMessage(payload)
	p.ReviewedAt = reviewedAt
	if len(mergeResult) > 0 {
		p.MergeResult = &models.MergeDecision{}
		if err := unmarshalJSONB(mergeResult, p.MergeResult, "merge_result"); err != nil {
			return nil, err
		}
	}

	return &p, nil
}
