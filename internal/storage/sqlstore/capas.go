package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/steveyegge/rcagov/internal/types"
)

const capaColumns = `id, rcr_id, root_cause_category, proposed_changes, verification_plan,
	risk_score, affected_sd_count, status, approved_at, verified_at, verification_notes,
	rejection_reason, created_at, updated_at`

func scanCAPA(row rowScanner) (*types.CAPA, error) {
	var (
		c                      types.CAPA
		changes, plan          []byte
		approvedAt, verifiedAt nullTime
		createdAt, updatedAt   nullTime
	)
	err := row.Scan(
		&c.ID, &c.RCRID, &c.RootCauseCategory, &changes, &plan,
		&c.RiskScore, &c.AffectedSDCount, &c.Status, &approvedAt, &verifiedAt, &c.VerificationNotes,
		&c.RejectionReason, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := fromJSON(changes, &c.ProposedChanges); err != nil {
		return nil, fmt.Errorf("failed to decode proposed_changes for capa %s: %w", c.ID, err)
	}
	if err := fromJSON(plan, &c.VerificationPlan); err != nil {
		return nil, fmt.Errorf("failed to decode verification_plan for capa %s: %w", c.ID, err)
	}
	c.ApprovedAt = approvedAt.ptr()
	c.VerifiedAt = verifiedAt.ptr()
	c.CreatedAt = createdAt.Time
	c.UpdatedAt = updatedAt.Time
	return &c, nil
}

// GetCAPA retrieves a CAPA by ID
func (q *queries) GetCAPA(ctx context.Context, id string) (*types.CAPA, error) {
	c, err := scanCAPA(q.queryRow(ctx, `SELECT `+capaColumns+` FROM remediation_manifests WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get capa: %w", err)
	}
	return c, nil
}

// GetActiveCAPA returns the CAPA currently governing a report, if any
func (q *queries) GetActiveCAPA(ctx context.Context, rcrID string) (*types.CAPA, error) {
	c, err := scanCAPA(q.queryRow(ctx, `
		SELECT `+capaColumns+` FROM remediation_manifests
		WHERE rcr_id = ? AND status NOT IN (?, ?)
	`, rcrID, types.CAPAStatusRejected, types.CAPAStatusAbandoned))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active capa: %w", err)
	}
	return c, nil
}

// GetCAPAForReport returns the active CAPA, or the most recent historical one
func (q *queries) GetCAPAForReport(ctx context.Context, rcrID string) (*types.CAPA, error) {
	c, err := q.GetActiveCAPA(ctx, rcrID)
	if err != nil || c != nil {
		return c, err
	}
	c, err = scanCAPA(q.queryRow(ctx, `
		SELECT `+capaColumns+` FROM remediation_manifests
		WHERE rcr_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, rcrID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest capa: %w", err)
	}
	return c, nil
}

// ListCAPAs returns every CAPA ever attached to a report, oldest first
func (q *queries) ListCAPAs(ctx context.Context, rcrID string) ([]*types.CAPA, error) {
	rows, err := q.query(ctx, `
		SELECT `+capaColumns+` FROM remediation_manifests
		WHERE rcr_id = ?
		ORDER BY created_at ASC, id ASC
	`, rcrID)
	if err != nil {
		return nil, fmt.Errorf("failed to list capas: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var capas []*types.CAPA
	for rows.Next() {
		c, err := scanCAPA(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan capa: %w", err)
		}
		capas = append(capas, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating capas: %w", err)
	}
	return capas, nil
}

// InsertCAPA inserts a new CAPA. A second active CAPA for the same report
// fails with storage.ErrUniqueViolation.
func (q *queries) InsertCAPA(ctx context.Context, c *types.CAPA) error {
	changes, err := toJSON(c.ProposedChanges)
	if err != nil {
		return fmt.Errorf("failed to marshal proposed_changes: %w", err)
	}
	plan, err := toJSON(c.VerificationPlan)
	if err != nil {
		return fmt.Errorf("failed to marshal verification_plan: %w", err)
	}

	_, err = q.exec(ctx, `
		INSERT INTO remediation_manifests (`+capaColumns+`)
		VALUES (`+placeholders(14)+`)
	`,
		c.ID, c.RCRID, c.RootCauseCategory, changes, plan,
		c.RiskScore, c.AffectedSDCount, c.Status, timePtrArg(c.ApprovedAt), timePtrArg(c.VerifiedAt),
		c.VerificationNotes, c.RejectionReason, timeArg(c.CreatedAt), timeArg(c.UpdatedAt),
	)
	if err != nil {
		return q.uniqueErr("capa", err)
	}
	return nil
}

// UpdateCAPA writes the mutable lifecycle fields of a CAPA, guarded on its previous status
func (q *queries) UpdateCAPA(ctx context.Context, c *types.CAPA, from types.CAPAStatus) error {
	c.UpdatedAt = time.Now().UTC()
	result, err := q.exec(ctx, `
		UPDATE remediation_manifests
		SET status = ?, approved_at = ?, verified_at = ?, verification_notes = ?,
		    rejection_reason = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, c.Status, timePtrArg(c.ApprovedAt), timePtrArg(c.VerifiedAt), c.VerificationNotes,
		c.RejectionReason, timeArg(c.UpdatedAt), c.ID, from)
	if err != nil {
		return fmt.Errorf("failed to update capa: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		current, err := q.GetCAPA(ctx, c.ID)
		if err != nil {
			return err
		}
		if current == nil {
			return &types.NotFoundError{Entity: types.EntityCAPA, ID: c.ID}
		}
		return fmt.Errorf("concurrent state modification detected: capa %s expected %s, found %s", c.ID, from, current.Status)
	}
	return nil
}
