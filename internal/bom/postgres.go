package bom

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/edgeunify07/textile-flow-forge/internal/platform/db"
)

const selectColumns = `id, organization_id, style_id, style_name, version, size, status,
	items, parameters, cpp, approved_by, approved_at, rejected_by, rejected_at, rejection_reason,
	notes, previous_version_id, revision, created_at, updated_at`

// PostgresRepository persists BOMs in PostgreSQL. Items, parameters and the
// CPP roll-up are stored as JSONB next to the scalar columns.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository constructs a repo.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Fetch lists BOMs matching criteria, newest first.
func (r *PostgresRepository) Fetch(ctx context.Context, criteria Criteria) ([]BillOfMaterials, int, error) {
	criteria = criteria.Normalize()
	where, args := buildFilter(criteria)

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM boms`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("bom: count: %w", err)
	}

	query := `SELECT ` + selectColumns + ` FROM boms` + where +
		` ORDER BY created_at DESC, id ASC LIMIT $` + strconv.Itoa(len(args)+1) + ` OFFSET $` + strconv.Itoa(len(args)+2)
	args = append(args, criteria.Limit, criteria.Offset())
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("bom: fetch: %w", err)
	}
	defer rows.Close()

	out := make([]BillOfMaterials, 0, criteria.Limit)
	for rows.Next() {
		rec, err := scanBOM(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("bom: fetch rows: %w", err)
	}
	return out, total, nil
}

// Get loads one BOM by id.
func (r *PostgresRepository) Get(ctx context.Context, id string) (BillOfMaterials, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM boms WHERE id = $1`, id)
	rec, err := scanBOM(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BillOfMaterials{}, ErrNotFound
		}
		return BillOfMaterials{}, err
	}
	return rec, nil
}

// Save inserts a new BOM or updates an existing one guarded by its revision.
func (r *PostgresRepository) Save(ctx context.Context, bom BillOfMaterials) (BillOfMaterials, error) {
	if err := bom.Verify(); err != nil {
		return BillOfMaterials{}, err
	}
	items, err := json.Marshal(itemsOrEmpty(bom.Items))
	if err != nil {
		return BillOfMaterials{}, fmt.Errorf("bom: encode items: %w", err)
	}
	params, err := json.Marshal(bom.Parameters)
	if err != nil {
		return BillOfMaterials{}, fmt.Errorf("bom: encode parameters: %w", err)
	}
	cpp, err := json.Marshal(bom.CPP)
	if err != nil {
		return BillOfMaterials{}, fmt.Errorf("bom: encode cpp: %w", err)
	}

	args := []any{
		bom.ID, bom.OrganizationID, bom.StyleID, bom.StyleName, bom.Version, bom.Size, string(bom.Status),
		items, params, cpp, nullString(bom.ApprovedBy), bom.ApprovedAt, nullString(bom.RejectedBy), bom.RejectedAt,
		nullString(bom.RejectionReason), bom.Notes, nullString(bom.PreviousVersionID), bom.CreatedAt, bom.UpdatedAt,
	}

	var revision int64
	err = db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if bom.Revision == 0 {
			return tx.QueryRow(ctx, `INSERT INTO boms (id, organization_id, style_id, style_name, version, size, status,
				items, parameters, cpp, approved_by, approved_at, rejected_by, rejected_at, rejection_reason,
				notes, previous_version_id, created_at, updated_at, revision)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,1)
				RETURNING revision`, args...).Scan(&revision)
		}
		err := tx.QueryRow(ctx, `UPDATE boms SET organization_id=$2, style_id=$3, style_name=$4, version=$5, size=$6,
			status=$7, items=$8, parameters=$9, cpp=$10, approved_by=$11, approved_at=$12, rejected_by=$13,
			rejected_at=$14, rejection_reason=$15, notes=$16, previous_version_id=$17, created_at=$18,
			updated_at=$19, revision = revision + 1
			WHERE id=$1 AND revision=$20
			RETURNING revision`, append(args, bom.Revision)...).Scan(&revision)
		if errors.Is(err, pgx.ErrNoRows) {
			return missingOrStale(ctx, tx, bom.ID)
		}
		return err
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound), errors.Is(err, ErrConflict):
			return BillOfMaterials{}, err
		case db.IsUniqueViolation(err):
			return BillOfMaterials{}, ErrDuplicate
		case db.IsConcurrentUpdate(err):
			return BillOfMaterials{}, ErrConflict
		default:
			return BillOfMaterials{}, fmt.Errorf("bom: save: %w", err)
		}
	}
	saved := bom.Clone()
	saved.Revision = revision
	return saved, nil
}

// Delete removes a BOM.
func (r *PostgresRepository) Delete(ctx context.Context, id string, revision int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM boms WHERE id = $1 AND status = $2 AND revision = $3`,
		id, string(StatusDraft), revision)
	if err != nil {
		return fmt.Errorf("bom: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return missingOrStale(ctx, r.pool, id)
	}
	return nil
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func missingOrStale(ctx context.Context, q rowQuerier, id string) error {
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM boms WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("bom: check existence: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrConflict
}

// buildFilter renders the WHERE clause for criteria using positional args.
func buildFilter(c Criteria) (string, []any) {
	var clauses []string
	var args []any
	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, strings.ReplaceAll(clause, "?", "$"+strconv.Itoa(len(args))))
	}
	if c.OrganizationID != "" {
		add("organization_id = ?", c.OrganizationID)
	}
	if c.StyleID != "" {
		add("style_id = ?", c.StyleID)
	}
	if c.Size != "" {
		add("LOWER(size) = LOWER(?)", c.Size)
	}
	if c.Status != "" {
		add("status = ?", string(c.Status))
	}
	if c.Search != "" {
		add("(style_name ILIKE ? OR style_id ILIKE ?)", "%"+c.Search+"%")
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func scanBOM(row pgx.Row) (BillOfMaterials, error) {
	var (
		rec        BillOfMaterials
		status     string
		items      []byte
		params     []byte
		cpp        []byte
		approvedBy *string
		rejectedBy *string
		reason     *string
		prevID     *string
		approvedAt *time.Time
		rejectedAt *time.Time
	)
	err := row.Scan(&rec.ID, &rec.OrganizationID, &rec.StyleID, &rec.StyleName, &rec.Version, &rec.Size, &status,
		&items, &params, &cpp, &approvedBy, &approvedAt, &rejectedBy, &rejectedAt, &reason,
		&rec.Notes, &prevID, &rec.Revision, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return BillOfMaterials{}, err
	}
	rec.Status = Status(status)
	if err := json.Unmarshal(items, &rec.Items); err != nil {
		return BillOfMaterials{}, fmt.Errorf("bom: decode items: %w", err)
	}
	if err := json.Unmarshal(params, &rec.Parameters); err != nil {
		return BillOfMaterials{}, fmt.Errorf("bom: decode parameters: %w", err)
	}
	if err := json.Unmarshal(cpp, &rec.CPP); err != nil {
		return BillOfMaterials{}, fmt.Errorf("bom: decode cpp: %w", err)
	}
	rec.ApprovedBy = deref(approvedBy)
	rec.ApprovedAt = approvedAt
	rec.RejectedBy = deref(rejectedBy)
	rec.RejectedAt = rejectedAt
	rec.RejectionReason = deref(reason)
	rec.PreviousVersionID = deref(prevID)
	return rec, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
