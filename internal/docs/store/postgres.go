package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"certportal/internal/docs/models"
	id "certportal/pkg/domain"
	"certportal/pkg/platform/sentinel"
)

// PostgresStore persists document nodes in PostgreSQL via database/sql.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed document store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Schema is applied by migrations; kept here for integration tests.
const Schema = `
CREATE TABLE IF NOT EXISTS document_nodes (
    id UUID PRIMARY KEY,
    parent_id UUID,
    name TEXT NOT NULL,
    kind TEXT NOT NULL,
    owner_organization_id UUID,
    size_bytes BIGINT NOT NULL DEFAULT 0,
    content_type TEXT NOT NULL DEFAULT '',
    storage_ref TEXT NOT NULL DEFAULT '',
    compliance_status TEXT,
    batch_number TEXT NOT NULL DEFAULT '',
    product_name TEXT NOT NULL DEFAULT '',
    invoice_number TEXT NOT NULL DEFAULT '',
    rejection_reason TEXT NOT NULL DEFAULT '',
    inspected_at TIMESTAMPTZ,
    inspected_by_name TEXT NOT NULL DEFAULT '',
    updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS document_nodes_parent_idx ON document_nodes (parent_id);
CREATE INDEX IF NOT EXISTS document_nodes_owner_idx ON document_nodes (owner_organization_id);
CREATE UNIQUE INDEX IF NOT EXISTS document_nodes_sibling_name_idx
    ON document_nodes (COALESCE(parent_id, '00000000-0000-0000-0000-000000000000'::uuid), LOWER(name));
`

const nodeColumns = `id, parent_id, name, kind, owner_organization_id, size_bytes, content_type, storage_ref,
	compliance_status, batch_number, product_name, invoice_number, rejection_reason, inspected_at, inspected_by_name, updated_at`

func (s *PostgresStore) Insert(ctx context.Context, node *models.DocumentNode) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO document_nodes (`+nodeColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		insertArgs(node)...,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert document node: %w", err)
	}
	return nil
}

const uniqueViolation = "23505"

func (s *PostgresStore) FindByID(ctx context.Context, nodeID id.NodeID) (*models.DocumentNode, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+nodeColumns+` FROM document_nodes WHERE id = $1`, nodeID.String())
	return scanNode(row)
}

func (s *PostgresStore) Update(ctx context.Context, node *models.DocumentNode) error {
	args := insertArgs(node)
	result, err := s.db.ExecContext(ctx, `
		UPDATE document_nodes
		SET parent_id = $2, name = $3, kind = $4, owner_organization_id = $5, size_bytes = $6,
		    content_type = $7, storage_ref = $8, compliance_status = $9, batch_number = $10,
		    product_name = $11, invoice_number = $12, rejection_reason = $13, inspected_at = $14,
		    inspected_by_name = $15, updated_at = $16
		WHERE id = $1`, args...)
	if err != nil {
		return fmt.Errorf("update document node: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update document node: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ChildByName(ctx context.Context, parentID id.NodeID, name string) (*models.DocumentNode, error) {
	query := `SELECT ` + nodeColumns + ` FROM document_nodes WHERE LOWER(name) = LOWER($1) AND `
	args := []any{name}
	if parentID.IsNil() {
		query += `parent_id IS NULL`
	} else {
		query += `parent_id = $2`
		args = append(args, parentID.String())
	}
	return scanNode(s.db.QueryRowContext(ctx, query, args...))
}

func (s *PostgresStore) ListChildren(ctx context.Context, parentID id.NodeID, scope models.Scope, page models.PageRequest) (*models.Page, error) {
	var (
		where string
		args  []any
	)
	if parentID.IsNil() {
		where = `parent_id IS NULL`
	} else {
		args = append(args, parentID.String())
		where = fmt.Sprintf(`parent_id = $%d`, len(args))
	}
	return s.query(ctx, where, args, scope, page.Normalize())
}

func (s *PostgresStore) Search(ctx context.Context, query string, scope models.Scope, page models.PageRequest) (*models.Page, error) {
	args := []any{"%" + escapeLike(query) + "%"}
	return s.query(ctx, `name ILIKE $1`, args, scope, page.Normalize())
}

// query runs a filtered, scope-restricted, ordered window plus its total
// count. The scope clause mirrors models.Scope.Allows so the database and the
// in-memory predicate can never disagree.
func (s *PostgresStore) query(ctx context.Context, where string, args []any, scope models.Scope, page models.PageRequest) (*models.Page, error) {
	if !scope.All {
		args = append(args, scope.OwnerOrganizationID.String())
		where += fmt.Sprintf(` AND (kind = 'FOLDER' OR (owner_organization_id = $%d AND compliance_status = 'APPROVED'))`, len(args))
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM document_nodes WHERE `+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count document nodes: %w", err)
	}

	args = append(args, page.Limit, page.Offset)
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT `+nodeColumns+` FROM document_nodes WHERE `+where+`
		 ORDER BY (kind <> 'FOLDER'), LOWER(name)
		 LIMIT $%d OFFSET $%d`, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, fmt.Errorf("list document nodes: %w", err)
	}
	defer rows.Close()

	var nodes []*models.DocumentNode
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate document nodes: %w", err)
	}
	return &models.Page{
		Nodes:   nodes,
		Total:   total,
		HasMore: page.Offset+len(nodes) < total,
	}, nil
}

// Subtree returns the node and all of its descendants via a recursive CTE.
func (s *PostgresStore) Subtree(ctx context.Context, rootID id.NodeID) ([]*models.DocumentNode, error) {
	rows, err := s.db.QueryContext(ctx, `
		WITH RECURSIVE subtree AS (
			SELECT `+nodeColumns+` FROM document_nodes WHERE id = $1
			UNION ALL
			SELECT `+qualify(nodeColumns, "n")+` FROM document_nodes n
			JOIN subtree st ON n.parent_id = st.id
		)
		SELECT `+nodeColumns+` FROM subtree`, rootID.String())
	if err != nil {
		return nil, fmt.Errorf("load subtree: %w", err)
	}
	defer rows.Close()

	var nodes []*models.DocumentNode
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subtree: %w", err)
	}
	if len(nodes) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return nodes, nil
}

// DeleteSubtree removes the given nodes in one statement.
func (s *PostgresStore) DeleteSubtree(ctx context.Context, ids []id.NodeID) error {
	raw := make([]string, len(ids))
	for i, nodeID := range ids {
		raw[i] = nodeID.String()
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM document_nodes WHERE id = ANY($1)`, pq.Array(raw)); err != nil {
		return fmt.Errorf("delete subtree: %w", err)
	}
	return nil
}

func (s *PostgresStore) CountByOwner(ctx context.Context, orgID id.OrganizationID) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM document_nodes WHERE owner_organization_id = $1`, orgID.String()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count documents by owner: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(row rowScanner) (*models.DocumentNode, error) {
	var (
		node        models.DocumentNode
		nodeID      string
		parentID    sql.NullString
		ownerID     sql.NullString
		status      sql.NullString
		meta        models.ComplianceMetadata
		inspectedAt sql.NullTime
	)
	err := row.Scan(&nodeID, &parentID, &node.Name, &node.Kind, &ownerID,
		&node.SizeBytes, &node.ContentType, &node.StorageRef,
		&status, &meta.BatchNumber, &meta.ProductName, &meta.InvoiceNumber,
		&meta.RejectionReason, &inspectedAt, &meta.InspectedByName, &node.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan document node: %w", err)
	}

	parsedID, err := id.ParseNodeID(nodeID)
	if err != nil {
		return nil, fmt.Errorf("parse node id: %w", err)
	}
	node.ID = parsedID
	if parentID.Valid {
		parsed, err := id.ParseNodeID(parentID.String)
		if err != nil {
			return nil, fmt.Errorf("parse parent id: %w", err)
		}
		node.ParentID = parsed
	}
	if ownerID.Valid {
		parsed, err := id.ParseOrganizationID(ownerID.String)
		if err != nil {
			return nil, fmt.Errorf("parse owner organization id: %w", err)
		}
		node.OwnerOrganizationID = parsed
	}
	if status.Valid {
		meta.Status = models.ComplianceStatus(status.String)
		if inspectedAt.Valid {
			meta.InspectedAt = inspectedAt.Time
		}
		node.Compliance = &meta
	}
	return &node, nil
}

func insertArgs(node *models.DocumentNode) []any {
	var (
		status      sql.NullString
		meta        models.ComplianceMetadata
		inspectedAt sql.NullTime
	)
	if node.Compliance != nil {
		meta = *node.Compliance
		status = sql.NullString{String: string(meta.Status), Valid: true}
		if !meta.InspectedAt.IsZero() {
			inspectedAt = sql.NullTime{Time: meta.InspectedAt, Valid: true}
		}
	}
	return []any{
		node.ID.String(), nullableNodeID(node.ParentID), node.Name, string(node.Kind),
		nullableOrgID(node.OwnerOrganizationID), node.SizeBytes, node.ContentType, node.StorageRef,
		status, meta.BatchNumber, meta.ProductName, meta.InvoiceNumber,
		meta.RejectionReason, inspectedAt, meta.InspectedByName, node.UpdatedAt,
	}
}

func nullableNodeID(nodeID id.NodeID) sql.NullString {
	if nodeID.IsNil() {
		return sql.NullString{}
	}
	return sql.NullString{String: nodeID.String(), Valid: true}
}

func nullableOrgID(orgID id.OrganizationID) sql.NullString {
	if orgID.IsNil() {
		return sql.NullString{}
	}
	return sql.NullString{String: orgID.String(), Valid: true}
}

// qualify prefixes each column in a comma-separated list with an alias.
func qualify(columns, alias string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

func escapeLike(s string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(s)
}
