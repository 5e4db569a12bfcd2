package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"urban-issue-service/internal/models"
)

// IssueFilter pages through issues, optionally restricted to one status or
// one reporter.
type IssueFilter struct {
	Limit  int
	Offset int
	Status models.IssueStatus
	UserID uuid.UUID
}

// where renders the filter as a WHERE clause over alias, numbering
// placeholders from 1.
func (f IssueFilter) where(alias string) (string, []interface{}) {
	var conds []string
	var args []interface{}
	if f.Status != "" {
		args = append(args, string(f.Status))
		conds = append(conds, fmt.Sprintf("%sstatus = $%d", alias, len(args)))
	}
	if f.UserID != uuid.Nil {
		args = append(args, f.UserID)
		conds = append(conds, fmt.Sprintf("%suser_id = $%d", alias, len(args)))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

const issueColumns = `
	i.id, i.user_id, i.description, i.image_path, i.status, i.lat, i.lng, i.created_at, i.updated_at, i.resolved_at,
	p.id, p.issue_type, p.confidence, p.severity, p.priority, p.created_at`

// CreateIssueWithPrediction stores a new issue and its triage result in one
// transaction. Missing ids and timestamps are filled in on the passed values.
func (d *DB) CreateIssueWithPrediction(ctx context.Context, issue *models.Issue, pred *models.Prediction) error {
	if issue.ID == uuid.Nil {
		issue.ID = uuid.New()
	}
	if pred.ID == uuid.Nil {
		pred.ID = uuid.New()
	}
	if issue.Status == "" {
		issue.Status = models.StatusReported
	}
	pred.IssueID = issue.ID

	tx, err := d.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
	INSERT INTO issues (id, user_id, description, image_path, status, lat, lng, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
	RETURNING created_at, updated_at`,
		issue.ID,
		issue.UserID,
		issue.Description,
		issue.ImagePath,
		string(issue.Status),
		issue.Latitude,
		issue.Longitude,
	).Scan(&issue.CreatedAt, &issue.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert issue: %w", err)
	}

	err = tx.QueryRow(ctx, `
	INSERT INTO predictions (id, issue_id, issue_type, confidence, severity, priority, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, NOW())
	RETURNING created_at`,
		pred.ID,
		pred.IssueID,
		pred.IssueType.String(),
		pred.Confidence,
		pred.Severity,
		string(pred.Priority),
	).Scan(&pred.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert prediction: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit issue: %w", err)
	}
	issue.Prediction = pred
	return nil
}

// ListIssues returns a page of issues, newest first, and the total number of
// issues matching the filter.
func (d *DB) ListIssues(ctx context.Context, f IssueFilter) ([]models.Issue, int, error) {
	countWhere, countArgs := f.where("")
	var total int
	if err := d.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM issues`+countWhere, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count issues: %w", err)
	}

	where, args := f.where("i.")
	query := `SELECT` + issueColumns + `
	FROM issues i
	LEFT JOIN predictions p ON p.issue_id = i.id` + where +
		fmt.Sprintf(` ORDER BY i.created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, f.Limit, f.Offset)

	rows, err := d.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get issues: %w", err)
	}
	defer rows.Close()

	list := []models.Issue{}
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, issue)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to read issues: %w", err)
	}
	return list, total, nil
}

// GetIssue fetches one issue with its prediction.
func (d *DB) GetIssue(ctx context.Context, id uuid.UUID) (models.Issue, error) {
	row := d.Pool.QueryRow(ctx, `SELECT`+issueColumns+`
	FROM issues i
	LEFT JOIN predictions p ON p.issue_id = i.id
	WHERE i.id = $1`, id)

	issue, err := scanIssue(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Issue{}, fmt.Errorf("issue %s: %w", id, ErrNotFound)
	}
	return issue, err
}

// UpdateIssueStatus moves an issue to status and appends a resolution log
// attributed to adminID. Resolving sets resolved_at; any other status clears it.
func (d *DB) UpdateIssueStatus(ctx context.Context, id uuid.UUID, status models.IssueStatus, remarks string, adminID uuid.UUID) (models.Issue, error) {
	tx, err := d.Pool.Begin(ctx)
	if err != nil {
		return models.Issue{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
	UPDATE issues
	SET status = $2,
		updated_at = NOW(),
		resolved_at = CASE WHEN $2 = 'Resolved' THEN NOW() ELSE NULL END
	WHERE id = $1`, id, string(status))
	if err != nil {
		return models.Issue{}, fmt.Errorf("failed to update issue status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.Issue{}, fmt.Errorf("issue %s: %w", id, ErrNotFound)
	}

	_, err = tx.Exec(ctx, `
	INSERT INTO resolution_logs (id, issue_id, admin_id, status, remarks, created_at)
	VALUES ($1, $2, $3, $4, $5, NOW())`, uuid.New(), id, adminID, string(status), remarks)
	if err != nil {
		return models.Issue{}, fmt.Errorf("failed to insert resolution log: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return models.Issue{}, fmt.Errorf("failed to commit status change: %w", err)
	}
	return d.GetIssue(ctx, id)
}

// ResolutionLogs lists the status history of an issue, oldest first.
func (d *DB) ResolutionLogs(ctx context.Context, issueID uuid.UUID) ([]models.ResolutionLog, error) {
	rows, err := d.Pool.Query(ctx, `
	SELECT id, issue_id, admin_id, status, remarks, created_at
	FROM resolution_logs
	WHERE issue_id = $1
	ORDER BY created_at ASC`, issueID)
	if err != nil {
		return nil, fmt.Errorf("failed to get resolution logs: %w", err)
	}
	defer rows.Close()

	logs := []models.ResolutionLog{}
	for rows.Next() {
		var l models.ResolutionLog
		var status string
		var adminID pgtype.UUID
		if err := rows.Scan(&l.ID, &l.IssueID, &adminID, &status, &l.Remarks, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan resolution log: %w", err)
		}
		l.Status = models.IssueStatus(status)
		l.AdminID = optionalUUID(adminID)
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// CountIssuesNear counts issues reported since `since` within radius degrees
// of (lat, lng).
func (d *DB) CountIssuesNear(ctx context.Context, lat, lng, radius float64, since time.Time) (int, error) {
	var n int
	err := d.Pool.QueryRow(ctx, `
	SELECT COUNT(*) FROM issues
	WHERE created_at >= $4
	  AND power(lat - $1, 2) + power(lng - $2, 2) <= power($3::float8, 2)`,
		lat, lng, radius, since,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count nearby issues: %w", err)
	}
	return n, nil
}

// OpenIssueReports returns the location and severity of every unresolved,
// triaged issue reported since `since`, oldest first.
func (d *DB) OpenIssueReports(ctx context.Context, since time.Time) ([]models.IssueReport, error) {
	rows, err := d.Pool.Query(ctx, `
	SELECT i.lat, i.lng, p.severity
	FROM issues i
	JOIN predictions p ON p.issue_id = i.id
	WHERE i.status <> 'Resolved' AND i.created_at >= $1
	ORDER BY i.created_at ASC, i.id ASC`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to get open issues: %w", err)
	}
	defer rows.Close()

	reports := []models.IssueReport{}
	for rows.Next() {
		var r models.IssueReport
		if err := rows.Scan(&r.Latitude, &r.Longitude, &r.Severity); err != nil {
			return nil, fmt.Errorf("failed to scan issue report: %w", err)
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

func scanIssue(row pgx.Row) (models.Issue, error) {
	var (
		issue      models.Issue
		status     string
		userID     pgtype.UUID
		resolvedAt pgtype.Timestamptz
		predID     pgtype.UUID
		issueType  pgtype.Text
		confidence pgtype.Float8
		severity   pgtype.Int4
		priority   pgtype.Text
		predAt     pgtype.Timestamptz
	)
	err := row.Scan(
		&issue.ID,
		&userID,
		&issue.Description,
		&issue.ImagePath,
		&status,
		&issue.Latitude,
		&issue.Longitude,
		&issue.CreatedAt,
		&issue.UpdatedAt,
		&resolvedAt,
		&predID,
		&issueType,
		&confidence,
		&severity,
		&priority,
		&predAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Issue{}, err
		}
		return models.Issue{}, fmt.Errorf("failed to scan issue: %w", err)
	}
	issue.Status = models.IssueStatus(status)
	issue.UserID = optionalUUID(userID)
	if resolvedAt.Valid {
		t := resolvedAt.Time
		issue.ResolvedAt = &t
	}
	if predID.Valid {
		t, err := models.ParseIssueType(issueType.String)
		if err != nil {
			return models.Issue{}, fmt.Errorf("issue %s: stored prediction: %w", issue.ID, err)
		}
		issue.Prediction = &models.Prediction{
			ID:         uuid.UUID(predID.Bytes),
			IssueID:    issue.ID,
			IssueType:  t,
			Confidence: confidence.Float64,
			Severity:   int(severity.Int32),
			Priority:   models.Priority(priority.String),
			CreatedAt:  predAt.Time,
		}
	}
	return issue, nil
}

func optionalUUID(v pgtype.UUID) *uuid.UUID {
	if !v.Valid {
		return nil
	}
	id := uuid.UUID(v.Bytes)
	return &id
}
