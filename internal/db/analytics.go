package db

import (
	"context"
	"fmt"
	"math"

	"urban-issue-service/internal/models"
)

// Summary aggregates issue counts and the mean time to resolution.
func (d *DB) Summary(ctx context.Context) (models.Summary, error) {
	var s models.Summary
	var avgHours *float64
	err := d.Pool.QueryRow(ctx, `
	SELECT
		COUNT(*),
		COUNT(*) FILTER (WHERE i.status <> 'Resolved'),
		COUNT(*) FILTER (WHERE i.status = 'Resolved'),
		COUNT(*) FILTER (WHERE i.status <> 'Resolved' AND p.priority = 'Emergency'),
		(AVG(EXTRACT(EPOCH FROM (i.resolved_at - i.created_at)) / 3600.0)
			FILTER (WHERE i.status = 'Resolved' AND i.resolved_at IS NOT NULL))::float8
	FROM issues i
	LEFT JOIN predictions p ON p.issue_id = i.id`,
	).Scan(&s.TotalIssues, &s.ActiveIssues, &s.ResolvedIssues, &s.EmergencyPending, &avgHours)
	if err != nil {
		return models.Summary{}, fmt.Errorf("failed to compute summary: %w", err)
	}
	if avgHours != nil {
		s.AvgResolutionTimeHours = math.Round(*avgHours*100) / 100
	}
	return s, nil
}

// Monthly breaks issue counts down by creation month and status.
func (d *DB) Monthly(ctx context.Context) ([]models.MonthlyCount, error) {
	rows, err := d.Pool.Query(ctx, `
	SELECT
		EXTRACT(YEAR FROM created_at)::int AS year,
		EXTRACT(MONTH FROM created_at)::int AS month,
		COUNT(*) FILTER (WHERE status = 'Reported'),
		COUNT(*) FILTER (WHERE status = 'In Progress'),
		COUNT(*) FILTER (WHERE status = 'Resolved'),
		COUNT(*)
	FROM issues
	GROUP BY year, month
	ORDER BY year, month`)
	if err != nil {
		return nil, fmt.Errorf("failed to get monthly counts: %w", err)
	}
	defer rows.Close()

	out := []models.MonthlyCount{}
	for rows.Next() {
		var m models.MonthlyCount
		if err := rows.Scan(&m.Year, &m.Month, &m.ReportedCount, &m.InProgressCount, &m.ResolvedCount, &m.TotalCount); err != nil {
			return nil, fmt.Errorf("failed to scan monthly count: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
