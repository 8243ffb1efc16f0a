package database

import (
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/classlens/backend/models"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Question)

// OverallTotals holds aggregate counts across all completed sessions.
type OverallTotals struct {
	SessionCount    int64
	TotalFaces      int64
	EngagedCount    int64
	DisengagedCount int64
}

// GetOverallTotals sums face counts across every completed session. Aggregates
// run as raw SQL against the shared connection rather than loading rows
// through the ORM.
func GetOverallTotals(db *sql.DB) (OverallTotals, error) {
	queryBuilder := psql.Select(
		"COUNT(*)",
		"COALESCE(SUM(total_faces), 0)",
		"COALESCE(SUM(engaged_count), 0)",
		"COALESCE(SUM(disengaged_count), 0)",
	).
		From("sessions").
		Where(sq.Eq{"status": models.SessionStatusCompleted})

	sqlStr, args, err := queryBuilder.ToSql()
	if err != nil {
		return OverallTotals{}, fmt.Errorf("failed to build SQL query for GetOverallTotals: %w", err)
	}

	var totals OverallTotals
	err = db.QueryRow(sqlStr, args...).Scan(
		&totals.SessionCount,
		&totals.TotalFaces,
		&totals.EngagedCount,
		&totals.DisengagedCount,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return OverallTotals{}, nil
		}
		return OverallTotals{}, fmt.Errorf("failed to query or scan overall totals: %w", err)
	}
	return totals, nil
}
