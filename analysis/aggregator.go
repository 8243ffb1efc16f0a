package analysis

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/classlens/backend/database"
	"github.com/classlens/backend/models"
	"github.com/classlens/backend/repository"
)

const DefaultTrendDays = 7

// TrendBucket aggregates the completed sessions of one calendar day.
type TrendBucket struct {
	Sessions        int     `json:"sessions"`
	TotalFaces      int     `json:"total_faces"`
	EngagedCount    int     `json:"engaged"`
	DisengagedCount int     `json:"disengaged"`
	AvgEngagement   float64 `json:"avg_engagement"`
}

// TotalsSummary covers every completed session regardless of the trend window.
type TotalsSummary struct {
	Sessions          int64   `json:"sessions"`
	TotalFaces        int64   `json:"total_faces"`
	EngagedCount      int64   `json:"engaged_count"`
	DisengagedCount   int64   `json:"disengaged_count"`
	OverallEngagement float64 `json:"overall_engagement"`
}

// DashboardStats is the payload behind the dashboard endpoint.
type DashboardStats struct {
	Days           int                    `json:"days"`
	Trends         map[string]TrendBucket `json:"trends"` // keyed YYYY-MM-DD
	RecentSessions []models.Session       `json:"recent_sessions"`
	Totals         TotalsSummary          `json:"totals"`
}

// Aggregator builds dashboard views over persisted sessions. Per-day trends
// come from the repository; whole-table totals run as SQL aggregates on the
// shared connection.
type Aggregator struct {
	Repo        repository.SessionRepository
	DB          *sql.DB
	Location    *time.Location
	RecentLimit int
}

func NewAggregator(repo repository.SessionRepository, db *sql.DB, loc *time.Location, recentLimit int) *Aggregator {
	if loc == nil {
		loc = time.UTC
	}
	return &Aggregator{Repo: repo, DB: db, Location: loc, RecentLimit: recentLimit}
}

// Stats computes engagement trends over the last `days`*24h, the most recent
// sessions of any status, and overall totals. Only completed sessions count
// toward trends and totals.
func (a *Aggregator) Stats(days int) (*DashboardStats, error) {
	if days <= 0 {
		days = DefaultTrendDays
	}

	// rolling window: everything uploaded within the last days*24h counts,
	// bucketed by the calendar date it lands on
	now := time.Now().In(a.Location)
	windowStart := now.Add(-time.Duration(days) * 24 * time.Hour)

	completed, err := a.Repo.ListCompletedSince(windowStart.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to list completed sessions: %w", err)
	}

	trends := make(map[string]TrendBucket)
	for _, session := range completed {
		day := time.Unix(session.UploadedAt, 0).In(a.Location).Format("2006-01-02")
		bucket := trends[day]
		bucket.Sessions++
		bucket.TotalFaces += session.Statistics.TotalFaces
		bucket.EngagedCount += session.Statistics.EngagedCount
		bucket.DisengagedCount += session.Statistics.DisengagedCount
		trends[day] = bucket
	}
	for day, bucket := range trends {
		if bucket.TotalFaces > 0 {
			bucket.AvgEngagement = float64(bucket.EngagedCount) / float64(bucket.TotalFaces) * 100.0
		}
		trends[day] = bucket
	}

	recent, err := a.Repo.ListRecent(a.RecentLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent sessions: %w", err)
	}

	totals, err := database.GetOverallTotals(a.DB)
	if err != nil {
		return nil, fmt.Errorf("failed to compute overall totals: %w", err)
	}
	summary := TotalsSummary{
		Sessions:        totals.SessionCount,
		TotalFaces:      totals.TotalFaces,
		EngagedCount:    totals.EngagedCount,
		DisengagedCount: totals.DisengagedCount,
	}
	if summary.TotalFaces > 0 {
		summary.OverallEngagement = float64(summary.EngagedCount) / float64(summary.TotalFaces) * 100.0
	}

	return &DashboardStats{
		Days:           days,
		Trends:         trends,
		RecentSessions: recent,
		Totals:         summary,
	}, nil
}
