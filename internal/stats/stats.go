package stats

import (
	"time"

	"gorm.io/gorm"

	"github.com/walidbk/assurexpert-backend/pkg/models"
)

// ClientStats summarises the client population. A client counts as active
// when they logged in within the last seven days.
type ClientStats struct {
	Total    int64 `json:"total_clients"`
	Active   int64 `json:"active_clients"`
	Inactive int64 `json:"inactive_clients"`
}

func CollectClientStats(db *gorm.DB, now time.Time) (ClientStats, error) {
	var s ClientStats
	if err := db.Model(&models.Client{}).Count(&s.Total).Error; err != nil {
		return s, err
	}
	cutoff := now.AddDate(0, 0, -7)
	if err := db.Model(&models.Client{}).
		Where("last_login_at IS NOT NULL AND last_login_at >= ?", cutoff).
		Count(&s.Active).Error; err != nil {
		return s, err
	}
	s.Inactive = s.Total - s.Active
	return s, nil
}

/* ============================ System stats ============================== */

type GrowthStats struct {
	Last7Days    int64   `json:"last_7_days"`
	Last30Days   int64   `json:"last_30_days"`
	GrowthRate7  float64 `json:"growth_rate_7_days"`
	GrowthRate30 float64 `json:"growth_rate_30_days"`
}

type UserStats struct {
	TotalAdmins  int64       `json:"total_admins"`
	TotalClients int64       `json:"total_clients"`
	AdminGrowth  GrowthStats `json:"admin_growth"`
	ClientGrowth GrowthStats `json:"client_growth"`
}

type DossierStats struct {
	Total                 int64            `json:"total"`
	ByStatus              map[string]int64 `json:"by_status"`
	CreatedLast7Days      int64            `json:"created_last_7_days"`
	CreatedLast30Days     int64            `json:"created_last_30_days"`
	CompletionRate        float64          `json:"completion_rate"`
	RejectionRate         float64          `json:"rejection_rate"`
	AverageCompletionDays float64          `json:"average_completion_time"`
}

type SystemStats struct {
	Users    UserStats    `json:"users"`
	Dossiers DossierStats `json:"dossiers"`
}

// CollectSystemStats aggregates platform-wide counters for the super-admin
// dashboard.
func CollectSystemStats(db *gorm.DB, now time.Time) (SystemStats, error) {
	var s SystemStats

	if err := db.Model(&models.Admin{}).Count(&s.Users.TotalAdmins).Error; err != nil {
		return s, err
	}
	if err := db.Model(&models.Client{}).Count(&s.Users.TotalClients).Error; err != nil {
		return s, err
	}

	var err error
	if s.Users.AdminGrowth, err = growth(db, &models.Admin{}, s.Users.TotalAdmins, now); err != nil {
		return s, err
	}
	if s.Users.ClientGrowth, err = growth(db, &models.Client{}, s.Users.TotalClients, now); err != nil {
		return s, err
	}

	if err := db.Model(&models.Dossier{}).Count(&s.Dossiers.Total).Error; err != nil {
		return s, err
	}

	s.Dossiers.ByStatus = map[string]int64{}
	type statusRow struct {
		Status string
		N      int64
	}
	var rows []statusRow
	if err := db.Model(&models.Dossier{}).
		Select("status, count(*) as n").
		Group("status").
		Scan(&rows).Error; err != nil {
		return s, err
	}
	for _, r := range rows {
		s.Dossiers.ByStatus[r.Status] = r.N
	}

	if err := db.Model(&models.Dossier{}).
		Where("created_at >= ?", now.AddDate(0, 0, -7)).
		Count(&s.Dossiers.CreatedLast7Days).Error; err != nil {
		return s, err
	}
	if err := db.Model(&models.Dossier{}).
		Where("created_at >= ?", now.AddDate(0, 0, -30)).
		Count(&s.Dossiers.CreatedLast30Days).Error; err != nil {
		return s, err
	}

	if s.Dossiers.Total > 0 {
		ended := s.Dossiers.ByStatus[string(models.DossierEnded)]
		rejected := s.Dossiers.ByStatus[string(models.DossierRejected)]
		s.Dossiers.CompletionRate = rate(ended, s.Dossiers.Total)
		s.Dossiers.RejectionRate = rate(rejected, s.Dossiers.Total)
	}

	avg, err := averageCompletionDays(db)
	if err != nil {
		return s, err
	}
	s.Dossiers.AverageCompletionDays = avg

	return s, nil
}

func growth(db *gorm.DB, model any, total int64, now time.Time) (GrowthStats, error) {
	var g GrowthStats
	if err := db.Model(model).
		Where("created_at >= ?", now.AddDate(0, 0, -7)).
		Count(&g.Last7Days).Error; err != nil {
		return g, err
	}
	if err := db.Model(model).
		Where("created_at >= ?", now.AddDate(0, 0, -30)).
		Count(&g.Last30Days).Error; err != nil {
		return g, err
	}
	if total > 0 {
		g.GrowthRate7 = rate(g.Last7Days, total)
		g.GrowthRate30 = rate(g.Last30Days, total)
	}
	return g, nil
}

func rate(part, total int64) float64 {
	return float64(part) / float64(total) * 100
}

// averageCompletionDays is the mean age in days of ended dossiers, measured
// from creation to the last update. Returns 0 when none have ended.
func averageCompletionDays(db *gorm.DB) (float64, error) {
	type span struct {
		CreatedAt time.Time
		UpdatedAt time.Time
	}
	var spans []span
	if err := db.Model(&models.Dossier{}).
		Where("status = ?", models.DossierEnded).
		Select("created_at, updated_at").
		Scan(&spans).Error; err != nil {
		return 0, err
	}
	if len(spans) == 0 {
		return 0, nil
	}
	var days float64
	for _, sp := range spans {
		days += sp.UpdatedAt.Sub(sp.CreatedAt).Hours() / 24
	}
	return days / float64(len(spans)), nil
}
