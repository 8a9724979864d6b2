package analytics

import (
	"sort"
	"time"

	"sitecheck/store"
)

const openSnapshotCap = 5000

type FocusWindow struct {
	TimeRangeDays int    `json:"time_range_days"`
	Start         string `json:"start"`
	End           string `json:"end"`
}

type FocusScope struct {
	Building string `json:"building,omitempty"`
}

type FocusMeta struct {
	ProjectID   uint            `json:"project_id"`
	GeneratedAt time.Time       `json:"generated_at"`
	Window      FocusWindow     `json:"window"`
	Backfill    *BackfillResult `json:"backfill"`
	Scope       FocusScope      `json:"scope"`
}

type FocusMetrics struct {
	AcceptanceUnqualifiedItems int `json:"acceptance_unqualified_items"`
	AcceptancePendingItems     int `json:"acceptance_pending_items"`
	IssuesOpen                 int `json:"issues_open"`
	IssuesOpenSevere           int `json:"issues_open_severe"`
	IssuesOpenOverdue          int `json:"issues_open_overdue"`
}

type ClosureStats struct {
	IssueCloseCount          int      `json:"issue_close_count"`
	IssueCloseDaysAvg        *float64 `json:"issue_close_days_avg"`
	IssueCloseDaysMedian     *float64 `json:"issue_close_days_median"`
	AcceptanceVerifyCount    int      `json:"acceptance_verify_count"`
	AcceptanceVerifyDaysAvg  *float64 `json:"acceptance_verify_days_avg"`
	AcceptanceVerifyDaysMed  *float64 `json:"acceptance_verify_days_median"`
}

type DataQuality struct {
	AcceptanceMissingBuilding      int `json:"acceptance_missing_building"`
	IssuesMissingBuilding          int `json:"issues_missing_building"`
	IssuesClosedMissingCloseAction int `json:"issues_closed_missing_close_action"`
	AcceptanceMissingVerifyAction  int `json:"acceptance_missing_verify_action"`
}

type FocusBucket struct {
	Building                   string `json:"building"`
	AcceptanceUnqualifiedItems int    `json:"acceptance_unqualified_items"`
	AcceptancePendingItems     int    `json:"acceptance_pending_items"`
	IssuesOpen                 int    `json:"issues_open"`
	IssuesOpenSevere           int    `json:"issues_open_severe"`
	IssuesOpenOverdue          int    `json:"issues_open_overdue"`
	RiskScore                  int    `json:"risk_score"`
}

type FocusItem struct {
	Title     string      `json:"title"`
	Building  string      `json:"building"`
	RiskScore int         `json:"risk_score"`
	Evidence  FocusBucket `json:"evidence"`
}

type FocusPack struct {
	Meta        FocusMeta     `json:"meta"`
	Metrics     FocusMetrics  `json:"metrics"`
	Closure     ClosureStats  `json:"closure"`
	DataQuality DataQuality   `json:"data_quality"`
	ByBuilding  []FocusBucket `json:"by_building"`
	TopFocus    []FocusItem   `json:"top_focus"`
}

// FocusPack assembles the priority view: per-building risk buckets over a
// time window, closure latency stats, data-quality counters and a ranked
// top-focus list. An optional building narrows the scope; days defaults
// to 14.
func (e *Engine) FocusPack(projectID uint, timeRangeDays int, building string, doBackfill bool, backfillLimit int) (*FocusPack, error) {
	days := timeRangeDays
	if days <= 0 {
		days = 14
	}
	now := time.Now().UTC()
	start := now.Add(-time.Duration(days) * 24 * time.Hour)

	var backfill *BackfillResult
	if doBackfill {
		res, err := e.BackfillRegionFields(projectID, backfillLimit)
		if err != nil {
			return nil, err
		}
		backfill = &res
	}

	buckets := map[string]*FocusBucket{}
	bucket := func(b string) *FocusBucket {
		d, ok := buckets[b]
		if !ok {
			d = &FocusBucket{Building: b}
			buckets[b] = d
		}
		return d
	}

	var metrics FocusMetrics

	// Acceptance items inside the window, classified by worst result.
	sqlA := "SELECT building_no, " +
		"MAX(CASE WHEN result = 'unqualified' THEN 1 ELSE 0 END) AS has_unq, " +
		"MAX(CASE WHEN result = 'pending' THEN 1 ELSE 0 END) AS has_pen " +
		"FROM acceptance_records WHERE project_id = ? AND created_at >= ?"
	args := []any{projectID, start}
	if building != "" {
		sqlA += " AND building_no = ?"
		args = append(args, building)
	}
	sqlA += " GROUP BY building_no, " + itemKeyExpr

	var aRows []struct {
		BuildingNo *string
		HasUnq     int
		HasPen     int
	}
	if err := e.db.Raw(sqlA, args...).Scan(&aRows).Error; err != nil {
		return nil, err
	}
	for _, r := range aRows {
		d := bucket(NormalizeBuilding(r.BuildingNo))
		if r.HasUnq > 0 {
			metrics.AcceptanceUnqualifiedItems++
			d.AcceptanceUnqualifiedItems++
		} else if r.HasPen > 0 {
			metrics.AcceptancePendingItems++
			d.AcceptancePendingItems++
		}
	}

	// Open issues are a point-in-time snapshot, not windowed.
	var open []store.IssueReport
	err := e.db.Where("project_id = ? AND status = ?", projectID, store.IssueOpen).
		Order("created_at desc").Limit(openSnapshotCap).Find(&open).Error
	if err != nil {
		return nil, err
	}
	for _, iss := range open {
		b := NormalizeBuilding(iss.BuildingNo)
		if building != "" && b != building {
			continue
		}
		d := bucket(b)
		metrics.IssuesOpen++
		d.IssuesOpen++

		sev := ""
		if iss.Severity != nil {
			sev = *iss.Severity
		}
		if NormalizeSeverity(sev) == "severe" {
			metrics.IssuesOpenSevere++
			d.IssuesOpenSevere++
		}

		if iss.DeadlineDays != nil && !iss.CreatedAt.IsZero() {
			ageDays := now.Sub(iss.CreatedAt).Seconds() / 86400.0
			if ageDays > float64(*iss.DeadlineDays) {
				metrics.IssuesOpenOverdue++
				d.IssuesOpenOverdue++
			}
		}
	}

	closeDays, err := e.closureDays(projectID, start, building, store.TargetIssue, store.ActionClose, "issue_reports")
	if err != nil {
		return nil, err
	}
	verifyDays, err := e.closureDays(projectID, start, building, store.TargetAcceptance, store.ActionVerify, "acceptance_records")
	if err != nil {
		return nil, err
	}
	closure := ClosureStats{
		IssueCloseCount:       len(closeDays),
		AcceptanceVerifyCount: len(verifyDays),
	}
	if len(closeDays) > 0 {
		closure.IssueCloseDaysAvg = f64p(round2(avgOf(closeDays)))
		closure.IssueCloseDaysMedian = f64p(round2(medianOf(closeDays)))
	}
	if len(verifyDays) > 0 {
		closure.AcceptanceVerifyDaysAvg = f64p(round2(avgOf(verifyDays)))
		closure.AcceptanceVerifyDaysMed = f64p(round2(medianOf(verifyDays)))
	}

	dq, err := e.dataQuality(projectID)
	if err != nil {
		return nil, err
	}

	byBuilding := make([]FocusBucket, 0, len(buckets))
	for _, d := range buckets {
		d.RiskScore = riskScore(d)
		byBuilding = append(byBuilding, *d)
	}
	sort.SliceStable(byBuilding, func(i, j int) bool {
		if byBuilding[i].RiskScore != byBuilding[j].RiskScore {
			return byBuilding[i].RiskScore > byBuilding[j].RiskScore
		}
		return BuildingLess(byBuilding[i].Building, byBuilding[j].Building)
	})

	var top []FocusItem
	for _, d := range byBuilding {
		if d.RiskScore <= 0 {
			continue
		}
		top = append(top, FocusItem{
			Title:     d.Building + " 优先闭环风险",
			Building:  d.Building,
			RiskScore: d.RiskScore,
			Evidence:  d,
		})
		if len(top) >= 5 {
			break
		}
	}

	return &FocusPack{
		Meta: FocusMeta{
			ProjectID:   projectID,
			GeneratedAt: now,
			Window: FocusWindow{
				TimeRangeDays: days,
				Start:         start.Format(sqlTimeLayout),
				End:           now.Format(sqlTimeLayout),
			},
			Backfill: backfill,
			Scope:    FocusScope{Building: building},
		},
		Metrics:     metrics,
		Closure:     closure,
		DataQuality: dq,
		ByBuilding:  byBuilding,
		TopFocus:    top,
	}, nil
}

// riskScore weights a building's open findings into 0..100. Severe and
// overdue issues dominate; an unparsed bucket carries a data-quality penalty.
func riskScore(d *FocusBucket) int {
	score := d.IssuesOpenSevere*12 + d.IssuesOpen*4 + d.IssuesOpenOverdue*8 +
		d.AcceptanceUnqualifiedItems*6 + d.AcceptancePendingItems*2
	if d.Building == UnresolvedBuilding {
		score += 10
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

// closureDays measures, per target, days from record creation to its first
// action of the given type inside the window. Negative deltas (clock skew,
// imported data) are dropped.
func (e *Engine) closureDays(projectID uint, start time.Time, building, targetType, actionType, targetTable string) ([]float64, error) {
	var rows []struct {
		FirstAt    string
		CreatedAt  string
		BuildingNo *string
	}
	err := e.db.Raw(
		"SELECT a.first_at AS first_at, t.created_at AS created_at, t.building_no AS building_no "+
			"FROM (SELECT target_id, MIN(created_at) AS first_at FROM rectification_actions "+
			"WHERE project_id = ? AND target_type = ? AND action_type = ? AND created_at >= ? "+
			"GROUP BY target_id) a "+
			"JOIN "+targetTable+" t ON t.id = a.target_id",
		projectID, targetType, actionType, start,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	var out []float64
	for _, r := range rows {
		if building != "" && NormalizeBuilding(r.BuildingNo) != building {
			continue
		}
		actionAt, ok := parseDBTime(r.FirstAt)
		if !ok {
			continue
		}
		createdAt, ok := parseDBTime(r.CreatedAt)
		if !ok {
			continue
		}
		days := actionAt.Sub(createdAt).Seconds() / 86400.0
		if days >= 0 {
			out = append(out, days)
		}
	}
	return out, nil
}

func (e *Engine) dataQuality(projectID uint) (DataQuality, error) {
	var dq DataQuality

	var n int64
	err := e.db.Model(&store.AcceptanceRecord{}).
		Where("project_id = ? AND building_no IS NULL", projectID).Count(&n).Error
	if err != nil {
		return dq, err
	}
	dq.AcceptanceMissingBuilding = int(n)

	err = e.db.Model(&store.IssueReport{}).
		Where("project_id = ? AND building_no IS NULL", projectID).Count(&n).Error
	if err != nil {
		return dq, err
	}
	dq.IssuesMissingBuilding = int(n)

	var closedIDs []uint
	err = e.db.Model(&store.IssueReport{}).
		Where("project_id = ? AND status = ?", projectID, store.IssueClosed).
		Order("created_at desc").Limit(openSnapshotCap).
		Pluck("id", &closedIDs).Error
	if err != nil {
		return dq, err
	}
	missing, err := e.countMissingAction(projectID, store.TargetIssue, store.ActionClose, closedIDs)
	if err != nil {
		return dq, err
	}
	dq.IssuesClosedMissingCloseAction = missing

	var decidedIDs []uint
	err = e.db.Model(&store.AcceptanceRecord{}).
		Where("project_id = ? AND result IN ('qualified','unqualified')", projectID).
		Order("created_at desc").Limit(openSnapshotCap).
		Pluck("id", &decidedIDs).Error
	if err != nil {
		return dq, err
	}
	missing, err = e.countMissingAction(projectID, store.TargetAcceptance, store.ActionVerify, decidedIDs)
	if err != nil {
		return dq, err
	}
	dq.AcceptanceMissingVerifyAction = missing

	return dq, nil
}

func (e *Engine) countMissingAction(projectID uint, targetType, actionType string, ids []uint) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	have, err := e.st.TargetsWithAction(projectID, targetType, actionType, ids)
	if err != nil {
		return 0, err
	}
	missing := 0
	for _, id := range ids {
		if !have[id] {
			missing++
		}
	}
	return missing, nil
}

func f64p(v float64) *float64 { return &v }
