package analytics

import (
	"strings"

	"sitecheck/store"
)

type UnitCount struct {
	ResponsibleUnit string `json:"responsible_unit"`
	Count           int    `json:"count"`
}

type Summary struct {
	AcceptanceTotal       int `json:"acceptance_total"`
	AcceptanceQualified   int `json:"acceptance_qualified"`
	AcceptanceUnqualified int `json:"acceptance_unqualified"`
	AcceptancePending     int `json:"acceptance_pending"`

	IssuesTotal  int `json:"issues_total"`
	IssuesOpen   int `json:"issues_open"`
	IssuesClosed int `json:"issues_closed"`

	IssuesBySeverity    map[string]int `json:"issues_by_severity"`
	TopResponsibleUnits []UnitCount    `json:"top_responsible_units"`

	RecentUnqualifiedAcceptance []store.AcceptanceRecord `json:"recent_unqualified_acceptance"`
	RecentOpenIssues            []store.IssueReport      `json:"recent_open_issues"`
}

// Summary builds the project dashboard: item-level acceptance counts,
// issue status and severity breakdowns, the busiest responsible units and
// the latest problem records.
func (e *Engine) Summary(projectID uint, limit int) (*Summary, error) {
	acc, err := e.acceptanceItemCountsWorst(projectID, "", nil)
	if err != nil {
		return nil, err
	}

	statusCounts, err := e.issueCountsByStatus(projectID)
	if err != nil {
		return nil, err
	}
	sevCounts, err := e.issueCountsBySeverity(projectID)
	if err != nil {
		return nil, err
	}
	topUnits, err := e.topResponsibleUnits(projectID)
	if err != nil {
		return nil, err
	}

	recLimit := clampRecentLimit(limit)
	var recentUnq []store.AcceptanceRecord
	err = e.db.Where("project_id = ? AND result = ?", projectID, "unqualified").
		Order("created_at desc, id desc").Limit(recLimit).Find(&recentUnq).Error
	if err != nil {
		return nil, err
	}
	var recentOpen []store.IssueReport
	err = e.db.Where("project_id = ? AND status = ?", projectID, store.IssueOpen).
		Order("created_at desc, id desc").Limit(recLimit).Find(&recentOpen).Error
	if err != nil {
		return nil, err
	}

	issuesTotal := 0
	for _, n := range statusCounts {
		issuesTotal += n
	}

	return &Summary{
		AcceptanceTotal:             acc.Qualified + acc.Unqualified + acc.Pending,
		AcceptanceQualified:         acc.Qualified,
		AcceptanceUnqualified:       acc.Unqualified,
		AcceptancePending:           acc.Pending,
		IssuesTotal:                 issuesTotal,
		IssuesOpen:                  statusCounts["open"],
		IssuesClosed:                statusCounts["closed"],
		IssuesBySeverity:            sevCounts,
		TopResponsibleUnits:         topUnits,
		RecentUnqualifiedAcceptance: recentUnq,
		RecentOpenIssues:            recentOpen,
	}, nil
}

// ResultCounts classifies deduped acceptance items by their worst result.
type ResultCounts struct {
	Qualified   int `json:"qualified"`
	Unqualified int `json:"unqualified"`
	Pending     int `json:"pending"`
}

type worstRow struct {
	HasUnq int
	HasPen int
}

func (e *Engine) acceptanceItemCountsWorst(projectID uint, building string, floor *int) (ResultCounts, error) {
	sql := "SELECT " +
		"MAX(CASE WHEN result = 'unqualified' THEN 1 ELSE 0 END) AS has_unq, " +
		"MAX(CASE WHEN result = 'pending' THEN 1 ELSE 0 END) AS has_pen " +
		"FROM acceptance_records WHERE project_id = ?"
	args := []any{projectID}
	if building != "" {
		sql += " AND building_no = ?"
		args = append(args, building)
	}
	if floor != nil {
		sql += " AND floor_no = ?"
		args = append(args, *floor)
	}
	sql += " GROUP BY " + itemKeyExpr

	var rows []worstRow
	if err := e.db.Raw(sql, args...).Scan(&rows).Error; err != nil {
		return ResultCounts{}, err
	}
	var out ResultCounts
	for _, r := range rows {
		switch {
		case r.HasUnq > 0:
			out.Unqualified++
		case r.HasPen > 0:
			out.Pending++
		default:
			out.Qualified++
		}
	}
	return out, nil
}

func (e *Engine) issueCountsByStatus(projectID uint) (map[string]int, error) {
	var rows []struct {
		Status string
		Cnt    int
	}
	err := e.db.Raw(
		"SELECT status, COUNT(id) AS cnt FROM issue_reports WHERE project_id = ? GROUP BY status",
		projectID,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := map[string]int{}
	for _, r := range rows {
		out[strings.ToLower(strings.TrimSpace(r.Status))] = r.Cnt
	}
	return out, nil
}

const unfilledLabel = "未填写"

func (e *Engine) issueCountsBySeverity(projectID uint) (map[string]int, error) {
	var rows []struct {
		Severity *string
		Cnt      int
	}
	err := e.db.Raw(
		"SELECT severity, COUNT(id) AS cnt FROM issue_reports WHERE project_id = ? GROUP BY severity",
		projectID,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := map[string]int{}
	for _, r := range rows {
		key := unfilledLabel
		if r.Severity != nil && strings.TrimSpace(*r.Severity) != "" {
			key = strings.TrimSpace(*r.Severity)
		}
		out[key] += r.Cnt
	}
	return out, nil
}

func (e *Engine) topResponsibleUnits(projectID uint) ([]UnitCount, error) {
	expr := "COALESCE(NULLIF(TRIM(responsible_unit),''),'" + unfilledLabel + "')"
	var rows []struct {
		Unit string
		Cnt  int
	}
	err := e.db.Raw(
		"SELECT "+expr+" AS unit, COUNT(id) AS cnt FROM issue_reports "+
			"WHERE project_id = ? AND status = 'open' "+
			"GROUP BY "+expr+" ORDER BY cnt DESC LIMIT 10",
		projectID,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]UnitCount, 0, len(rows))
	for _, r := range rows {
		out = append(out, UnitCount{ResponsibleUnit: r.Unit, Count: r.Cnt})
	}
	return out, nil
}

func clampRecentLimit(n int) int {
	if n <= 0 {
		return 10
	}
	if n > 200 {
		return 200
	}
	return n
}
