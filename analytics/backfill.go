package analytics

import (
	"github.com/sirupsen/logrus"

	"sitecheck/region"
)

const backfillPageCap = 2000

type BackfillResult struct {
	UpdatedAcceptance int `json:"updated_acceptance"`
	UpdatedIssues     int `json:"updated_issues"`
}

type backfillRow struct {
	ID         uint
	RegionText string
	BuildingNo *string
	FloorNo    *int
	Zone       *string
}

// BackfillRegionFields re-parses region text for recent rows whose
// building/floor/zone columns are still NULL and fills in what parses.
// Columns that already hold a value are never touched, and a row only counts
// as updated when at least one column actually changed.
func (e *Engine) BackfillRegionFields(projectID uint, limit int) (BackfillResult, error) {
	if limit > backfillPageCap {
		limit = backfillPageCap
	}
	var res BackfillResult
	if limit <= 0 {
		return res, nil
	}

	n, err := e.backfillTable("acceptance_records", projectID, limit)
	if err != nil {
		return res, err
	}
	res.UpdatedAcceptance = n

	n, err = e.backfillTable("issue_reports", projectID, limit)
	if err != nil {
		return res, err
	}
	res.UpdatedIssues = n
	return res, nil
}

func (e *Engine) backfillTable(table string, projectID uint, limit int) (int, error) {
	var rows []backfillRow
	err := e.db.Raw(
		"SELECT id, region_text, building_no, floor_no, zone FROM "+table+
			" WHERE project_id = ? AND (building_no IS NULL OR floor_no IS NULL OR zone IS NULL)"+
			" ORDER BY created_at DESC LIMIT ?",
		projectID, limit,
	).Scan(&rows).Error
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, r := range rows {
		p := region.Parse(r.RegionText)
		if p.Empty() {
			continue
		}

		changes := map[string]any{}
		if r.BuildingNo == nil && p.BuildingNo != nil {
			changes["building_no"] = *p.BuildingNo
		}
		if r.FloorNo == nil && p.FloorNo != nil {
			changes["floor_no"] = *p.FloorNo
		}
		if r.Zone == nil && p.Zone != nil {
			changes["zone"] = *p.Zone
		}
		if len(changes) == 0 {
			continue
		}
		if err := e.db.Table(table).Where("id = ?", r.ID).Updates(changes).Error; err != nil {
			// One bad row must not abort the sweep.
			e.log.WithFields(logrus.Fields{"table": table, "id": r.ID}).WithError(err).Warn("region backfill update failed")
			continue
		}
		updated++
	}
	return updated, nil
}
