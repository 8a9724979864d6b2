package analytics

import (
	"sort"
	"strings"

	"sitecheck/store"
)

type ProcessProgress struct {
	Process     string `json:"process"`
	MaxFloor    int    `json:"max_floor"`
	RecordCount int    `json:"record_count"`
	Status      string `json:"status"`
}

type BuildingProgress struct {
	Building  string            `json:"building"`
	Processes []ProcessProgress `json:"processes"`
}

// ProgressByBuildingAndProcess infers how far each work process has climbed
// per building: the highest floor any acceptance row for that process has
// reached. topNProcess defaults to 6, buildingLimit to 10.
func (e *Engine) ProgressByBuildingAndProcess(projectID uint, building string, topNProcess, buildingLimit int) ([]BuildingProgress, error) {
	topN := topNProcess
	if topN <= 0 {
		topN = 6
	}
	bLimit := buildingLimit
	if bLimit <= 0 {
		bLimit = 10
	}

	sql := "SELECT building_no, " + processExpr + " AS process, MAX(floor_no) AS max_floor, COUNT(id) AS record_count, " +
		"MAX(CASE WHEN result = 'unqualified' THEN 1 ELSE 0 END) AS has_unq, " +
		"MAX(CASE WHEN result = 'pending' THEN 1 ELSE 0 END) AS has_pen " +
		"FROM acceptance_records WHERE project_id = ? AND floor_no IS NOT NULL"
	args := []any{projectID}
	if building != "" {
		sql += " AND building_no = ?"
		args = append(args, building)
	}
	sql += " GROUP BY building_no, process"

	var rows []struct {
		BuildingNo  *string
		Process     *string
		MaxFloor    int
		RecordCount int
		HasUnq      int
		HasPen      int
	}
	if err := e.db.Raw(sql, args...).Scan(&rows).Error; err != nil {
		return nil, err
	}

	byB := map[string][]ProcessProgress{}
	for _, r := range rows {
		if r.MaxFloor <= 0 {
			continue
		}
		bn := NormalizeBuilding(r.BuildingNo)
		proc := "未命名工序"
		if r.Process != nil && strings.TrimSpace(*r.Process) != "" {
			proc = strings.TrimSpace(*r.Process)
		}
		if LooksLikeCode(proc) {
			proc = "工序（未命名）"
		}
		status := "合格"
		if r.HasUnq > 0 {
			status = "含不合格"
		} else if r.HasPen > 0 {
			status = "含甩项"
		}
		byB[bn] = append(byB[bn], ProcessProgress{
			Process:     proc,
			MaxFloor:    r.MaxFloor,
			RecordCount: r.RecordCount,
			Status:      status,
		})
	}

	buildings := make([]string, 0, len(byB))
	for bn := range byB {
		buildings = append(buildings, bn)
	}
	SortBuildings(buildings)
	if len(buildings) > bLimit {
		buildings = buildings[:bLimit]
	}

	out := make([]BuildingProgress, 0, len(buildings))
	for _, bn := range buildings {
		items := byB[bn]
		sort.SliceStable(items, func(i, j int) bool {
			if items[i].MaxFloor != items[j].MaxFloor {
				return items[i].MaxFloor > items[j].MaxFloor
			}
			return items[i].RecordCount > items[j].RecordCount
		})
		if len(items) > topN {
			items = items[:topN]
		}
		out = append(out, BuildingProgress{Building: bn, Processes: items})
	}
	return out, nil
}

type IssueSample struct {
	Where    string `json:"where"`
	Desc     string `json:"desc"`
	Status   string `json:"status"`
	Severity string `json:"severity"`
}

type IssueCategory struct {
	Category string        `json:"category"`
	Total    int           `json:"total"`
	Open     int           `json:"open"`
	Severe   int           `json:"severe"`
	Samples  []IssueSample `json:"samples"`
}

// TopIssueCategories groups recent issues into human-readable categories and
// ranks them by open count, then total, then severe. Each category keeps up
// to samplePerCat example rows.
func (e *Engine) TopIssueCategories(projectID uint, building string, floor *int, responsibleUnit string, topN, samplePerCat int) ([]IssueCategory, error) {
	t := topN
	if t <= 0 {
		t = 5
	}
	s := samplePerCat
	if s <= 0 {
		s = 1
	}

	q := e.db.Where("project_id = ?", projectID)
	if building != "" {
		q = q.Where("building_no = ?", building)
	}
	if floor != nil {
		q = q.Where("floor_no = ?", *floor)
	}
	if responsibleUnit != "" {
		q = q.Where("responsible_unit = ?", responsibleUnit)
	}
	var rows []store.IssueReport
	if err := q.Order("created_at desc").Limit(openSnapshotCap).Find(&rows).Error; err != nil {
		return nil, err
	}

	buckets := map[string]*IssueCategory{}
	var order []string
	for _, r := range rows {
		key := issueCategoryKey(r)
		b, ok := buckets[key]
		if !ok {
			b = &IssueCategory{Category: key, Samples: []IssueSample{}}
			buckets[key] = b
			order = append(order, key)
		}
		b.Total++

		status := strings.ToLower(strings.TrimSpace(r.Status))
		if status == store.IssueOpen {
			b.Open++
		}
		sev := strings.TrimSpace(derefOr(r.Severity, "-"))
		if NormalizeSeverity(sev) == "severe" {
			b.Severe++
		}

		if len(b.Samples) < s {
			where := strings.TrimSpace(r.RegionText)
			if where == "" {
				where = strings.TrimSpace(derefOr(r.BuildingNo, ""))
			}
			if where == "" {
				where = "-"
			}
			if status == "" {
				status = store.IssueOpen
			}
			if sev == "" {
				sev = "-"
			}
			b.Samples = append(b.Samples, IssueSample{
				Where:    where,
				Desc:     shortText(r.Description, 26),
				Status:   status,
				Severity: sev,
			})
		}
	}

	cats := make([]IssueCategory, 0, len(order))
	for _, k := range order {
		cats = append(cats, *buckets[k])
	}
	sort.SliceStable(cats, func(i, j int) bool {
		if cats[i].Open != cats[j].Open {
			return cats[i].Open > cats[j].Open
		}
		if cats[i].Total != cats[j].Total {
			return cats[i].Total > cats[j].Total
		}
		return cats[i].Severe > cats[j].Severe
	})
	if len(cats) > t {
		cats = cats[:t]
	}
	return cats, nil
}

// issueCategoryKey picks the first readable classification label, skipping
// bare codes. Issues with no usable label land in a catch-all bucket.
func issueCategoryKey(r store.IssueReport) string {
	for _, p := range []*string{r.Indicator, r.Item, r.Subdivision, r.Division} {
		if p == nil {
			continue
		}
		v := strings.TrimSpace(*p)
		if v != "" && !LooksLikeCode(v) {
			return v
		}
	}
	return "其他问题"
}

// AcceptanceItemCounts is the scoped variant of the worst-result item
// classification used by chat answers.
func (e *Engine) AcceptanceItemCounts(projectID uint, building string, floor *int) (ResultCounts, error) {
	return e.acceptanceItemCountsWorst(projectID, building, floor)
}

type IssueStatusCounts struct {
	Open   int `json:"open"`
	Closed int `json:"closed"`
	Total  int `json:"total"`
}

func (e *Engine) IssueCounts(projectID uint, building string, floor *int, responsibleUnit string) (IssueStatusCounts, error) {
	sql := "SELECT status, COUNT(id) AS cnt FROM issue_reports WHERE project_id = ?"
	args := []any{projectID}
	if building != "" {
		sql += " AND building_no = ?"
		args = append(args, building)
	}
	if floor != nil {
		sql += " AND floor_no = ?"
		args = append(args, *floor)
	}
	if responsibleUnit != "" {
		sql += " AND responsible_unit = ?"
		args = append(args, responsibleUnit)
	}
	sql += " GROUP BY status"

	var rows []struct {
		Status string
		Cnt    int
	}
	if err := e.db.Raw(sql, args...).Scan(&rows).Error; err != nil {
		return IssueStatusCounts{}, err
	}
	var out IssueStatusCounts
	for _, r := range rows {
		switch strings.ToLower(strings.TrimSpace(r.Status)) {
		case store.IssueOpen:
			out.Open = r.Cnt
		case store.IssueClosed:
			out.Closed = r.Cnt
		}
	}
	out.Total = out.Open + out.Closed
	return out, nil
}

type FloorFacts struct {
	Floor                 int `json:"floor"`
	AcceptanceTotal       int `json:"acceptance_total"`
	AcceptanceQualified   int `json:"acceptance_qualified"`
	AcceptanceUnqualified int `json:"acceptance_unqualified"`
	AcceptancePending     int `json:"acceptance_pending"`
	IssuesTotal           int `json:"issues_total"`
	IssuesOpen            int `json:"issues_open"`
	IssuesClosed          int `json:"issues_closed"`
}

// ByFloorFacts summarizes one building floor by floor, items classified by
// worst result and issues by status.
func (e *Engine) ByFloorFacts(projectID uint, building string) ([]FloorFacts, error) {
	var aRows []struct {
		FloorNo *int
		HasUnq  int
		HasPen  int
	}
	err := e.db.Raw(
		"SELECT floor_no, "+
			"MAX(CASE WHEN result = 'unqualified' THEN 1 ELSE 0 END) AS has_unq, "+
			"MAX(CASE WHEN result = 'pending' THEN 1 ELSE 0 END) AS has_pen "+
			"FROM acceptance_records WHERE project_id = ? AND building_no = ? "+
			"GROUP BY floor_no, "+itemKeyExpr,
		projectID, building,
	).Scan(&aRows).Error
	if err != nil {
		return nil, err
	}

	byF := map[int]*FloorFacts{}
	facts := func(f int) *FloorFacts {
		d, ok := byF[f]
		if !ok {
			d = &FloorFacts{Floor: f}
			byF[f] = d
		}
		return d
	}
	for _, r := range aRows {
		if r.FloorNo == nil || *r.FloorNo == 0 {
			continue
		}
		d := facts(*r.FloorNo)
		d.AcceptanceTotal++
		switch {
		case r.HasUnq > 0:
			d.AcceptanceUnqualified++
		case r.HasPen > 0:
			d.AcceptancePending++
		default:
			d.AcceptanceQualified++
		}
	}

	var iRows []struct {
		FloorNo *int
		Status  string
		Cnt     int
	}
	err = e.db.Raw(
		"SELECT floor_no, status, COUNT(id) AS cnt FROM issue_reports "+
			"WHERE project_id = ? AND building_no = ? GROUP BY floor_no, status",
		projectID, building,
	).Scan(&iRows).Error
	if err != nil {
		return nil, err
	}
	for _, r := range iRows {
		if r.FloorNo == nil || *r.FloorNo == 0 {
			continue
		}
		d := facts(*r.FloorNo)
		d.IssuesTotal += r.Cnt
		switch strings.ToLower(strings.TrimSpace(r.Status)) {
		case store.IssueOpen:
			d.IssuesOpen += r.Cnt
		case store.IssueClosed:
			d.IssuesClosed += r.Cnt
		}
	}

	floors := make([]int, 0, len(byF))
	for f := range byF {
		floors = append(floors, f)
	}
	sort.Ints(floors)
	out := make([]FloorFacts, 0, len(floors))
	for _, f := range floors {
		out = append(out, *byF[f])
	}
	return out, nil
}

type BuildingFacts struct {
	Building              string `json:"building"`
	AcceptanceTotal       int    `json:"acceptance_total"`
	AcceptanceQualified   int    `json:"acceptance_qualified"`
	AcceptanceUnqualified int    `json:"acceptance_unqualified"`
	AcceptancePending     int    `json:"acceptance_pending"`
	IssuesTotal           int    `json:"issues_total"`
	IssuesOpen            int    `json:"issues_open"`
	IssuesClosed          int    `json:"issues_closed"`
}

// BuildingProgressFacts summarizes every building: deduped acceptance items
// by worst result plus issue status totals, ordered building number first.
func (e *Engine) BuildingProgressFacts(projectID uint) ([]BuildingFacts, error) {
	var aRows []struct {
		BuildingNo *string
		HasUnq     int
		HasPen     int
	}
	err := e.db.Raw(
		"SELECT building_no, "+
			"MAX(CASE WHEN result = 'unqualified' THEN 1 ELSE 0 END) AS has_unq, "+
			"MAX(CASE WHEN result = 'pending' THEN 1 ELSE 0 END) AS has_pen "+
			"FROM acceptance_records WHERE project_id = ? "+
			"GROUP BY building_no, "+itemKeyExpr,
		projectID,
	).Scan(&aRows).Error
	if err != nil {
		return nil, err
	}

	byB := map[string]*BuildingFacts{}
	facts := func(b string) *BuildingFacts {
		d, ok := byB[b]
		if !ok {
			d = &BuildingFacts{Building: b}
			byB[b] = d
		}
		return d
	}
	for _, r := range aRows {
		d := facts(NormalizeBuilding(r.BuildingNo))
		d.AcceptanceTotal++
		switch {
		case r.HasUnq > 0:
			d.AcceptanceUnqualified++
		case r.HasPen > 0:
			d.AcceptancePending++
		default:
			d.AcceptanceQualified++
		}
	}

	var iRows []struct {
		BuildingNo *string
		Status     string
		Cnt        int
	}
	err = e.db.Raw(
		"SELECT building_no, status, COUNT(id) AS cnt FROM issue_reports "+
			"WHERE project_id = ? GROUP BY building_no, status",
		projectID,
	).Scan(&iRows).Error
	if err != nil {
		return nil, err
	}
	for _, r := range iRows {
		d := facts(NormalizeBuilding(r.BuildingNo))
		d.IssuesTotal += r.Cnt
		switch strings.ToLower(strings.TrimSpace(r.Status)) {
		case store.IssueOpen:
			d.IssuesOpen += r.Cnt
		case store.IssueClosed:
			d.IssuesClosed += r.Cnt
		}
	}

	out := make([]BuildingFacts, 0, len(byB))
	for _, d := range byB {
		out = append(out, *d)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return BuildingLess(out[i].Building, out[j].Building)
	})
	return out, nil
}

func shortText(s string, maxLen int) string {
	t := strings.ReplaceAll(strings.TrimSpace(s), "\n", " ")
	runes := []rune(t)
	if len(runes) <= maxLen {
		return t
	}
	if maxLen < 1 {
		return ""
	}
	return string(runes[:maxLen-1]) + "…"
}

func derefOr(s *string, def string) string {
	if s == nil {
		return def
	}
	return *s
}
