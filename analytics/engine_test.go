package analytics

import (
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"sitecheck/store"
)

func newTestEngine(t *testing.T) (*Engine, *store.Store) {
	t.Helper()
	db, err := store.OpenDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	st := store.New(db)
	log := logrus.New()
	log.SetOutput(io.Discard)
	return New(st, log), st
}

func strp(s string) *string { return &s }
func intp(n int) *int       { return &n }

func TestBackfillFillsOnlyNullColumns(t *testing.T) {
	e, st := newTestEngine(t)
	p, _ := st.EnsureProject("")
	db := st.DB()

	// Unparsed row: everything null, region text usable.
	r1 := store.AcceptanceRecord{ProjectID: p.ID, RegionText: "1栋6层/A区", Result: "qualified", CreatedAt: time.Now().UTC()}
	if err := db.Create(&r1).Error; err != nil {
		t.Fatalf("create: %v", err)
	}
	// Partially filled row: building already set, must be preserved.
	r2 := store.IssueReport{ProjectID: p.ID, RegionText: "3栋7层", BuildingNo: strp("9栋"), Description: "x", Status: store.IssueOpen, CreatedAt: time.Now().UTC()}
	if err := db.Create(&r2).Error; err != nil {
		t.Fatalf("create: %v", err)
	}

	res, err := e.BackfillRegionFields(p.ID, 200)
	if err != nil {
		t.Fatalf("backfill: %v", err)
	}
	if res.UpdatedAcceptance != 1 || res.UpdatedIssues != 1 {
		t.Fatalf("updated counts: %+v", res)
	}

	var got1 store.AcceptanceRecord
	db.First(&got1, r1.ID)
	if got1.BuildingNo == nil || *got1.BuildingNo != "1栋" || got1.FloorNo == nil || *got1.FloorNo != 6 || got1.Zone == nil || *got1.Zone != "A区" {
		t.Fatalf("row not filled: %+v", got1)
	}

	var got2 store.IssueReport
	db.First(&got2, r2.ID)
	if got2.BuildingNo == nil || *got2.BuildingNo != "9栋" {
		t.Fatalf("existing building overwritten: %v", got2.BuildingNo)
	}
	if got2.FloorNo == nil || *got2.FloorNo != 7 {
		t.Fatalf("floor not filled: %v", got2.FloorNo)
	}

	// Second run has nothing left to change.
	res, err = e.BackfillRegionFields(p.ID, 200)
	if err != nil {
		t.Fatalf("backfill again: %v", err)
	}
	if res.UpdatedAcceptance != 0 {
		t.Fatalf("second run should update nothing, got %+v", res)
	}
}

func TestSummaryWorstResultClassification(t *testing.T) {
	e, st := newTestEngine(t)
	p, _ := st.EnsureProject("")
	db := st.DB()

	now := time.Now().UTC()
	rows := []store.AcceptanceRecord{
		// Item A: qualified and unqualified rows -> unqualified item.
		{ProjectID: p.ID, Item: strp("A"), Result: "qualified", CreatedAt: now},
		{ProjectID: p.ID, Item: strp("A"), Result: "unqualified", CreatedAt: now},
		// Item B: qualified and pending -> pending item.
		{ProjectID: p.ID, Item: strp("B"), Result: "qualified", CreatedAt: now},
		{ProjectID: p.ID, Item: strp("B"), Result: "pending", CreatedAt: now},
		// Item C: all qualified.
		{ProjectID: p.ID, Item: strp("C"), Result: "qualified", CreatedAt: now},
	}
	for i := range rows {
		if err := db.Create(&rows[i]).Error; err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	issues := []store.IssueReport{
		{ProjectID: p.ID, Description: "a", Status: store.IssueOpen, Severity: strp("严重"), ResponsibleUnit: strp("一公司"), CreatedAt: now},
		{ProjectID: p.ID, Description: "b", Status: store.IssueOpen, ResponsibleUnit: strp("一公司"), CreatedAt: now},
		{ProjectID: p.ID, Description: "c", Status: store.IssueClosed, CreatedAt: now},
	}
	for i := range issues {
		if err := db.Create(&issues[i]).Error; err != nil {
			t.Fatalf("create issue: %v", err)
		}
	}

	sum, err := e.Summary(p.ID, 10)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if sum.AcceptanceTotal != 3 || sum.AcceptanceUnqualified != 1 || sum.AcceptancePending != 1 || sum.AcceptanceQualified != 1 {
		t.Fatalf("acceptance counts: %+v", sum)
	}
	if sum.AcceptanceQualified+sum.AcceptanceUnqualified+sum.AcceptancePending != sum.AcceptanceTotal {
		t.Fatal("acceptance counts must add up to total")
	}
	if sum.IssuesTotal != 3 || sum.IssuesOpen != 2 || sum.IssuesClosed != 1 {
		t.Fatalf("issue counts: %+v", sum)
	}
	if sum.IssuesBySeverity["严重"] != 1 || sum.IssuesBySeverity["未填写"] != 2 {
		t.Fatalf("severity buckets: %v", sum.IssuesBySeverity)
	}
	if len(sum.TopResponsibleUnits) == 0 || sum.TopResponsibleUnits[0].ResponsibleUnit != "一公司" || sum.TopResponsibleUnits[0].Count != 2 {
		t.Fatalf("top units: %+v", sum.TopResponsibleUnits)
	}
	if len(sum.RecentUnqualifiedAcceptance) != 1 {
		t.Fatalf("recent unqualified: %d", len(sum.RecentUnqualifiedAcceptance))
	}
	if len(sum.RecentOpenIssues) != 2 {
		t.Fatalf("recent open: %d", len(sum.RecentOpenIssues))
	}
}

func TestFocusPackRiskAndOverdue(t *testing.T) {
	e, st := newTestEngine(t)
	p, _ := st.EnsureProject("")
	db := st.DB()

	now := time.Now().UTC()
	threeDaysAgo := now.Add(-3 * 24 * time.Hour)

	issues := []store.IssueReport{
		// Severe and overdue in 1栋: 12 + 4 + 8 = 24.
		{ProjectID: p.ID, BuildingNo: strp("1栋"), Description: "a", Status: store.IssueOpen, Severity: strp("严重"), DeadlineDays: intp(1), CreatedAt: threeDaysAgo},
		// Plain open issue without a building: 4 + 10 penalty = 14.
		{ProjectID: p.ID, Description: "b", Status: store.IssueOpen, CreatedAt: now},
	}
	for i := range issues {
		if err := db.Create(&issues[i]).Error; err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	// Unqualified acceptance item in 1栋 inside the window: +6.
	acc := store.AcceptanceRecord{ProjectID: p.ID, BuildingNo: strp("1栋"), Item: strp("抹灰"), Result: "unqualified", CreatedAt: now}
	if err := db.Create(&acc).Error; err != nil {
		t.Fatalf("create acceptance: %v", err)
	}

	pack, err := e.FocusPack(p.ID, 0, "", false, 0)
	if err != nil {
		t.Fatalf("focus pack: %v", err)
	}
	if pack.Meta.Window.TimeRangeDays != 14 {
		t.Fatalf("default window: %d", pack.Meta.Window.TimeRangeDays)
	}
	m := pack.Metrics
	if m.IssuesOpen != 2 || m.IssuesOpenSevere != 1 || m.IssuesOpenOverdue != 1 || m.AcceptanceUnqualifiedItems != 1 {
		t.Fatalf("metrics: %+v", m)
	}

	if len(pack.ByBuilding) != 2 {
		t.Fatalf("buckets: %+v", pack.ByBuilding)
	}
	first := pack.ByBuilding[0]
	if first.Building != "1栋" || first.RiskScore != 30 {
		t.Fatalf("top bucket: %+v", first)
	}
	second := pack.ByBuilding[1]
	if second.Building != UnresolvedBuilding || second.RiskScore != 14 {
		t.Fatalf("unresolved bucket: %+v", second)
	}

	if len(pack.TopFocus) != 2 || pack.TopFocus[0].Title != "1栋 优先闭环风险" {
		t.Fatalf("top focus: %+v", pack.TopFocus)
	}
	if pack.DataQuality.IssuesMissingBuilding != 1 || pack.DataQuality.AcceptanceMissingBuilding != 0 {
		t.Fatalf("data quality: %+v", pack.DataQuality)
	}
}

func TestFocusPackRiskScoreClamped(t *testing.T) {
	e, st := newTestEngine(t)
	p, _ := st.EnsureProject("")
	db := st.DB()

	now := time.Now().UTC()
	for i := 0; i < 20; i++ {
		iss := store.IssueReport{ProjectID: p.ID, BuildingNo: strp("5栋"), Description: "x", Status: store.IssueOpen, Severity: strp("严重"), CreatedAt: now}
		if err := db.Create(&iss).Error; err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	pack, err := e.FocusPack(p.ID, 7, "", false, 0)
	if err != nil {
		t.Fatalf("focus pack: %v", err)
	}
	if len(pack.ByBuilding) != 1 || pack.ByBuilding[0].RiskScore != 100 {
		t.Fatalf("risk must clamp at 100, got %+v", pack.ByBuilding)
	}
}

func TestClosureLatency(t *testing.T) {
	e, st := newTestEngine(t)
	p, _ := st.EnsureProject("")
	db := st.DB()

	mk := func(age time.Duration) uint {
		iss := store.IssueReport{ProjectID: p.ID, Description: "x", Status: store.IssueOpen, CreatedAt: time.Now().UTC().Add(-age)}
		if err := db.Create(&iss).Error; err != nil {
			t.Fatalf("create: %v", err)
		}
		return iss.ID
	}
	id1 := mk(2 * 24 * time.Hour)
	id2 := mk(4 * 24 * time.Hour)
	for _, id := range []uint{id1, id2} {
		if _, err := st.CloseIssue(id, "", nil, nil); err != nil {
			t.Fatalf("close: %v", err)
		}
	}

	pack, err := e.FocusPack(p.ID, 14, "", false, 0)
	if err != nil {
		t.Fatalf("focus pack: %v", err)
	}
	c := pack.Closure
	if c.IssueCloseCount != 2 {
		t.Fatalf("close count: %d", c.IssueCloseCount)
	}
	if c.IssueCloseDaysAvg == nil || *c.IssueCloseDaysAvg < 2.9 || *c.IssueCloseDaysAvg > 3.1 {
		t.Fatalf("close avg: %v", c.IssueCloseDaysAvg)
	}
	if c.IssueCloseDaysMedian == nil || *c.IssueCloseDaysMedian < 2.9 || *c.IssueCloseDaysMedian > 3.1 {
		t.Fatalf("close median: %v", c.IssueCloseDaysMedian)
	}
	if c.AcceptanceVerifyCount != 0 || c.AcceptanceVerifyDaysAvg != nil {
		t.Fatalf("verify stats should be empty: %+v", c)
	}
}

func TestDataQualityMissingActions(t *testing.T) {
	e, st := newTestEngine(t)
	p, _ := st.EnsureProject("")
	db := st.DB()

	now := time.Now().UTC()
	// Closed through the API: close action exists.
	good := store.IssueReport{ProjectID: p.ID, Description: "a", Status: store.IssueOpen, CreatedAt: now}
	if err := db.Create(&good).Error; err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := st.CloseIssue(good.ID, "", nil, nil); err != nil {
		t.Fatalf("close: %v", err)
	}
	// Closed by hand: no action row.
	bad := store.IssueReport{ProjectID: p.ID, Description: "b", Status: store.IssueClosed, CreatedAt: now}
	if err := db.Create(&bad).Error; err != nil {
		t.Fatalf("create: %v", err)
	}
	// Decided acceptance without verify action.
	acc := store.AcceptanceRecord{ProjectID: p.ID, Result: "qualified", CreatedAt: now}
	if err := db.Create(&acc).Error; err != nil {
		t.Fatalf("create acceptance: %v", err)
	}

	pack, err := e.FocusPack(p.ID, 14, "", false, 0)
	if err != nil {
		t.Fatalf("focus pack: %v", err)
	}
	if pack.DataQuality.IssuesClosedMissingCloseAction != 1 {
		t.Fatalf("missing close action: %d", pack.DataQuality.IssuesClosedMissingCloseAction)
	}
	if pack.DataQuality.AcceptanceMissingVerifyAction != 1 {
		t.Fatalf("missing verify action: %d", pack.DataQuality.AcceptanceMissingVerifyAction)
	}
}

func TestProgressByBuildingAndProcess(t *testing.T) {
	e, st := newTestEngine(t)
	p, _ := st.EnsureProject("")
	db := st.DB()

	now := time.Now().UTC()
	rows := []store.AcceptanceRecord{
		{ProjectID: p.ID, BuildingNo: strp("2栋"), FloorNo: intp(3), Item: strp("砌筑"), Result: "qualified", CreatedAt: now},
		{ProjectID: p.ID, BuildingNo: strp("2栋"), FloorNo: intp(6), Item: strp("砌筑"), Result: "unqualified", CreatedAt: now},
		{ProjectID: p.ID, BuildingNo: strp("10栋"), FloorNo: intp(2), Item: strp("QJ-0102"), Result: "qualified", CreatedAt: now},
		// No floor: excluded from progress entirely.
		{ProjectID: p.ID, BuildingNo: strp("2栋"), Item: strp("抹灰"), Result: "qualified", CreatedAt: now},
	}
	for i := range rows {
		if err := db.Create(&rows[i]).Error; err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	progress, err := e.ProgressByBuildingAndProcess(p.ID, "", 0, 0)
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if len(progress) != 2 {
		t.Fatalf("buildings: %+v", progress)
	}
	if progress[0].Building != "2栋" || progress[1].Building != "10栋" {
		t.Fatalf("building order: %q then %q", progress[0].Building, progress[1].Building)
	}

	ps := progress[0].Processes
	if len(ps) != 1 || ps[0].Process != "砌筑" || ps[0].MaxFloor != 6 || ps[0].RecordCount != 2 || ps[0].Status != "含不合格" {
		t.Fatalf("2栋 processes: %+v", ps)
	}
	if progress[1].Processes[0].Process != "工序（未命名）" {
		t.Fatalf("code labels must be masked, got %q", progress[1].Processes[0].Process)
	}
}

func TestTopIssueCategories(t *testing.T) {
	e, st := newTestEngine(t)
	p, _ := st.EnsureProject("")
	db := st.DB()

	now := time.Now().UTC()
	rows := []store.IssueReport{
		{ProjectID: p.ID, RegionText: "1栋2层", Indicator: strp("墙面空鼓"), Description: "客厅西墙空鼓两处", Status: store.IssueOpen, Severity: strp("严重"), CreatedAt: now},
		{ProjectID: p.ID, Indicator: strp("墙面空鼓"), Description: "卧室顶板空鼓", Status: store.IssueOpen, CreatedAt: now},
		{ProjectID: p.ID, Indicator: strp("QJ-01"), Item: strp("渗漏"), Description: "阳台渗水", Status: store.IssueClosed, CreatedAt: now},
		{ProjectID: p.ID, Description: "无分类描述", Status: store.IssueOpen, CreatedAt: now},
	}
	for i := range rows {
		if err := db.Create(&rows[i]).Error; err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	cats, err := e.TopIssueCategories(p.ID, "", nil, "", 5, 3)
	if err != nil {
		t.Fatalf("categories: %v", err)
	}
	if len(cats) != 3 {
		t.Fatalf("categories: %+v", cats)
	}
	if cats[0].Category != "墙面空鼓" || cats[0].Total != 2 || cats[0].Open != 2 || cats[0].Severe != 1 {
		t.Fatalf("top category: %+v", cats[0])
	}
	if len(cats[0].Samples) != 2 || cats[0].Samples[0].Where == "" {
		t.Fatalf("samples: %+v", cats[0].Samples)
	}
	// Code-looking indicator falls through to the item name.
	found := false
	for _, c := range cats {
		if c.Category == "渗漏" {
			found = true
		}
		if c.Category == "QJ-01" {
			t.Fatal("code label leaked into categories")
		}
	}
	if !found {
		t.Fatalf("expected 渗漏 category, got %+v", cats)
	}
}

func TestScopedCounts(t *testing.T) {
	e, st := newTestEngine(t)
	p, _ := st.EnsureProject("")
	db := st.DB()

	now := time.Now().UTC()
	rows := []store.AcceptanceRecord{
		{ProjectID: p.ID, BuildingNo: strp("1栋"), FloorNo: intp(2), Item: strp("A"), Result: "unqualified", CreatedAt: now},
		{ProjectID: p.ID, BuildingNo: strp("1栋"), FloorNo: intp(3), Item: strp("B"), Result: "qualified", CreatedAt: now},
		{ProjectID: p.ID, BuildingNo: strp("2栋"), FloorNo: intp(2), Item: strp("C"), Result: "pending", CreatedAt: now},
	}
	for i := range rows {
		if err := db.Create(&rows[i]).Error; err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	counts, err := e.AcceptanceItemCounts(p.ID, "1栋", nil)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts.Unqualified != 1 || counts.Qualified != 1 || counts.Pending != 0 {
		t.Fatalf("scoped counts: %+v", counts)
	}

	floor := 2
	counts, err = e.AcceptanceItemCounts(p.ID, "1栋", &floor)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts.Unqualified != 1 || counts.Qualified != 0 {
		t.Fatalf("floor-scoped counts: %+v", counts)
	}

	ff, err := e.ByFloorFacts(p.ID, "1栋")
	if err != nil {
		t.Fatalf("by floor: %v", err)
	}
	if len(ff) != 2 || ff[0].Floor != 2 || ff[1].Floor != 3 {
		t.Fatalf("floors: %+v", ff)
	}

	bf, err := e.BuildingProgressFacts(p.ID)
	if err != nil {
		t.Fatalf("building facts: %v", err)
	}
	if len(bf) != 2 || bf[0].Building != "1栋" || bf[0].AcceptanceTotal != 2 {
		t.Fatalf("building facts: %+v", bf)
	}
}
