package store

import (
	"errors"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := OpenDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	return New(db)
}

func strp(s string) *string { return &s }

func TestEnsureProjectDefaultsAndReuses(t *testing.T) {
	s := newTestStore(t)

	p1, err := s.EnsureProject("")
	if err != nil {
		t.Fatalf("EnsureProject: %v", err)
	}
	if p1.Name != DefaultProjectName {
		t.Fatalf("name: got %q", p1.Name)
	}

	p2, err := s.EnsureProject("  默认项目 ")
	if err != nil {
		t.Fatalf("EnsureProject again: %v", err)
	}
	if p2.ID != p1.ID {
		t.Fatalf("expected same project, got %d and %d", p1.ID, p2.ID)
	}
}

func TestUpsertAcceptanceIdempotent(t *testing.T) {
	s := newTestStore(t)
	p, _ := s.EnsureProject("")

	in := AcceptanceInput{
		ProjectID:      p.ID,
		RegionText:     "1栋6层/A区",
		Item:           strp("墙面平整度"),
		Result:         "qualified",
		ClientRecordID: strp("rec-001"),
	}
	first, created, err := s.UpsertAcceptance(in)
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if !created {
		t.Fatal("expected created=true on first upsert")
	}
	if first.BuildingNo == nil || *first.BuildingNo != "1栋" {
		t.Fatalf("building not parsed: %v", first.BuildingNo)
	}
	if first.FloorNo == nil || *first.FloorNo != 6 {
		t.Fatalf("floor not parsed: %v", first.FloorNo)
	}

	in.Result = "unqualified"
	second, created, err := s.UpsertAcceptance(in)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if created {
		t.Fatal("expected created=false on replay")
	}
	if second.ID != first.ID {
		t.Fatalf("replay made a new row: %d vs %d", second.ID, first.ID)
	}
	if second.Result != "unqualified" {
		t.Fatalf("result not rewritten: %q", second.Result)
	}

	rows, err := s.ListAcceptance(p.ID, AcceptanceFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
}

func TestUpsertAcceptanceRejectsBadResult(t *testing.T) {
	s := newTestStore(t)
	p, _ := s.EnsureProject("")

	_, _, err := s.UpsertAcceptance(AcceptanceInput{ProjectID: p.ID, Result: "maybe"})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}

	// Blank result defaults to pending.
	row, _, err := s.UpsertAcceptance(AcceptanceInput{ProjectID: p.ID, RegionText: "2栋"})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if row.Result != "pending" {
		t.Fatalf("default result: got %q", row.Result)
	}
}

func TestVerifyAcceptance(t *testing.T) {
	s := newTestStore(t)
	p, _ := s.EnsureProject("")
	row, _, err := s.UpsertAcceptance(AcceptanceInput{ProjectID: p.ID, RegionText: "1栋2层", Result: "unqualified"})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if _, err := s.VerifyAcceptance(row.ID, "broken", "", nil, nil); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := s.VerifyAcceptance(99999, "qualified", "", nil, nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	got, err := s.VerifyAcceptance(row.ID, "qualified", "", nil, nil)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got.Result != "qualified" {
		t.Fatalf("result: got %q", got.Result)
	}

	acts, err := s.ListActions(p.ID, TargetAcceptance, row.ID)
	if err != nil {
		t.Fatalf("list actions: %v", err)
	}
	if len(acts) != 1 || acts[0].ActionType != ActionVerify {
		t.Fatalf("expected one verify action, got %+v", acts)
	}
	if acts[0].Content == nil || *acts[0].Content != "复验结果：qualified" {
		t.Fatalf("content: got %v", acts[0].Content)
	}
}

func TestCloseIssueAppendsActionAndSticks(t *testing.T) {
	s := newTestStore(t)
	p, _ := s.EnsureProject("")

	issue, created, err := s.UpsertIssue(IssueInput{
		ProjectID:      p.ID,
		RegionText:     "3栋5层",
		Description:    "墙面空鼓",
		Severity:       strp("严重"),
		ClientRecordID: strp("iss-001"),
	})
	if err != nil {
		t.Fatalf("upsert issue: %v", err)
	}
	if !created || issue.Status != IssueOpen {
		t.Fatalf("expected fresh open issue, got created=%v status=%q", created, issue.Status)
	}

	closed, err := s.CloseIssue(issue.ID, "已整改复查通过", nil, nil)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if closed.Status != IssueClosed {
		t.Fatalf("status: got %q", closed.Status)
	}

	// A replayed payload must not reopen the issue.
	again, _, err := s.UpsertIssue(IssueInput{
		ProjectID:      p.ID,
		RegionText:     "3栋5层",
		Description:    "墙面空鼓",
		ClientRecordID: strp("iss-001"),
	})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if again.Status != IssueClosed {
		t.Fatalf("replay reopened the issue: %q", again.Status)
	}

	acts, err := s.ListActions(p.ID, TargetIssue, issue.ID)
	if err != nil {
		t.Fatalf("list actions: %v", err)
	}
	if len(acts) != 1 || acts[0].ActionType != ActionClose {
		t.Fatalf("expected one close action, got %+v", acts)
	}
}

func TestAddActionValidation(t *testing.T) {
	s := newTestStore(t)
	p, _ := s.EnsureProject("")

	if _, err := s.AddAction(ActionInput{ProjectID: p.ID, TargetType: "thing", TargetID: 1, ActionType: ActionClose}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("bad target_type: got %v", err)
	}
	if _, err := s.AddAction(ActionInput{ProjectID: p.ID, TargetType: TargetIssue, TargetID: 1, ActionType: "noop"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("bad action_type: got %v", err)
	}

	act, err := s.AddAction(ActionInput{
		ProjectID:  p.ID,
		TargetType: TargetIssue,
		TargetID:   1,
		ActionType: ActionRectify,
		Photos:     []string{"http://10.0.0.5:8080/uploads/a.jpg", "uploads/b.jpg", "  "},
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if act.PhotoURLs == nil || *act.PhotoURLs != `["/uploads/a.jpg","/uploads/b.jpg"]` {
		t.Fatalf("photo_urls: got %v", act.PhotoURLs)
	}
}

func TestTargetsWithAction(t *testing.T) {
	s := newTestStore(t)
	p, _ := s.EnsureProject("")

	var ids []uint
	for i := 0; i < 3; i++ {
		issue, _, err := s.UpsertIssue(IssueInput{ProjectID: p.ID, Description: "x"})
		if err != nil {
			t.Fatalf("upsert: %v", err)
		}
		ids = append(ids, issue.ID)
	}
	if _, err := s.CloseIssue(ids[1], "", nil, nil); err != nil {
		t.Fatalf("close: %v", err)
	}

	have, err := s.TargetsWithAction(p.ID, TargetIssue, ActionClose, ids)
	if err != nil {
		t.Fatalf("TargetsWithAction: %v", err)
	}
	if len(have) != 1 || !have[ids[1]] {
		t.Fatalf("membership: got %v", have)
	}
}

func TestNormalizeUploadRef(t *testing.T) {
	cases := []struct{ in, want string }{
		{"", ""},
		{"  ", ""},
		{"/uploads/x.jpg", "/uploads/x.jpg"},
		{"uploads/x.jpg", "/uploads/x.jpg"},
		{"https://example.com/uploads/x.jpg", "/uploads/x.jpg"},
		{"https://example.com/static/x.jpg", "https://example.com/static/x.jpg"},
		{"local-cache/x.jpg", "local-cache/x.jpg"},
	}
	for _, c := range cases {
		if got := NormalizeUploadRef(c.in); got != c.want {
			t.Fatalf("NormalizeUploadRef(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
