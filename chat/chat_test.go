package chat

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"sitecheck/analytics"
	"sitecheck/config"
	"sitecheck/store"
)

func newTestService(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	db, err := store.OpenDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	st := store.New(db)
	log := logrus.New()
	log.SetOutput(io.Discard)
	engine := analytics.New(st, log)
	t.Setenv("APP_AI_ENABLED", "0")
	llm := NewRewriteClient(config.NewAIResolver(config.AIConfig{}))
	return NewService(st, engine, llm, log), st
}

func strp(s string) *string { return &s }

func TestChatRejectsEmptyQuery(t *testing.T) {
	s, _ := newTestService(t)
	_, err := s.Chat(context.Background(), Request{Query: "   "})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestChatProgressRoute(t *testing.T) {
	s, st := newTestService(t)
	p, _ := st.EnsureProject("")
	_, _, err := st.UpsertAcceptance(store.AcceptanceInput{
		ProjectID:  p.ID,
		RegionText: "1栋6层/A区",
		Item:       strp("砌筑"),
		Result:     "qualified",
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	resp, err := s.Chat(context.Background(), Request{Query: "1栋进度怎么样"})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if resp.Meta.Route != "chat" {
		t.Fatalf("route: %q", resp.Meta.Route)
	}
	if resp.Meta.Tool == nil || resp.Meta.Tool.Intent != "progress" || resp.Meta.Tool.Scope.Building != "1栋" {
		t.Fatalf("tool meta: %+v", resp.Meta.Tool)
	}
	if resp.Meta.LLM.Used {
		t.Fatal("llm must not be used when unconfigured")
	}
	if !strings.Contains(resp.Answer, "砌筑到6层") {
		t.Fatalf("answer: %q", resp.Answer)
	}
}

func TestChatFollowUpInheritsProgress(t *testing.T) {
	s, st := newTestService(t)
	p, _ := st.EnsureProject("")
	_, _, err := st.UpsertAcceptance(store.AcceptanceInput{
		ProjectID:  p.ID,
		RegionText: "2栋3层",
		Item:       strp("抹灰"),
		Result:     "qualified",
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	resp, err := s.Chat(context.Background(), Request{
		Query: "2栋呢",
		Messages: []Message{
			{Role: "user", Content: "项目进度怎么样"},
			{Role: "assistant", Content: "……"},
		},
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if resp.Meta.Tool == nil || resp.Meta.Tool.Intent != "progress" {
		t.Fatalf("tool meta: %+v", resp.Meta.Tool)
	}
	if !strings.Contains(resp.Answer, "2栋") {
		t.Fatalf("answer: %q", resp.Answer)
	}
}

func TestChatIssuesTopRoute(t *testing.T) {
	s, st := newTestService(t)
	p, _ := st.EnsureProject("")
	for _, desc := range []string{"客厅墙面空鼓", "卧室墙面空鼓"} {
		_, _, err := st.UpsertIssue(store.IssueInput{
			ProjectID:   p.ID,
			RegionText:  "1栋2层",
			Indicator:   strp("墙面空鼓"),
			Description: desc,
		})
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	resp, err := s.Chat(context.Background(), Request{Query: "哪类问题最多"})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if resp.Meta.Tool == nil || resp.Meta.Tool.Intent != "issues_top" {
		t.Fatalf("tool meta: %+v", resp.Meta.Tool)
	}
	if !strings.Contains(resp.Answer, "墙面空鼓") || !strings.Contains(resp.Answer, "2条") {
		t.Fatalf("answer: %q", resp.Answer)
	}
}

func TestChatFocusRoute(t *testing.T) {
	s, st := newTestService(t)
	p, _ := st.EnsureProject("")
	_, _, err := st.UpsertIssue(store.IssueInput{
		ProjectID:   p.ID,
		RegionText:  "1栋2层",
		Description: "渗漏",
		Severity:    strp("严重"),
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	resp, err := s.Chat(context.Background(), Request{Query: "最近有什么风险需要重点关注"})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if resp.Meta.Route != "focus" {
		t.Fatalf("route: %q", resp.Meta.Route)
	}
	if !strings.Contains(resp.Answer, "重点关注") || !strings.Contains(resp.Answer, "未闭环问题：1 条") {
		t.Fatalf("answer: %q", resp.Answer)
	}
	facts, ok := resp.Facts.(map[string]any)
	if !ok {
		t.Fatalf("facts type: %T", resp.Facts)
	}
	if _, ok := facts["focus_pack"]; !ok {
		t.Fatal("focus_pack missing from facts")
	}
}

func TestChatFallbackAnswers(t *testing.T) {
	s, st := newTestService(t)
	p, _ := st.EnsureProject("")
	_, _, err := st.UpsertIssue(store.IssueInput{
		ProjectID:       p.ID,
		RegionText:      "1栋2层",
		Description:     "渗漏",
		ResponsibleUnit: strp("二公司"),
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	resp, err := s.Chat(context.Background(), Request{Query: "责任单位是谁"})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if resp.Meta.Route != "chat" || resp.Meta.Tool != nil {
		t.Fatalf("fallback meta: %+v", resp.Meta)
	}
	if !strings.Contains(resp.Answer, "二公司") || !strings.Contains(resp.Answer, "1 条") {
		t.Fatalf("answer: %q", resp.Answer)
	}

	resp, err = s.Chat(context.Background(), Request{Query: "为什么问题这么多，给点建议"})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if !strings.Contains(resp.Answer, "分析与建议") {
		t.Fatalf("analysis answer: %q", resp.Answer)
	}

	resp, err = s.Chat(context.Background(), Request{Query: "每栋情况如何"})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if !strings.Contains(resp.Answer, "项目进展（按楼栋汇总）") {
		t.Fatalf("by-building answer: %q", resp.Answer)
	}
}

func TestChatBackfillsBeforeAnswering(t *testing.T) {
	s, st := newTestService(t)
	p, _ := st.EnsureProject("")
	// Insert a raw row the way an importer might: region text present,
	// structured fields missing.
	row := store.AcceptanceRecord{
		ProjectID:  p.ID,
		RegionText: "4栋8层",
		Item:       strp("防水"),
		Result:     "qualified",
		CreatedAt:  time.Now().UTC(),
	}
	if err := st.DB().Create(&row).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	resp, err := s.Chat(context.Background(), Request{Query: "项目进度怎么样"})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if !strings.Contains(resp.Answer, "4栋") {
		t.Fatalf("backfill did not run before answering: %q", resp.Answer)
	}
}

func TestAIStatus(t *testing.T) {
	s, _ := newTestService(t)
	res := s.AIStatus(nil)
	if res.Enabled || res.Configured || res.Used {
		t.Fatalf("status: %+v", res)
	}
}
