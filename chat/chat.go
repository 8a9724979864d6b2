// Package chat routes natural-language questions about a project to
// deterministic answer generators, then optionally lets an LLM rewrite the
// wording. Every number in an answer comes from the database, never from
// the model.
package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"sitecheck/analytics"
	"sitecheck/store"
)

const chatBackfillLimit = 200

type Service struct {
	st     *store.Store
	engine *analytics.Engine
	llm    *RewriteClient
	log    *logrus.Logger
}

func NewService(st *store.Store, engine *analytics.Engine, llm *RewriteClient, log *logrus.Logger) *Service {
	return &Service{st: st, engine: engine, llm: llm, log: log}
}

type Request struct {
	ProjectName string    `json:"project_name"`
	Query       string    `json:"query"`
	Messages    []Message `json:"messages"`
	// AIEnabled lets the client force the rewrite on or off per request.
	AIEnabled *bool `json:"ai_enabled"`
}

type ToolMeta struct {
	Intent string `json:"intent"`
	Scope  Scope  `json:"scope"`
}

type Meta struct {
	Route string    `json:"route"`
	Tool  *ToolMeta `json:"tool,omitempty"`
	LLM   LLMResult `json:"llm"`
}

type Response struct {
	Answer string `json:"answer"`
	Facts  any    `json:"facts"`
	Meta   Meta   `json:"meta"`
}

// factsView trims facts to what the rewrite model may see: headline counts
// plus at most a few buildings and units.
type factsView struct {
	Plan                  *Plan                 `json:"plan,omitempty"`
	AcceptanceTotal       int                   `json:"acceptance_total"`
	AcceptanceQualified   int                   `json:"acceptance_qualified"`
	AcceptanceUnqualified int                   `json:"acceptance_unqualified"`
	AcceptancePending     int                   `json:"acceptance_pending"`
	IssuesTotal           int                   `json:"issues_total"`
	IssuesOpen            int                   `json:"issues_open"`
	IssuesClosed          int                   `json:"issues_closed"`
	IssuesBySeverity      map[string]int        `json:"issues_by_severity"`
	TopResponsibleUnits   []analytics.UnitCount `json:"top_responsible_units"`
	ByBuilding            []buildingView        `json:"by_building"`
}

type buildingView struct {
	Building              string `json:"building"`
	AcceptanceTotal       int    `json:"acceptance_total"`
	AcceptanceUnqualified int    `json:"acceptance_unqualified"`
	AcceptancePending     int    `json:"acceptance_pending"`
	IssuesTotal           int    `json:"issues_total"`
	IssuesOpen            int    `json:"issues_open"`
}

// Chat answers one question. The deterministic draft is always computed
// first; the LLM may only rephrase it.
func (s *Service) Chat(ctx context.Context, req Request) (*Response, error) {
	q := strings.TrimSpace(req.Query)
	if q == "" {
		return nil, fmt.Errorf("%w: query is empty", store.ErrInvalidInput)
	}

	project, err := s.st.EnsureProject(req.ProjectName)
	if err != nil {
		return nil, err
	}

	// Best-effort: keep recent rows parseable before aggregating.
	if _, err := s.engine.BackfillRegionFields(project.ID, chatBackfillLimit); err != nil {
		s.log.WithError(err).Warn("region backfill before chat failed")
	}

	intent := inferIntent(q, req.Messages)
	scope := extractScope(q)

	switch intent {
	case intentProgress:
		progress, err := s.engine.ProgressByBuildingAndProcess(project.ID, scope.Building, 6, 10)
		if err != nil {
			return nil, err
		}
		draft := progressAnswer(scope.Building, progress)
		facts := map[string]any{"progress": progress}
		return s.finish(ctx, req, q, "chat", &ToolMeta{Intent: intent, Scope: scope}, draft, facts, nil), nil

	case intentIssuesTop, intentIssuesDetail:
		detail := intent == intentIssuesDetail
		samples := 1
		if detail {
			samples = 3
		}
		cats, err := s.engine.TopIssueCategories(project.ID, scope.Building, scope.Floor, "", 5, samples)
		if err != nil {
			return nil, err
		}
		draft := issuesAnswer(detail, scope, cats)
		facts := map[string]any{"issue_categories": cats}
		return s.finish(ctx, req, q, "chat", &ToolMeta{Intent: intent, Scope: scope}, draft, facts, nil), nil
	}

	if isFocusQuery(q) {
		days := scope.TimeRangeDays
		if days <= 0 {
			days = 14
		}
		pack, err := s.engine.FocusPack(project.ID, days, scope.Building, true, chatBackfillLimit)
		if err != nil {
			return nil, err
		}
		draft := focusAnswer(pack)
		facts := map[string]any{
			"focus_pack": pack,
			"plan":       Plan{Intent: "focus", Scope: scope},
		}
		return s.finish(ctx, req, q, "focus", nil, draft, facts, nil), nil
	}

	facts, err := s.factsForScope(project.ID, scope, 10)
	if err != nil {
		return nil, err
	}
	facts.Plan = &Plan{Intent: "fallback", Scope: scope, Style: "analysis"}
	draft := fallbackAnswer(q, facts)
	return s.finish(ctx, req, q, "chat", nil, draft, facts, facts), nil
}

// finish runs the rewrite guardrail over the draft and assembles the
// response. fullFacts, when present, feeds the trimmed facts view.
func (s *Service) finish(ctx context.Context, req Request, q, route string, tool *ToolMeta, draft string, facts any, fullFacts *Facts) *Response {
	view := trimFactsView(fullFacts)
	llm := s.llm.TryRewrite(ctx, req.AIEnabled, q, draft, view)

	answer := draft
	if llm.Used && strings.TrimSpace(llm.Answer) != "" {
		answer = llm.Answer
	}
	// The answer itself travels in the response body, not the meta.
	llm.Answer = ""

	return &Response{
		Answer: answer,
		Facts:  facts,
		Meta:   Meta{Route: route, Tool: tool, LLM: llm},
	}
}

func trimFactsView(f *Facts) factsView {
	if f == nil {
		return factsView{}
	}
	v := factsView{
		Plan:                  f.Plan,
		AcceptanceTotal:       f.AcceptanceTotal,
		AcceptanceQualified:   f.AcceptanceQualified,
		AcceptanceUnqualified: f.AcceptanceUnqualified,
		AcceptancePending:     f.AcceptancePending,
		IssuesTotal:           f.IssuesTotal,
		IssuesOpen:            f.IssuesOpen,
		IssuesClosed:          f.IssuesClosed,
		IssuesBySeverity:      f.IssuesBySeverity,
	}
	units := f.TopResponsibleUnits
	if len(units) > 3 {
		units = units[:3]
	}
	v.TopResponsibleUnits = units

	for i, b := range f.ByBuilding {
		if i >= 6 {
			break
		}
		v.ByBuilding = append(v.ByBuilding, buildingView{
			Building:              b.Building,
			AcceptanceTotal:       b.AcceptanceTotal,
			AcceptanceUnqualified: b.AcceptanceUnqualified,
			AcceptancePending:     b.AcceptancePending,
			IssuesTotal:           b.IssuesTotal,
			IssuesOpen:            b.IssuesOpen,
		})
	}
	return v
}

func (s *Service) factsForScope(projectID uint, scope Scope, limit int) (*Facts, error) {
	sum, err := s.engine.Summary(projectID, limit)
	if err != nil {
		return nil, err
	}
	byBuilding, err := s.engine.BuildingProgressFacts(projectID)
	if err != nil {
		return nil, err
	}

	facts := &Facts{
		AcceptanceTotal:             sum.AcceptanceTotal,
		AcceptanceQualified:         sum.AcceptanceQualified,
		AcceptanceUnqualified:       sum.AcceptanceUnqualified,
		AcceptancePending:           sum.AcceptancePending,
		IssuesTotal:                 sum.IssuesTotal,
		IssuesOpen:                  sum.IssuesOpen,
		IssuesClosed:                sum.IssuesClosed,
		IssuesBySeverity:            sum.IssuesBySeverity,
		TopResponsibleUnits:         sum.TopResponsibleUnits,
		RecentUnqualifiedAcceptance: sum.RecentUnqualifiedAcceptance,
		RecentOpenIssues:            sum.RecentOpenIssues,
		ByBuilding:                  byBuilding,
	}

	if scope.Building == "" && scope.Floor == nil && scope.ResponsibleUnit == "" {
		return facts, nil
	}

	a, err := s.engine.AcceptanceItemCounts(projectID, scope.Building, scope.Floor)
	if err != nil {
		return nil, err
	}
	i, err := s.engine.IssueCounts(projectID, scope.Building, scope.Floor, scope.ResponsibleUnit)
	if err != nil {
		return nil, err
	}

	sc := scope
	facts.Scope = &sc
	facts.ScopeAcceptance = &ScopeAcceptance{
		AcceptanceTotal:       a.Qualified + a.Unqualified + a.Pending,
		AcceptanceQualified:   a.Qualified,
		AcceptanceUnqualified: a.Unqualified,
		AcceptancePending:     a.Pending,
		Definition:            "验收分项口径：按 item/item_code 去重并按最差结果归类（不合格>甩项>合格）",
	}
	facts.ScopeIssues = &ScopeIssues{
		IssuesTotal:  i.Total,
		IssuesOpen:   i.Open,
		IssuesClosed: i.Closed,
	}

	if scope.Building != "" {
		byFloor, err := s.engine.ByFloorFacts(projectID, scope.Building)
		if err != nil {
			return nil, err
		}
		facts.ByFloor = byFloor
	}
	return facts, nil
}

// AIStatus reports the rewrite configuration without calling the provider.
func (s *Service) AIStatus(enabledOverride *bool) LLMResult {
	return s.llm.Status(enabledOverride, "")
}
