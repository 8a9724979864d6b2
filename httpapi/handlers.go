package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"sitecheck/chat"
	"sitecheck/store"
)

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.st.ListProjects()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"projects": projects})
}

type acceptancePayload struct {
	ProjectName string  `json:"project_name"`
	RegionCode  *string `json:"region_code"`
	RegionText  string  `json:"region_text"`

	Division      *string `json:"division"`
	Subdivision   *string `json:"subdivision"`
	Item          *string `json:"item"`
	ItemCode      *string `json:"item_code"`
	Indicator     *string `json:"indicator"`
	IndicatorCode *string `json:"indicator_code"`

	Result    string  `json:"result"`
	PhotoPath *string `json:"photo_path"`
	Remark    *string `json:"remark"`
	AiJSON    *string `json:"ai_json"`

	ClientCreatedAt *time.Time `json:"client_created_at"`
	Source          *string    `json:"source"`
	ClientRecordID  *string    `json:"client_record_id"`
}

func (s *Server) handleUpsertAcceptance(w http.ResponseWriter, r *http.Request) {
	var p acceptancePayload
	if err := decodeJSON(r, &p); err != nil {
		s.writeError(w, err)
		return
	}
	project, err := s.st.EnsureProject(p.ProjectName)
	if err != nil {
		s.writeError(w, err)
		return
	}
	row, created, err := s.st.UpsertAcceptance(store.AcceptanceInput{
		ProjectID:       project.ID,
		RegionCode:      p.RegionCode,
		RegionText:      p.RegionText,
		Division:        p.Division,
		Subdivision:     p.Subdivision,
		Item:            p.Item,
		ItemCode:        p.ItemCode,
		Indicator:       p.Indicator,
		IndicatorCode:   p.IndicatorCode,
		Result:          p.Result,
		PhotoPath:       p.PhotoPath,
		Remark:          p.Remark,
		AiJSON:          p.AiJSON,
		ClientCreatedAt: p.ClientCreatedAt,
		Source:          p.Source,
		ClientRecordID:  p.ClientRecordID,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	code := http.StatusOK
	if created {
		code = http.StatusCreated
	}
	writeJSON(w, code, map[string]any{"created": created, "record": row})
}

func (s *Server) handleListAcceptance(w http.ResponseWriter, r *http.Request) {
	project, err := s.st.EnsureProject(r.URL.Query().Get("project_name"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	rows, err := s.st.ListAcceptance(project.ID, store.AcceptanceFilter{
		BuildingNo: r.URL.Query().Get("building"),
		Result:     r.URL.Query().Get("result"),
		Limit:      intQuery(r, "limit"),
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": rows})
}

func (s *Server) handleGetAcceptance(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	row, err := s.st.GetAcceptance(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

type verifyPayload struct {
	Result    string  `json:"result"`
	Remark    string  `json:"remark"`
	ActorRole *string `json:"actor_role"`
	ActorName *string `json:"actor_name"`
}

func (s *Server) handleVerifyAcceptance(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var p verifyPayload
	if err := decodeJSON(r, &p); err != nil {
		s.writeError(w, err)
		return
	}
	row, err := s.st.VerifyAcceptance(id, p.Result, p.Remark, p.ActorRole, p.ActorName)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

type issuePayload struct {
	ProjectName string  `json:"project_name"`
	RegionCode  *string `json:"region_code"`
	RegionText  string  `json:"region_text"`

	Division    *string `json:"division"`
	Subdivision *string `json:"subdivision"`
	Item        *string `json:"item"`
	Indicator   *string `json:"indicator"`
	LibraryID   *string `json:"library_id"`

	Description       string  `json:"description"`
	Severity          *string `json:"severity"`
	DeadlineDays      *int    `json:"deadline_days"`
	ResponsibleUnit   *string `json:"responsible_unit"`
	ResponsiblePerson *string `json:"responsible_person"`

	PhotoPath *string `json:"photo_path"`
	AiJSON    *string `json:"ai_json"`

	ClientCreatedAt *time.Time `json:"client_created_at"`
	Source          *string    `json:"source"`
	ClientRecordID  *string    `json:"client_record_id"`
}

func (s *Server) handleUpsertIssue(w http.ResponseWriter, r *http.Request) {
	var p issuePayload
	if err := decodeJSON(r, &p); err != nil {
		s.writeError(w, err)
		return
	}
	project, err := s.st.EnsureProject(p.ProjectName)
	if err != nil {
		s.writeError(w, err)
		return
	}
	row, created, err := s.st.UpsertIssue(store.IssueInput{
		ProjectID:         project.ID,
		RegionCode:        p.RegionCode,
		RegionText:        p.RegionText,
		Division:          p.Division,
		Subdivision:       p.Subdivision,
		Item:              p.Item,
		Indicator:         p.Indicator,
		LibraryID:         p.LibraryID,
		Description:       p.Description,
		Severity:          p.Severity,
		DeadlineDays:      p.DeadlineDays,
		ResponsibleUnit:   p.ResponsibleUnit,
		ResponsiblePerson: p.ResponsiblePerson,
		PhotoPath:         p.PhotoPath,
		AiJSON:            p.AiJSON,
		ClientCreatedAt:   p.ClientCreatedAt,
		Source:            p.Source,
		ClientRecordID:    p.ClientRecordID,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	code := http.StatusOK
	if created {
		code = http.StatusCreated
	}
	writeJSON(w, code, map[string]any{"created": created, "record": row})
}

func (s *Server) handleListIssues(w http.ResponseWriter, r *http.Request) {
	project, err := s.st.EnsureProject(r.URL.Query().Get("project_name"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	rows, err := s.st.ListIssues(project.ID, store.IssueFilter{
		Status:          r.URL.Query().Get("status"),
		BuildingNo:      r.URL.Query().Get("building"),
		ResponsibleUnit: r.URL.Query().Get("responsible_unit"),
		Limit:           intQuery(r, "limit"),
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": rows})
}

func (s *Server) handleGetIssue(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	row, err := s.st.GetIssue(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

type closePayload struct {
	Content   string  `json:"content"`
	ActorRole *string `json:"actor_role"`
	ActorName *string `json:"actor_name"`
}

func (s *Server) handleCloseIssue(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var p closePayload
	if err := decodeJSON(r, &p); err != nil {
		s.writeError(w, err)
		return
	}
	row, err := s.st.CloseIssue(id, p.Content, p.ActorRole, p.ActorName)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

type actionPayload struct {
	ProjectName string   `json:"project_name"`
	TargetType  string   `json:"target_type"`
	TargetID    uint     `json:"target_id"`
	ActionType  string   `json:"action_type"`
	Content     *string  `json:"content"`
	Photos      []string `json:"photos"`
	ActorRole   *string  `json:"actor_role"`
	ActorName   *string  `json:"actor_name"`
}

func (s *Server) handleAddAction(w http.ResponseWriter, r *http.Request) {
	var p actionPayload
	if err := decodeJSON(r, &p); err != nil {
		s.writeError(w, err)
		return
	}
	project, err := s.st.EnsureProject(p.ProjectName)
	if err != nil {
		s.writeError(w, err)
		return
	}
	row, err := s.st.AddAction(store.ActionInput{
		ProjectID:  project.ID,
		TargetType: p.TargetType,
		TargetID:   p.TargetID,
		ActionType: p.ActionType,
		Content:    p.Content,
		Photos:     p.Photos,
		ActorRole:  p.ActorRole,
		ActorName:  p.ActorName,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, row)
}

func (s *Server) handleListActions(w http.ResponseWriter, r *http.Request) {
	project, err := s.st.EnsureProject(r.URL.Query().Get("project_name"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	targetID, err := strconv.ParseUint(chi.URLParam(r, "targetID"), 10, 64)
	if err != nil {
		s.writeError(w, fmt.Errorf("%w: bad target id", store.ErrInvalidInput))
		return
	}
	rows, err := s.st.ListActions(project.ID, chi.URLParam(r, "targetType"), uint(targetID))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"actions": rows})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	project, err := s.st.EnsureProject(r.URL.Query().Get("project_name"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	sum, err := s.engine.Summary(project.ID, intQuery(r, "limit"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleFocus(w http.ResponseWriter, r *http.Request) {
	project, err := s.st.EnsureProject(r.URL.Query().Get("project_name"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	doBackfill := true
	if v := r.URL.Query().Get("backfill"); v != "" {
		doBackfill = v == "1" || strings.EqualFold(v, "true")
	}
	backfillLimit := intQuery(r, "backfill_limit")
	if backfillLimit <= 0 {
		backfillLimit = 200
	}
	pack, err := s.engine.FocusPack(
		project.ID,
		intQuery(r, "days"),
		r.URL.Query().Get("building"),
		doBackfill,
		backfillLimit,
	)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pack)
}

func (s *Server) handleBackfill(w http.ResponseWriter, r *http.Request) {
	project, err := s.st.EnsureProject(r.URL.Query().Get("project_name"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	limit := intQuery(r, "limit")
	if limit <= 0 {
		limit = 200
	}
	res, err := s.engine.BackfillRegionFields(project.ID, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chat.Request
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	resp, err := s.chat.Chat(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAIStatus(w http.ResponseWriter, r *http.Request) {
	var override *bool
	if v := r.URL.Query().Get("enabled"); v != "" {
		b := v == "1" || strings.EqualFold(v, "true")
		override = &b
	}
	writeJSON(w, http.StatusOK, s.chat.AIStatus(override))
}

func idParam(r *http.Request) (uint, error) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad id", store.ErrInvalidInput)
	}
	return uint(id), nil
}

func intQuery(r *http.Request, name string) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}
