package store

import (
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"sitecheck/region"
)

const (
	IssueOpen   = "open"
	IssueClosed = "closed"
)

type IssueInput struct {
	ProjectID  uint
	RegionCode *string
	RegionText string

	Division    *string
	Subdivision *string
	Item        *string
	Indicator   *string
	LibraryID   *string

	Description       string
	Severity          *string
	DeadlineDays      *int
	ResponsibleUnit   *string
	ResponsiblePerson *string

	PhotoPath *string
	AiJSON    *string

	ClientCreatedAt *time.Time
	Source          *string
	ClientRecordID  *string
}

// UpsertIssue creates an issue, or rewrites the one already stored for the
// same (project, client_record_id). Status is preserved on rewrite so a
// re-sent payload cannot reopen a closed issue.
func (s *Store) UpsertIssue(in IssueInput) (*IssueReport, bool, error) {
	var row IssueReport
	existing := false
	if key := deref(in.ClientRecordID); key != "" {
		err := s.db.Where("project_id = ? AND client_record_id = ?", in.ProjectID, key).First(&row).Error
		switch {
		case err == nil:
			existing = true
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return nil, false, err
		}
	}

	row.ProjectID = in.ProjectID
	row.RegionCode = in.RegionCode
	row.RegionText = strings.TrimSpace(in.RegionText)
	row.Division = in.Division
	row.Subdivision = in.Subdivision
	row.Item = in.Item
	row.Indicator = in.Indicator
	row.LibraryID = in.LibraryID
	row.Description = strings.TrimSpace(in.Description)
	row.Severity = in.Severity
	row.DeadlineDays = in.DeadlineDays
	row.ResponsibleUnit = in.ResponsibleUnit
	row.ResponsiblePerson = in.ResponsiblePerson
	row.PhotoPath = normalizeRefPtr(in.PhotoPath)
	row.AiJSON = in.AiJSON
	row.ClientCreatedAt = in.ClientCreatedAt
	row.Source = in.Source
	row.ClientRecordID = in.ClientRecordID

	p := region.Parse(row.RegionText)
	row.BuildingNo = p.BuildingNo
	row.FloorNo = p.FloorNo
	row.Zone = p.Zone

	if existing {
		if err := s.db.Save(&row).Error; err != nil {
			return nil, false, err
		}
		return &row, false, nil
	}
	row.Status = IssueOpen
	row.CreatedAt = time.Now().UTC()
	if err := s.db.Create(&row).Error; err != nil {
		return nil, false, err
	}
	return &row, true, nil
}

func (s *Store) GetIssue(id uint) (*IssueReport, error) {
	var row IssueReport
	if err := s.db.First(&row, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &row, nil
}

type IssueFilter struct {
	Status          string
	BuildingNo      string
	ResponsibleUnit string
	Limit           int
}

func (s *Store) ListIssues(projectID uint, f IssueFilter) ([]IssueReport, error) {
	q := s.db.Where("project_id = ?", projectID)
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.BuildingNo != "" {
		q = q.Where("building_no = ?", f.BuildingNo)
	}
	if f.ResponsibleUnit != "" {
		q = q.Where("responsible_unit = ?", f.ResponsibleUnit)
	}
	var out []IssueReport
	if err := q.Order("created_at desc, id desc").Limit(clampLimit(f.Limit)).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// CloseIssue marks the issue closed and appends a close action. Closing an
// already-closed issue just appends another action.
func (s *Store) CloseIssue(id uint, content string, actorRole, actorName *string) (*IssueReport, error) {
	row, err := s.GetIssue(id)
	if err != nil {
		return nil, err
	}
	row.Status = IssueClosed
	if err := s.db.Save(row).Error; err != nil {
		return nil, err
	}

	c := strings.TrimSpace(content)
	if c == "" {
		c = "问题已闭环"
	}
	_, err = s.AddAction(ActionInput{
		ProjectID:  row.ProjectID,
		TargetType: TargetIssue,
		TargetID:   row.ID,
		ActionType: ActionClose,
		Content:    &c,
		ActorRole:  actorRole,
		ActorName:  actorName,
	})
	if err != nil {
		return nil, err
	}
	return row, nil
}
