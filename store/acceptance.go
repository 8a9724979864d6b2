package store

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"sitecheck/region"
)

var acceptanceResults = map[string]bool{
	"qualified":   true,
	"unqualified": true,
	"pending":     true,
}

// AcceptanceInput carries one acceptance payload from a client. All optional
// fields stay nil when absent so NULL survives into the database.
type AcceptanceInput struct {
	ProjectID  uint
	RegionCode *string
	RegionText string

	Division      *string
	Subdivision   *string
	Item          *string
	ItemCode      *string
	Indicator     *string
	IndicatorCode *string

	Result    string
	PhotoPath *string
	Remark    *string
	AiJSON    *string

	ClientCreatedAt *time.Time
	Source          *string
	ClientRecordID  *string
}

// UpsertAcceptance creates a record, or rewrites the existing one when the
// same (project, client_record_id) pair was seen before. Returns the stored
// row and whether it was newly created.
func (s *Store) UpsertAcceptance(in AcceptanceInput) (*AcceptanceRecord, bool, error) {
	result := strings.TrimSpace(strings.ToLower(in.Result))
	if result == "" {
		result = "pending"
	}
	if !acceptanceResults[result] {
		return nil, false, fmt.Errorf("%w: result %q", ErrInvalidInput, in.Result)
	}

	var row AcceptanceRecord
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
	row.ItemCode = in.ItemCode
	row.Indicator = in.Indicator
	row.IndicatorCode = in.IndicatorCode
	row.Result = result
	row.PhotoPath = normalizeRefPtr(in.PhotoPath)
	row.Remark = in.Remark
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
	row.CreatedAt = time.Now().UTC()
	if err := s.db.Create(&row).Error; err != nil {
		return nil, false, err
	}
	return &row, true, nil
}

func (s *Store) GetAcceptance(id uint) (*AcceptanceRecord, error) {
	var row AcceptanceRecord
	if err := s.db.First(&row, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &row, nil
}

// AcceptanceFilter narrows ListAcceptance. Zero values mean "no filter".
type AcceptanceFilter struct {
	BuildingNo string
	Result     string
	Limit      int
}

func (s *Store) ListAcceptance(projectID uint, f AcceptanceFilter) ([]AcceptanceRecord, error) {
	q := s.db.Where("project_id = ?", projectID)
	if f.BuildingNo != "" {
		q = q.Where("building_no = ?", f.BuildingNo)
	}
	if f.Result != "" {
		q = q.Where("result = ?", f.Result)
	}
	var out []AcceptanceRecord
	if err := q.Order("created_at desc, id desc").Limit(clampLimit(f.Limit)).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// VerifyAcceptance records a re-check outcome on an existing record and
// appends a verify action so latency stats can see it.
func (s *Store) VerifyAcceptance(id uint, result, remark string, actorRole, actorName *string) (*AcceptanceRecord, error) {
	result = strings.TrimSpace(strings.ToLower(result))
	if !acceptanceResults[result] {
		return nil, fmt.Errorf("%w: result %q", ErrInvalidInput, result)
	}
	row, err := s.GetAcceptance(id)
	if err != nil {
		return nil, err
	}
	row.Result = result
	if r := strings.TrimSpace(remark); r != "" {
		row.Remark = &r
	}
	if err := s.db.Save(row).Error; err != nil {
		return nil, err
	}

	content := strings.TrimSpace(remark)
	if content == "" {
		content = "复验结果：" + result
	}
	_, err = s.AddAction(ActionInput{
		ProjectID:  row.ProjectID,
		TargetType: TargetAcceptance,
		TargetID:   row.ID,
		ActionType: ActionVerify,
		Content:    &content,
		ActorRole:  actorRole,
		ActorName:  actorName,
	})
	if err != nil {
		return nil, err
	}
	return row, nil
}

func clampLimit(n int) int {
	if n <= 0 {
		return 100
	}
	if n > 500 {
		return 500
	}
	return n
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
