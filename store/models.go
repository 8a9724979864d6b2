package store

import "time"

type Project struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"uniqueIndex;size:255" json:"name"`
	Address   *string   `gorm:"size:512" json:"address"`
	CreatedAt time.Time `json:"created_at"`
}

// AcceptanceRecord is one acceptance check against a building location.
// BuildingNo/FloorNo/Zone are derived from RegionText; NULL means "not yet
// parsed" and is the only state backfill may write into.
type AcceptanceRecord struct {
	ID         uint    `gorm:"primaryKey" json:"id"`
	ProjectID  uint    `gorm:"index;uniqueIndex:uniq_acc_client" json:"project_id"`
	RegionCode *string `gorm:"size:64" json:"region_code"`
	RegionText string  `gorm:"size:512" json:"region_text"`
	BuildingNo *string `gorm:"index;size:32" json:"building_no"`
	FloorNo    *int    `gorm:"index" json:"floor_no"`
	Zone       *string `gorm:"size:64" json:"zone"`

	Division      *string `gorm:"size:128" json:"division"`
	Subdivision   *string `gorm:"size:128" json:"subdivision"`
	Item          *string `gorm:"size:128" json:"item"`
	ItemCode      *string `gorm:"size:64" json:"item_code"`
	Indicator     *string `gorm:"size:128" json:"indicator"`
	IndicatorCode *string `gorm:"size:64" json:"indicator_code"`

	Result    string  `gorm:"index;size:16" json:"result"` // qualified, unqualified, pending
	PhotoPath *string `gorm:"size:512" json:"photo_path"`
	Remark    *string `gorm:"type:text" json:"remark"`
	AiJSON    *string `gorm:"column:ai_json;type:text" json:"ai_json"`

	ClientCreatedAt *time.Time `json:"client_created_at"`
	CreatedAt       time.Time  `gorm:"index" json:"created_at"`
	Source          *string    `gorm:"size:32" json:"source"`
	// ClientRecordID is the idempotency key, unique per project.
	ClientRecordID *string `gorm:"uniqueIndex:uniq_acc_client;size:128" json:"client_record_id"`
}

type IssueReport struct {
	ID         uint    `gorm:"primaryKey" json:"id"`
	ProjectID  uint    `gorm:"index;uniqueIndex:uniq_issue_client" json:"project_id"`
	RegionCode *string `gorm:"size:64" json:"region_code"`
	RegionText string  `gorm:"size:512" json:"region_text"`
	BuildingNo *string `gorm:"index;size:32" json:"building_no"`
	FloorNo    *int    `gorm:"index" json:"floor_no"`
	Zone       *string `gorm:"size:64" json:"zone"`

	Division    *string `gorm:"size:128" json:"division"`
	Subdivision *string `gorm:"size:128" json:"subdivision"`
	Item        *string `gorm:"size:128" json:"item"`
	Indicator   *string `gorm:"size:128" json:"indicator"`
	LibraryID   *string `gorm:"size:64" json:"library_id"`

	Description       string  `gorm:"type:text" json:"description"`
	Severity          *string `gorm:"size:32" json:"severity"`
	DeadlineDays      *int    `json:"deadline_days"`
	ResponsibleUnit   *string `gorm:"index;size:128" json:"responsible_unit"`
	ResponsiblePerson *string `gorm:"size:64" json:"responsible_person"`
	Status            string  `gorm:"index;size:16" json:"status"` // open, closed

	PhotoPath *string `gorm:"size:512" json:"photo_path"`
	AiJSON    *string `gorm:"column:ai_json;type:text" json:"ai_json"`

	ClientCreatedAt *time.Time `json:"client_created_at"`
	CreatedAt       time.Time  `gorm:"index" json:"created_at"`
	Source          *string    `gorm:"size:32" json:"source"`
	ClientRecordID  *string    `gorm:"uniqueIndex:uniq_issue_client;size:128" json:"client_record_id"`
}

// RectificationAction is an append-only audit log entry. Rows are never
// updated or deleted; closure/verification latency derives from them.
type RectificationAction struct {
	ID         uint    `gorm:"primaryKey" json:"id"`
	ProjectID  uint    `gorm:"index" json:"project_id"`
	TargetType string  `gorm:"index;size:16" json:"target_type"` // issue, acceptance
	TargetID   uint    `gorm:"index" json:"target_id"`
	ActionType string  `gorm:"index;size:16" json:"action_type"` // rectify, verify, close, comment
	Content    *string `gorm:"type:text" json:"content"`
	// PhotoURLs is a JSON-encoded list of normalized upload refs.
	PhotoURLs *string   `gorm:"column:photo_urls;type:text" json:"photo_urls"`
	ActorRole *string   `gorm:"size:32" json:"actor_role"`
	ActorName *string   `gorm:"size:64" json:"actor_name"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}
