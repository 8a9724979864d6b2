package store

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	TargetIssue      = "issue"
	TargetAcceptance = "acceptance"

	ActionRectify = "rectify"
	ActionVerify  = "verify"
	ActionClose   = "close"
	ActionComment = "comment"
)

var (
	actionTargets = map[string]bool{TargetIssue: true, TargetAcceptance: true}
	actionTypes   = map[string]bool{ActionRectify: true, ActionVerify: true, ActionClose: true, ActionComment: true}
)

// sqlite caps bound parameters per statement; stay under it with headroom.
const idChunkSize = 900

type ActionInput struct {
	ProjectID  uint
	TargetType string
	TargetID   uint
	ActionType string
	Content    *string
	Photos     []string
	ActorRole  *string
	ActorName  *string
}

// AddAction appends one audit entry. Photo refs are normalized and stored as
// a JSON array.
func (s *Store) AddAction(in ActionInput) (*RectificationAction, error) {
	if !actionTargets[in.TargetType] {
		return nil, fmt.Errorf("%w: target_type %q", ErrInvalidInput, in.TargetType)
	}
	if !actionTypes[in.ActionType] {
		return nil, fmt.Errorf("%w: action_type %q", ErrInvalidInput, in.ActionType)
	}

	row := RectificationAction{
		ProjectID:  in.ProjectID,
		TargetType: in.TargetType,
		TargetID:   in.TargetID,
		ActionType: in.ActionType,
		Content:    in.Content,
		ActorRole:  in.ActorRole,
		ActorName:  in.ActorName,
		CreatedAt:  time.Now().UTC(),
	}
	if len(in.Photos) > 0 {
		refs := make([]string, 0, len(in.Photos))
		for _, p := range in.Photos {
			if r := NormalizeUploadRef(p); r != "" {
				refs = append(refs, r)
			}
		}
		if len(refs) > 0 {
			b, err := json.Marshal(refs)
			if err != nil {
				return nil, err
			}
			js := string(b)
			row.PhotoURLs = &js
		}
	}
	if err := s.db.Create(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (s *Store) ListActions(projectID uint, targetType string, targetID uint) ([]RectificationAction, error) {
	if !actionTargets[targetType] {
		return nil, fmt.Errorf("%w: target_type %q", ErrInvalidInput, targetType)
	}
	var out []RectificationAction
	err := s.db.
		Where("project_id = ? AND target_type = ? AND target_id = ?", projectID, targetType, targetID).
		Order("created_at asc, id asc").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// TargetsWithAction reports which of the given target ids have at least one
// action of the given type. Membership checks run in chunks so large id sets
// never exceed the statement parameter cap.
func (s *Store) TargetsWithAction(projectID uint, targetType, actionType string, ids []uint) (map[uint]bool, error) {
	have := make(map[uint]bool, len(ids))
	for start := 0; start < len(ids); start += idChunkSize {
		end := start + idChunkSize
		if end > len(ids) {
			end = len(ids)
		}
		var found []uint
		err := s.db.Model(&RectificationAction{}).
			Where("project_id = ? AND target_type = ? AND action_type = ?", projectID, targetType, actionType).
			Where("target_id IN ?", ids[start:end]).
			Distinct().
			Pluck("target_id", &found).Error
		if err != nil {
			return nil, err
		}
		for _, id := range found {
			have[id] = true
		}
	}
	return have, nil
}
