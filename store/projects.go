package store

import (
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
)

// DefaultProjectName is used when a request carries no project name.
const DefaultProjectName = "默认项目"

// EnsureProject returns the project with the given name, creating it on
// first use. A blank name maps to the default project.
func (s *Store) EnsureProject(name string) (*Project, error) {
	n := strings.TrimSpace(name)
	if n == "" {
		n = DefaultProjectName
	}
	var p Project
	err := s.db.Where("name = ?", n).First(&p).Error
	if err == nil {
		return &p, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	p = Project{Name: n, CreatedAt: time.Now().UTC()}
	if err := s.db.Create(&p).Error; err != nil {
		// Lost a create race; the row exists now.
		var again Project
		if e2 := s.db.Where("name = ?", n).First(&again).Error; e2 == nil {
			return &again, nil
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetProject(id uint) (*Project, error) {
	var p Project
	if err := s.db.First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) ListProjects() ([]Project, error) {
	var out []Project
	if err := s.db.Order("id asc").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
