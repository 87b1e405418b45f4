// Package projects holds the project entity partitioning all analytics data.
package projects

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Project represents one tracked site. Ownership, authentication and plan
// limits live in the outer application; the core only needs the partition key.
type Project struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	Name      string `gorm:"not null"`
	Domain    string `gorm:"uniqueIndex;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ProjectNotFoundError indicates a lookup for an unregistered project.
type ProjectNotFoundError struct {
	Key string
}

func NewProjectNotFoundError(key string) *ProjectNotFoundError {
	return &ProjectNotFoundError{Key: key}
}

func (e *ProjectNotFoundError) Error() string {
	return fmt.Sprintf("project not found: %s", e.Key)
}

// CreateProject inserts a new project.
func CreateProject(db *gorm.DB, project *Project) error {
	if err := db.Create(project).Error; err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}
	return nil
}

// GetProjectByID fetches a project or returns ProjectNotFoundError.
func GetProjectByID(db *gorm.DB, id uint) (*Project, error) {
	var project Project
	err := db.First(&project, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, NewProjectNotFoundError(fmt.Sprintf("id=%d", id))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch project: %w", err)
	}
	return &project, nil
}

// GetProjectByDomain fetches a project by its domain or returns ProjectNotFoundError.
func GetProjectByDomain(db *gorm.DB, domain string) (*Project, error) {
	var project Project
	err := db.Where("domain = ?", domain).First(&project).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, NewProjectNotFoundError(domain)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch project: %w", err)
	}
	return &project, nil
}
