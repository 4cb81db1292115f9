package database

import (
	"strings"
	"time"

	"github.com/reelguard/reelguard/internal/models"

	"github.com/pkg/errors"

	"gorm.io/gorm"
)

// ErrPackageNotFound is returned when a tracked package does not exist
var ErrPackageNotFound = errors.New("package not tracked")

// Repository handles all database operations for preferences and action logs
type Repository struct {
	db *DB
}

// NewRepository creates a new repository instance
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// ListTrackedPackages returns every tracked package, enabled or not
func (r *Repository) ListTrackedPackages() ([]models.TrackedPackage, error) {
	var pkgs []models.TrackedPackage
	result := r.db.Order("package_name ASC").Find(&pkgs)
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, "failed to list tracked packages")
	}
	return pkgs, nil
}

// EnabledPackageNames returns the names of enabled packages, sorted
func (r *Repository) EnabledPackageNames() ([]string, error) {
	var names []string
	result := r.db.Model(&models.TrackedPackage{}).
		Where("enabled = ?", true).
		Order("package_name ASC").
		Pluck("package_name", &names)
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, "failed to query enabled packages")
	}
	return names, nil
}

// UpsertTrackedPackage creates or updates a package. An empty label keeps
// the existing one.
func (r *Repository) UpsertTrackedPackage(name, label string, enabled bool) (*models.TrackedPackage, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("package name cannot be empty")
	}

	var pkg models.TrackedPackage
	result := r.db.Where("package_name = ?", name).First(&pkg)
	switch {
	case errors.Is(result.Error, gorm.ErrRecordNotFound):
		pkg = models.TrackedPackage{PackageName: name, Label: label, Enabled: enabled}
		if err := r.db.Create(&pkg).Error; err != nil {
			return nil, errors.Wrap(err, "failed to insert tracked package")
		}
	case result.Error != nil:
		return nil, errors.Wrap(result.Error, "failed to get tracked package")
	default:
		if label != "" {
			pkg.Label = label
		}
		pkg.Enabled = enabled
		if err := r.db.Save(&pkg).Error; err != nil {
			return nil, errors.Wrap(err, "failed to update tracked package")
		}
	}
	return &pkg, nil
}

// SetPackageEnabled toggles detection for an existing package
func (r *Repository) SetPackageEnabled(name string, enabled bool) error {
	result := r.db.Model(&models.TrackedPackage{}).
		Where("package_name = ?", strings.TrimSpace(name)).
		Update("enabled", enabled)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to update tracked package")
	}
	if result.RowsAffected == 0 {
		return ErrPackageNotFound
	}
	return nil
}

// RemoveTrackedPackage deletes a package preference
func (r *Repository) RemoveTrackedPackage(name string) error {
	result := r.db.Where("package_name = ?", strings.TrimSpace(name)).Delete(&models.TrackedPackage{})
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to remove tracked package")
	}
	if result.RowsAffected == 0 {
		return ErrPackageNotFound
	}
	return nil
}

// EnsureDefaults seeds the given packages, enabled, when no package has
// ever been tracked. Returns the number of rows created.
func (r *Repository) EnsureDefaults(names []string) (int, error) {
	var count int64
	if err := r.db.Model(&models.TrackedPackage{}).Count(&count).Error; err != nil {
		return 0, errors.Wrap(err, "failed to count tracked packages")
	}
	if count > 0 {
		return 0, nil
	}

	created := 0
	for _, name := range names {
		if _, err := r.UpsertTrackedPackage(name, "", true); err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}

// CreateActionLog inserts a dispatched action. Timestamps are stored in
// UTC so that range queries compare like with like.
func (r *Repository) CreateActionLog(entry *models.ActionLog) error {
	entry.Timestamp = entry.Timestamp.UTC()
	result := r.db.Create(entry)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to insert action log")
	}
	return nil
}

// GetActionsSince retrieves all actions since a given time
// Simple query that returns raw rows - runtime does the processing
func (r *Repository) GetActionsSince(since time.Time) ([]*models.ActionLog, error) {
	var actions []*models.ActionLog
	result := r.db.Where("timestamp >= ?", since.UTC()).Order("timestamp ASC").Find(&actions)
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, "failed to query action logs")
	}
	return actions, nil
}

// GetRecentActions returns up to limit actions, newest first
func (r *Repository) GetRecentActions(limit int) ([]*models.ActionLog, error) {
	var actions []*models.ActionLog
	result := r.db.Order("timestamp DESC").Order("id DESC").Limit(limit).Find(&actions)
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, "failed to query recent actions")
	}
	return actions, nil
}

// GetLatestAction retrieves the most recent action, or nil if none
func (r *Repository) GetLatestAction() (*models.ActionLog, error) {
	var action models.ActionLog
	result := r.db.Order("timestamp DESC").Order("id DESC").First(&action)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, errors.Wrap(result.Error, "failed to get latest action")
	}
	return &action, nil
}

// DeleteOldActions permanently removes actions recorded before the given time
func (r *Repository) DeleteOldActions(before time.Time) (int64, error) {
	result := r.db.Where("timestamp < ?", before.UTC()).Delete(&models.ActionLog{})
	if result.Error != nil {
		return 0, errors.Wrap(result.Error, "failed to delete old actions")
	}
	return result.RowsAffected, nil
}

// CreateErrorLog inserts a new error log into the database
func (r *Repository) CreateErrorLog(errorLog *models.ErrorLog) error {
	result := r.db.Create(errorLog)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to insert error log")
	}
	return nil
}

// GetRecentErrors returns up to limit error logs, newest first
func (r *Repository) GetRecentErrors(limit int) ([]*models.ErrorLog, error) {
	var logs []*models.ErrorLog
	result := r.db.Order("timestamp DESC").Limit(limit).Find(&logs)
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, "failed to query error logs")
	}
	return logs, nil
}

// Clear removes all action and error logs. Package preferences are kept.
func (r *Repository) Clear() error {
	if result := r.db.Exec("DELETE FROM action_logs"); result.Error != nil {
		return errors.Wrap(result.Error, "failed to clear action logs")
	}
	if result := r.db.Exec("DELETE FROM error_logs"); result.Error != nil {
		return errors.Wrap(result.Error, "failed to clear error logs")
	}
	return nil
}
