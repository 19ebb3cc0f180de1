package repository

import (
	"errors"

	"facewatch/internal/core/matching"
	"facewatch/internal/core/models"

	"gorm.io/gorm"
)

// Repository defines the storage operations of the service.
type Repository interface {
	// User methods
	GetUserByID(id uint) (*models.User, error)
	GetUsers() ([]models.User, error)
	SaveUser(user *models.User) error
	UpdateUser(user *models.User) error
	DeleteUser(id uint) error
	GetCandidates() ([]matching.Candidate, error)
	CountSequenceNames() (int64, error)

	// Match log methods
	AppendMatchLog(entry *models.MatchLog) error
	GetRecentMatchLogs(limit int) ([]models.MatchLog, error)

	// Statistics
	GetStatistics() (models.Statistics, error)
}

// SQLiteRepository implements Repository on a GORM SQLite database.
type SQLiteRepository struct {
	db *gorm.DB
}

// NewSQLiteRepository creates a new SQLite repository instance.
func NewSQLiteRepository(db *gorm.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// User methods

// GetUserByID fetches a user by ID. Returns nil without error when the
// user does not exist.
func (r *SQLiteRepository) GetUserByID(id uint) (*models.User, error) {
	var user models.User
	result := r.db.First(&user, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &user, nil
}

// GetUsers fetches all registered users ordered by ID.
func (r *SQLiteRepository) GetUsers() ([]models.User, error) {
	var users []models.User
	result := r.db.Order("id ASC").Find(&users)
	if result.Error != nil {
		return nil, result.Error
	}
	return users, nil
}

// SaveUser creates a user record.
func (r *SQLiteRepository) SaveUser(user *models.User) error {
	return r.db.Create(user).Error
}

// UpdateUser persists changes to an existing user.
func (r *SQLiteRepository) UpdateUser(user *models.User) error {
	return r.db.Save(user).Error
}

// DeleteUser removes a user record.
func (r *SQLiteRepository) DeleteUser(id uint) error {
	return r.db.Delete(&models.User{}, id).Error
}

// GetCandidates returns all stored (id, embedding) pairs for matching.
// Users whose embedding fails to decode are skipped.
func (r *SQLiteRepository) GetCandidates() ([]matching.Candidate, error) {
	var users []models.User
	result := r.db.Select("id", "embedding").Order("id ASC").Find(&users)
	if result.Error != nil {
		return nil, result.Error
	}

	candidates := make([]matching.Candidate, 0, len(users))
	for _, u := range users {
		vec, err := u.EmbeddingVector()
		if err != nil {
			continue
		}
		candidates = append(candidates, matching.Candidate{ID: u.ID, Embedding: vec})
	}
	return candidates, nil
}

// CountSequenceNames counts users whose name is a three-digit sequence
// number, as assigned by auto-registration.
func (r *SQLiteRepository) CountSequenceNames() (int64, error) {
	var count int64
	result := r.db.Model(&models.User{}).
		Where("name GLOB ?", "[0-9][0-9][0-9]").
		Count(&count)
	if result.Error != nil {
		return 0, result.Error
	}
	return count, nil
}

// Match log methods

// AppendMatchLog records one sighting.
func (r *SQLiteRepository) AppendMatchLog(entry *models.MatchLog) error {
	return r.db.Create(entry).Error
}

// GetRecentMatchLogs fetches the newest log entries, capped at limit.
func (r *SQLiteRepository) GetRecentMatchLogs(limit int) ([]models.MatchLog, error) {
	var logs []models.MatchLog
	result := r.db.Preload("User").Order("created_at DESC, id DESC").Limit(limit).Find(&logs)
	if result.Error != nil {
		return nil, result.Error
	}
	return logs, nil
}

// Statistics

// GetStatistics returns aggregate counts over users and sightings.
func (r *SQLiteRepository) GetStatistics() (models.Statistics, error) {
	var stats models.Statistics

	if err := r.db.Model(&models.User{}).Count(&stats.UserCount).Error; err != nil {
		return stats, err
	}

	if err := r.db.Model(&models.MatchLog{}).Count(&stats.LogCount).Error; err != nil {
		return stats, err
	}

	if err := r.db.Model(&models.MatchLog{}).
		Where("user_id IS NOT NULL").
		Count(&stats.MatchedSightings).Error; err != nil {
		return stats, err
	}

	stats.UnknownSightings = stats.LogCount - stats.MatchedSightings

	var latest models.MatchLog
	if err := r.db.Order("created_at DESC").First(&latest).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return stats, err
		}
	} else {
		stats.LastSighting = latest.CreatedAt
	}

	return stats, nil
}
