package persona

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Latest returns the highest version for the user, or nil when none exists.
func (s *Store) Latest(ctx context.Context, userID uint64) (*Persona, error) {
	var p Persona
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("version DESC").
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Append inserts a new version. The unique (user_id, version) index rejects a
// second writer racing on the same version.
func (s *Store) Append(ctx context.Context, p *Persona) error {
	return s.db.WithContext(ctx).Create(p).Error
}

// History returns up to limit versions, newest first.
func (s *Store) History(ctx context.Context, userID uint64, limit int) ([]Persona, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var out []Persona
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("version DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) LatestPersonaText(ctx context.Context, userID uint64) (string, error) {
	p, err := s.Latest(ctx, userID)
	if err != nil || p == nil {
		return "", err
	}
	return p.PersonaText, nil
}

// Job CRUD
func (s *Store) CreateJob(ctx context.Context, job *BuildJob) error {
	return s.db.WithContext(ctx).Create(job).Error
}

func (s *Store) GetJobByID(ctx context.Context, id string) (*BuildJob, error) {
	var j BuildJob
	if err := s.db.WithContext(ctx).First(&j, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &j, nil
}

// UpdateJobStatusRunning claims a queued job. claimed is false when the job is
// missing or already past queued.
func (s *Store) UpdateJobStatusRunning(ctx context.Context, id string) (claimed bool, err error) {
	res := s.db.WithContext(ctx).Model(&BuildJob{}).
		Where("id = ? AND status = ?", id, JobQueued).
		Update("status", JobRunning)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *Store) MarkJobSucceeded(ctx context.Context, id string, res Result) error {
	var version *int
	if res.Outcome == OutcomeBuilt {
		v := res.Version
		version = &v
	}
	return s.db.WithContext(ctx).Model(&BuildJob{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":          JobSucceeded,
			"outcome":         string(res.Outcome),
			"persona_version": version,
			"error":           nil,
		}).Error
}

func (s *Store) MarkJobFailed(ctx context.Context, id string, errMsg string) error {
	return s.db.WithContext(ctx).Model(&BuildJob{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":          JobFailed,
			"error":           errMsg,
			"persona_version": nil,
		}).Error
}
