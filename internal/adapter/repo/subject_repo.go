package repo

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"storyreel/internal/domain"
)

// SubjectRepositoryPG implements domain.SubjectRepository.
type SubjectRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewSubjectRepository creates a subject repository backed by PostgreSQL.
func NewSubjectRepository(pool *pgxpool.Pool) *SubjectRepositoryPG {
	return &SubjectRepositoryPG{pool: pool}
}

// Exists reports whether the subject row is present.
func (r *SubjectRepositoryPG) Exists(ctx context.Context, subjectID string) (bool, error) {
	query := `
SELECT EXISTS (SELECT 1 FROM subjects WHERE id = $1);
`
	var exists bool
	if err := r.pool.QueryRow(ctx, query, subjectID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

var _ domain.SubjectRepository = (*SubjectRepositoryPG)(nil)
