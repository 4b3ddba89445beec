package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okian/studypulse/internal/domain/model"
)

// PostgresConfig holds PostgreSQL connection configuration.
type PostgresConfig struct {
	DSN         string
	MaxConns    int32
	MaxLifetime time.Duration
}

// PostgresStore implements Store on PostgreSQL. Each rating is a row, so
// concurrent ingestion needs no read-modify-write.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects, pings and applies pending migrations.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxLifetime
	} else {
		poolConfig.MaxConnLifetime = 30 * time.Minute
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Get implements Store.Get. The snapshot is assembled from four queries inside
// one repeatable-read transaction so it is internally consistent.
func (s *PostgresStore) Get(ctx context.Context, studyID string) (study model.Study, err error) {
	defer func(start time.Time) { observe(BackendPostgres, "get", start, err) }(time.Now())

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return model.Study{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx, `
		SELECT id, title, code, principal_investigator, start_date, end_date
		FROM studies WHERE id = $1`, studyID,
	).Scan(&study.ID, &study.Title, &study.Code, &study.PrincipalInvestigator, &study.StartDate, &study.EndDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Study{}, studyNotFound(studyID)
	}
	if err != nil {
		return model.Study{}, fmt.Errorf("select study: %w", err)
	}

	rows, err := tx.Query(ctx, `SELECT id, name FROM artifacts WHERE study_id = $1 ORDER BY position`, studyID)
	if err != nil {
		return model.Study{}, fmt.Errorf("select artifacts: %w", err)
	}
	study.Artifacts, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Artifact, error) {
		var a model.Artifact
		err := row.Scan(&a.ID, &a.Name)
		return a, err
	})
	if err != nil {
		return model.Study{}, fmt.Errorf("scan artifacts: %w", err)
	}

	rows, err = tx.Query(ctx, `
		SELECT id, name, region, persona, joined_at, progress, completed_at
		FROM participants WHERE study_id = $1 ORDER BY position`, studyID)
	if err != nil {
		return model.Study{}, fmt.Errorf("select participants: %w", err)
	}
	study.Participants, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Participant, error) {
		p := model.Participant{Ratings: []model.RatingEvent{}}
		err := row.Scan(&p.ID, &p.Name, &p.Region, &p.Persona, &p.JoinedAt, &p.Progress, &p.CompletedAt)
		return p, err
	})
	if err != nil {
		return model.Study{}, fmt.Errorf("scan participants: %w", err)
	}

	index := make(map[string]int, len(study.Participants))
	for i := range study.Participants {
		index[study.Participants[i].ID] = i
	}

	rows, err = tx.Query(ctx, `
		SELECT participant_id, event_id, artifact_id, artifact_name, rating, submitted_at
		FROM rating_events WHERE study_id = $1 ORDER BY seq`, studyID)
	if err != nil {
		return model.Study{}, fmt.Errorf("select ratings: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var pid string
		var ev model.RatingEvent
		if err := rows.Scan(&pid, &ev.EventID, &ev.ArtifactID, &ev.ArtifactName, &ev.Rating, &ev.SubmittedAt); err != nil {
			return model.Study{}, fmt.Errorf("scan rating: %w", err)
		}
		if i, ok := index[pid]; ok {
			study.Participants[i].Ratings = append(study.Participants[i].Ratings, ev)
		}
	}
	if err := rows.Err(); err != nil {
		return model.Study{}, fmt.Errorf("iterate ratings: %w", err)
	}
	return study, nil
}

// List implements Store.List.
func (s *PostgresStore) List(ctx context.Context) (refs []model.StudyRef, err error) {
	defer func(start time.Time) { observe(BackendPostgres, "list", start, err) }(time.Now())

	rows, err := s.pool.Query(ctx, `SELECT id, title, code FROM studies ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("select studies: %w", err)
	}
	refs, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.StudyRef, error) {
		var r model.StudyRef
		err := row.Scan(&r.ID, &r.Title, &r.Code)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan studies: %w", err)
	}
	return refs, nil
}

// AppendRating implements Store.AppendRating.
func (s *PostgresStore) AppendRating(ctx context.Context, studyID, participantID string, ev model.RatingEvent) (err error) {
	defer func(start time.Time) { observe(BackendPostgres, "append_rating", start, err) }(time.Now())

	if err := s.requireParticipant(ctx, s.pool, studyID, participantID); err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO rating_events (study_id, participant_id, event_id, artifact_id, artifact_name, rating, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (study_id, event_id) WHERE event_id <> '' DO NOTHING`,
		studyID, participantID, ev.EventID, ev.ArtifactID, ev.ArtifactName, ev.Rating, ev.SubmittedAt)
	if err != nil {
		return fmt.Errorf("insert rating: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicateEvent
	}
	return nil
}

// MarkCompleted implements Store.MarkCompleted.
func (s *PostgresStore) MarkCompleted(ctx context.Context, studyID, participantID, completedAt string) (err error) {
	defer func(start time.Time) { observe(BackendPostgres, "mark_completed", start, err) }(time.Now())

	if err := s.requireParticipant(ctx, s.pool, studyID, participantID); err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		UPDATE participants SET completed_at = $3, progress = 100
		WHERE study_id = $1 AND id = $2 AND completed_at = ''`,
		studyID, participantID, completedAt)
	if err != nil {
		return fmt.Errorf("update participant: %w", err)
	}
	return nil
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// requireParticipant tells an unknown study apart from an unknown participant.
func (s *PostgresStore) requireParticipant(ctx context.Context, q querier, studyID, participantID string) error {
	var studyExists, participantExists bool
	err := q.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM studies WHERE id = $1),
		       EXISTS (SELECT 1 FROM participants WHERE study_id = $1 AND id = $2)`,
		studyID, participantID,
	).Scan(&studyExists, &participantExists)
	switch {
	case err != nil:
		return fmt.Errorf("lookup participant: %w", err)
	case !studyExists:
		return studyNotFound(studyID)
	case !participantExists:
		return participantNotFound(studyID, participantID)
	}
	return nil
}

// Seed implements Store.Seed. Every new study and its children are written in
// one batch inside one transaction.
func (s *PostgresStore) Seed(ctx context.Context, studies []model.Study) (added int, err error) {
	defer func(start time.Time) { observe(BackendPostgres, "seed", start, err) }(time.Now())

	for i := range studies {
		ok, err := s.seedOne(ctx, &studies[i])
		if err != nil {
			return added, err
		}
		if ok {
			added++
		}
	}
	return added, nil
}

func (s *PostgresStore) seedOne(ctx context.Context, st *model.Study) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		INSERT INTO studies (id, title, code, principal_investigator, start_date, end_date)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`,
		st.ID, st.Title, st.Code, st.PrincipalInvestigator, st.StartDate, st.EndDate)
	if err != nil {
		return false, fmt.Errorf("insert study %s: %w", st.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	batch := &pgx.Batch{}
	for pos, a := range st.Artifacts {
		batch.Queue(`INSERT INTO artifacts (study_id, id, name, position) VALUES ($1, $2, $3, $4)`,
			st.ID, a.ID, a.Name, pos)
	}
	for pos := range st.Participants {
		p := &st.Participants[pos]
		batch.Queue(`
			INSERT INTO participants (study_id, id, name, region, persona, joined_at, progress, completed_at, position)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			st.ID, p.ID, p.Name, p.Region, p.Persona, p.JoinedAt, p.Progress, p.CompletedAt, pos)
	}
	for pos := range st.Participants {
		p := &st.Participants[pos]
		for _, ev := range p.Ratings {
			batch.Queue(`
				INSERT INTO rating_events (study_id, participant_id, event_id, artifact_id, artifact_name, rating, submitted_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				st.ID, p.ID, ev.EventID, ev.ArtifactID, ev.ArtifactName, ev.Rating, ev.SubmittedAt)
		}
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return false, fmt.Errorf("seed study %s: %w", st.ID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit study %s: %w", st.ID, err)
	}
	return true, nil
}

// Count implements Store.Count. Errors count as zero studies.
func (s *PostgresStore) Count(ctx context.Context) int {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM studies`).Scan(&n); err != nil {
		observe(BackendPostgres, "count", time.Now(), err)
		return 0
	}
	return n
}
