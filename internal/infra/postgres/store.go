package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/pkg/errors"

	"trivia-service/internal/domain"
)

const uniqueViolation = "23505"

// Store persists users and game scores. It implements app.UserRepository and app.ScoreRepository.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const userColumns = `id::text, username, display_name, avatar_url, password_hash, total_points, created_at, updated_at`

func scanUser(row pgx.Row) (domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.Username, &u.DisplayName, &u.AvatarURL, &u.PasswordHash, &u.TotalPoints, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, errors.Wrap(err, "failed to scan user")
	}
	return u, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.User) (domain.User, error) {
	id, err := uuid.Parse(user.ID)
	if err != nil {
		return domain.User{}, errors.Wrapf(domain.ErrInvalidUser, "bad user id %q", user.ID)
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO users (id, username, display_name, avatar_url, password_hash, total_points, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+userColumns,
		id.String(), user.Username, user.DisplayName, user.AvatarURL, user.PasswordHash, user.TotalPoints, user.CreatedAt, user.UpdatedAt)

	created, err := scanUser(row)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return domain.User{}, domain.ErrUsernameTaken
	}
	if err != nil {
		return domain.User{}, errors.Wrapf(err, "failed to create user %q", user.Username)
	}
	return created, nil
}

func (s *Store) UserByID(ctx context.Context, id string) (domain.User, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return domain.User{}, domain.ErrUserNotFound
	}
	return scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, uid.String()))
}

func (s *Store) UserByUsername(ctx context.Context, username string) (domain.User, error) {
	return scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(username) = lower($1)`, username))
}

func (s *Store) UpdateDisplayName(ctx context.Context, id, displayName string) (domain.User, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return domain.User{}, domain.ErrUserNotFound
	}
	return scanUser(s.pool.QueryRow(ctx, `
		UPDATE users SET display_name = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+userColumns, uid.String(), displayName))
}

// InsertScore stores the record and credits its score to the user in one transaction.
func (s *Store) InsertScore(ctx context.Context, record domain.ScoreRecord) (domain.ScoreRecord, error) {
	uid, err := uuid.Parse(record.UserID)
	if err != nil {
		return domain.ScoreRecord{}, domain.ErrUserNotFound
	}
	sid, err := uuid.Parse(record.ID)
	if err != nil {
		sid = uuid.New()
		record.ID = sid.String()
	}

	err = s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE users SET total_points = total_points + $2, updated_at = now() WHERE id = $1`, uid.String(), record.Score)
		if err != nil {
			return errors.Wrap(err, "failed to credit points")
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrUserNotFound
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO game_scores (id, user_id, category, difficulty, score, total_questions, time_taken, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			sid.String(), uid.String(), record.Category, record.Difficulty, record.Score, record.TotalQuestions, record.TimeTaken, record.CreatedAt)
		return errors.Wrap(err, "failed to insert score")
	})
	if err != nil {
		return domain.ScoreRecord{}, err
	}
	return record, nil
}

const scoreColumns = `s.id::text, s.user_id::text, s.category, s.difficulty, s.score, s.total_questions, s.time_taken, s.created_at`

func scanScore(row pgx.Row, extra ...any) (domain.ScoreRecord, error) {
	var r domain.ScoreRecord
	dest := append([]any{&r.ID, &r.UserID, &r.Category, &r.Difficulty, &r.Score, &r.TotalQuestions, &r.TimeTaken, &r.CreatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return domain.ScoreRecord{}, errors.Wrap(err, "failed to scan score")
	}
	return r, nil
}

func (s *Store) ScoresByUser(ctx context.Context, userID string) ([]domain.ScoreRecord, error) {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return []domain.ScoreRecord{}, nil
	}
	rows, err := s.pool.Query(ctx, `SELECT `+scoreColumns+` FROM game_scores s WHERE s.user_id = $1 ORDER BY s.created_at DESC`, uid.String())
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query scores of %v", userID)
	}
	defer rows.Close()

	out := []domain.ScoreRecord{}
	for rows.Next() {
		r, err := scanScore(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, errors.Wrap(rows.Err(), "failed to read scores")
}

func (s *Store) RecentScores(ctx context.Context, limit int) ([]domain.ScoreWithUser, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+scoreColumns+`, u.username, u.display_name
		FROM game_scores s JOIN users u ON u.id = s.user_id
		ORDER BY s.created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query recent scores")
	}
	defer rows.Close()

	out := []domain.ScoreWithUser{}
	for rows.Next() {
		var item domain.ScoreWithUser
		item.ScoreRecord, err = scanScore(rows, &item.Username, &item.DisplayName)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, errors.Wrap(rows.Err(), "failed to read recent scores")
}

func (s *Store) Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT u.id::text, u.username, u.display_name, u.total_points, count(s.id)
		FROM users u LEFT JOIN game_scores s ON s.user_id = u.id
		GROUP BY u.id
		ORDER BY u.total_points DESC, u.username ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query leaderboard")
	}
	defer rows.Close()

	out := []domain.LeaderboardEntry{}
	for rows.Next() {
		var e domain.LeaderboardEntry
		if err := rows.Scan(&e.UserID, &e.Username, &e.DisplayName, &e.TotalPoints, &e.GamesPlayed); err != nil {
			return nil, errors.Wrap(err, "failed to scan leaderboard entry")
		}
		e.Rank = len(out) + 1
		out = append(out, e)
	}
	return out, errors.Wrap(rows.Err(), "failed to read leaderboard")
}

// ClearScores deletes all scores and resets every user's points.
func (s *Store) ClearScores(ctx context.Context) (int64, error) {
	var deleted int64
	err := s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM game_scores`)
		if err != nil {
			return errors.Wrap(err, "failed to delete scores")
		}
		deleted = tag.RowsAffected()
		_, err = tx.Exec(ctx, `UPDATE users SET total_points = 0, updated_at = now() WHERE total_points <> 0`)
		return errors.Wrap(err, "failed to reset points")
	})
	return deleted, err
}
