package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3" // SQLite driver
)

var (
	// ErrDuplicateEmail is returned when a user with the same email already exists.
	ErrDuplicateEmail = errors.New("user already exists")
	// ErrInvalidLogDate is returned for log dates that are neither YYYY-MM-DD nor RFC 3339.
	ErrInvalidLogDate = errors.New("invalid log date")
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err = store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS users (
        id TEXT PRIMARY KEY, -- UUID
        name TEXT NOT NULL,
        email TEXT UNIQUE NOT NULL,
        password_hash TEXT NOT NULL DEFAULT '',
        auth_provider TEXT NOT NULL DEFAULT 'local' CHECK (auth_provider IN ('local', 'google')),
        google_sub TEXT NOT NULL DEFAULT '',
        age REAL,
        height REAL,
        weight REAL,
        goal_primary TEXT NOT NULL DEFAULT '',
        target_weight REAL,
        injury TEXT NOT NULL DEFAULT '',
        cuisine TEXT NOT NULL DEFAULT '',
        diet_type TEXT NOT NULL DEFAULT '',
        avatar_url TEXT NOT NULL DEFAULT '',
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );
    CREATE INDEX IF NOT EXISTS idx_users_google_sub ON users (google_sub);

    CREATE TABLE IF NOT EXISTS activity_logs (
        id TEXT PRIMARY KEY, -- UUID
        user_id TEXT NOT NULL,
        date TEXT NOT NULL,
        weight REAL,
        sleep_hours REAL,
        workout_type TEXT,
        workout_duration REAL,
        calories REAL,
        protein REAL,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        FOREIGN KEY (user_id) REFERENCES users (id)
    );
    CREATE INDEX IF NOT EXISTS idx_activity_logs_user_date ON activity_logs (user_id, date DESC);

    CREATE TABLE IF NOT EXISTS sources (
        id TEXT PRIMARY KEY, -- UUID
        title TEXT NOT NULL,
        url TEXT NOT NULL,
        type TEXT NOT NULL CHECK (type IN ('article', 'video')),
        content TEXT NOT NULL DEFAULT '',
        category TEXT NOT NULL DEFAULT 'general',
        video_id TEXT NOT NULL DEFAULT '',
        channel_title TEXT NOT NULL DEFAULT '',
        thumbnail TEXT NOT NULL DEFAULT '',
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );
    CREATE INDEX IF NOT EXISTS idx_sources_category ON sources (category);

    CREATE TABLE IF NOT EXISTS source_tags (
        source_id TEXT NOT NULL,
        tag TEXT NOT NULL,
        PRIMARY KEY (source_id, tag),
        FOREIGN KEY (source_id) REFERENCES sources (id)
    );
    CREATE INDEX IF NOT EXISTS idx_source_tags_tag ON source_tags (tag);
    `
	_, err := s.db.Exec(schema)
	return err
}

// User methods

const userColumns = `id, name, email, password_hash, auth_provider, google_sub, age, height, weight,
    goal_primary, target_weight, injury, cuisine, diet_type, avatar_url, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	var user User
	var age, height, weight, targetWeight sql.NullFloat64
	err := row.Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.AuthProvider, &user.GoogleSub,
		&age, &height, &weight, &user.Goals.Primary, &targetWeight,
		&user.Preferences.Injury, &user.Preferences.Cuisine, &user.Preferences.DietType,
		&user.AvatarURL, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, err
	}
	user.Age = floatPtr(age)
	user.Height = floatPtr(height)
	user.Weight = floatPtr(weight)
	user.Goals.TargetWeight = floatPtr(targetWeight)
	return &user, nil
}

func (s *SQLiteStore) getUserWhere(ctx context.Context, where string, arg any) (*User, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE "+where, arg)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // User not found
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return user, nil
}

func (s *SQLiteStore) GetUserByID(ctx context.Context, id string) (*User, error) {
	return s.getUserWhere(ctx, "id = ?", id)
}

func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return s.getUserWhere(ctx, "email = ?", strings.ToLower(strings.TrimSpace(email)))
}

func (s *SQLiteStore) GetUserByGoogleSub(ctx context.Context, sub string) (*User, error) {
	if sub == "" {
		return nil, nil
	}
	return s.getUserWhere(ctx, "google_sub = ?", sub)
}

// CreateUser inserts user, filling ID and timestamps.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *User) error {
	user.ID = uuid.NewString()
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if user.AuthProvider == "" {
		user.AuthProvider = AuthProviderLocal
	}
	now := time.Now().UTC()
	user.CreatedAt, user.UpdatedAt = now, now

	_, err := s.db.ExecContext(ctx, `INSERT INTO users (id, name, email, password_hash, auth_provider, google_sub,
        age, height, weight, goal_primary, target_weight, injury, cuisine, diet_type, avatar_url, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Name, user.Email, user.PasswordHash, user.AuthProvider, user.GoogleSub,
		nullFloat(user.Age), nullFloat(user.Height), nullFloat(user.Weight), user.Goals.Primary,
		nullFloat(user.Goals.TargetWeight), user.Preferences.Injury, user.Preferences.Cuisine,
		user.Preferences.DietType, user.AvatarURL, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// UpdateUserProfile replaces the profile fields and avatar of a user and returns the updated row.
// Returns (nil, nil) when the user does not exist.
func (s *SQLiteStore) UpdateUserProfile(ctx context.Context, id string, profile Profile, avatarURL string) (*User, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET name = COALESCE(NULLIF(?, ''), name), age = ?, height = ?, weight = ?,
        goal_primary = ?, target_weight = ?, injury = ?, cuisine = ?, diet_type = ?, avatar_url = ?, updated_at = ?
        WHERE id = ?`,
		profile.Name, nullFloat(profile.Age), nullFloat(profile.Height), nullFloat(profile.Weight),
		profile.Goals.Primary, nullFloat(profile.Goals.TargetWeight), profile.Preferences.Injury,
		profile.Preferences.Cuisine, profile.Preferences.DietType, avatarURL, time.Now().UTC(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to update user profile: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return nil, nil
	}
	return s.GetUserByID(ctx, id)
}

// LinkGoogleAccount stores the Google subject on an existing user and sets its auth provider.
func (s *SQLiteStore) LinkGoogleAccount(ctx context.Context, id, sub, provider string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE users SET google_sub = ?, auth_provider = ?, updated_at = ? WHERE id = ?",
		sub, provider, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to link google account: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("user not found, google account not linked")
	}
	return nil
}

// Activity log methods

// NormalizeLogDate rewrites a calendar date as zero-padded YYYY-MM-DD and a timestamp
// as UTC RFC 3339, so stored dates sort chronologically as text.
func NormalizeLogDate(value string) (string, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse("2006-1-2", value); err == nil {
		return t.Format(time.DateOnly), nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC().Format(time.RFC3339), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidLogDate, value)
}

func (s *SQLiteStore) CreateLog(ctx context.Context, entry *LogEntry) error {
	date, err := NormalizeLogDate(entry.Date)
	if err != nil {
		return err
	}
	entry.Date = date
	entry.ID = uuid.NewString()
	entry.CreatedAt = time.Now().UTC()

	var workoutType sql.NullString
	var workoutDuration, calories, protein sql.NullFloat64
	if entry.Workout != nil {
		workoutType = sql.NullString{String: entry.Workout.Type, Valid: true}
		workoutDuration = sql.NullFloat64{Float64: entry.Workout.Duration, Valid: true}
	}
	if entry.Nutrition != nil {
		calories = sql.NullFloat64{Float64: entry.Nutrition.Calories, Valid: true}
		protein = sql.NullFloat64{Float64: entry.Nutrition.Protein, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO activity_logs (id, user_id, date, weight, sleep_hours,
        workout_type, workout_duration, calories, protein, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.UserID, entry.Date, nullFloat(entry.Weight), nullFloat(entry.SleepHours),
		workoutType, workoutDuration, calories, protein, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert activity log: %w", err)
	}
	return nil
}

// GetLogsByUserID returns the user's logs, newest date first. limit <= 0 means no limit.
func (s *SQLiteStore) GetLogsByUserID(ctx context.Context, userID string, limit int) ([]LogEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, user_id, date, weight, sleep_hours, workout_type, workout_duration,
        calories, protein, created_at FROM activity_logs WHERE user_id = ? ORDER BY date DESC, created_at DESC LIMIT ?`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query activity logs: %w", err)
	}
	defer rows.Close()

	logs := []LogEntry{}
	for rows.Next() {
		var entry LogEntry
		var weight, sleep, duration, calories, protein sql.NullFloat64
		var workoutType sql.NullString
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.Date, &weight, &sleep, &workoutType, &duration,
			&calories, &protein, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan activity log row: %w", err)
		}
		entry.Weight = floatPtr(weight)
		entry.SleepHours = floatPtr(sleep)
		if workoutType.Valid {
			entry.Workout = &Workout{Type: workoutType.String, Duration: duration.Float64}
		}
		if calories.Valid || protein.Valid {
			entry.Nutrition = &Nutrition{Calories: calories.Float64, Protein: protein.Float64}
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
