package core

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type SQLiteProfileStore struct {
	db *sql.DB
}

func NewSQLiteProfileStore(db *sql.DB) *SQLiteProfileStore {
	return &SQLiteProfileStore{db: db}
}

func encodeInterests(interests []string) (string, error) {
	if len(interests) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(interests)
	if err != nil {
		return "", fmt.Errorf("marshal interests: %w", err)
	}
	return string(b), nil
}

func decodeInterests(raw string) []string {
	if raw == "" {
		return nil
	}
	var interests []string
	if err := json.Unmarshal([]byte(raw), &interests); err != nil {
		return nil
	}
	if len(interests) == 0 {
		return nil
	}
	return interests
}

func (s *SQLiteProfileStore) EnsureProfile(ctx context.Context, uid string, input ProfileCreateInput) (*Profile, error) {
	existing, err := s.GetProfile(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("GetProfile: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	if err := input.Validate(); err != nil {
		return nil, err
	}

	ok, err := s.NicknameAvailable(ctx, input.Nickname, uid)
	if err != nil {
		return nil, fmt.Errorf("NicknameAvailable: %w", err)
	}
	if !ok {
		return nil, ErrNicknameTaken
	}

	interests, err := encodeInterests(input.Interests)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	query := `
	INSERT INTO profiles (uid, nickname, age, gender, location, interests, bio, profile_pic_url, is_vip, created_at, last_seen)
	VALUES (@uid, @nickname, @age, @gender, @location, @interests, @bio, @profile_pic_url, 0, @created_at, @last_seen)`
	_, err = s.db.ExecContext(ctx, query,
		sql.Named("uid", uid), sql.Named("nickname", input.Nickname),
		sql.Named("age", input.Age), sql.Named("gender", input.Gender),
		sql.Named("location", input.Location), sql.Named("interests", interests),
		sql.Named("bio", input.Bio), sql.Named("profile_pic_url", input.ProfilePicURL),
		sql.Named("created_at", now), sql.Named("last_seen", now))
	if err != nil {
		return nil, fmt.Errorf("ExecContext(insert profile): %w", err)
	}

	return s.GetProfile(ctx, uid)
}

func (s *SQLiteProfileStore) GetProfile(ctx context.Context, uid string) (*Profile, error) {
	query := `
	SELECT uid, nickname, age, gender, location, interests, bio, profile_pic_url, is_vip, created_at, last_seen
	FROM profiles WHERE uid = @uid LIMIT 1`

	row := s.db.QueryRowContext(ctx, query, sql.Named("uid", uid))

	var profile Profile
	var interests string
	err := row.Scan(&profile.UID, &profile.Nickname, &profile.Age, &profile.Gender,
		&profile.Location, &interests, &profile.Bio, &profile.ProfilePicURL,
		&profile.IsVIP, &profile.CreatedAt, &profile.LastSeen)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scanning profile: %w", err)
	}
	profile.Interests = decodeInterests(interests)
	return &profile, nil
}

func (s *SQLiteProfileStore) UpdateProfile(ctx context.Context, uid string, input ProfileUpdateInput) error {
	if err := input.Validate(); err != nil {
		return err
	}

	profile, err := s.GetProfile(ctx, uid)
	if err != nil {
		return fmt.Errorf("GetProfile: %w", err)
	}
	if profile == nil {
		return ErrUnknownProfile
	}

	if input.Nickname != nil && *input.Nickname != profile.Nickname {
		ok, err := s.NicknameAvailable(ctx, *input.Nickname, uid)
		if err != nil {
			return fmt.Errorf("NicknameAvailable: %w", err)
		}
		if !ok {
			return ErrNicknameTaken
		}
		profile.Nickname = *input.Nickname
	}
	if input.Age != nil {
		profile.Age = *input.Age
	}
	if input.Gender != nil {
		profile.Gender = *input.Gender
	}
	if input.Location != nil {
		profile.Location = *input.Location
	}
	if input.Interests != nil {
		profile.Interests = input.Interests
	}
	if input.Bio != nil {
		profile.Bio = *input.Bio
	}
	if input.ProfilePicURL != nil {
		profile.ProfilePicURL = *input.ProfilePicURL
	}

	interests, err := encodeInterests(profile.Interests)
	if err != nil {
		return err
	}

	query := `
	UPDATE profiles SET nickname = @nickname, age = @age, gender = @gender, location = @location,
	interests = @interests, bio = @bio, profile_pic_url = @profile_pic_url
	WHERE uid = @uid`
	_, err = s.db.ExecContext(ctx, query,
		sql.Named("nickname", profile.Nickname), sql.Named("age", profile.Age),
		sql.Named("gender", profile.Gender), sql.Named("location", profile.Location),
		sql.Named("interests", interests), sql.Named("bio", profile.Bio),
		sql.Named("profile_pic_url", profile.ProfilePicURL), sql.Named("uid", uid))
	if err != nil {
		return fmt.Errorf("ExecContext(update profile): %w", err)
	}
	return nil
}

func (s *SQLiteProfileStore) Heartbeat(ctx context.Context, uid string) error {
	query := `UPDATE profiles SET last_seen = @now WHERE uid = @uid`
	_, err := s.db.ExecContext(ctx, query,
		sql.Named("now", time.Now().UTC()), sql.Named("uid", uid))
	if err != nil {
		return fmt.Errorf("ExecContext(heartbeat): %w", err)
	}
	return nil
}

func (s *SQLiteProfileStore) SearchProfiles(ctx context.Context, prefix string, limit int) ([]Profile, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
	SELECT uid, nickname, age, gender, location, interests, bio, profile_pic_url, is_vip, created_at, last_seen
	FROM profiles
	WHERE nickname >= @prefix AND nickname <= @prefix_end
	ORDER BY nickname ASC
	LIMIT @limit`

	rows, err := s.db.QueryContext(ctx, query,
		sql.Named("prefix", prefix),
		sql.Named("prefix_end", prefix+"\uffff"),
		sql.Named("limit", limit))
	if err != nil {
		return nil, fmt.Errorf("QueryContext: %w", err)
	}
	defer rows.Close()

	var profiles []Profile
	for rows.Next() {
		var profile Profile
		var interests string
		if err := rows.Scan(&profile.UID, &profile.Nickname, &profile.Age, &profile.Gender,
			&profile.Location, &interests, &profile.Bio, &profile.ProfilePicURL,
			&profile.IsVIP, &profile.CreatedAt, &profile.LastSeen); err != nil {
			return nil, fmt.Errorf("rows.Scan: %w", err)
		}
		profile.Interests = decodeInterests(interests)
		profiles = append(profiles, profile)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows.Err: %w", err)
	}
	return profiles, nil
}

func (s *SQLiteProfileStore) NicknameAvailable(ctx context.Context, nickname, currentUID string) (bool, error) {
	query := `SELECT uid FROM profiles WHERE nickname = @nickname LIMIT 1`
	row := s.db.QueryRowContext(ctx, query, sql.Named("nickname", nickname))

	var uid string
	if err := row.Scan(&uid); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return true, nil
		}
		return false, fmt.Errorf("scanning uid: %w", err)
	}
	return currentUID != "" && uid == currentUID, nil
}

func (s *SQLiteProfileStore) DuplicateNicknames(ctx context.Context) ([]string, error) {
	query := `SELECT nickname FROM profiles GROUP BY nickname HAVING count(*) > 1 ORDER BY nickname`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("QueryContext: %w", err)
	}
	defer rows.Close()

	var nicknames []string
	for rows.Next() {
		var nickname string
		if err := rows.Scan(&nickname); err != nil {
			return nil, fmt.Errorf("rows.Scan: %w", err)
		}
		nicknames = append(nicknames, nickname)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows.Err: %w", err)
	}
	return nicknames, nil
}

func (s *SQLiteProfileStore) SetVIP(ctx context.Context, uid string, isVIP bool) error {
	query := `UPDATE profiles SET is_vip = @is_vip WHERE uid = @uid`
	res, err := s.db.ExecContext(ctx, query,
		sql.Named("is_vip", isVIP), sql.Named("uid", uid))
	if err != nil {
		return fmt.Errorf("ExecContext(set vip): %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrUnknownProfile
	}
	return nil
}

func (s *SQLiteProfileStore) BlockUser(ctx context.Context, uid, target string) error {
	query := `INSERT INTO blocked_users (blocker_uid, blocked_uid) VALUES (@blocker, @blocked)
	ON CONFLICT DO NOTHING`
	_, err := s.db.ExecContext(ctx, query,
		sql.Named("blocker", uid), sql.Named("blocked", target))
	if err != nil {
		return fmt.Errorf("ExecContext(block): %w", err)
	}
	return nil
}

func (s *SQLiteProfileStore) UnblockUser(ctx context.Context, uid, target string) error {
	query := `DELETE FROM blocked_users WHERE blocker_uid = @blocker AND blocked_uid = @blocked`
	_, err := s.db.ExecContext(ctx, query,
		sql.Named("blocker", uid), sql.Named("blocked", target))
	if err != nil {
		return fmt.Errorf("ExecContext(unblock): %w", err)
	}
	return nil
}

func (s *SQLiteProfileStore) BlockedUsers(ctx context.Context, uid string) ([]string, error) {
	query := `SELECT blocked_uid FROM blocked_users WHERE blocker_uid = @blocker ORDER BY blocked_uid`
	rows, err := s.db.QueryContext(ctx, query, sql.Named("blocker", uid))
	if err != nil {
		return nil, fmt.Errorf("QueryContext: %w", err)
	}
	defer rows.Close()

	var blocked []string
	for rows.Next() {
		var target string
		if err := rows.Scan(&target); err != nil {
			return nil, fmt.Errorf("rows.Scan: %w", err)
		}
		blocked = append(blocked, target)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows.Err: %w", err)
	}
	return blocked, nil
}

func (s *SQLiteProfileStore) IsBlocked(ctx context.Context, uid, target string) (bool, error) {
	query := `SELECT count(*) FROM blocked_users WHERE blocker_uid = @blocker AND blocked_uid = @blocked`
	row := s.db.QueryRowContext(ctx, query,
		sql.Named("blocker", uid), sql.Named("blocked", target))
	var count int
	if err := row.Scan(&count); err != nil {
		return false, fmt.Errorf("scanning count: %w", err)
	}
	return count > 0, nil
}
