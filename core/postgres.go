package core

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements the room, message, profile and report stores
// over a PostgreSQL pool. It is the deployment-scale alternative to the
// SQLite stores; both sides of the switch satisfy the same interfaces.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// InitSchema creates the tables if they do not exist.
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS rooms (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		topic TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		type TEXT NOT NULL DEFAULT 'public',
		participant_count INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL,
		last_message_at TIMESTAMPTZ NOT NULL,
		last_activity_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_rooms_last_message_at ON rooms(last_message_at);

	CREATE TABLE IF NOT EXISTS messages (
		id BIGSERIAL PRIMARY KEY,
		room_id TEXT NOT NULL,
		sender_id TEXT NOT NULL,
		sender_name TEXT NOT NULL,
		type TEXT NOT NULL DEFAULT 'text',
		text TEXT NOT NULL DEFAULT '',
		media_url TEXT NOT NULL DEFAULT '',
		timestamp TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_room_timestamp ON messages(room_id, timestamp);

	CREATE TABLE IF NOT EXISTS profiles (
		uid TEXT PRIMARY KEY,
		nickname TEXT NOT NULL,
		age INTEGER NOT NULL,
		gender TEXT NOT NULL,
		location TEXT NOT NULL DEFAULT '',
		interests TEXT NOT NULL DEFAULT '[]',
		bio TEXT NOT NULL DEFAULT '',
		profile_pic_url TEXT NOT NULL DEFAULT '',
		is_vip BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL,
		last_seen TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_profiles_nickname ON profiles(nickname);

	CREATE TABLE IF NOT EXISTS blocked_users (
		blocker_uid TEXT NOT NULL,
		blocked_uid TEXT NOT NULL,
		PRIMARY KEY (blocker_uid, blocked_uid)
	);

	CREATE TABLE IF NOT EXISTS reports (
		id BIGSERIAL PRIMARY KEY,
		reporter_id TEXT NOT NULL,
		target TEXT NOT NULL,
		target_id TEXT NOT NULL,
		room_id TEXT NOT NULL DEFAULT '',
		reason TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'pending',
		timestamp TIMESTAMPTZ NOT NULL
	);
	`
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateRoom(ctx context.Context, input RoomCreateInput) (string, error) {
	if err := input.Validate(); err != nil {
		return "", err
	}

	id := input.ID
	if id == "" {
		id = uuid.New().String()
	}

	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx, `
	INSERT INTO rooms (id, name, topic, description, type, participant_count, created_at, last_message_at, last_activity_at)
	VALUES ($1, $2, $3, $4, $5, 0, $6, $6, $6)`,
		id, input.Name, input.Topic, input.Description, string(input.Type), now)
	if err != nil {
		return "", fmt.Errorf("insert room: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) GetRoomByID(ctx context.Context, roomID string) (*Room, error) {
	var room Room
	var roomType string
	err := s.pool.QueryRow(ctx, `
	SELECT id, name, topic, description, type, participant_count, created_at, last_message_at, last_activity_at
	FROM rooms WHERE id = $1`, roomID).Scan(
		&room.ID, &room.Name, &room.Topic, &room.Description, &roomType,
		&room.ParticipantCount, &room.CreatedAt, &room.LastMessageAt, &room.LastActivityAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scanning room: %w", err)
	}
	room.Type = RoomType(roomType)
	return &room, nil
}

func (s *PostgresStore) ListRooms(ctx context.Context, viewerIsVIP bool) ([]Room, error) {
	rows, err := s.pool.Query(ctx, `
	SELECT id, name, topic, description, type, participant_count, created_at, last_message_at, last_activity_at
	FROM rooms
	WHERE $1 OR type != $2
	ORDER BY last_message_at DESC, name ASC`,
		viewerIsVIP, string(VIPOnlyRoom))
	if err != nil {
		return nil, fmt.Errorf("query rooms: %w", err)
	}
	defer rows.Close()

	var rooms []Room
	for rows.Next() {
		var room Room
		var roomType string
		if err := rows.Scan(&room.ID, &room.Name, &room.Topic, &room.Description, &roomType,
			&room.ParticipantCount, &room.CreatedAt, &room.LastMessageAt, &room.LastActivityAt); err != nil {
			return nil, fmt.Errorf("rows.Scan: %w", err)
		}
		room.Type = RoomType(roomType)
		rooms = append(rooms, room)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows.Err: %w", err)
	}
	return rooms, nil
}

func (s *PostgresStore) CountRooms(ctx context.Context) (int, error) {
	var count int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM rooms`).Scan(&count); err != nil {
		return 0, fmt.Errorf("scanning count: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) TouchRoomActivity(ctx context.Context, roomID string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE rooms SET last_activity_at = $1 WHERE id = $2`,
		time.Now().UTC(), roomID)
	if err != nil {
		return fmt.Errorf("touch room: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidRoom
	}
	return nil
}

func (s *PostgresStore) BumpRoomLastMessage(ctx context.Context, roomID string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE rooms SET last_message_at = $1 WHERE id = $2`,
		time.Now().UTC(), roomID)
	if err != nil {
		return fmt.Errorf("bump room: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidRoom
	}
	return nil
}

func (s *PostgresStore) AppendMessage(ctx context.Context, input MessageCreateInput) (*Message, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	timestamp := time.Now().UTC()
	var id int
	err := s.pool.QueryRow(ctx, `
	INSERT INTO messages (room_id, sender_id, sender_name, type, text, media_url, timestamp)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	RETURNING id`,
		input.RoomID, input.SenderID, input.SenderName, string(input.Type),
		input.Text, input.MediaURL, timestamp).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	return &Message{
		ID:         id,
		RoomID:     input.RoomID,
		SenderID:   input.SenderID,
		SenderName: input.SenderName,
		Type:       input.Type,
		Text:       input.Text,
		MediaURL:   input.MediaURL,
		Timestamp:  timestamp,
	}, nil
}

func (s *PostgresStore) TailMessages(ctx context.Context, roomID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx, `
	SELECT id, room_id, sender_id, sender_name, type, text, media_url, timestamp
	FROM messages
	WHERE room_id = $1
	ORDER BY timestamp DESC, id DESC
	LIMIT $2`, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var message Message
		var messageType string
		if err := rows.Scan(&message.ID, &message.RoomID, &message.SenderID, &message.SenderName,
			&messageType, &message.Text, &message.MediaURL, &message.Timestamp); err != nil {
			return nil, fmt.Errorf("rows.Scan: %w", err)
		}
		message.Type = MessageType(messageType)
		messages = append(messages, message)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows.Err: %w", err)
	}

	slices.Reverse(messages)
	return messages, nil
}

func (s *PostgresStore) EnsureProfile(ctx context.Context, uid string, input ProfileCreateInput) (*Profile, error) {
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
	_, err = s.pool.Exec(ctx, `
	INSERT INTO profiles (uid, nickname, age, gender, location, interests, bio, profile_pic_url, is_vip, created_at, last_seen)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, FALSE, $9, $9)`,
		uid, input.Nickname, input.Age, input.Gender, input.Location,
		interests, input.Bio, input.ProfilePicURL, now)
	if err != nil {
		return nil, fmt.Errorf("insert profile: %w", err)
	}

	return s.GetProfile(ctx, uid)
}

func (s *PostgresStore) GetProfile(ctx context.Context, uid string) (*Profile, error) {
	var profile Profile
	var interests string
	err := s.pool.QueryRow(ctx, `
	SELECT uid, nickname, age, gender, location, interests, bio, profile_pic_url, is_vip, created_at, last_seen
	FROM profiles WHERE uid = $1`, uid).Scan(
		&profile.UID, &profile.Nickname, &profile.Age, &profile.Gender,
		&profile.Location, &interests, &profile.Bio, &profile.ProfilePicURL,
		&profile.IsVIP, &profile.CreatedAt, &profile.LastSeen)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scanning profile: %w", err)
	}
	profile.Interests = decodeInterests(interests)
	return &profile, nil
}

func (s *PostgresStore) UpdateProfile(ctx context.Context, uid string, input ProfileUpdateInput) error {
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

	_, err = s.pool.Exec(ctx, `
	UPDATE profiles SET nickname = $1, age = $2, gender = $3, location = $4,
	interests = $5, bio = $6, profile_pic_url = $7
	WHERE uid = $8`,
		profile.Nickname, profile.Age, profile.Gender, profile.Location,
		interests, profile.Bio, profile.ProfilePicURL, uid)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return nil
}

func (s *PostgresStore) Heartbeat(ctx context.Context, uid string) error {
	_, err := s.pool.Exec(ctx, `UPDATE profiles SET last_seen = $1 WHERE uid = $2`,
		time.Now().UTC(), uid)
	if err != nil {
		return fmt.Errorf("heartbeat: %w", err)
	}
	return nil
}

func (s *PostgresStore) SearchProfiles(ctx context.Context, prefix string, limit int) ([]Profile, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.pool.Query(ctx, `
	SELECT uid, nickname, age, gender, location, interests, bio, profile_pic_url, is_vip, created_at, last_seen
	FROM profiles
	WHERE nickname >= $1 AND nickname <= $2
	ORDER BY nickname ASC
	LIMIT $3`, prefix, prefix+"\uffff", limit)
	if err != nil {
		return nil, fmt.Errorf("query profiles: %w", err)
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

func (s *PostgresStore) NicknameAvailable(ctx context.Context, nickname, currentUID string) (bool, error) {
	var uid string
	err := s.pool.QueryRow(ctx, `SELECT uid FROM profiles WHERE nickname = $1 LIMIT 1`, nickname).Scan(&uid)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return true, nil
		}
		return false, fmt.Errorf("scanning uid: %w", err)
	}
	return currentUID != "" && uid == currentUID, nil
}

func (s *PostgresStore) DuplicateNicknames(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT nickname FROM profiles GROUP BY nickname HAVING count(*) > 1 ORDER BY nickname`)
	if err != nil {
		return nil, fmt.Errorf("query duplicates: %w", err)
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

func (s *PostgresStore) SetVIP(ctx context.Context, uid string, isVIP bool) error {
	tag, err := s.pool.Exec(ctx, `UPDATE profiles SET is_vip = $1 WHERE uid = $2`, isVIP, uid)
	if err != nil {
		return fmt.Errorf("set vip: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUnknownProfile
	}
	return nil
}

func (s *PostgresStore) BlockUser(ctx context.Context, uid, target string) error {
	_, err := s.pool.Exec(ctx, `
	INSERT INTO blocked_users (blocker_uid, blocked_uid) VALUES ($1, $2)
	ON CONFLICT DO NOTHING`, uid, target)
	if err != nil {
		return fmt.Errorf("block: %w", err)
	}
	return nil
}

func (s *PostgresStore) UnblockUser(ctx context.Context, uid, target string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM blocked_users WHERE blocker_uid = $1 AND blocked_uid = $2`, uid, target)
	if err != nil {
		return fmt.Errorf("unblock: %w", err)
	}
	return nil
}

func (s *PostgresStore) BlockedUsers(ctx context.Context, uid string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT blocked_uid FROM blocked_users WHERE blocker_uid = $1 ORDER BY blocked_uid`, uid)
	if err != nil {
		return nil, fmt.Errorf("query blocked: %w", err)
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

func (s *PostgresStore) IsBlocked(ctx context.Context, uid, target string) (bool, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM blocked_users WHERE blocker_uid = $1 AND blocked_uid = $2`,
		uid, target).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("scanning count: %w", err)
	}
	return count > 0, nil
}

func (s *PostgresStore) AppendReport(ctx context.Context, input ReportInput) error {
	if err := input.Validate(); err != nil {
		return err
	}

	_, err := s.pool.Exec(ctx, `
	INSERT INTO reports (reporter_id, target, target_id, room_id, reason, description, status, timestamp)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		input.ReporterID, string(input.Target), input.TargetID, input.RoomID,
		input.Reason, input.Description, string(ReportPending), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}
