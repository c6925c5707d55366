package core

import (
	"context"
	"errors"
	"time"
)

// Gender values accepted on a profile.
const (
	GenderMale           = "masculino"
	GenderFemale         = "femenino"
	GenderOther          = "otro"
	GenderPreferNotToSay = "prefiero_no_decir"
)

// ArgentinaProvinces is the catalog of accepted profile locations.
var ArgentinaProvinces = []string{
	"Buenos Aires", "Catamarca", "Chaco", "Chubut", "Córdoba",
	"Corrientes", "Entre Ríos", "Formosa", "Jujuy", "La Pampa",
	"La Rioja", "Mendoza", "Misiones", "Neuquén", "Río Negro",
	"Salta", "San Juan", "San Luis", "Santa Cruz", "Santa Fe",
	"Santiago del Estero", "Tierra del Fuego", "Tucumán",
	"Ciudad Autónoma de Buenos Aires",
}

// Profile is a user's public identity and preferences. The uid is the
// stable identity key handed out by the identity provider.
type Profile struct {
	UID           string    `json:"uid"`
	Nickname      string    `json:"nickname"`
	Age           int       `json:"age"`
	Gender        string    `json:"gender"`
	Location      string    `json:"location"`
	Interests     []string  `json:"interests"`
	Bio           string    `json:"bio"`
	ProfilePicURL string    `json:"profile_pic_url"`
	IsVIP         bool      `json:"is_vip"`
	CreatedAt     time.Time `json:"created_at"`
	LastSeen      time.Time `json:"last_seen"`
}

var (
	ErrInvalidProfile = errors.New("invalid profile")
	ErrUnknownProfile = errors.New("unknown profile")
	// ErrNicknameTaken is returned by the best-effort availability
	// check. The check is not transactional: two concurrent writers can
	// both pass it and both succeed.
	ErrNicknameTaken = errors.New("nickname already taken")
)

// ProfileCreateInput is the input for creating a profile on first
// authentication.
type ProfileCreateInput struct {
	Nickname      string   `json:"nickname" validate:"required,min=3,max=20,nickname"`
	Age           int      `json:"age" validate:"required,gte=13,lte=120"`
	Gender        string   `json:"gender" validate:"required,oneof=masculino femenino otro prefiero_no_decir"`
	Location      string   `json:"location" validate:"max=60"`
	Interests     []string `json:"interests" validate:"max=10,dive,max=30"`
	Bio           string   `json:"bio" validate:"max=300"`
	ProfilePicURL string   `json:"profile_pic_url"`
}

func (p *ProfileCreateInput) Validate() error {
	if err := validate.Struct(p); err != nil {
		return ErrInvalidProfile
	}
	return nil
}

// ProfileUpdateInput carries the mutable profile fields. Nil fields are
// left unchanged.
type ProfileUpdateInput struct {
	Nickname      *string  `json:"nickname" validate:"omitempty,min=3,max=20,nickname"`
	Age           *int     `json:"age" validate:"omitempty,gte=13,lte=120"`
	Gender        *string  `json:"gender" validate:"omitempty,oneof=masculino femenino otro prefiero_no_decir"`
	Location      *string  `json:"location" validate:"omitempty,max=60"`
	Interests     []string `json:"interests" validate:"omitempty,max=10,dive,max=30"`
	Bio           *string  `json:"bio" validate:"omitempty,max=300"`
	ProfilePicURL *string  `json:"profile_pic_url"`
}

func (p *ProfileUpdateInput) Validate() error {
	if err := validate.Struct(p); err != nil {
		return ErrInvalidProfile
	}
	return nil
}

type ProfileStore interface {

	// EnsureProfile creates the profile for uid if absent. It is the
	// create-on-first-authentication path; an existing profile is left
	// untouched and returned.
	EnsureProfile(ctx context.Context, uid string, input ProfileCreateInput) (*Profile, error)

	// GetProfile returns the profile for uid, or nil if absent.
	GetProfile(ctx context.Context, uid string) (*Profile, error)

	// UpdateProfile applies the non-nil fields of input.
	UpdateProfile(ctx context.Context, uid string, input ProfileUpdateInput) error

	// Heartbeat bumps the profile's last_seen.
	Heartbeat(ctx context.Context, uid string) error

	// SearchProfiles returns profiles whose nickname starts with prefix,
	// ordered by nickname. The match is case sensitive.
	SearchProfiles(ctx context.Context, prefix string, limit int) ([]Profile, error)

	// NicknameAvailable reports whether nickname is unused, treating a
	// profile owned by currentUID as available. Check-then-write only;
	// concurrent registrations can both observe availability.
	NicknameAvailable(ctx context.Context, nickname, currentUID string) (bool, error)

	// DuplicateNicknames returns nicknames held by more than one
	// profile. Used by moderation tooling to detect the registration
	// race after the fact.
	DuplicateNicknames(ctx context.Context) ([]string, error)

	// SetVIP flips the profile's VIP entitlement.
	SetVIP(ctx context.Context, uid string, isVIP bool) error

	// BlockUser adds target to uid's blocked set. Idempotent.
	BlockUser(ctx context.Context, uid, target string) error

	// UnblockUser removes target from uid's blocked set. Idempotent.
	UnblockUser(ctx context.Context, uid, target string) error

	// BlockedUsers returns uid's blocked set.
	BlockedUsers(ctx context.Context, uid string) ([]string, error)

	// IsBlocked reports whether target is in uid's blocked set.
	IsBlocked(ctx context.Context, uid, target string) (bool, error)
}
