package model

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type CreatorKind string

const (
	CreatorConsole    CreatorKind = "CONSOLE"
	CreatorUser       CreatorKind = "USER"
	CreatorUnresolved CreatorKind = "UNRESOLVED"
)

// Creator identifies who opened a ticket or performed an action: the server
// console or a player (by UUID). Unresolved is a sentinel produced when a
// player name in search input cannot be resolved to a UUID; it never matches
// a real creator.
type Creator struct {
	Kind CreatorKind `json:"kind"`
	UUID uuid.UUID   `json:"uuid,omitempty"`
}

func Console() Creator {
	return Creator{Kind: CreatorConsole}
}

func User(id uuid.UUID) Creator {
	return Creator{Kind: CreatorUser, UUID: id}
}

func Unresolved() Creator {
	return Creator{Kind: CreatorUnresolved}
}

func (c Creator) Equal(other Creator) bool {
	if c.Kind != other.Kind {
		return false
	}
	if c.Kind == CreatorUser {
		return c.UUID == other.UUID
	}
	return c.Kind != CreatorUnresolved // two unresolved sentinels never match
}

// String renders the column/wire form: "CONSOLE", "USER.<uuid>" or "UNRESOLVED".
func (c Creator) String() string {
	if c.Kind == CreatorUser {
		return string(CreatorUser) + "." + c.UUID.String()
	}
	return string(c.Kind)
}

// ParseCreator is the inverse of String.
func ParseCreator(s string) (Creator, error) {
	switch {
	case s == string(CreatorConsole):
		return Console(), nil
	case s == string(CreatorUnresolved):
		return Unresolved(), nil
	case strings.HasPrefix(s, string(CreatorUser)+"."):
		id, err := uuid.Parse(strings.TrimPrefix(s, string(CreatorUser)+"."))
		if err != nil {
			return Creator{}, fmt.Errorf("parse creator %q: %w", s, err)
		}
		return User(id), nil
	default:
		return Creator{}, fmt.Errorf("parse creator: unsupported form %q", s)
	}
}

func (c Creator) MarshalJSON() ([]byte, error) {
	return []byte(`"` + c.String() + `"`), nil
}

func (c *Creator) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	parsed, err := ParseCreator(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
