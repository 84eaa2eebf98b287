package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Category of a story.
type Category string

const (
	CategoryGhosts     Category = "ghosts"
	CategoryHaunting   Category = "haunting"
	CategoryUFO        Category = "ufo"
	CategoryCreature   Category = "creature"
	CategoryParanormal Category = "paranormal"
	CategoryOther      Category = "other"
)

// Categories in display order.
var Categories = []Category{
	CategoryGhosts,
	CategoryHaunting,
	CategoryUFO,
	CategoryCreature,
	CategoryParanormal,
	CategoryOther,
}

func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// ActionType of a moderation log entry.
type ActionType string

const (
	ActionBanUser      ActionType = "ban_user"
	ActionUnbanUser    ActionType = "unban_user"
	ActionDeleteStory  ActionType = "delete_story"
	ActionPromoteAdmin ActionType = "promote_admin"
)

// StringList is an ordered list of strings stored as a JSON array in a text column.
type StringList []string

// Value implements driver.Valuer. A nil list is stored as "[]".
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (l *StringList) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*l = StringList{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("StringList: unsupported scan type %T", src)
	}
	if len(raw) == 0 {
		*l = StringList{}
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("StringList: %w", err)
	}
	*l = out
	return nil
}
