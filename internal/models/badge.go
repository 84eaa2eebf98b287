package models

// Badge is the display tier derived from a profile level.
type Badge string

const (
	BadgeNovice       Badge = "novice"
	BadgeInvestigator Badge = "investigator"
	BadgeExperienced  Badge = "experienced"
	BadgeMaster       Badge = "master"
)

// BadgeFor maps a level to its badge. Levels below 1 are treated as novice.
func BadgeFor(level int) Badge {
	switch {
	case level >= 10:
		return BadgeMaster
	case level >= 5:
		return BadgeExperienced
	case level >= 3:
		return BadgeInvestigator
	default:
		return BadgeNovice
	}
}
