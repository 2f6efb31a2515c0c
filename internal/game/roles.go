package game

import "fmt"

// Role is the closed set of seat roles. Camp and night behavior dispatch on
// it exhaustively; an unknown role is an error, not a silent lookup miss.
type Role string

const (
	RoleWerewolf  Role = "werewolf"
	RoleAlphaWolf Role = "alpha_wolf"
	RoleSeer      Role = "seer"
	RoleWitch     Role = "witch"
	RoleHunter    Role = "hunter"
	RoleGuard     Role = "guard"
	RoleVillager  Role = "villager"
)

// Camp is the coalition a role belongs to. It decides win conditions and is
// never shown to other players.
type Camp string

const (
	CampWerewolf Camp = "werewolf"
	CampGood     Camp = "good"
)

// CampOf derives the camp from the role. Role and camp never change after
// assignment.
func CampOf(role Role) Camp {
	switch role {
	case RoleWerewolf, RoleAlphaWolf:
		return CampWerewolf
	case RoleSeer, RoleWitch, RoleHunter, RoleGuard, RoleVillager:
		return CampGood
	default:
		// Closed set; reaching this means a roster bug.
		panic(fmt.Sprintf("unknown role %q", role))
	}
}

// ValidRole reports whether role is a member of the closed role set.
func ValidRole(role Role) bool {
	switch role {
	case RoleWerewolf, RoleAlphaWolf, RoleSeer, RoleWitch, RoleHunter, RoleGuard, RoleVillager:
		return true
	default:
		return false
	}
}

// IsGod reports whether a good-camp role counts as a god seat for the
// werewolf side-elimination win condition.
func IsGod(role Role) bool {
	switch role {
	case RoleSeer, RoleWitch, RoleHunter:
		return true
	default:
		return false
	}
}

// ActionKind identifies what a seat is being asked to decide.
type ActionKind string

const (
	ActionKill       ActionKind = "kill"
	ActionCheck      ActionKind = "check"
	ActionSave       ActionKind = "save"
	ActionPoison     ActionKind = "poison"
	ActionGuard      ActionKind = "guard"
	ActionVote       ActionKind = "vote"
	ActionShoot      ActionKind = "shoot"
	ActionDiscussion ActionKind = "discussion"
)
