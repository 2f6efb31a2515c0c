package game

import (
	"fmt"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// EndCondition is an optional scenario-scripted ending: a compiled boolean
// expression over the state snapshot that hands the game to Winner when it
// evaluates true. The standard win conditions always apply on top.
type EndCondition struct {
	Expr   string `json:"expr"`
	Winner Camp   `json:"winner"`

	program *vm.Program
}

// RulesConfig fixes the roster, pacing, and optional scripted endings for
// one game.
type RulesConfig struct {
	Roster        []Role         `json:"roster"`
	TurnTimeout   time.Duration  `json:"turn_timeout"`
	Seed          int64          `json:"seed,omitempty"`
	EndConditions []EndCondition `json:"end_conditions,omitempty"`
}

// DefaultRules returns the roster preset for the given seat count.
func DefaultRules(seats int) RulesConfig {
	var roster []Role
	switch {
	case seats <= 6:
		roster = []Role{RoleWerewolf, RoleWerewolf, RoleSeer, RoleWitch, RoleVillager, RoleVillager}
	case seats == 7:
		roster = []Role{RoleWerewolf, RoleWerewolf, RoleSeer, RoleWitch, RoleHunter, RoleVillager, RoleVillager}
	case seats == 8:
		roster = []Role{RoleWerewolf, RoleWerewolf, RoleSeer, RoleWitch, RoleHunter, RoleVillager, RoleVillager, RoleVillager}
	case seats == 9:
		roster = []Role{RoleAlphaWolf, RoleWerewolf, RoleWerewolf, RoleSeer, RoleWitch, RoleHunter, RoleVillager, RoleVillager, RoleVillager}
	case seats == 10:
		roster = []Role{RoleAlphaWolf, RoleWerewolf, RoleWerewolf, RoleSeer, RoleWitch, RoleHunter, RoleGuard, RoleVillager, RoleVillager, RoleVillager}
	case seats == 11:
		roster = []Role{RoleAlphaWolf, RoleWerewolf, RoleWerewolf, RoleSeer, RoleWitch, RoleHunter, RoleGuard, RoleVillager, RoleVillager, RoleVillager, RoleVillager}
	default:
		roster = []Role{RoleAlphaWolf, RoleWerewolf, RoleWerewolf, RoleWerewolf, RoleSeer, RoleWitch, RoleHunter, RoleGuard, RoleVillager, RoleVillager, RoleVillager, RoleVillager}
	}
	return RulesConfig{
		Roster:      roster,
		TurnTimeout: 30 * time.Second,
	}
}

// conditionEnv mirrors the State.Snapshot shape. Compiling against it binds
// identifiers like "round" to the snapshot fields instead of expr builtins.
var conditionEnv = map[string]interface{}{
	"round":        0,
	"phase":        "",
	"alive_wolves": 0,
	"alive_good":   0,
	"players":      []map[string]interface{}{},
	"vote_count":   0,
}

// Compile pre-compiles every end-condition expression. Must be called once
// before evaluation; a bad expression is a setup error, not a runtime one.
func (c *RulesConfig) Compile() error {
	for i := range c.EndConditions {
		program, err := expr.Compile(c.EndConditions[i].Expr, expr.Env(conditionEnv))
		if err != nil {
			return fmt.Errorf("compile end condition %q: %w", c.EndConditions[i].Expr, err)
		}
		c.EndConditions[i].program = program
	}
	return nil
}

// EvaluateEnd runs the scripted end conditions against a state snapshot and
// returns the first winner whose condition holds.
func (c *RulesConfig) EvaluateEnd(snapshot map[string]interface{}) (Camp, bool) {
	for i := range c.EndConditions {
		cond := &c.EndConditions[i]
		if cond.program == nil {
			continue
		}
		result, err := expr.Run(cond.program, snapshot)
		if err != nil {
			continue
		}
		if ok, is := result.(bool); is && ok {
			return cond.Winner, true
		}
	}
	return "", false
}

// Validate checks the roster for playability.
func (c *RulesConfig) Validate() error {
	if len(c.Roster) < 4 {
		return fmt.Errorf("roster needs at least 4 seats, got %d", len(c.Roster))
	}
	wolves := 0
	for _, role := range c.Roster {
		if !ValidRole(role) {
			return fmt.Errorf("unknown role %q in roster", role)
		}
		if CampOf(role) == CampWerewolf {
			wolves++
		}
	}
	if wolves == 0 {
		return fmt.Errorf("roster has no werewolf-camp seats")
	}
	if wolves >= len(c.Roster)-wolves {
		return fmt.Errorf("roster starts with wolves already at parity")
	}
	return nil
}
