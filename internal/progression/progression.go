// Package progression turns dialogue quality signals into experience and
// levels.
package progression

import (
	"fmt"
	"sort"

	"github.com/ashureev/junrei/internal/domain"
)

// DefaultThresholds is the exp required for each level. Index i is level i+1.
var DefaultThresholds = []int{
	0,     // Lv.1
	200,   // Lv.2
	500,   // Lv.3
	1000,  // Lv.4
	1800,  // Lv.5
	3000,  // Lv.6
	4500,  // Lv.7
	6500,  // Lv.8
	9000,  // Lv.9
	12000, // Lv.10
}

// Fixed awards for activities outside a dialogue turn.
const (
	DailyLoginReward     = 20
	BookReadReward       = 500
	ShadowDialogueReward = 1000
)

// Tier is the bonus bracket a thought depth falls into.
type Tier int

const (
	TierNone Tier = iota
	TierMid
	TierMax
)

func (t Tier) String() string {
	switch t {
	case TierMid:
		return "mid"
	case TierMax:
		return "max"
	default:
		return "none"
	}
}

// Config holds the level table and per-turn reward constants.
type Config struct {
	Thresholds    []int
	SessionReward int
	MidBonus      int
	MaxBonus      int
	MidCutoff     int
	MaxCutoff     int
}

// DefaultConfig returns the production reward table.
func DefaultConfig() Config {
	return Config{
		Thresholds:    append([]int(nil), DefaultThresholds...),
		SessionReward: 100,
		MidBonus:      50,
		MaxBonus:      200,
		MidCutoff:     4,
		MaxCutoff:     7,
	}
}

// Validate checks that the table is usable.
func (c Config) Validate() error {
	if len(c.Thresholds) == 0 {
		return fmt.Errorf("thresholds cannot be empty")
	}
	if !sort.IntsAreSorted(c.Thresholds) {
		return fmt.Errorf("thresholds must be ascending")
	}
	if c.SessionReward < 0 || c.MidBonus < 0 || c.MaxBonus < 0 {
		return fmt.Errorf("rewards must be >= 0")
	}
	if c.MidCutoff > c.MaxCutoff {
		return fmt.Errorf("mid cutoff %d exceeds max cutoff %d", c.MidCutoff, c.MaxCutoff)
	}
	return nil
}

// NextLevel adds delta to currentExp and returns the new exp with the highest
// level whose threshold it reaches. The table is scanned from the top so an
// exact hit on a threshold promotes immediately. If no threshold is reached
// the level is 1.
func NextLevel(currentExp, delta int, thresholds []int) (newExp, newLevel int) {
	newExp = currentExp + delta
	newLevel = 1
	for i := len(thresholds) - 1; i >= 0; i-- {
		if newExp >= thresholds[i] {
			newLevel = i + 1
			break
		}
	}
	return newExp, newLevel
}

// Bonus maps a thought depth to exactly one bonus tier and its amount.
func (c Config) Bonus(depth int) (Tier, int) {
	switch {
	case depth >= c.MaxCutoff:
		return TierMax, c.MaxBonus
	case depth >= c.MidCutoff:
		return TierMid, c.MidBonus
	default:
		return TierNone, 0
	}
}

// TurnAward is the total exp for one successful dialogue exchange.
func (c Config) TurnAward(depth int) int {
	_, bonus := c.Bonus(depth)
	return c.SessionReward + bonus
}

// Award returns an award of delta exp that the store applies against the
// stored profile. The level is recomputed from the new total and never falls.
func (c Config) Award(delta int) domain.ExpAward {
	thresholds := c.Thresholds
	return domain.ExpAward{
		Delta: delta,
		LevelFor: func(exp int) int {
			_, level := NextLevel(exp, 0, thresholds)
			return level
		},
	}
}

// ExpToNextLevel returns how much exp is still needed to reach the next
// level, or 0 at the top of the table.
func ExpToNextLevel(exp int, thresholds []int) int {
	for _, th := range thresholds {
		if th > exp {
			return th - exp
		}
	}
	return 0
}
