package progression

import (
	"math/rand"
	"testing"

	"github.com/ashureev/junrei/internal/domain"
)

func TestNextLevel(t *testing.T) {
	thresholds := DefaultThresholds

	tests := []struct {
		name      string
		exp       int
		delta     int
		wantExp   int
		wantLevel int
	}{
		{name: "Fresh profile", exp: 0, delta: 0, wantExp: 0, wantLevel: 1},
		{name: "Below level 2", exp: 100, delta: 99, wantExp: 199, wantLevel: 1},
		{name: "Exactly level 2", exp: 100, delta: 100, wantExp: 200, wantLevel: 2},
		{name: "Exactly level 3", exp: 0, delta: 500, wantExp: 500, wantLevel: 3},
		{name: "Skip several levels", exp: 150, delta: 3000, wantExp: 3150, wantLevel: 6},
		{name: "Top of table", exp: 12000, delta: 0, wantExp: 12000, wantLevel: 10},
		{name: "Beyond table", exp: 50000, delta: 100, wantExp: 50100, wantLevel: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotExp, gotLevel := NextLevel(tt.exp, tt.delta, thresholds)
			if gotExp != tt.wantExp || gotLevel != tt.wantLevel {
				t.Errorf("NextLevel(%d, %d) = (%d, %d), want (%d, %d)",
					tt.exp, tt.delta, gotExp, gotLevel, tt.wantExp, tt.wantLevel)
			}
		})
	}
}

func TestNextLevelExactThresholdPromotes(t *testing.T) {
	for i, th := range DefaultThresholds {
		_, level := NextLevel(th, 0, DefaultThresholds)
		if level != i+1 {
			t.Errorf("exp %d: expected level %d, got %d", th, i+1, level)
		}
	}
}

func TestNextLevelMonotonic(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for run := 0; run < 50; run++ {
		exp, level := 0, 1
		for step := 0; step < 100; step++ {
			delta := rng.Intn(400)
			var next int
			exp, next = NextLevel(exp, delta, DefaultThresholds)
			if next < level {
				t.Fatalf("run %d step %d: level dropped from %d to %d at exp %d", run, step, level, next, exp)
			}
			level = next
		}
	}
}

func TestBonusTiers(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		depth     int
		wantTier  Tier
		wantBonus int
	}{
		{depth: 10, wantTier: TierMax, wantBonus: 200},
		{depth: 8, wantTier: TierMax, wantBonus: 200},
		{depth: 7, wantTier: TierMax, wantBonus: 200},
		{depth: 6, wantTier: TierMid, wantBonus: 50},
		{depth: 5, wantTier: TierMid, wantBonus: 50},
		{depth: 4, wantTier: TierMid, wantBonus: 50},
		{depth: 3, wantTier: TierNone, wantBonus: 0},
		{depth: 2, wantTier: TierNone, wantBonus: 0},
		{depth: 0, wantTier: TierNone, wantBonus: 0},
	}

	for _, tt := range tests {
		tier, bonus := cfg.Bonus(tt.depth)
		if tier != tt.wantTier || bonus != tt.wantBonus {
			t.Errorf("Bonus(%d) = (%s, %d), want (%s, %d)", tt.depth, tier, bonus, tt.wantTier, tt.wantBonus)
		}
	}
}

func TestTurnAward(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.TurnAward(8); got != 300 {
		t.Errorf("TurnAward(8) = %d, want 300", got)
	}
	if got := cfg.TurnAward(5); got != 150 {
		t.Errorf("TurnAward(5) = %d, want 150", got)
	}
	if got := cfg.TurnAward(2); got != 100 {
		t.Errorf("TurnAward(2) = %d, want 100", got)
	}
}

func TestAwardNeverLowersLevel(t *testing.T) {
	cfg := DefaultConfig()
	// Level granted out of band is kept even though exp alone would say 1.
	profile := &domain.UserProfile{Level: 4, Exp: 10}

	award := cfg.Award(0)
	award.Apply(profile)
	if profile.Level != 4 || profile.Exp != 10 {
		t.Errorf("expected (10, 4), got (%d, %d)", profile.Exp, profile.Level)
	}

	profile = &domain.UserProfile{Level: 1, Exp: 150}
	award = cfg.Award(100)
	award.Apply(profile)
	if profile.Level != 2 || profile.Exp != 250 {
		t.Errorf("expected (250, 2), got (%d, %d)", profile.Exp, profile.Level)
	}
}

func TestAwardsAccumulate(t *testing.T) {
	cfg := DefaultConfig()
	profile := &domain.UserProfile{Level: 1}

	// Two awards built from the same starting point must both count.
	first, second := cfg.Award(100), cfg.Award(150)
	first.Apply(profile)
	second.Apply(profile)
	if profile.Exp != 250 || profile.Level != 2 {
		t.Errorf("expected (250, 2), got (%d, %d)", profile.Exp, profile.Level)
	}
}

func TestAwardFirstTitleOnlyWhenUntitled(t *testing.T) {
	award := DefaultConfig().Award(100)
	award.FirstTitle = "旅立つ者"

	untitled := &domain.UserProfile{Level: 1}
	award.Apply(untitled)
	if untitled.Title != "旅立つ者" {
		t.Errorf("expected first title, got %q", untitled.Title)
	}

	titled := &domain.UserProfile{Level: 1, Title: "既存"}
	award.Apply(titled)
	if titled.Title != "既存" {
		t.Errorf("existing title overwritten: %q", titled.Title)
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}

	bad := DefaultConfig()
	bad.Thresholds = []int{0, 500, 200}
	if err := bad.Validate(); err == nil {
		t.Error("expected error for unsorted thresholds")
	}

	bad = DefaultConfig()
	bad.MidCutoff = 9
	if err := bad.Validate(); err == nil {
		t.Error("expected error for inverted cutoffs")
	}
}

func TestExpToNextLevel(t *testing.T) {
	if got := ExpToNextLevel(150, DefaultThresholds); got != 50 {
		t.Errorf("expected 50, got %d", got)
	}
	if got := ExpToNextLevel(200, DefaultThresholds); got != 300 {
		t.Errorf("expected 300, got %d", got)
	}
	if got := ExpToNextLevel(20000, DefaultThresholds); got != 0 {
		t.Errorf("expected 0 at top of table, got %d", got)
	}
}

func TestTitleFor(t *testing.T) {
	name, ok := TitleFor(TitleFirstDialogue)
	if !ok || name != "旅立つ者" {
		t.Errorf("unexpected title: %q %v", name, ok)
	}
	if _, ok := TitleFor("unknown"); ok {
		t.Error("expected unknown title to be missing")
	}
}
