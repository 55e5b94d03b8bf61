package progression

// Title keys awarded for milestones.
const (
	TitleFirstDialogue   = "first_dialogue"
	TitleTier0Clear      = "tier0_clear"
	TitleTier1Clear      = "tier1_clear"
	TitleTier2Clear      = "tier2_clear"
	TitleFinalClear      = "final_clear"
	TitleAllTemperaments = "all_temperaments"
)

var titles = map[string]string{
	TitleFirstDialogue:   "旅立つ者",
	TitleTier0Clear:      "問いを知った者",
	TitleTier1Clear:      "世界を見た者",
	TitleTier2Clear:      "深淵を渡った者",
	TitleFinalClear:      "巡礼を終えた者",
	TitleAllTemperaments: "万象を巡った者",
}

// TitleFor returns the display name for a title key.
func TitleFor(key string) (string, bool) {
	name, ok := titles[key]
	return name, ok
}
