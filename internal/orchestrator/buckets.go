package orchestrator

// bucket maps a 0-100 slider value onto one of five ordinal buckets:
// <=20, <=40, <=60, <=80, >80.
func bucket(v int) int {
	switch {
	case v <= 20:
		return 0
	case v <= 40:
		return 1
	case v <= 60:
		return 2
	case v <= 80:
		return 3
	default:
		return 4
	}
}

var energyPhrases = [5]string{
	"quiet, minimal, ambient, whisper-soft, ~60 BPM",
	"gentle, relaxed, easy-going, mellow, ~80 BPM",
	"moderate energy, steady, flowing, ~100 BPM",
	"energetic, driving, powerful, upbeat, ~120 BPM",
	"intense, explosive, soaring, maximum energy, ~140 BPM",
}

var stylePhrases = [5]string{
	"lo-fi hip-hop, vinyl crackle, tape warble, bedroom, Rhodes piano",
	"indie, acoustic, intimate, small-room, soft keys",
	"polished, balanced, clean production, piano and light strings",
	"cinematic, orchestral swell, wide stereo, dramatic, full strings",
	"epic orchestral, massive, soaring strings, choir, blockbuster",
}

var warmthPhrases = [5]string{
	"warm analog, dark tone, round bass, vintage, tape saturation",
	"warm, smooth, soft, muted, cozy, soft reverb",
	"natural, balanced tone, clear",
	"bright, crisp, shimmering, airy, sparkling",
	"crystalline, digital, glass-like, ultra-bright, neon",
}

var arcPhrases = [5]string{
	"steady, unchanging, ambient loop, constant, flat dynamics",
	"gentle variation, subtle breathing, light swell",
	"evolving, verse-chorus, moderate build",
	"building, rising intensity, crescendo, climax",
	"starts quiet, massive build, explosive climax, drop",
}

// DescribeEnergy returns tempo and texture words for an energy value.
func DescribeEnergy(v int) string { return energyPhrases[bucket(v)] }

// DescribeStyle returns genre and instrumentation words for a style value.
func DescribeStyle(v int) string { return stylePhrases[bucket(v)] }

// DescribeWarmth returns tonal-color words for a warmth value.
func DescribeWarmth(v int) string { return warmthPhrases[bucket(v)] }

// DescribeArc returns temporal-shape words for an arc value.
func DescribeArc(v int) string { return arcPhrases[bucket(v)] }
