package cortex

// PermanentTTL is the sentinel returned by ImportanceToTTL for memories that
// should be promoted to the identity tier instead of expiring.
const PermanentTTL = -1

// ImportanceToTTL converts an importance score into a working-memory TTL in
// minutes. Total over the real line: scores below the table clamp into the
// lowest bucket, scores of 1.0 and above promote to identity.
//
//	< 0.2       30 min   "user said ok"
//	[0.2, 0.4)  90 min   "good conversation"
//	[0.4, 0.6)  180 min  "helped debug tricky issue"
//	[0.6, 0.8)  300 min  "user shared something personal"
//	[0.8, 1.0)  360 min  "major breakthrough"
//	>= 1.0      permanent
func ImportanceToTTL(importance float64) int {
	switch {
	case importance >= 1.0:
		return PermanentTTL
	case importance < 0.2:
		return 30
	case importance < 0.4:
		return 90
	case importance < 0.6:
		return 180
	case importance < 0.8:
		return 300
	default:
		return 360
	}
}
