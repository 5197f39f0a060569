// Package gradient holds the canonical 11-bin gradient taxonomy used to
// bucket paces throughout the profile builder and personaliser, plus the
// legacy 7-bin projection kept for display/backward-compatible fields.
//
// Paces are never computed in the 7-bin space; it exists purely as a
// sample-weighted projection of the 11-bin data (spec §9: "Gradient
// taxonomy duplication").
package gradient

// Category11 is the canonical 11-bin gradient taxonomy.
type Category11 string

const (
	ExtremeDown  Category11 = "extreme_down"
	SteepDown    Category11 = "steep_down"
	ModerateDown Category11 = "moderate_down"
	LightDown    Category11 = "light_down"
	GentleDown   Category11 = "gentle_down"
	Flat         Category11 = "flat"
	GentleUp     Category11 = "gentle_up"
	LightUp      Category11 = "light_up"
	ModerateUp   Category11 = "moderate_up"
	SteepUp      Category11 = "steep_up"
	ExtremeUp    Category11 = "extreme_up"
)

// All11 lists every 11-bin category in ascending-gradient order.
var All11 = []Category11{
	ExtremeDown, SteepDown, ModerateDown, LightDown, GentleDown,
	Flat,
	GentleUp, LightUp, ModerateUp, SteepUp, ExtremeUp,
}

// Category7 is the legacy taxonomy retained for scalar display fields.
type Category7 string

const (
	SteepDown7    Category7 = "steep_down"
	ModerateDown7 Category7 = "moderate_down"
	GentleDown7   Category7 = "gentle_down"
	Flat7         Category7 = "flat"
	GentleUp7     Category7 = "gentle_up"
	ModerateUp7   Category7 = "moderate_up"
	SteepUp7      Category7 = "steep_up"
)

// bin boundaries in gradient percent, symmetric around flat: the ~5%
// bands are ±3, 3-8, 8-12, 12-17, 17-23 and beyond-23 (scrambling).
const (
	boundExtreme  = 23.0
	boundSteep    = 17.0
	boundModerate = 12.0
	boundLight    = 8.0
	boundGentle   = 3.0
)

// Classify11 maps a signed gradient percentage to its 11-bin category.
func Classify11(gradientPercent float64) Category11 {
	g := gradientPercent
	switch {
	case g <= -boundExtreme:
		return ExtremeDown
	case g <= -boundSteep:
		return SteepDown
	case g <= -boundModerate:
		return ModerateDown
	case g <= -boundLight:
		return LightDown
	case g < -boundGentle:
		return GentleDown
	case g <= boundGentle:
		return Flat
	case g < boundLight:
		return GentleUp
	case g < boundModerate:
		return LightUp
	case g < boundSteep:
		return ModerateUp
	case g < boundExtreme:
		return SteepUp
	default:
		return ExtremeUp
	}
}

// Classify7 maps a signed gradient percentage directly to the legacy
// 7-bin category (used only for display/scalar fields, never for pace
// lookups).
func Classify7(gradientPercent float64) Category7 {
	return Project(Classify11(gradientPercent))
}

// Project maps an 11-bin category down to its legacy 7-bin label. The
// 8-12% and 12-17% bands both fold into the moderate legacy bucket,
// whose boundaries (8-15%) straddle them.
func Project(c Category11) Category7 {
	switch c {
	case ExtremeDown, SteepDown:
		return SteepDown7
	case ModerateDown, LightDown:
		return ModerateDown7
	case GentleDown:
		return GentleDown7
	case Flat:
		return Flat7
	case GentleUp:
		return GentleUp7
	case LightUp, ModerateUp:
		return ModerateUp7
	case SteepUp, ExtremeUp:
		return SteepUp7
	default:
		return Flat7
	}
}

// Midpoint returns a representative gradient percentage for a category,
// used by the Personaliser fallback path (spec §4.5 invariant 6: a
// low-sample category must fall back to "the formula at the midpoint
// gradient of that category").
func Midpoint(c Category11) float64 {
	switch c {
	case ExtremeDown:
		return -26.0
	case SteepDown:
		return -20.0
	case ModerateDown:
		return -14.5
	case LightDown:
		return -10.0
	case GentleDown:
		return -5.5
	case Flat:
		return 0.0
	case GentleUp:
		return 5.5
	case LightUp:
		return 10.0
	case ModerateUp:
		return 14.5
	case SteepUp:
		return 20.0
	case ExtremeUp:
		return 26.0
	default:
		return 0.0
	}
}
