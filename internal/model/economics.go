package model

// Line-haul economics applied when a load carries no negotiated rate.
const (
	// DefaultRatePerMile prices earnings and cost comparisons, $/mi.
	DefaultRatePerMile = 1.80
	// CO2KgPerMile is the emission factor for a loaded class-8 mile.
	CO2KgPerMile = 0.5
)
