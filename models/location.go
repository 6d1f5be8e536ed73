package models

// ==================== LOCATION MODELS ====================

// Coordinate is a WGS-84 position.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// WatchRegion is the provider-facing shape of a monitored circle. The
// provider watches by identifier and is capacity-limited; it silently drops
// crossing callbacks for identifiers it is not watching.
type WatchRegion struct {
	Identifier string  `json:"id"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	Radius     float64 `json:"radiusInMeters"`
}

// LocationUsage is the authorization level requested from the provider.
type LocationUsage string

const (
	// UsageWhenInUse authorizes location access while the app is foregrounded.
	UsageWhenInUse LocationUsage = "whenInUse"
	// UsageAlways authorizes location access at any time.
	UsageAlways LocationUsage = "always"
)

// CapabilityStatus is the provider's authorization state for region monitoring.
type CapabilityStatus string

const (
	CapabilityNotDetermined CapabilityStatus = "notDetermined"
	CapabilityAuthorized    CapabilityStatus = "authorized"
	CapabilityDenied        CapabilityStatus = "denied"
	CapabilityNotAvailable  CapabilityStatus = "notAvailable"
)

// TrackingMode selects how the provider reports location updates. Continuous
// tracking is used in the foreground, significant-change tracking in the
// background to save power.
type TrackingMode string

const (
	TrackingContinuous        TrackingMode = "continuous"
	TrackingSignificantChange TrackingMode = "significantChange"
	TrackingOff               TrackingMode = "off"
)
