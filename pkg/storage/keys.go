package storage

// Keys of the stored preferences.
const (
	KeyBusinessUnit   = "businessUnit"
	KeyRecentPolicies = "recentPolicies"
	KeyTripDates      = "tripDates"
	KeyLastOPID       = "lastOpid"

	// Legacy business unit keys, removed when a user picks a unit.
	KeyLegacyBusinessUnitID   = "businessUnitId"
	KeyLegacyBusinessUnitName = "businessUnitName"
)

// MaxRecentPolicies is how many recently viewed policies are kept.
const MaxRecentPolicies = 10
