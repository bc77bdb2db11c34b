package waterledger

// Role names a capability an identity can hold in the access registry.
type Role string

const (
	RoleVerifier    Role = "verifier"
	RoleDistributor Role = "distributor"
)

// Validation ceilings for measurements. These are plausibility bounds on
// what a sensor can report, not safety thresholds — a pH of 300 (3.00) is a
// valid measurement of very unsafe water. pH and temperature also require a
// strictly positive reading; TDS and turbidity accept zero.
const (
	MaxPH          = 1400 // pH x100, so 14.00
	MaxTDS         = 2000 // ppm
	MaxTurbidity   = 1000 // NTU
	MaxTemperature = 1000 // Celsius x10, so 100.0
)

// QualityRecord is one water-quality measurement at a sampling location.
// Records are immutable once appended; IsSafe is the verdict computed at
// append time and never re-evaluated.
type QualityRecord struct {
	ID          uint64 `json:"id"          db:"id"`
	Location    string `json:"location"    db:"location"`
	PH          int64  `json:"ph"          db:"ph"`
	TDS         int64  `json:"tds"         db:"tds"`
	Turbidity   int64  `json:"turbidity"   db:"turbidity"`
	Temperature int64  `json:"temperature" db:"temperature"`
	IsSafe      bool   `json:"is_safe"     db:"is_safe"`
	Verifier    string `json:"verifier"    db:"verifier"`
	RecordedAt  int64  `json:"recorded_at" db:"recorded_at"`
}

// DistributionRecord is one shipment of water from a source to a
// destination, always backed by a safe quality record. The only field that
// ever changes after append is the delivered flag, which transitions
// false→true exactly once (stamping DeliveredAt).
type DistributionRecord struct {
	ID          uint64 `json:"id"           db:"id"`
	Source      string `json:"source"       db:"source"`
	Destination string `json:"destination"  db:"destination"`
	Quantity    int64  `json:"quantity"     db:"quantity"` // litres
	QualityRef  uint64 `json:"quality_ref"  db:"quality_ref"`
	Distributor string `json:"distributor"  db:"distributor"`
	Delivered   bool   `json:"delivered"    db:"delivered"`
	CreatedAt   int64  `json:"created_at"   db:"created_at"`
	DeliveredAt int64  `json:"delivered_at" db:"delivered_at"` // 0 until confirmed
}

// validateMeasurements checks each reading against its plausibility bounds
// and reports the first offender by field name.
func validateMeasurements(ph, tds, turbidity, temperature int64) error {
	switch {
	case ph <= 0 || ph > MaxPH:
		return &ErrInvalidParameter{Field: "ph"}
	case tds < 0 || tds > MaxTDS:
		return &ErrInvalidParameter{Field: "tds"}
	case turbidity < 0 || turbidity > MaxTurbidity:
		return &ErrInvalidParameter{Field: "turbidity"}
	case temperature <= 0 || temperature > MaxTemperature:
		return &ErrInvalidParameter{Field: "temperature"}
	}
	return nil
}
