package waterledger

// Potability thresholds. pH is carried as an integer scaled by 100 (700 =
// 7.00) so the band below is 6.50–8.50; TDS is ppm, turbidity is whole NTU.
const (
	MinSafePH        = 650
	MaxSafePH        = 850
	MaxSafeTDS       = 1000
	MaxSafeTurbidity = 5
)

// EvaluateSafety returns the potability verdict for a set of measurements:
// safe when the pH lies within the acceptable band AND dissolved solids AND
// turbidity are at or below their ceilings. Temperature is deliberately not
// part of the verdict; it is recorded for operational context only.
//
// The verdict is computed once, when a record is appended, and stored with
// it. Reads always return the stored verdict, even if the thresholds here
// change in a later release.
func EvaluateSafety(ph, tds, turbidity int64) bool {
	return ph >= MinSafePH && ph <= MaxSafePH &&
		tds <= MaxSafeTDS &&
		turbidity <= MaxSafeTurbidity
}
