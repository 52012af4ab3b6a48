// v1
// internal/domain/actions.go
package domain

// ActionSet is the command set the engine wants applied for one cycle. It
// carries writable switches only, is produced fresh by each evaluation and
// has no identity beyond the cycle that created it.
type ActionSet struct {
	DevicePower             Toggle         `json:"devicePower"`
	Season                  Season         `json:"season"`
	CompressorManagement    CompressorMode `json:"compressorManagement"`
	CoolingManagement       CoolingMode    `json:"coolingManagement"`
	RecirculationVent       Toggle         `json:"recirculationVent"`
	DehumidificationRequest Toggle         `json:"dehumidificationRequest"`
}

// Validate checks every commanded value against its switch domain and returns
// an InvalidInputError naming the first offender.
func (a ActionSet) Validate() error {
	if !a.DevicePower.Valid() {
		return invalid(CompDevicePower, string(a.DevicePower))
	}
	if !a.Season.Valid() {
		return invalid(CompSeason, string(a.Season))
	}
	if !a.CompressorManagement.Valid() {
		return invalid(CompCompressorMgmt, string(a.CompressorManagement))
	}
	if !a.CoolingManagement.Valid() {
		return invalid(CompCoolingMgmt, string(a.CoolingManagement))
	}
	if !a.RecirculationVent.Valid() {
		return invalid(CompRecirculationVent, string(a.RecirculationVent))
	}
	if !a.DehumidificationRequest.Valid() {
		return invalid(CompDehumidifyRequest, string(a.DehumidificationRequest))
	}
	return nil
}

// Equal reports whether two action sets command identical values.
func (a ActionSet) Equal(b ActionSet) bool { return a == b }
