package heatmap

// ResolvePolicy decides whether a simulated fallback may be attached. An
// explicit override always wins; otherwise the process-wide default applies.
func ResolvePolicy(override SimulateOverride, processDefault bool) bool {
	switch override {
	case SimulateForceOn:
		return true
	case SimulateForceOff:
		return false
	default:
		return processDefault
	}
}
