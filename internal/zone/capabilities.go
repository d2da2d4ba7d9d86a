package zone

// CapabilityLevel says how a zone fulfils one capability kind.
type CapabilityLevel string

const (
	// CapNone means the zone cannot do this at all.
	CapNone CapabilityLevel = "none"
	// CapNative means the backend driver handles it directly.
	CapNative CapabilityLevel = "native"
	// CapAdapter means a content adapter fills the gap.
	CapAdapter CapabilityLevel = "adapter"
)

// Enabled reports whether the level provides the capability in any form.
func (l CapabilityLevel) Enabled() bool {
	return l == CapNative || l == CapAdapter
}

// Capabilities is the declarative support matrix for one zone: five kinds,
// each either absent, native to the driver, or supplied by an adapter.
type Capabilities struct {
	Control  CapabilityLevel `json:"control"`
	Content  CapabilityLevel `json:"content"`
	Grouping CapabilityLevel `json:"grouping"`
	Alerts   CapabilityLevel `json:"alerts"`
	TTS      CapabilityLevel `json:"tts"`
}

// UnconfiguredCapabilities is the matrix for zones running the null backend.
func UnconfiguredCapabilities() Capabilities {
	return Capabilities{
		Control:  CapNone,
		Content:  CapNone,
		Grouping: CapNone,
		Alerts:   CapNone,
		TTS:      CapNone,
	}
}
