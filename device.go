package dawproject

// Device is an effect or instrument attached to a track. The preset blob is
// opaque to the engine: it lives as an archive entry referenced by Preset
// and is carried through load/save without interpretation.
type Device struct {
	ID   string
	Name string
	Kind string

	// Parameters maps parameter names to their plain values. Serialized
	// in sorted name order so documents round-trip deterministically.
	Parameters map[string]float64

	Preset ResourceRef
}

// Copy returns a deep copy of the device.
func (d *Device) Copy() Device {
	ret := *d
	if d.Parameters != nil {
		ret.Parameters = make(map[string]float64, len(d.Parameters))
		for k, v := range d.Parameters {
			ret.Parameters[k] = v
		}
	}
	return ret
}
