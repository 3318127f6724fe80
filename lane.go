package dawproject

type (
	// Lane is a sub-track container: an ordered run of clips plus an
	// optional automation curve. A lane belongs to exactly one track.
	Lane struct {
		Clips      []Clip
		Automation []AutomationPoint
	}

	// AutomationPoint is one breakpoint of a lane's automation curve.
	// Within a curve the times must be strictly increasing.
	AutomationPoint struct {
		Time  float64
		Value float64
	}
)

// Copy returns a deep copy of the lane.
func (l *Lane) Copy() Lane {
	ret := *l
	ret.Clips = make([]Clip, len(l.Clips))
	for i := range l.Clips {
		ret.Clips[i] = l.Clips[i].Copy()
	}
	ret.Automation = append([]AutomationPoint(nil), l.Automation...)
	return ret
}
