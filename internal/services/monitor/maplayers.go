package monitor

import "github.com/LeonardoBeccarini/snowpeak_monitor/internal/model"

// LayerSet holds the handles drawn for one lift.
type LayerSet struct {
	Line       LayerID
	Tooltip    LayerID
	HasTooltip bool
}

// MapLayerManager keeps at most one LayerSet per lift id. The table is only touched
// through Draw, Remove and Clear, from the view loop.
type MapLayerManager struct {
	canvas Canvas
	sets   map[string]LayerSet
}

func NewMapLayerManager(c Canvas) *MapLayerManager {
	return &MapLayerManager{canvas: c, sets: make(map[string]LayerSet)}
}

// Draw replaces whatever is drawn for lift with a rendering of v. The removal and the
// insertion happen in the same canvas batch.
func (m *MapLayerManager) Draw(lift model.Lift, v Visual) {
	m.canvas.Batch(func(e Editor) {
		m.remove(e, lift.ID)

		set := LayerSet{
			Line: e.Add(Layer{
				Kind:   KindLine,
				LiftID: lift.ID,
				Points: []model.Coordinate{lift.Start(), lift.End()},
				Color:  v.Color,
				Weight: v.Weight,
			}),
		}
		if v.ShowTooltip {
			set.Tooltip = e.Add(Layer{
				Kind:   KindTooltip,
				LiftID: lift.ID,
				Points: []model.Coordinate{lift.End()},
				Label:  v.Tooltip,
			})
			set.HasTooltip = true
		}
		m.sets[lift.ID] = set
	})
}

func (m *MapLayerManager) Remove(liftID string) {
	if _, ok := m.sets[liftID]; !ok {
		return
	}
	m.canvas.Batch(func(e Editor) { m.remove(e, liftID) })
}

// Clear removes every tracked artifact and empties the table.
func (m *MapLayerManager) Clear() {
	if len(m.sets) == 0 {
		return
	}
	m.canvas.Batch(func(e Editor) {
		for id := range m.sets {
			m.remove(e, id)
		}
	})
}

func (m *MapLayerManager) remove(e Editor, liftID string) {
	set, ok := m.sets[liftID]
	if !ok {
		return
	}
	e.Remove(set.Line)
	if set.HasTooltip {
		e.Remove(set.Tooltip)
	}
	delete(m.sets, liftID)
}

func (m *MapLayerManager) Tracked(liftID string) (LayerSet, bool) {
	s, ok := m.sets[liftID]
	return s, ok
}

func (m *MapLayerManager) Len() int { return len(m.sets) }
