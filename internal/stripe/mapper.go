package stripe

import "strconv"

// Mapper maps log positions to object identifiers.
type Mapper struct {
	logName string
	history *History
}

// NewMapper creates a mapper for the named log over history.
func NewMapper(logName string, history *History) *Mapper {
	return &Mapper{
		logName: logName,
		history: history,
	}
}

// SlotToOID returns the object identifier for a stripe slot.
func (m *Mapper) SlotToOID(slot uint32) string {
	return m.logName + "." + strconv.FormatUint(uint64(slot), 10)
}

// FindObject returns the object that stores position.
// The history must not be empty.
func (m *Mapper) FindObject(position uint64) string {
	s := m.history.FindStripe(position)
	slot := uint32(position % uint64(s.Width))
	return m.SlotToOID(slot)
}

// LatestObjectSet returns the objects of the current stripe, slot 0 first.
func (m *Mapper) LatestObjectSet() []string {
	s := m.history.Latest()
	objects := make([]string, 0, s.Width)
	for slot := uint32(0); slot < s.Width; slot++ {
		objects = append(objects, m.SlotToOID(slot))
	}
	return objects
}

// AllObjects returns every object any stripe of the history maps to.
func (m *Mapper) AllObjects() []string {
	w := m.history.MaxWidth()
	objects := make([]string, 0, w)
	for slot := uint32(0); slot < w; slot++ {
		objects = append(objects, m.SlotToOID(slot))
	}
	return objects
}

// History returns the stripe history the mapper reads.
func (m *Mapper) History() *History {
	return m.history
}
