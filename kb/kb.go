package kb

import (
	"fmt"
	"sort"
	"sync"

	"github.com/signalsfoundry/clock-correlator/model"
)

// KnowledgeBase is an in-memory, thread-safe registry of ground stations
// and the telemetry path ids that arrive through them.
type KnowledgeBase struct {
	mu sync.RWMutex

	stations map[int64]model.GroundStation
	paths    map[int64]int64 // path id -> station id
}

// NewKnowledgeBase constructs an empty KB.
func NewKnowledgeBase() *KnowledgeBase {
	return &KnowledgeBase{
		stations: make(map[int64]model.GroundStation),
		paths:    make(map[int64]int64),
	}
}

// AddStation adds a new station. It returns an error if the ID already
// exists or one of its path ids already belongs to another station.
func (kb *KnowledgeBase) AddStation(gs model.GroundStation) error {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	if _, exists := kb.stations[gs.ID]; exists {
		return fmt.Errorf("station with ID %d already exists", gs.ID)
	}
	for _, p := range gs.PathIDs {
		if owner, taken := kb.paths[p]; taken {
			return fmt.Errorf("path id %d of station %d already belongs to station %d", p, gs.ID, owner)
		}
	}
	gs.PathIDs = append([]int64(nil), gs.PathIDs...)
	kb.stations[gs.ID] = gs
	for _, p := range gs.PathIDs {
		kb.paths[p] = gs.ID
	}
	return nil
}

// Station returns the station with the given ID.
func (kb *KnowledgeBase) Station(id int64) (model.GroundStation, bool) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	gs, ok := kb.stations[id]
	return gs, ok
}

// StationForPath returns the station that receives the given path id.
func (kb *KnowledgeBase) StationForPath(pathID int64) (model.GroundStation, bool) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	id, ok := kb.paths[pathID]
	if !ok {
		return model.GroundStation{}, false
	}
	return kb.stations[id], true
}

// ListStations returns a snapshot of all stations ordered by ID.
func (kb *KnowledgeBase) ListStations() []model.GroundStation {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	res := make([]model.GroundStation, 0, len(kb.stations))
	for _, gs := range kb.stations {
		res = append(res, gs)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}
