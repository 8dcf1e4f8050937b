package kb

import (
	"sync"
	"testing"

	"github.com/signalsfoundry/clock-correlator/model"
)

func TestAddAndGetStation(t *testing.T) {
	store := NewKnowledgeBase()
	gs := model.GroundStation{ID: 14, Name: "DSS-14", PathIDs: []int64{1, 2}}
	if err := store.AddStation(gs); err != nil {
		t.Fatalf("AddStation error: %v", err)
	}
	got, ok := store.Station(14)
	if !ok || got.Name != "DSS-14" {
		t.Fatalf("Station returned %#v, %v, want DSS-14", got, ok)
	}

	byPath, ok := store.StationForPath(2)
	if !ok || byPath.ID != 14 {
		t.Fatalf("StationForPath(2) = %#v, %v, want station 14", byPath, ok)
	}
	if _, ok := store.StationForPath(3); ok {
		t.Fatalf("expected unknown path id to miss")
	}
}

func TestAddStationDuplicate(t *testing.T) {
	store := NewKnowledgeBase()
	if err := store.AddStation(model.GroundStation{ID: 1}); err != nil {
		t.Fatalf("first AddStation error: %v", err)
	}
	if err := store.AddStation(model.GroundStation{ID: 1}); err == nil {
		t.Fatalf("expected duplicate AddStation to fail")
	}
}

func TestAddStationPathConflict(t *testing.T) {
	store := NewKnowledgeBase()
	if err := store.AddStation(model.GroundStation{ID: 1, PathIDs: []int64{10}}); err != nil {
		t.Fatalf("AddStation error: %v", err)
	}
	if err := store.AddStation(model.GroundStation{ID: 2, PathIDs: []int64{11, 10}}); err == nil {
		t.Fatalf("expected path id conflict to fail")
	}
	// The rejected station must not have claimed path 11.
	if _, ok := store.StationForPath(11); ok {
		t.Fatalf("rejected station leaked path id 11")
	}
}

func TestListStationsOrdered(t *testing.T) {
	store := NewKnowledgeBase()
	for _, id := range []int64{43, 14, 63} {
		if err := store.AddStation(model.GroundStation{ID: id}); err != nil {
			t.Fatalf("AddStation error: %v", err)
		}
	}
	got := store.ListStations()
	if len(got) != 3 || got[0].ID != 14 || got[1].ID != 43 || got[2].ID != 63 {
		t.Fatalf("ListStations = %#v, want ids 14, 43, 63", got)
	}
}

func TestConcurrentAccess(t *testing.T) {
	store := NewKnowledgeBase()
	if err := store.AddStation(model.GroundStation{ID: 1, PathIDs: []int64{1}}); err != nil {
		t.Fatalf("AddStation error: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = store.StationForPath(1)
			_ = store.ListStations()
		}()
		go func() {
			defer wg.Done()
			id := int64(100 + i)
			_ = store.AddStation(model.GroundStation{ID: id, PathIDs: []int64{id}})
		}()
	}
	wg.Wait()
}
