package system

import (
	"reflect"
	"testing"
)

type recordSystem struct {
	phase Phase
	name  string
	log   *[]string
}

func (s recordSystem) Phase() Phase { return s.phase }

func (s recordSystem) Update(*Turn) { *s.log = append(*s.log, s.name) }

func TestRunnerPhaseOrder(t *testing.T) {
	var log []string
	r := NewRunner()
	r.Register(recordSystem{PhaseCleanup, "cleanup", &log})
	r.Register(recordSystem{PhaseUpdate, "combat", &log})
	r.Register(recordSystem{PhasePersist, "history", &log})
	r.Register(recordSystem{PhaseUpdate, "combat2", &log})

	r.Tick(&Turn{})
	want := []string{"combat", "combat2", "history", "cleanup"}
	if !reflect.DeepEqual(log, want) {
		t.Fatalf("order = %v, want %v", log, want)
	}
}
