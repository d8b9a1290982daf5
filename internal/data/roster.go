package data

import (
	"fmt"
	"os"
	"time"

	"github.com/skyarena/server/internal/world"
	"gopkg.in/yaml.v3"
)

// NodeEntry is one arena node an agent can reach.
type NodeEntry struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// CharacterEntry is one character an agent drives.
type CharacterEntry struct {
	ID       string `yaml:"cid"`
	TeamID   string `yaml:"teamid"`
	Life     int    `yaml:"life"`
	Strength int    `yaml:"strength"`
	Armor    int    `yaml:"armor"`
	Speed    int    `yaml:"speed"`
	Home     string `yaml:"home"`     // node joined at startup
	Strategy string `yaml:"strategy"` // Lua strategy name, "default" when empty
}

func (c CharacterEntry) Spec() world.CharacterSpec {
	return world.CharacterSpec{
		ID:       c.ID,
		TeamID:   c.TeamID,
		Life:     c.Life,
		Strength: c.Strength,
		Armor:    c.Armor,
		Speed:    c.Speed,
	}
}

// RelocationEntry tunes how agents retry the release and settle steps of a move.
type RelocationEntry struct {
	Retries uint64        `yaml:"retries"`
	Backoff time.Duration `yaml:"backoff"` // first delay, doubled per retry
}

type rosterFile struct {
	Interval   time.Duration    `yaml:"interval"`
	ScriptsDir string           `yaml:"scripts_dir"`
	Relocation *RelocationEntry `yaml:"relocation"`
	Nodes      []NodeEntry      `yaml:"nodes"`
	Characters []CharacterEntry `yaml:"characters"`
}

// RosterTable is the agent roster: the cluster's nodes and the characters to play.
type RosterTable struct {
	Interval   time.Duration
	ScriptsDir string
	Relocation RelocationEntry
	Nodes      []NodeEntry
	Characters []CharacterEntry
	nodes      map[string]*NodeEntry
}

// LoadRoster loads roster.yaml.
func LoadRoster(path string) (*RosterTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roster: %w", err)
	}
	var f rosterFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse roster: %w", err)
	}
	if f.Interval <= 0 {
		f.Interval = time.Second
	}
	reloc := RelocationEntry{Retries: 5, Backoff: 100 * time.Millisecond}
	if f.Relocation != nil {
		reloc.Retries = f.Relocation.Retries
		if f.Relocation.Backoff > 0 {
			reloc.Backoff = f.Relocation.Backoff
		}
	}

	t := &RosterTable{
		Interval:   f.Interval,
		ScriptsDir: f.ScriptsDir,
		Relocation: reloc,
		Nodes:      f.Nodes,
		Characters: f.Characters,
		nodes:      make(map[string]*NodeEntry, len(f.Nodes)),
	}
	for i := range t.Nodes {
		n := &t.Nodes[i]
		if n.Name == "" || n.URL == "" {
			return nil, fmt.Errorf("roster node %d: name and url are required", i)
		}
		if _, dup := t.nodes[n.Name]; dup {
			return nil, fmt.Errorf("roster node %q listed twice", n.Name)
		}
		t.nodes[n.Name] = n
	}
	seen := make(map[string]bool, len(t.Characters))
	for i := range t.Characters {
		c := &t.Characters[i]
		c.ID = world.NormalizeID(c.ID)
		if seen[c.ID] {
			return nil, fmt.Errorf("roster character %q listed twice", c.ID)
		}
		seen[c.ID] = true
		if c.Home == "" && len(t.Nodes) > 0 {
			c.Home = t.Nodes[0].Name
		}
		if _, ok := t.nodes[c.Home]; !ok {
			return nil, fmt.Errorf("roster character %q: unknown home node %q", c.ID, c.Home)
		}
		if c.Strategy == "" {
			c.Strategy = "default"
		}
	}
	return t, nil
}

// Node returns the node with the given name, or nil if none.
func (t *RosterTable) Node(name string) *NodeEntry {
	return t.nodes[name]
}

// NodeNames returns every node name except skip, in roster order.
func (t *RosterTable) NodeNames(skip string) []string {
	names := make([]string, 0, len(t.Nodes))
	for _, n := range t.Nodes {
		if n.Name != skip {
			names = append(names, n.Name)
		}
	}
	return names
}

// Count returns the number of characters in the roster.
func (t *RosterTable) Count() int {
	return len(t.Characters)
}
