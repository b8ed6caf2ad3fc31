// SPDX-License-Identifier: Apache-2.0

// Package state persists a local record of quorum rounds this agent took
// part in. The history is diagnostic only; round coordination always goes
// through the shared quorum backend.
package state

import (
	"os"
	"path"
	"sync"
	"time"

	"github.com/joomcode/errorx"
	"gopkg.in/yaml.v3"

	"github.com/hashgraph/solo-stager/internal/core"
)

// Outcome of a recorded round from this agent's point of view.
const (
	OutcomeApplied  = "applied"
	OutcomeReleased = "released"
	OutcomeFailed   = "failed"
)

// RoundRecord is one quorum round this agent arrived at.
type RoundRecord struct {
	Fingerprint string    `yaml:"fingerprint"`
	Phase       string    `yaml:"phase"`
	Target      int       `yaml:"target"`
	Migrations  []string  `yaml:"migrations,omitempty"`
	Outcome     string    `yaml:"outcome"`
	RecordedAt  time.Time `yaml:"recordedAt"`
}

type historyFile struct {
	Rounds []RoundRecord `yaml:"rounds"`
}

// Manager handles round history persistence.
type Manager struct {
	mu   sync.Mutex
	file string
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithHistoryFile overrides the history file location.
func WithHistoryFile(file string) ManagerOption {
	return func(m *Manager) {
		m.file = file
	}
}

// NewManager creates a state manager writing under the stager state
// directory by default.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		file: path.Join(core.StateDir, "rounds.yaml"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Record appends a round to the history file, creating it if needed.
func (m *Manager) Record(rec RoundRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	history, err := m.load()
	if err != nil {
		return err
	}

	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now().UTC()
	}
	history.Rounds = append(history.Rounds, rec)

	if err := os.MkdirAll(path.Dir(m.file), core.DefaultFilePerm); err != nil {
		return errorx.IllegalState.Wrap(err, "failed to create state directory")
	}
	b, err := yaml.Marshal(history)
	if err != nil {
		return errorx.InternalError.Wrap(err, "failed to marshal round history")
	}
	if err := os.WriteFile(m.file, b, 0o644); err != nil {
		return errorx.IllegalState.Wrap(err, "failed to write round history to %s", m.file)
	}
	return nil
}

// List returns every recorded round, oldest first.
func (m *Manager) List() ([]RoundRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	history, err := m.load()
	if err != nil {
		return nil, err
	}
	return history.Rounds, nil
}

// Latest returns the most recent round for a fingerprint, if any.
func (m *Manager) Latest(fingerprint string) (RoundRecord, bool, error) {
	rounds, err := m.List()
	if err != nil {
		return RoundRecord{}, false, err
	}
	for i := len(rounds) - 1; i >= 0; i-- {
		if rounds[i].Fingerprint == fingerprint {
			return rounds[i], true, nil
		}
	}
	return RoundRecord{}, false, nil
}

func (m *Manager) load() (*historyFile, error) {
	history := &historyFile{}
	b, err := os.ReadFile(m.file)
	if os.IsNotExist(err) {
		return history, nil
	}
	if err != nil {
		return nil, errorx.IllegalState.Wrap(err, "failed to read round history from %s", m.file)
	}
	if err := yaml.Unmarshal(b, history); err != nil {
		return nil, errorx.IllegalFormat.Wrap(err, "round history at %s is corrupt", m.file)
	}
	return history, nil
}
