package sync

import (
	"time"
)

// ItemError is a per-item failure recorded during a pass.
type ItemError struct {
	Path  string `json:"path"`
	Op    OpType `json:"op"`
	Error string `json:"error"`
}

// Summary aggregates the outcome of one pass.
type Summary struct {
	LocallyUpdated    []string    `json:"locallyUpdated"`
	LocallyDeleted    []string    `json:"locallyDeleted"`
	PushedToRemote    []string    `json:"pushedToRemote"`
	DeletedFromRemote []string    `json:"deletedFromRemote"`
	Conflicts         []*Conflict `json:"conflicts"`
	Untracked         []string    `json:"untracked"`
	Errors            []ItemError `json:"errors"`
	StartedAt         time.Time   `json:"startedAt"`
	Duration          Duration    `json:"duration"`
}

func NewSummary() *Summary {
	return &Summary{
		LocallyUpdated:    []string{},
		LocallyDeleted:    []string{},
		PushedToRemote:    []string{},
		DeletedFromRemote: []string{},
		Conflicts:         []*Conflict{},
		Untracked:         []string{},
		Errors:            []ItemError{},
		StartedAt:         time.Now(),
	}
}

// HasChanges reports whether anything other than no-ops happened.
func (s *Summary) HasChanges() bool {
	return len(s.LocallyUpdated) > 0 ||
		len(s.LocallyDeleted) > 0 ||
		len(s.PushedToRemote) > 0 ||
		len(s.DeletedFromRemote) > 0 ||
		len(s.Conflicts) > 0 ||
		len(s.Untracked) > 0 ||
		len(s.Errors) > 0
}

// Duration marshals as a human readable string such as "1m0s".
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	parsed, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) String() string {
	return time.Duration(d).String()
}
