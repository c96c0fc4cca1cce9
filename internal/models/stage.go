package models

import (
	"fmt"
	"strings"
)

// SDMMStage is a learner's position on the self-paced d0..d3 ladder. The
// numeric order is the only comparison that may be used between stages.
type SDMMStage int

const (
	StageD0Pre SDMMStage = iota + 1
	StageD0
	StageD1Unlocked
	StageD1TeamSet
	StageD1
	StageD2
	StageD3Pre
	StageD3
)

var sdmmStageNames = map[SDMMStage]string{
	StageD0Pre:      "D0PRE",
	StageD0:         "D0",
	StageD1Unlocked: "D1UNLOCKED",
	StageD1TeamSet:  "D1TEAMSET",
	StageD1:         "D1",
	StageD2:         "D2",
	StageD3Pre:      "D3PRE",
	StageD3:         "D3",
}

// String returns the canonical stage name.
func (s SDMMStage) String() string {
	if name, ok := sdmmStageNames[s]; ok {
		return name
	}
	return fmt.Sprintf("SDMMStage(%d)", int(s))
}

// Valid reports whether s is one of the defined stages.
func (s SDMMStage) Valid() bool {
	_, ok := sdmmStageNames[s]
	return ok
}

// AtLeast reports whether s has reached other.
func (s SDMMStage) AtLeast(other SDMMStage) bool {
	return s >= other
}

// MarshalText encodes the stage by name.
func (s SDMMStage) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid sdmm stage %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText decodes a stage name.
func (s *SDMMStage) UnmarshalText(text []byte) error {
	parsed, err := ParseSDMMStage(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseSDMMStage resolves a stage from its name, case-insensitively.
func ParseSDMMStage(raw string) (SDMMStage, error) {
	needle := strings.ToUpper(strings.TrimSpace(raw))
	for stage, name := range sdmmStageNames {
		if name == needle {
			return stage, nil
		}
	}
	return 0, fmt.Errorf("unknown sdmm stage %q", raw)
}

// AssignmentStatus is the bulk-assignment lifecycle stage of one repository
// or, as an aggregate, of a whole deliverable.
type AssignmentStatus int

const (
	AssignmentInactive AssignmentStatus = iota + 1
	AssignmentCreated
	AssignmentReleased
	AssignmentClosed
)

var assignmentStatusNames = map[AssignmentStatus]string{
	AssignmentInactive: "INACTIVE",
	AssignmentCreated:  "CREATED",
	AssignmentReleased: "RELEASED",
	AssignmentClosed:   "CLOSED",
}

// Older records used these names for the same lifecycle points.
var assignmentStatusAliases = map[string]AssignmentStatus{
	"INITIALIZED": AssignmentCreated,
	"PUBLISHED":   AssignmentReleased,
}

// String returns the canonical status name.
func (s AssignmentStatus) String() string {
	if name, ok := assignmentStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("AssignmentStatus(%d)", int(s))
}

// Valid reports whether s is one of the defined statuses.
func (s AssignmentStatus) Valid() bool {
	_, ok := assignmentStatusNames[s]
	return ok
}

// MarshalText encodes the status by name.
func (s AssignmentStatus) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid assignment status %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status name, accepting the legacy aliases.
func (s *AssignmentStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseAssignmentStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseAssignmentStatus resolves a status from its name or a legacy alias.
func ParseAssignmentStatus(raw string) (AssignmentStatus, error) {
	needle := strings.ToUpper(strings.TrimSpace(raw))
	for status, name := range assignmentStatusNames {
		if name == needle {
			return status, nil
		}
	}
	if status, ok := assignmentStatusAliases[needle]; ok {
		return status, nil
	}
	return 0, fmt.Errorf("unknown assignment status %q", raw)
}

// MinAssignmentStatus returns the least-progressed status, or
// AssignmentInactive for an empty input.
func MinAssignmentStatus(statuses ...AssignmentStatus) AssignmentStatus {
	if len(statuses) == 0 {
		return AssignmentInactive
	}
	lowest := AssignmentClosed
	for _, s := range statuses {
		if !s.Valid() {
			s = AssignmentInactive
		}
		if s < lowest {
			lowest = s
		}
	}
	return lowest
}
