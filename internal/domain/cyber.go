package domain

import "fmt"

// CyberLevel selects a scam-awareness exercise.
type CyberLevel string

const (
	CyberLearn        CyberLevel = "Learn"
	CyberBasic        CyberLevel = "Basic"
	CyberIntermediate CyberLevel = "Intermediate"
)

func ParseCyberLevel(v string) (CyberLevel, error) {
	switch CyberLevel(v) {
	case CyberLearn, CyberBasic, CyberIntermediate:
		return CyberLevel(v), nil
	}
	return "", fmt.Errorf("unknown cyber level %q", v)
}

func (l CyberLevel) String() string { return string(l) }

// Simulated reports whether the level is a role-played scam that ends with
// a graded report. Learn is an ordinary tutoring chat.
func (l CyberLevel) Simulated() bool {
	return l == CyberBasic || l == CyberIntermediate
}

// CyberReport grades a finished simulation. Score is 0 to 100.
type CyberReport struct {
	Score    int
	Verdict  string
	Analysis string
	Tips     []string
}
