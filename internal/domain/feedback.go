package domain

import (
	"fmt"
	"time"
)

type Judgment string

const (
	JudgmentLike    Judgment = "like"
	JudgmentDislike Judgment = "dislike"
	JudgmentNeutral Judgment = "neutral"
)

func ParseJudgment(v string) (Judgment, error) {
	switch Judgment(v) {
	case JudgmentLike, JudgmentDislike, JudgmentNeutral:
		return Judgment(v), nil
	}
	return "", fmt.Errorf("unknown judgment %q", v)
}

// FeedbackEntry is keyed by transcript position, never by message text.
type FeedbackEntry struct {
	SequenceIndex int
	Judgment      Judgment
	Timestamp     time.Time
}
