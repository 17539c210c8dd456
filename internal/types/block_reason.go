package types

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// BlockReason names the safety category that blocked a message.
// The zero value means the message was not blocked.
type BlockReason string

const (
	ReasonNone              BlockReason = ""
	ReasonBannedWord        BlockReason = "banned_word"
	ReasonPromptInjection   BlockReason = "prompt_injection"
	ReasonSensitivePolitics BlockReason = "sensitive_politics"
)

// Rank returns the precedence of the reason. Higher values win when several
// detectors block the same message.
func (r BlockReason) Rank() int {
	switch r {
	case ReasonBannedWord:
		return 3
	case ReasonPromptInjection:
		return 2
	case ReasonSensitivePolitics:
		return 1
	default:
		return 0
	}
}

// Outranks reports whether r takes precedence over other.
func (r BlockReason) Outranks(other BlockReason) bool {
	return r.Rank() > other.Rank()
}

func (r BlockReason) Valid() bool {
	return r.Rank() > 0
}

func ParseBlockReason(s string) (BlockReason, bool) {
	switch BlockReason(s) {
	case ReasonBannedWord, ReasonPromptInjection, ReasonSensitivePolitics:
		return BlockReason(s), true
	default:
		return ReasonNone, false
	}
}

// MarshalJSON encodes ReasonNone as null.
func (r BlockReason) MarshalJSON() ([]byte, error) {
	if r == ReasonNone {
		return []byte("null"), nil
	}
	return json.Marshal(string(r))
}

func (r *BlockReason) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*r = ReasonNone
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*r = ReasonNone
		return nil
	}
	parsed, ok := ParseBlockReason(s)
	if !ok {
		return fmt.Errorf("unknown block reason %q", s)
	}
	*r = parsed
	return nil
}
