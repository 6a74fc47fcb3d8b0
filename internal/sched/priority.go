package sched

import "time"

// Priority is the urgency level of a [Task]. Lower values are more urgent.
type Priority int

const (
	NoPriority Priority = iota
	Immediate
	UserBlocking
	Normal
	Low
	Idle
)

// maxSigned31BitInt is the largest integer that fits a signed 31-bit slot.
// Idle work uses it as its timeout so that it never expires in practice.
const maxSigned31BitInt = 1<<30 - 1

// Timeouts added to a task's start time to compute its expiration time.
const (
	ImmediateTimeout    = -1 * time.Millisecond
	UserBlockingTimeout = 250 * time.Millisecond
	NormalTimeout       = 5000 * time.Millisecond
	LowTimeout          = 10000 * time.Millisecond
	IdleTimeout         = maxSigned31BitInt * time.Millisecond
)

var (
	strPriorityMap = map[Priority]string{
		NoPriority:   "none",
		Immediate:    "immediate",
		UserBlocking: "user-blocking",
		Normal:       "normal",
		Low:          "low",
		Idle:         "idle",
	}

	typePriorityMap = map[string]Priority{
		"immediate":     Immediate,
		"user-blocking": UserBlocking,
		"normal":        Normal,
		"low":           Low,
		"idle":          Idle,
	}
)

// ParsePriority maps a name such as "user-blocking" to its Priority. Unknown
// names yield NoPriority.
func ParsePriority(s string) Priority {
	if p, ok := typePriorityMap[s]; ok {
		return p
	}
	return NoPriority
}

func (p Priority) String() string {
	if s, ok := strPriorityMap[p]; ok {
		return s
	}
	return "unknown"
}

// IsValid reports whether p is one of the five schedulable levels.
func (p Priority) IsValid() bool {
	return p >= Immediate && p <= Idle
}

// Normalize returns p, or Normal when p is not a schedulable level.
func (p Priority) Normalize() Priority {
	if !p.IsValid() {
		return Normal
	}
	return p
}

// Timeout returns how long after its start a task at this level expires.
// Invalid levels use Normal's timeout.
func (p Priority) Timeout() time.Duration {
	switch p {
	case Immediate:
		return ImmediateTimeout
	case UserBlocking:
		return UserBlockingTimeout
	case Low:
		return LowTimeout
	case Idle:
		return IdleTimeout
	default:
		return NormalTimeout
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p Priority) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Priority) UnmarshalText(b []byte) error {
	*p = ParsePriority(string(b))
	return nil
}
