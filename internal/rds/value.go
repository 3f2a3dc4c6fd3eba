package rds

import "time"

// ValueTag differentiates the clear()-time expiry policy a Value
// belongs to: Programme values survive until a long coverage gap
// (station re-tune), Current values (traffic flags, etc.) are
// considered stale much sooner, Text accumulates char-by-char across
// groups, and Clock is the one-shot UTC timestamp.
type ValueTag int

const (
	TagProgramme ValueTag = iota
	TagClock
	TagText
	TagCurrent
)

// CheckData is the decode outcome (payload bits plus its DecodingStatus)
// that accompanies every candidate update to a Value, grounded on
// RdsCheckData in rds_state.h.
type CheckData struct {
	Data   uint64
	Status DecodingStatus
}

// Value reconciles a stream of (possibly individually-corrected)
// candidate readings of a single RDS field into a value that is only
// published once it has been seen reliably: an uncorrected
// (StatusValid) reading is accepted immediately, while a corrected
// reading is only accepted once the same correction has recurred (the
// two-strikes rule from RdsValue::set in rds_state.h), guarding against
// single error-trap mistakes flipping the displayed value.
type Value[T comparable] struct {
	Tag ValueTag

	hasCorrected  bool
	sent          bool
	sentValue     T
	lastValue     T
	lastCheckData uint64
	lastUpdate    time.Time

	OnChange func(T)
	OnExpire func()
}

func NewValue[T comparable](tag ValueTag) *Value[T] {
	return &Value[T]{Tag: tag}
}

// Set feeds a new candidate reading through the acceptance policy.
func (v *Value[T]) Set(value T, check CheckData) {
	if check.Status <= StatusUncorrectable {
		return
	}

	var isValid bool
	switch {
	case check.Status == StatusValid:
		isValid = true
	case v.hasCorrected:
		isValid = v.lastCheckData == check.Data
	default:
		isValid = v.sent && v.sentValue == value
		v.hasCorrected = true
	}

	v.lastCheckData = check.Data
	v.lastValue = value

	if isValid {
		if !v.sent || v.sentValue != value {
			if v.OnChange != nil {
				v.OnChange(value)
			}
		}
		v.sent = true
		v.sentValue = value
		v.hasCorrected = false
		v.lastUpdate = time.Now()
	}
}

func (v *Value[T]) Valid() bool { return v.sent }

func (v *Value[T]) Invalidate() {
	if v.sent {
		if v.OnExpire != nil {
			v.OnExpire()
		}
		v.sent = false
		v.lastUpdate = time.Time{}
	}
}

func (v *Value[T]) Value() T { return v.sentValue }

func (v *Value[T]) LastValue() T { return v.lastValue }

func (v *Value[T]) LastUpdate() time.Time { return v.lastUpdate }

// ValueTag reports the field's expiry policy, see validityWindow.
func (v *Value[T]) ValueTag() ValueTag { return v.Tag }

// Expirer is the Tag-erased view of a Value[T] that ExpireIfStale needs;
// every instantiation of Value[T] satisfies it regardless of T.
type Expirer interface {
	Valid() bool
	LastUpdate() time.Time
	Invalidate()
	ValueTag() ValueTag
}

// validityWindow is how long a Value stays valid after its last accepted
// update before a coverage gap (station re-tune, fade) should clear it,
// grounded on RdsValue's per-tag clear delay in rds_state.cpp.
var validityWindow = map[ValueTag]time.Duration{
	TagProgramme: 60 * time.Second,
	TagClock:     60 * time.Second,
	TagText:      30 * time.Second,
	TagCurrent:   15 * time.Second,
}

// ExpireIfStale invalidates v if it is valid but hasn't been updated
// within its tag's validity window as of now.
func ExpireIfStale(v Expirer, now time.Time) {
	if v.Valid() && now.Sub(v.LastUpdate()) > validityWindow[v.ValueTag()] {
		v.Invalidate()
	}
}

// ProgrammeItemStartTime is the PIN (Programme Item Number) payload:
// day-of-month plus local start time, section 3.1.5.2.
type ProgrammeItemStartTime struct {
	DayOfMonth, Hour, Minute uint8
}
