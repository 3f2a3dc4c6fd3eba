package rds

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueAcceptsImmediatelyOnValidStatus(t *testing.T) {
	v := NewValue[uint16](TagProgramme)
	v.Set(0x1234, CheckData{Data: 1, Status: StatusValid})
	require.True(t, v.Valid())
	assert.Equal(t, uint16(0x1234), v.Value())
}

func TestValueRejectsUncorrectableReading(t *testing.T) {
	v := NewValue[uint16](TagProgramme)
	v.Set(0x1234, CheckData{Data: 1, Status: StatusUncorrectable})
	assert.False(t, v.Valid())
}

func TestValueRequiresTwoMatchingCorrectedReadings(t *testing.T) {
	v := NewValue[uint16](TagProgramme)

	// A single corrected reading, with no prior displayed value, isn't
	// accepted on its own.
	v.Set(0xBEEF, CheckData{Data: 42, Status: StatusCorrected})
	assert.False(t, v.Valid())

	// The same correction recurring (same check data) promotes it.
	v.Set(0xBEEF, CheckData{Data: 42, Status: StatusCorrected})
	require.True(t, v.Valid())
	assert.Equal(t, uint16(0xBEEF), v.Value())
}

func TestValueDropsDivergingCorrectedReadings(t *testing.T) {
	v := NewValue[uint16](TagProgramme)

	v.Set(0xBEEF, CheckData{Data: 42, Status: StatusCorrected})
	assert.False(t, v.Valid())

	// A different corrected reading doesn't confirm the first one.
	v.Set(0xDEAD, CheckData{Data: 43, Status: StatusCorrected})
	assert.False(t, v.Valid())

	// But it can be confirmed by a second occurrence of itself.
	v.Set(0xDEAD, CheckData{Data: 43, Status: StatusCorrected})
	require.True(t, v.Valid())
	assert.Equal(t, uint16(0xDEAD), v.Value())
}

func TestValueAcceptsCorrectedReadingMatchingDisplayedValue(t *testing.T) {
	v := NewValue[uint16](TagProgramme)
	v.Set(0x1234, CheckData{Data: 1, Status: StatusValid})
	require.True(t, v.Valid())

	// A corrected reading that just reconfirms the already-displayed
	// value is accepted on the spot.
	v.Set(0x1234, CheckData{Data: 2, Status: StatusCorrected})
	assert.Equal(t, uint16(0x1234), v.Value())
}

func TestValueInvalidateFiresOnExpire(t *testing.T) {
	v := NewValue[uint16](TagProgramme)
	fired := false
	v.OnExpire = func() { fired = true }
	v.Set(0x1234, CheckData{Data: 1, Status: StatusValid})
	v.Invalidate()
	assert.True(t, fired)
	assert.False(t, v.Valid())
}

func TestValueOnChangeFiresOnlyWhenValueChanges(t *testing.T) {
	v := NewValue[uint16](TagProgramme)
	changes := 0
	v.OnChange = func(uint16) { changes++ }
	v.Set(0x1234, CheckData{Data: 1, Status: StatusValid})
	v.Set(0x1234, CheckData{Data: 2, Status: StatusValid})
	v.Set(0x5678, CheckData{Data: 3, Status: StatusValid})
	assert.Equal(t, 2, changes)
}

func TestExpireIfStaleClearsOnlyAfterWindowElapses(t *testing.T) {
	v := NewValue[bool](TagCurrent)
	v.Set(true, CheckData{Data: 1, Status: StatusValid})
	require.True(t, v.Valid())

	ExpireIfStale(v, v.LastUpdate().Add(10*time.Second))
	assert.True(t, v.Valid(), "10s is within TagCurrent's 15s window")

	ExpireIfStale(v, v.LastUpdate().Add(16*time.Second))
	assert.False(t, v.Valid())
}

func TestExpireIfStaleLeavesFreshValueUntouched(t *testing.T) {
	v := NewValue[uint16](TagProgramme)
	v.Set(0xF201, CheckData{Data: 1, Status: StatusValid})
	ExpireIfStale(v, v.LastUpdate())
	assert.True(t, v.Valid())
}
