package rds

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validGroup(b0, b1, b2, b3 uint16) Group {
	return Group{
		{Data: b0, Status: StatusValid},
		{Data: b1, Status: StatusValid},
		{Data: b2, Status: StatusValid},
		{Data: b3, Status: StatusValid},
	}
}

// decodePS feeds four type-0A groups, one per PS segment, spelling out
// an 8-character programme service name.
func decodePS(t *testing.T, state *State, pi uint16, name string) {
	t.Helper()
	require.Len(t, name, 8)
	for seg := uint16(0); seg < 4; seg++ {
		b1 := seg // group type 0 (0x00), segment address in low 2 bits
		b2 := uint16(0x0300)
		b3 := uint16(name[2*seg])<<8 | uint16(name[2*seg+1])
		g := validGroup(pi, b1, b2, b3)
		decodeGroup(state, &g)
	}
}

func TestDecodeGroupType0AssemblesProgrammeServiceName(t *testing.T) {
	state := NewState()
	decodePS(t, state, 0x1234, "TESTFM  ")

	var got [8]byte
	for i, v := range state.ProgrammeServiceName {
		require.True(t, v.Valid())
		got[i] = v.Value()
	}
	assert.Equal(t, "TESTFM  ", string(got[:]))
	require.True(t, state.ProgrammeIdentification.Valid())
	assert.Equal(t, uint16(0x1234), state.ProgrammeIdentification.Value())
}

func TestDecodeGroupType2AssemblesRadioText(t *testing.T) {
	state := NewState()
	text := "HELLO WORLD FROM RDS TESTING   "
	require.Len(t, text, 32)

	for seg := uint16(0); seg < 8; seg++ {
		b1 := uint16(0x04<<11) | seg // group type 2A, A/B flag clear
		b2 := uint16(text[4*seg])<<8 | uint16(text[4*seg+1])
		b3 := uint16(text[4*seg+2])<<8 | uint16(text[4*seg+3])
		g := validGroup(0x1234, b1, b2, b3)
		decodeGroup(state, &g)
	}

	var got [32]byte
	for i := 0; i < 32; i++ {
		require.True(t, state.RadioText[i].Valid())
		got[i] = state.RadioText[i].Value()
	}
	assert.Equal(t, text, string(got[:]))
}

func TestDecodeGroupType2InvalidatesOnTextABFlip(t *testing.T) {
	state := NewState()
	g := validGroup(0x1234, 0x04<<11, 'H'<<8|'I', 'T'<<8|'H')
	decodeGroup(state, &g)
	require.True(t, state.RadioText[0].Valid())

	flipped := validGroup(0x1234, (0x04<<11)|(1<<4), 'B'<<8|'Y', 'E'<<8|' ')
	decodeGroup(state, &flipped)
	assert.False(t, state.RadioText[0].Valid())
}

func TestDecodeGroupType4AParsesClock(t *testing.T) {
	state := NewState()
	// Modified Julian Day 58849 is 2020-01-01; hour=12, minute=30.
	const mjd = 58849
	b1 := uint16(0x08<<11) | uint16(mjd>>15)
	b2 := uint16((mjd & 0x7FFF) << 1)
	b3 := uint16(12<<12) | uint16(30<<6)
	g := validGroup(0x1234, b1, b2, b3)
	decodeGroup(state, &g)

	require.True(t, state.CurrentTime.Valid())
	got := state.CurrentTime.Value()
	assert.Equal(t, 2020, got.Year())
	assert.Equal(t, 1, int(got.Month()))
	assert.Equal(t, 1, got.Day())
	assert.Equal(t, 12, got.Hour())
	assert.Equal(t, 30, got.Minute())
}

func TestDecodeGroupRejectsWhenBlockBUncorrectable(t *testing.T) {
	state := NewState()
	g := validGroup(0x1234, 0x0000, 0x0300, uint16('A')<<8|uint16('B'))
	g[1].Status = StatusUncorrectable
	decodeGroup(state, &g)
	assert.False(t, state.ProgrammeServiceName[0].Valid())
}

func TestStateExpireStaleClearsOldFieldsButKeepsFresh(t *testing.T) {
	state := NewState()
	decodePS(t, state, 0x1234, "TESTFM  ")
	require.True(t, state.ProgrammeIdentification.Valid())
	require.True(t, state.ProgrammeServiceName[0].Valid())

	old := state.ProgrammeIdentification.LastUpdate().Add(61 * time.Second)
	state.ExpireStale(old)
	assert.False(t, state.ProgrammeIdentification.Valid())
	assert.False(t, state.ProgrammeServiceName[0].Valid())

	state2 := NewState()
	decodePS(t, state2, 0x1234, "TESTFM  ")
	state2.ExpireStale(state2.ProgrammeIdentification.LastUpdate())
	assert.True(t, state2.ProgrammeIdentification.Valid(), "not yet stale at the moment of the last update")
}
