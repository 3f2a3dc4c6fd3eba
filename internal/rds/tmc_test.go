package rds

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAppGroupType = 0x18 // type 12A

func registerTmcOda(state *State, pi uint16) {
	b1 := uint16(0x06<<11) | testAppGroupType
	g := validGroup(pi, b1, 0, odaAidTmcNew)
	decodeGroup(state, &g)
}

func TestDecodeTmcSingleGroupCommitsOnValidStatus(t *testing.T) {
	state := NewState()
	registerTmcOda(state, 0x1234)
	require.True(t, state.OdaAIDs[testAppGroupType].Valid())

	b1 := uint16(testAppGroupType<<11) | 0x08 // msgType 0x08, single-group range
	g := validGroup(0x1234, b1, 1<<15|42, 0xBEEF)
	decodeGroup(state, &g)

	assert.Empty(t, state.TmcPendingMessages)
}

func TestDecodeTmcSingleGroupRequiresTwoMatchingCorrectedReadings(t *testing.T) {
	state := NewState()
	registerTmcOda(state, 0x1234)

	b1 := uint16(testAppGroupType<<11) | 0x08
	g := validGroup(0x1234, b1, 1<<15|42, 0xBEEF)
	g[2].Status = StatusCorrected
	g[3].Status = StatusCorrected

	decodeGroup(state, &g)
	require.Len(t, state.TmcPendingMessages, 1)

	decodeGroup(state, &g)
	assert.Empty(t, state.TmcPendingMessages)
}

func TestFlushExpiredTmcClearsStaleMultiGroup(t *testing.T) {
	state := NewState()
	registerTmcOda(state, 0x1234)

	b1 := uint16(testAppGroupType<<11) | 0x01 // multi-group, continuity index 1
	g := validGroup(0x1234, b1, 1<<15, 0x1122)
	decodeGroup(state, &g)

	require.NotEmpty(t, state.TmcMultigroupsFirst[0])

	FlushExpiredTmc(state, false, time.Now().Add(2*TmcImmediateTimeout))
	assert.Empty(t, state.TmcMultigroupsFirst[0])
}
