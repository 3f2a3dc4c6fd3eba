package rds

import (
	"time"

	"github.com/charmbracelet/log"
)

// tmcMultiGroupCheckData masks out the continuity index (it is checked
// explicitly for immediate repetition, and doesn't matter for periodic
// repetition), matching tmcMultiGroupCheckData in the source.
func tmcMultiGroupCheckData(group *Group) CheckData {
	check := typedCheckDataBoth(group)
	check.Data &^= 0x7 << 32
	return check
}

func extractTmcMessage(group *Group) TmcMessage {
	return TmcMessage{
		Duration:          group[1].Data & 0x07,
		Diversion:         group[2].Data&(1<<15) != 0,
		NegativeDirection: group[2].Data&(1<<14) != 0,
		Extent:            (group[2].Data >> 11) & 0x07,
		Event:             group[2].Data & 0x7FF,
		Location:          group[3].Data,
	}
}

// addTmcMessage publishes a fully-assembled TMC message, matching the
// source's addTmcMessage.
func addTmcMessage(state *State, msg TmcMessage) {
	log.Debug("tmc message",
		"duration", msg.Duration,
		"diversion", msg.Diversion,
		"neg_dir", msg.NegativeDirection,
		"extent", msg.Extent,
		"event", msg.Event,
		"location", msg.Location,
		"total_extra_groups", msg.TotalExtraGroups,
		"extra_len", len(msg.Extra),
		"pending_messages", len(state.TmcPendingMessages),
	)
}

func addSingleGroupTmcMessage(state *State, msg TmcMessage, check CheckData) {
	if check.Status == StatusValid {
		delete(state.TmcPendingMessages, check.Data)
		addTmcMessage(state, msg)
		return
	}
	if _, ok := state.TmcPendingMessages[check.Data]; ok {
		delete(state.TmcPendingMessages, check.Data)
		addTmcMessage(state, msg)
		return
	}
	state.TmcPendingMessages[check.Data] = TmcPendingMessage{
		CheckData: TmcCheckData{Data: []uint64{check.Data}, Status: check.Status},
		Message:   msg,
	}
}

func decodeTmcSingleGroup(state *State, group *Group) {
	msg := extractTmcMessage(group)
	addSingleGroupTmcMessage(state, msg, typedCheckDataBoth(group))
}

func decodeTmcMultiGroup(state *State, group *Group) {
	continuityIndex := (group[1].Data & 0x07) - 1
	if continuityIndex >= TmcContinuityCount {
		return
	}
	check := tmcMultiGroupCheckData(group)

	if group[2].Data&(1<<15) != 0 {
		msg := extractTmcMessage(group)
		info := state.TmcMultigroupsFirst[continuityIndex][check.Data]
		info.Timestamp = time.Now()
		if check.Status == StatusValid {
			info.Count += 2
		} else {
			info.Count++
		}
		info.Message = msg
		state.TmcMultigroupsFirst[continuityIndex][check.Data] = info
		return
	}

	remainingGroups := (group[2].Data >> 12) & 0x03
	second := group[2].Data&(1<<14) != 0
	countInc := uint16(1)
	if check.Status == StatusValid {
		countInc = 2
	}
	data := uint32(group[2].Data&0x0FFF)<<16 | uint32(group[3].Data)

	var totalCount uint16
	if second {
		info := state.TmcMultigroupsSecond[continuityIndex][check.Data]
		info.Timestamp = time.Now()
		info.RemainingGroups = remainingGroups
		info.Count += countInc
		info.Data = data
		state.TmcMultigroupsSecond[continuityIndex][check.Data] = info
		totalCount = info.Count
	} else {
		if remainingGroups >= TmcMaxExtraGroupsCount {
			return
		}
		info := state.TmcMultigroupsNext[continuityIndex][remainingGroups][check.Data]
		info.Timestamp = time.Now()
		info.Count += countInc
		info.Data = data
		state.TmcMultigroupsNext[continuityIndex][remainingGroups][check.Data] = info
		totalCount = info.Count
	}

	if remainingGroups == 0 && totalCount >= 2 {
		flushTmcMultiGroup(state, continuityIndex)
	}
}

// flushTmcMultiGroup assembles the best-attested first/second/next group
// set for a continuity index into a single message and clears that
// index's pending groups regardless of whether assembly succeeded.
func flushTmcMultiGroup(state *State, continuityIndex uint16) {
	var bestFirstKey uint64
	var bestFirst TmcFirstGroup
	haveFirst := false
	for k, v := range state.TmcMultigroupsFirst[continuityIndex] {
		if !haveFirst || v.Count > bestFirst.Count {
			bestFirstKey, bestFirst, haveFirst = k, v, true
		}
	}

	var bestSecondKey uint64
	var bestSecond TmcSecondGroup
	haveSecond := false
	for k, v := range state.TmcMultigroupsSecond[continuityIndex] {
		if !haveSecond || v.Count > bestSecond.Count {
			bestSecondKey, bestSecond, haveSecond = k, v, true
		}
	}

	if haveFirst && haveSecond {
		msg := bestFirst.Message
		msg.TotalExtraGroups = bestSecond.RemainingGroups + 1
		msg.Extra = append(msg.Extra, bestSecond.Data)

		checkData := TmcCheckData{Data: []uint64{bestFirstKey, bestSecondKey}}
		count := bestFirst.Count
		if bestSecond.Count < count {
			count = bestSecond.Count
		}

		for remaining := int(bestSecond.RemainingGroups) - 1; remaining >= 0; remaining-- {
			var bestNextKey uint64
			var bestNext TmcNextGroup
			haveNext := false
			for k, v := range state.TmcMultigroupsNext[continuityIndex][remaining] {
				if !haveNext || v.Count > bestNext.Count {
					bestNextKey, bestNext, haveNext = k, v, true
				}
			}
			if !haveNext {
				break
			}
			msg.Extra = append(msg.Extra, bestNext.Data)
			checkData.Data = append(checkData.Data, bestNextKey)
			if bestNext.Count < count {
				count = bestNext.Count
			}
		}

		if count >= 2 {
			checkData.Status = StatusValid
		} else {
			checkData.Status = StatusCorrected
		}
		addMultiGroupTmcMessage(state, msg, checkData)
	}

	state.TmcMultigroupsFirst[continuityIndex] = make(map[uint64]TmcFirstGroup)
	state.TmcMultigroupsSecond[continuityIndex] = make(map[uint64]TmcSecondGroup)
	for e := 0; e < TmcMaxExtraGroupsCount; e++ {
		state.TmcMultigroupsNext[continuityIndex][e] = make(map[uint64]TmcNextGroup)
	}
}

func addMultiGroupTmcMessage(state *State, msg TmcMessage, check TmcCheckData) {
	if check.Status == StatusValid {
		delete(state.TmcPendingMessages, check.Data[0])
		addTmcMessage(state, msg)
		return
	}
	if pending, ok := state.TmcPendingMessages[check.Data[0]]; ok {
		matching := 1
		for matching < len(pending.CheckData.Data) && matching < len(check.Data) {
			if pending.CheckData.Data[matching] != check.Data[matching] {
				break
			}
			matching++
		}
		merged := msg
		if matching < len(merged.Extra) {
			merged.Extra = merged.Extra[:matching]
		}
		delete(state.TmcPendingMessages, check.Data[0])
		addTmcMessage(state, merged)
		return
	}
	state.TmcPendingMessages[check.Data[0]] = TmcPendingMessage{CheckData: check, Message: msg}
}

// FlushExpiredTmc clears pending multi-group TMC assemblies whose
// constituent groups haven't all arrived within TmcImmediateTimeout,
// grounded on clearTmc. Pass everything=true to force a full reset
// (e.g. on re-tune).
func FlushExpiredTmc(state *State, everything bool, cutoff time.Time) {
	for i := uint16(0); i < TmcContinuityCount; i++ {
		expired := everything
		for _, g := range state.TmcMultigroupsFirst[i] {
			if cutoff.Sub(g.Timestamp) > TmcImmediateTimeout {
				expired = true
			}
		}
		for _, g := range state.TmcMultigroupsSecond[i] {
			if cutoff.Sub(g.Timestamp) > TmcImmediateTimeout {
				expired = true
			}
		}
		for e := 0; e < TmcMaxExtraGroupsCount; e++ {
			for _, g := range state.TmcMultigroupsNext[i][e] {
				if cutoff.Sub(g.Timestamp) > TmcImmediateTimeout {
					expired = true
				}
			}
		}
		if expired {
			flushTmcMultiGroup(state, i)
		}
	}
}

func ensureTmcChannel(state *State, group *Group, index int) *TmcChannel {
	pi := group[index].Data
	for i := range state.TmcChannels {
		if state.TmcChannels[i].ProgrammeIdentification.LastValue() == pi {
			state.TmcChannels[i].ProgrammeIdentification.Set(pi, typedCheckData(group, index))
			return &state.TmcChannels[i]
		}
	}
	channel := state.TmcChannelAt(len(state.TmcChannels))
	channel.ProgrammeIdentification.Set(pi, typedCheckData(group, index))
	return channel
}

func decodeTmcTuningInformation(state *State, group *Group) {
	variantCode := group[1].Data & 0x0F

	switch variantCode {
	case 0x04, 0x05:
		base := (variantCode - 0x04) * 4
		check2 := typedCheckData(group, 2)
		check3 := typedCheckData(group, 3)
		state.TmcServiceProviderName[base].Set(byte(group[2].Data>>8), check2)
		state.TmcServiceProviderName[base+1].Set(byte(group[2].Data), check2)
		state.TmcServiceProviderName[base+2].Set(byte(group[3].Data>>8), check3)
		state.TmcServiceProviderName[base+3].Set(byte(group[3].Data), check3)

	case 0x06:
		channel := ensureTmcChannel(state, group, 3)
		channel.Frequencies = addFrequencies(channel.Frequencies, group, 2, false)

	case 0x07:
		channel := ensureTmcChannel(state, group, 3)
		if freq := extractFrequency(uint8(group[2].Data&0xFF), false); freq != 0 {
			channel.Frequencies = updateFrequency(channel.Frequencies, freq, typedCheckData(group, 2))
		}

	case 0x08:
		if group[2].Data != 0 {
			ensureTmcChannel(state, group, 2)
		}
		if group[3].Data != 0 {
			ensureTmcChannel(state, group, 3)
		}

	case 0x09:
		channel := ensureTmcChannel(state, group, 3)
		check2 := typedCheckData(group, 2)
		channel.LTN.Set(group[2].Data>>10, check2)
		channel.ScopeI13l.Set(group[2].Data&(1<<9) != 0, check2)
		channel.ScopeNational.Set(group[2].Data&(1<<8) != 0, check2)
		channel.ScopeRegional.Set(group[2].Data&(1<<7) != 0, check2)
		channel.ScopeUrban.Set(group[2].Data&(1<<6) != 0, check2)
		channel.SID.Set(group[2].Data&0x3F, check2)
	}
}

func decodeTmc(state *State, group *Group) {
	if group[2].Status < StatusCorrected || group[3].Status < StatusCorrected {
		return
	}

	msgType := group[1].Data & 0x1F
	switch {
	case msgType >= 0x01 && msgType <= 0x06:
		decodeTmcMultiGroup(state, group)
	case msgType >= 0x08 && msgType <= 0x0F:
		decodeTmcSingleGroup(state, group)
	case msgType >= 0x14 && msgType <= 0x19:
		decodeTmcTuningInformation(state, group)
	}
}

func decodeTmcSystemInfoCommon(state *State, group *Group, check CheckData) {
	state.TmcLTN.Set((group[2].Data>>6)&0x3F, check)
	state.TmcAFI.Set(group[2].Data&(1<<5) != 0, check)
	state.TmcMode.Set(group[2].Data&(1<<4) != 0, check)
	state.TmcScopeI13l.Set(group[2].Data&(1<<3) != 0, check)
	state.TmcScopeNational.Set(group[2].Data&(1<<2) != 0, check)
	state.TmcScopeRegional.Set(group[2].Data&(1<<1) != 0, check)
	state.TmcScopeUrban.Set(group[2].Data&1 != 0, check)
}

func decodeTmcSystemInformation(state *State, group *Group) {
	variantCode := group[2].Data >> 14
	check := typedCheckData(group, 2)

	switch variantCode {
	case 0x00:
		decodeTmcSystemInfoCommon(state, group, check)
	case 0x01:
		state.TmcGap.Set((group[2].Data>>12)&0x03, check)
		state.TmcSID.Set((group[2].Data>>6)&0x3F, check)
		if state.TmcMode.Valid() && state.TmcMode.Value() {
			state.TmcActivityTime.Set((group[2].Data>>4)&0x03, check)
			state.TmcWindowTime.Set((group[2].Data>>2)&0x03, check)
			state.TmcDelayTime.Set(group[2].Data&0x03, check)
		}
	}
}

// decodeDabReference decodes the ETSI EN 301 700 DAB cross-reference
// ODA, grounded on decodeDabReference.
func decodeDabReference(state *State, group *Group) {
	es := group[1].Data&(1<<4) != 0

	if es {
		variantCode := group[1].Data & 0x0F
		switch variantCode {
		case 0x00:
			state.DabEID.Set(group[2].Data, typedCheckData(group, 2))
		case 0x01:
			check2 := typedCheckData(group, 2)
			state.DabLinkLinkageActuator.Set(group[2].Data&(1<<14) != 0, check2)
			state.DabLinkSoftHard.Set(group[2].Data&(1<<13) != 0, check2)
			state.DabLinkI13lLinkageSet.Set(group[2].Data&(1<<12) != 0, check2)
			state.DabLinkLinkageSetNumber.Set(group[2].Data&0x0FFF, check2)
		}
		state.DabSID.Set(group[3].Data, typedCheckData(group, 3))
		return
	}

	state.DabMode.Set((group[1].Data>>2)&0x03, typedCheckData(group, 1))
	state.DabFreq.Set((uint32(group[1].Data&0x03)<<16|uint32(group[2].Data))*16000, typedCheckData(group, 2))
	state.DabEID.Set(group[3].Data, typedCheckData(group, 3))
}
