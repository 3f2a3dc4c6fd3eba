package rds

import "time"

// TmcContinuityCount, TmcMaxExtraGroupsCount and TmcImmediateTimeout
// mirror the TMC multi-group assembly constants in rds_state.h: each of
// 6 continuity indices tracks up to 3 extra ("next") groups following a
// first/second group pair, and an immediate-repetition window of 15s
// decides whether a repeated first group restarts or continues a
// pending multi-group message.
const (
	TmcContinuityCount     = 6
	TmcMaxExtraGroupsCount = 3
	TmcImmediateTimeout    = 15 * time.Second
)

// TmcMessage is the decoded event payload common to every TMC group
// variant (ISO 14819-1).
type TmcMessage struct {
	Duration          uint16
	Diversion         bool
	NegativeDirection bool
	Extent            uint16
	Event             uint16
	Location          uint16
	TotalExtraGroups  uint16
	Extra             []uint32
}

// TmcCheckData tracks the decode status across every 16-bit word a
// multi-group message spans, so the message is only published once
// every constituent group has decoded validly (or consistently
// corrected), mirroring TmcCheckData.
type TmcCheckData struct {
	Data   []uint64
	Status DecodingStatus
}

// TmcFirstGroup/TmcSecondGroup/TmcNextGroup accumulate the pieces of a
// multi-group TMC message as they arrive, keyed by a 64-bit
// continuity/index signature, matching the maps keyed per-continuity-
// index in rds_state.h.
type TmcFirstGroup struct {
	Message   TmcMessage
	Timestamp time.Time
	Count     uint16
}

type TmcSecondGroup struct {
	Message         TmcMessage
	Timestamp       time.Time
	Count           uint16
	RemainingGroups uint16
	Data            uint32
}

type TmcNextGroup struct {
	Message   TmcMessage
	Timestamp time.Time
	Count     uint16
	Data      uint32
}

type TmcPendingMessage struct {
	CheckData TmcCheckData
	Message   TmcMessage
}

// TmcChannel is a TMC-tuned alternate-frequency channel, one entry per
// 8A "other network" tuning info group.
type TmcChannel struct {
	Frequencies                                         []*Value[int32]
	ProgrammeIdentification, LTN, SID                   *Value[uint16]
	ScopeI13l, ScopeNational, ScopeRegional, ScopeUrban *Value[bool]
}

func newTmcChannel() TmcChannel {
	return TmcChannel{
		ProgrammeIdentification: NewValue[uint16](TagProgramme),
		LTN:                     NewValue[uint16](TagProgramme),
		SID:                     NewValue[uint16](TagProgramme),
		ScopeI13l:               NewValue[bool](TagProgramme),
		ScopeNational:           NewValue[bool](TagProgramme),
		ScopeRegional:           NewValue[bool](TagProgramme),
		ScopeUrban:              NewValue[bool](TagProgramme),
	}
}

// EonProgrammeInfo is one entry of the Enhanced Other Networks table
// (group type 14), describing another station's PS name, AF list, and
// traffic/linkage flags as announced by the currently-tuned station.
type EonProgrammeInfo struct {
	ProgrammeServiceName                          []*Value[byte]
	Frequencies                                   []*Value[int32]
	TrafficProgramme                              *Value[bool]
	TrafficAnnouncement                           *Value[bool]
	ProgrammeType                                  *Value[uint16]
	ProgrammeItemStartTime                        *Value[ProgrammeItemStartTime]
	LinkageActuator, ExtendedGeneric, I13lLinkage  *Value[bool]
	LinkageSetNumber                               *Value[uint16]
}

func newEonProgrammeInfo() *EonProgrammeInfo {
	e := &EonProgrammeInfo{
		ProgrammeServiceName:    make([]*Value[byte], 8),
		TrafficProgramme:        NewValue[bool](TagProgramme),
		TrafficAnnouncement:     NewValue[bool](TagCurrent),
		ProgrammeType:           NewValue[uint16](TagProgramme),
		ProgrammeItemStartTime:  NewValue[ProgrammeItemStartTime](TagProgramme),
		LinkageActuator:         NewValue[bool](TagProgramme),
		ExtendedGeneric:         NewValue[bool](TagProgramme),
		I13lLinkage:             NewValue[bool](TagProgramme),
		LinkageSetNumber:        NewValue[uint16](TagProgramme),
	}
	for i := range e.ProgrammeServiceName {
		e.ProgrammeServiceName[i] = NewValue[byte](TagText)
	}
	return e
}

// State is the accumulated station picture built up from decoded
// groups, grounded on RdsState in rds_state.{h,cpp}. Section numbers in
// comments refer to EN 62106.
type State struct {
	// Section 2.2
	ProgrammeIdentification *Value[uint16]
	ProgrammeType           *Value[uint16]
	TrafficProgramme        *Value[bool]

	// Section 3.1.5.1
	TrafficAnnouncement *Value[bool]
	MusicSpeech         *Value[bool]
	Stereo              *Value[bool]
	ArtificialHead       *Value[bool]
	Compressed           *Value[bool]
	DynamicPTY           *Value[bool]
	AlternativeFrequencies []*Value[int32]
	ProgrammeServiceName   []*Value[byte]

	// Section 3.1.5.2
	Country, Language *Value[string]
	LinkageActuator    *Value[bool]
	ProgrammeItemStartTime *Value[ProgrammeItemStartTime]

	// Section 3.1.5.3
	RadioText []*Value[byte]
	TextAB    *Value[bool]

	// Section 3.1.5.4
	OdaMessage *Value[uint16]
	OdaAIDs    map[uint16]*Value[uint16]

	// Section 3.1.5.6
	CurrentTime *Value[time.Time]

	// Section 3.1.5.8
	TransparentDataChannels map[uint16]*Value[uint32]

	// Section 3.1.5.12 (TMC)
	TmcMultigroupsFirst  [TmcContinuityCount]map[uint64]TmcFirstGroup
	TmcMultigroupsSecond [TmcContinuityCount]map[uint64]TmcSecondGroup
	TmcMultigroupsNext   [TmcContinuityCount][TmcMaxExtraGroupsCount]map[uint64]TmcNextGroup
	TmcPendingMessages   map[uint64]TmcPendingMessage

	TmcServiceProviderName []*Value[byte]
	TmcChannels            []TmcChannel
	TmcLTN, TmcGap, TmcSID, TmcActivityTime, TmcWindowTime, TmcDelayTime *Value[uint16]
	TmcAFI, TmcMode, TmcScopeI13l, TmcScopeNational, TmcScopeRegional, TmcScopeUrban *Value[bool]

	// Section 3.1.5.14
	ProgrammeTypeName []*Value[byte]
	PtnAB             *Value[bool]

	// Section 3.1.5.19
	EonMapping map[uint16]*EonProgrammeInfo

	// ODA DAB linkage, ETSI EN 301 700
	DabEID, DabSID, DabMode, DabLinkLinkageSetNumber *Value[uint16]
	DabLinkLinkageActuator, DabLinkSoftHard, DabLinkExtendedGeneric, DabLinkI13lLinkageSet *Value[bool]
	DabFreq *Value[uint32]
}

// NewState builds a freshly-cleared station state.
func NewState() *State {
	s := &State{
		ProgrammeIdentification: NewValue[uint16](TagProgramme),
		ProgrammeType:           NewValue[uint16](TagProgramme),
		TrafficProgramme:        NewValue[bool](TagProgramme),

		TrafficAnnouncement: NewValue[bool](TagCurrent),
		MusicSpeech:         NewValue[bool](TagCurrent),
		Stereo:              NewValue[bool](TagCurrent),
		ArtificialHead:      NewValue[bool](TagCurrent),
		Compressed:          NewValue[bool](TagCurrent),
		DynamicPTY:          NewValue[bool](TagCurrent),
		ProgrammeServiceName: make([]*Value[byte], 8),

		Country:  NewValue[string](TagProgramme),
		Language: NewValue[string](TagProgramme),
		LinkageActuator: NewValue[bool](TagProgramme),
		ProgrammeItemStartTime: NewValue[ProgrammeItemStartTime](TagProgramme),

		RadioText: make([]*Value[byte], 64),
		TextAB:    NewValue[bool](TagText),

		OdaMessage: NewValue[uint16](TagProgramme),
		OdaAIDs:    make(map[uint16]*Value[uint16]),

		CurrentTime: NewValue[time.Time](TagClock),

		TransparentDataChannels: make(map[uint16]*Value[uint32]),

		TmcPendingMessages: make(map[uint64]TmcPendingMessage),
		TmcServiceProviderName: make([]*Value[byte], 8),
		TmcLTN: NewValue[uint16](TagProgramme), TmcGap: NewValue[uint16](TagProgramme), TmcSID: NewValue[uint16](TagProgramme),
		TmcActivityTime: NewValue[uint16](TagProgramme), TmcWindowTime: NewValue[uint16](TagProgramme), TmcDelayTime: NewValue[uint16](TagProgramme),
		TmcAFI: NewValue[bool](TagProgramme), TmcMode: NewValue[bool](TagProgramme),
		TmcScopeI13l: NewValue[bool](TagProgramme), TmcScopeNational: NewValue[bool](TagProgramme),
		TmcScopeRegional: NewValue[bool](TagProgramme), TmcScopeUrban: NewValue[bool](TagProgramme),

		ProgrammeTypeName: make([]*Value[byte], 8),
		PtnAB:             NewValue[bool](TagText),

		EonMapping: make(map[uint16]*EonProgrammeInfo),

		DabEID: NewValue[uint16](TagProgramme), DabSID: NewValue[uint16](TagProgramme),
		DabMode: NewValue[uint16](TagProgramme), DabLinkLinkageSetNumber: NewValue[uint16](TagProgramme),
		DabLinkLinkageActuator: NewValue[bool](TagProgramme), DabLinkSoftHard: NewValue[bool](TagProgramme),
		DabLinkExtendedGeneric: NewValue[bool](TagProgramme), DabLinkI13lLinkageSet: NewValue[bool](TagProgramme),
		DabFreq: NewValue[uint32](TagProgramme),
	}
	for i := range s.ProgrammeServiceName {
		s.ProgrammeServiceName[i] = NewValue[byte](TagText)
	}
	for i := range s.RadioText {
		s.RadioText[i] = NewValue[byte](TagText)
	}
	for i := range s.TmcServiceProviderName {
		s.TmcServiceProviderName[i] = NewValue[byte](TagProgramme)
	}
	for i := range s.ProgrammeTypeName {
		s.ProgrammeTypeName[i] = NewValue[byte](TagText)
	}
	for c := 0; c < TmcContinuityCount; c++ {
		s.TmcMultigroupsFirst[c] = make(map[uint64]TmcFirstGroup)
		s.TmcMultigroupsSecond[c] = make(map[uint64]TmcSecondGroup)
		for e := 0; e < TmcMaxExtraGroupsCount; e++ {
			s.TmcMultigroupsNext[c][e] = make(map[uint64]TmcNextGroup)
		}
	}
	return s
}

// ExpireStale walks every field and clears whichever ones haven't been
// refreshed within their tag's validity window, implementing the
// coverage-gap expiry rule from RdsValue::set's clear() counterpart.
func (s *State) ExpireStale(now time.Time) {
	singles := []Expirer{
		s.ProgrammeIdentification, s.ProgrammeType, s.TrafficProgramme,
		s.TrafficAnnouncement, s.MusicSpeech, s.Stereo, s.ArtificialHead,
		s.Compressed, s.DynamicPTY,
		s.Country, s.Language, s.LinkageActuator, s.ProgrammeItemStartTime,
		s.TextAB, s.OdaMessage, s.CurrentTime,
		s.TmcLTN, s.TmcGap, s.TmcSID, s.TmcActivityTime, s.TmcWindowTime, s.TmcDelayTime,
		s.TmcAFI, s.TmcMode, s.TmcScopeI13l, s.TmcScopeNational, s.TmcScopeRegional, s.TmcScopeUrban,
		s.PtnAB,
		s.DabEID, s.DabSID, s.DabMode, s.DabLinkLinkageSetNumber,
		s.DabLinkLinkageActuator, s.DabLinkSoftHard, s.DabLinkExtendedGeneric, s.DabLinkI13lLinkageSet,
		s.DabFreq,
	}
	for _, v := range singles {
		ExpireIfStale(v, now)
	}
	for _, v := range s.AlternativeFrequencies {
		ExpireIfStale(v, now)
	}
	for _, v := range s.ProgrammeServiceName {
		ExpireIfStale(v, now)
	}
	for _, v := range s.RadioText {
		ExpireIfStale(v, now)
	}
	for _, v := range s.ProgrammeTypeName {
		ExpireIfStale(v, now)
	}
	for _, v := range s.TmcServiceProviderName {
		ExpireIfStale(v, now)
	}
	for _, v := range s.OdaAIDs {
		ExpireIfStale(v, now)
	}
	for _, v := range s.TransparentDataChannels {
		ExpireIfStale(v, now)
	}
}

// EonInfo returns (creating if necessary) the EON entry for the given
// programme identification.
func (s *State) EonInfo(pi uint16) *EonProgrammeInfo {
	info, ok := s.EonMapping[pi]
	if !ok {
		info = newEonProgrammeInfo()
		s.EonMapping[pi] = info
	}
	return info
}

// TmcChannelAt returns (creating if necessary) the TMC "other network"
// channel entry at the given index.
func (s *State) TmcChannelAt(index int) *TmcChannel {
	for len(s.TmcChannels) <= index {
		s.TmcChannels = append(s.TmcChannels, newTmcChannel())
	}
	return &s.TmcChannels[index]
}
