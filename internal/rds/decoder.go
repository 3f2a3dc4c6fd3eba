package rds

import (
	"sync"
	"time"

	"github.com/openfmrx/hvylya/internal/pipeline"
)

// europeanCountries maps (ECC, country-code-within-PI) pairs onto ISO
// country codes for the "Region 1" (Europe/North Africa/Middle East)
// RDS country identification table, condensed from Annex D of EN
// 62106. Index is 15*(ecc-0xE0) + cc - 1.
var europeanCountries = [5 * 15]string{
	"DE", "DZ", "AD", "IL", "IT", "BE", "RU", "PS", "AL", "AT", "HU", "MT", "DE", "", "EG",
	"GR", "CY", "SM", "CH", "JO", "FI", "LU", "BG", "DK", "GI", "IQ", "GB", "LY", "RO", "FR",
	"MA", "CZ", "PL", "VA", "SK", "SY", "TN", "", "LI", "IS", "MC", "LT", "YU", "ES", "NO",
	"", "IE", "TR", "MK", "", "", "", "NL", "LV", "LB", "", "HR", "", "SE", "BY",
	"MD", "EE", "", "", "", "UA", "", "PT", "SI", "", "", "", "", "", "BA",
}

var europeanLanguages = []string{
	"Unknown", "Albanian", "Breton", "Catalan", "Croatian", "Welsh", "Czech", "Danish",
	"German", "English", "Spanish", "Esperanto", "Estonian", "Basque", "Faroese", "French",
	"Frisian", "Irish", "Gaelic", "Galician", "Icelandic", "Italian", "Lappish", "Latin",
	"Latvian", "Luxembourgian", "Lithuanian", "Hungarian", "Maltese", "Dutch", "Norwegian",
	"Occitan", "Polish", "Portuguese", "Romanian", "Romansh", "Serbian", "Slovak", "Slovene",
	"Finnish", "Swedish", "Turkish", "Flemish", "Walloon",
}

const (
	odaAidTmcOld   = 0xCD46
	odaAidTmcNew   = 0xCD47
	odaAidDabXref  = 0x93
	legacyTmcGroup = 0x10
)

func typedStatus(group *Group, index int) DecodingStatus {
	return worseStatus(group[1].Status, group[index].Status)
}

func typedCheckData(group *Group, index int) CheckData {
	return CheckData{
		Data:   uint64(group[1].Data)<<16 | uint64(group[index].Data),
		Status: typedStatus(group, index),
	}
}

func typedCheckDataBoth(group *Group) CheckData {
	check := typedCheckData(group, 2)
	check.Data = (check.Data << 16) | uint64(group[3].Data)
	check.Status = worseStatus(check.Status, group[3].Status)
	return check
}

// worseStatus returns the less reliable of two decode outcomes; Valid
// is the best outcome and Uncorrectable the worst.
func worseStatus(a, b DecodingStatus) DecodingStatus {
	if a < b {
		return a
	}
	return b
}

func extractFrequency(freqCode uint8, lfmf bool) int32 {
	if lfmf {
		switch {
		case freqCode >= 1 && freqCode < 16:
			return 153000 + 9000*(int32(freqCode)-1)
		case freqCode >= 16 && freqCode < 136:
			return 531000 + 9000*(int32(freqCode)-16)
		}
		return 0
	}
	if freqCode > 0 && freqCode < 205 {
		return 87600000 + 100000*(int32(freqCode)-1)
	}
	return 0
}

func updateFrequency(frequencies []*Value[int32], freq int32, check CheckData) []*Value[int32] {
	for _, f := range frequencies {
		if f.LastValue() == freq {
			f.Set(freq, check)
			return frequencies
		}
	}
	v := NewValue[int32](TagProgramme)
	v.Set(freq, check)
	return append(frequencies, v)
}

func addFrequencies(frequencies []*Value[int32], group *Group, index int, checkBoth bool) []*Value[int32] {
	if group[index].Status < StatusCorrected {
		return frequencies
	}
	check := typedCheckData(group, index)
	if checkBoth {
		check = typedCheckDataBoth(group)
	}
	codes := group[index].Data
	if codes>>8 == 250 {
		if freq := extractFrequency(uint8(codes&0xFF), true); freq != 0 {
			frequencies = updateFrequency(frequencies, freq, check)
		}
		return frequencies
	}
	for i := 0; i < 2; i, codes = i+1, codes>>8 {
		if freq := extractFrequency(uint8(codes&0xFF), false); freq != 0 {
			frequencies = updateFrequency(frequencies, freq, check)
		}
	}
	return frequencies
}

func decodeProgrammeItemStartTime(start *Value[ProgrammeItemStartTime], group *Group, index int, checkBoth bool) {
	check := typedCheckData(group, index)
	if checkBoth {
		check = typedCheckDataBoth(group)
	}
	value := group[index].Data
	decodeProgrammeItemStartTimeFields(start, value, check)
}

func decodeProgrammeItemStartTimeFields(start *Value[ProgrammeItemStartTime], value uint16, check CheckData) {
	start.Set(ProgrammeItemStartTime{
		DayOfMonth: uint8(value>>11) & 0x1F,
		Hour:       uint8(value>>6) & 0x1F,
		Minute:     uint8(value) & 0x3F,
	}, check)
}

// Decoder accumulates decoded RDS groups into a State, dispatching on
// group type the way decodeGroup does in rds_messages_decoder.cpp.
// Grounded on RdsMessagesDecoder.
type Decoder struct {
	in *pipeline.Reader[Group]

	mu    sync.Mutex
	state *State

	inPort pipeline.InputPort
}

func NewDecoder(in *pipeline.Reader[Group]) *Decoder {
	d := &Decoder{in: in, state: NewState()}
	d.state.TextAB.OnChange = func(bool) {
		for _, v := range d.state.RadioText {
			v.Invalidate()
		}
	}
	d.state.PtnAB.OnChange = func(bool) {
		for _, v := range d.state.ProgrammeTypeName {
			v.Invalidate()
		}
	}
	d.inPort = pipeline.InputPort{Edge: in, RequiredSize: 1, SuggestedSize: 1}
	return d
}

func (d *Decoder) Inputs() []pipeline.InputPort { return []pipeline.InputPort{d.inPort} }

// State returns a point-in-time snapshot of the decoded station state.
// Callers must not mutate the Value fields concurrently; State holds the
// lock only long enough to copy the struct header, so the returned
// *State still aliases the live Value pointers.
func (d *Decoder) State() *State {
	d.mu.Lock()
	defer d.mu.Unlock()
	snapshot := *d.state
	return &snapshot
}

// ExpireStale clears any State field that has gone stale as of now, see
// State.ExpireStale.
func (d *Decoder) ExpireStale(now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state.ExpireStale(now)
}

func (d *Decoder) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = NewState()
}

func (d *Decoder) Process() error {
	n := d.in.AvailableSize()
	if n <= 0 {
		return nil
	}
	src := d.in.ReadSlice()

	d.mu.Lock()
	for i := 0; i < n; i++ {
		group := src[i]
		decodeGroup(d.state, &group)
	}
	d.mu.Unlock()

	d.in.Advance(n)
	return nil
}

func decodeGroupFieldsCommon(state *State, group *Group, index int) {
	state.ProgrammeIdentification.Set(group[index].Data, typedCheckData(group, index))
	state.TrafficProgramme.Set(group[index+1].Data&(1<<10) != 0, typedCheckData(group, index+1))
	state.ProgrammeType.Set((group[index+1].Data>>5)&0x1F, typedCheckData(group, index+1))
}

func decodeGroupCommon(state *State, group *Group) uint16 {
	decodeGroupFieldsCommon(state, group, 0)
	return group[1].Data >> 11
}

func decodeTuningInfoCommon(state *State, group *Group, index int) uint16 {
	check := typedCheckData(group, index)
	state.TrafficAnnouncement.Set(group[index].Data&(1<<4) != 0, check)
	state.MusicSpeech.Set(group[index].Data&(1<<3) != 0, check)

	di := group[index].Data&(1<<3) != 0
	seg := group[index].Data & 0x03

	switch seg {
	case 0x00:
		state.Stereo.Set(di, check)
	case 0x01:
		state.ArtificialHead.Set(di, check)
	case 0x02:
		state.Compressed.Set(di, check)
	case 0x03:
		state.DynamicPTY.Set(di, check)
	}
	return seg
}

func decodeGroupType0(state *State, verB bool, group *Group) {
	seg := decodeTuningInfoCommon(state, group, 1)

	if !verB {
		state.AlternativeFrequencies = addFrequencies(state.AlternativeFrequencies, group, 2, false)
	} else {
		state.ProgrammeIdentification.Set(group[2].Data, typedCheckData(group, 2))
	}

	check3 := typedCheckData(group, 3)
	state.ProgrammeServiceName[2*seg].Set(byte(group[3].Data>>8), check3)
	state.ProgrammeServiceName[2*seg+1].Set(byte(group[3].Data), check3)
}

func decodeGroupType1(state *State, verB bool, group *Group) {
	if !verB {
		if group[2].Status >= StatusCorrected {
			codeSelector := (group[2].Data >> 12) & 0x07
			check2 := typedCheckData(group, 2)
			state.LinkageActuator.Set(group[2].Data&(1<<15) != 0, check2)

			switch codeSelector {
			case 0x00:
				if state.ProgrammeIdentification.Valid() {
					cc := state.ProgrammeIdentification.Value() >> 12
					ecc := group[2].Data & 0xFF
					if ecc >= 0xE0 && ecc <= 0xE4 && cc > 0 {
						idx := int(15*(ecc-0xE0) + cc - 1)
						if idx >= 0 && idx < len(europeanCountries) && europeanCountries[idx] != "" {
							state.Country.Set(europeanCountries[idx], check2)
						}
					}
				}
			case 0x02:
				// Paging identification, not decoded.
			case 0x03:
				langCode := int(group[2].Data & 0x7FF)
				if langCode < len(europeanLanguages) {
					state.Language.Set(europeanLanguages[langCode], check2)
				}
			case 0x06, 0x07:
				// Broadcaster-internal use / Emergency Warning System: format unspecified by the standard.
			}
		}
	} else {
		state.ProgrammeIdentification.Set(group[2].Data, typedCheckData(group, 2))
	}

	decodeProgrammeItemStartTime(state.ProgrammeItemStartTime, group, 3, false)
}

func decodeGroupType2(state *State, verB bool, group *Group) {
	state.TextAB.Set(group[1].Data&(1<<4) != 0, typedCheckData(group, 1))

	seg := group[1].Data & 0x0F
	index := 4 * seg

	if !verB {
		check2 := typedCheckData(group, 2)
		state.RadioText[index].Set(byte(group[2].Data>>8), check2)
		state.RadioText[index+1].Set(byte(group[2].Data), check2)
		index += 2
	} else {
		index = 2 * seg
		state.ProgrammeIdentification.Set(group[2].Data, typedCheckData(group, 2))
	}

	check3 := typedCheckData(group, 3)
	state.RadioText[index].Set(byte(group[3].Data>>8), check3)
	state.RadioText[index+1].Set(byte(group[3].Data), check3)
}

func decodeGroupType3A(state *State, group *Group) {
	if group[3].Data == odaAidTmcOld || group[3].Data == odaAidTmcNew {
		decodeTmcSystemInformation(state, group)
	}

	if group[3].Status >= StatusCorrected {
		appGroupType := group[1].Data & 0x1F
		check3 := typedCheckData(group, 3)
		if v, ok := state.OdaAIDs[appGroupType]; ok {
			v.Set(group[3].Data, check3)
		} else {
			v = NewValue[uint16](TagProgramme)
			v.Set(group[3].Data, check3)
			state.OdaAIDs[appGroupType] = v
		}
	}
}

// modifiedJulianDayToDate converts an RDS Modified Julian Day into a
// civil calendar date using the standard MJD algorithm (EN 62106
// Annex G), equivalent to the source's direct timegm() construction.
func modifiedJulianDayToDate(mjd uint32) (year, month, day int) {
	tmpYear := int(float64(mjd-15078) / 365.25)
	tmpMonth := int((float64(mjd) - 14956.1 - float64(int(float64(tmpYear)*365.25))) / 30.6001)
	day = int(mjd) - 14956 - int(float64(tmpYear)*365.25) - int(float64(tmpMonth)*30.6001)
	k := 0
	if tmpMonth == 14 || tmpMonth == 15 {
		k = 1
	}
	year = tmpYear + k + 1900
	month = tmpMonth - 1 - 12*k
	return
}

func decodeGroupType4A(state *State, group *Group) {
	if group[2].Status < StatusCorrected || group[3].Status < StatusCorrected {
		return
	}

	mjd := (uint32(group[1].Data&0x03) << 15) | uint32(group[2].Data>>1)
	hour := ((group[2].Data & 1) << 4) | (group[3].Data >> 12)
	minute := (group[3].Data >> 6) & 0x3F

	year, month, day := modifiedJulianDayToDate(mjd)
	if month < 1 || month > 12 || day < 1 {
		return
	}
	curTime := time.Date(year, time.Month(month), day, int(hour), int(minute), 0, 0, time.UTC)
	state.CurrentTime.Set(curTime, typedCheckDataBoth(group))
}

func decodeGroupType10A(state *State, group *Group) {
	state.PtnAB.Set(group[1].Data&(1<<4) != 0, typedCheckData(group, 1))
	seg := group[1].Data & 0x01

	check2 := typedCheckData(group, 2)
	state.ProgrammeTypeName[4*seg].Set(byte(group[2].Data>>8), check2)
	state.ProgrammeTypeName[4*seg+1].Set(byte(group[2].Data), check2)

	check3 := typedCheckData(group, 3)
	state.ProgrammeTypeName[4*seg+2].Set(byte(group[3].Data>>8), check3)
	state.ProgrammeTypeName[4*seg+3].Set(byte(group[3].Data), check3)
}

func decodeGroupType14(state *State, verB bool, group *Group) {
	if group[3].Status < StatusCorrected {
		// PI of the other network is unknown, so there's nowhere to file this info.
		return
	}

	piOn := group[3].Data
	info := state.EonInfo(piOn)

	if verB || group[2].Status < StatusCorrected {
		return
	}

	info.TrafficProgramme.Set(group[1].Data&(1<<4) != 0, typedCheckData(group, 1))
	variantCode := group[1].Data & 0x0F
	check := typedCheckDataBoth(group)

	switch {
	case variantCode <= 0x03:
		info.ProgrammeServiceName[2*variantCode].Set(byte(group[2].Data>>8), check)
		info.ProgrammeServiceName[2*variantCode+1].Set(byte(group[2].Data), check)

	case variantCode == 0x04:
		info.Frequencies = addFrequencies(info.Frequencies, group, 2, true)

	case variantCode >= 0x05 && variantCode <= 0x08:
		if mapped := extractFrequency(uint8(group[2].Data&0xFF), false); mapped != 0 {
			info.Frequencies = updateFrequency(info.Frequencies, mapped, check)
		}

	case variantCode == 0x09:
		if mapped := extractFrequency(uint8(group[2].Data&0xFF), true); mapped != 0 {
			info.Frequencies = updateFrequency(info.Frequencies, mapped, check)
		}

	case variantCode == 0x0C:
		info.LinkageActuator.Set(group[2].Data&(1<<15) != 0, check)
		info.ExtendedGeneric.Set(group[2].Data&(1<<14) != 0, check)
		info.I13lLinkage.Set(group[2].Data&(1<<13) != 0, check)
		info.LinkageSetNumber.Set(group[2].Data&0x0FFF, check)

	case variantCode == 0x0D:
		info.ProgrammeType.Set(group[2].Data>>11, check)
		info.TrafficAnnouncement.Set(group[2].Data&0x01 != 0, check)

	case variantCode == 0x0E:
		decodeProgrammeItemStartTimeFields(info.ProgrammeItemStartTime, group[2].Data, check)

	case variantCode == 0x0F:
		// Reserved for broadcaster use.
	}
}

func decodeGroupType15B(state *State, group *Group) {
	decodeGroupFieldsCommon(state, group, 2)
	decodeTuningInfoCommon(state, group, 3)
}

func decodeOpenDataApplication(state *State, groupType uint16, group *Group) {
	aid, ok := state.OdaAIDs[groupType]
	if !ok || !aid.Valid() {
		return
	}
	switch aid.Value() {
	case odaAidTmcOld, odaAidTmcNew:
		decodeTmc(state, group)
	case odaAidDabXref:
		decodeDabReference(state, group)
	}
}

func decodeGroup(state *State, group *Group) {
	groupType := decodeGroupCommon(state, group)
	if group[1].Status < StatusCorrected {
		return
	}

	switch groupType {
	case 0x00, 0x01:
		decodeGroupType0(state, groupType == 0x01, group)
	case 0x02, 0x03:
		decodeGroupType1(state, groupType == 0x03, group)
	case 0x04, 0x05:
		decodeGroupType2(state, groupType == 0x05, group)
	case 0x06:
		decodeGroupType3A(state, group)
	case 0x08:
		decodeGroupType4A(state, group)
	case 0x10:
		if _, ok := state.OdaAIDs[legacyTmcGroup]; ok {
			decodeOpenDataApplication(state, legacyTmcGroup, group)
		} else {
			decodeTmc(state, group)
		}
	case 0x14:
		decodeGroupType10A(state, group)
	case 0x1C, 0x1D:
		decodeGroupType14(state, groupType == 0x1D, group)
	case 0x1F:
		decodeGroupType15B(state, group)
	default:
		if _, ok := state.OdaAIDs[groupType]; ok {
			decodeOpenDataApplication(state, groupType, group)
		}
	}
}
