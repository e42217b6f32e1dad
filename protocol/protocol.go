// Package protocol implements the site-survey wire protocol
package protocol

// Version represents the survey protocol revision reported by host tools
const Version = "0.1.0"

// Wire constants. Survey broadcast frames follow the UWB MAC convention:
// little-endian fields, 16-bit short addressing.
const (
	// PANID is the fixed network identifier of the survey cell
	PANID = 0xDECA

	// FctrlRange16 identifies "ranging, 16-bit addressing" frames
	FctrlRange16 = 0x8841

	// BroadcastAddress is the all-ones 16-bit destination
	BroadcastAddress = 0xFFFF

	// CodeSurveyBroadcast identifies a survey broadcast message
	CodeSurveyBroadcast = 0x53

	// Field offsets within a survey broadcast frame
	posPANID  = 0
	posFctrl  = 2
	posDst    = 4
	posSrc    = 6
	posCode   = 8
	posCellID = 9
	posSeq    = 11
	posSlotID = 15
	posMask   = 17

	// HeaderSize is the fixed portion before the distance array
	HeaderSize = 21

	// RangeSize is the on-wire size of one distance value (float32)
	RangeSize = 4

	// MaxNodes is the widest survey a 32-bit node mask can describe
	MaxNodes = 32
)

// FrameSize returns the on-wire length of a broadcast frame carrying
// npeers distance values.
func FrameSize(npeers int) int {
	return HeaderSize + npeers*RangeSize
}
