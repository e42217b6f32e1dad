package serialdev

import (
	"bytes"
	"testing"
)

func TestSlipRoundTrip(t *testing.T) {
	msgs := [][]byte{
		{cmdStartTx},
		{cmdWriteTx, 0x01, slipEnd, 0x02, slipEsc, 0x03},
		{evRxFrame, slipEsc, slipEscEnd, slipEnd, slipEnd},
	}

	var stream []byte
	for _, m := range msgs {
		stream = slipEncode(stream, m)
	}

	var dec slipDecoder
	var got [][]byte
	for _, b := range stream {
		if msg, ok := dec.feed(b); ok {
			got = append(got, msg)
		}
	}

	if len(got) != len(msgs) {
		t.Fatalf("Decoded %d messages, want %d", len(got), len(msgs))
	}
	for i := range msgs {
		if !bytes.Equal(got[i], msgs[i]) {
			t.Errorf("Message %d: got %x, want %x", i, got[i], msgs[i])
		}
	}
}

func TestSlipDecoderSkipsGarbageBetweenFrames(t *testing.T) {
	var dec slipDecoder

	// Back-to-back END bytes produce no empty messages
	for _, b := range []byte{slipEnd, slipEnd, slipEnd} {
		if _, ok := dec.feed(b); ok {
			t.Error("Empty frame must not be delivered")
		}
	}

	stream := slipEncode(nil, []byte{evTxDone})
	var got [][]byte
	for _, b := range stream {
		if msg, ok := dec.feed(b); ok {
			got = append(got, msg)
		}
	}
	if len(got) != 1 || got[0][0] != evTxDone {
		t.Errorf("Expected single evTxDone, got %x", got)
	}
}

func TestSlipDecoderDropsBadEscape(t *testing.T) {
	var dec slipDecoder

	// ESC followed by a non-escape code poisons the frame in progress
	for _, b := range []byte{0x01, 0x02, slipEsc, 0x99} {
		dec.feed(b)
	}
	msg, ok := dec.feed(slipEnd)
	if ok && len(msg) > 0 {
		t.Errorf("Poisoned frame must be dropped, got %x", msg)
	}
}
