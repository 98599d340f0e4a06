package protocol

import (
	"bytes"
	"errors"
	"testing"
)

func TestFletcher16RoundTrip(t *testing.T) {
	bodies := [][]byte{
		{0x02, 0x28},
		{0x09, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00},
		{0x01, 0x1D},
	}
	for _, b := range bodies {
		s1, s2 := Fletcher16(b)
		if !VerifyFletcher16(b, s1, s2) {
			t.Fatalf("fletcher16 self-verify failed for %x", b)
		}
		corrupt := append([]byte(nil), b...)
		corrupt[0] ^= 0xFF
		if VerifyFletcher16(corrupt, s1, s2) {
			t.Fatalf("fletcher16 verify should fail after corrupting a byte")
		}
	}
}

func TestByteStuffingRoundTrip(t *testing.T) {
	inputs := [][]byte{
		{0x00, 0x01, 0x02},
		{0x7E, 0x7D, 0x00, 0x7E},
		bytes.Repeat([]byte{0x7D}, 8),
	}
	for _, in := range inputs {
		stuffed := Stuff(in)
		for _, b := range stuffed {
			if b == startByte {
				t.Fatalf("stuffed output %x contains raw start byte", stuffed)
			}
		}
		for i := 0; i < len(stuffed); i++ {
			if stuffed[i] == escapeByte {
				if i+1 >= len(stuffed) || (stuffed[i+1] != escXor5D && stuffed[i+1] != escXor5E) {
					t.Fatalf("stuffed output %x has escape not followed by 0x5D/0x5E", stuffed)
				}
				i++
			}
		}
		out, err := Unstuff(stuffed)
		if err != nil {
			t.Fatalf("unstuff: %v", err)
		}
		if !bytes.Equal(out, in) {
			t.Fatalf("unstuff(stuff(%x)) = %x, want %x", in, out, in)
		}
	}
}

func TestWriteFrameLengthInvariant(t *testing.T) {
	frame, err := WriteFrame(MsgSystemStatusReq, nil, false)
	if err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	if frame[0] != startByte {
		t.Fatalf("frame missing start byte: %x", frame)
	}
	unstuffed, err := Unstuff(frame[1:])
	if err != nil {
		t.Fatalf("unstuff frame body: %v", err)
	}
	length := unstuffed[0]
	dataLen := len(unstuffed) - 1 /*length*/ - 2 /*checksum*/
	if int(length) != dataLen {
		t.Fatalf("length byte %d != 1+data.len() %d", length, dataLen)
	}
}

func TestWriteFrameRejectsBadBodyLength(t *testing.T) {
	_, err := WriteFrame(MsgPartitionStatusReq, []byte{0x00, 0x01, 0x02}, false)
	if err == nil {
		t.Fatal("expected error for wrong body length")
	}
}

func TestReadFrameRoundTrip(t *testing.T) {
	var body []byte
	frame, err := WriteFrame(MsgSystemStatusReq, body, false)
	if err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	r := NewReader(bytes.NewReader(frame))
	msgType, ack, data, err := r.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if msgType != MsgSystemStatusReq {
		t.Fatalf("got type %v, want SystemStatusReq", msgType)
	}
	if ack {
		t.Fatal("did not request ack")
	}
	if len(data) != 0 {
		t.Fatalf("expected empty data, got %x", data)
	}
}

func TestReadFrameRejectsCorruptedChecksum(t *testing.T) {
	frame, err := WriteFrame(MsgSystemStatusReq, nil, false)
	if err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	// Flip a bit in the last (checksum) byte, which is never a byte-stuffing
	// escape byte for this particular frame, so the corruption survives verbatim.
	frame[len(frame)-1] ^= 0x01

	r := NewReader(bytes.NewReader(frame))
	_, _, _, err = r.ReadFrame()
	var ferr *FrameError
	if !errors.As(err, &ferr) || ferr.Kind != ErrBadChecksum {
		t.Fatalf("expected BadChecksum, got %v", err)
	}
}

func TestPINPacking(t *testing.T) {
	got, err := PackPIN("1234")
	if err != nil {
		t.Fatalf("PackPIN: %v", err)
	}
	want := []byte{0x21, 0x43, 0x00}
	if !bytes.Equal(got, want) {
		t.Fatalf("PackPIN(1234) = %x, want %x", got, want)
	}

	got, err = PackPIN("123456")
	if err != nil {
		t.Fatalf("PackPIN: %v", err)
	}
	want = []byte{0x21, 0x43, 0x65}
	if !bytes.Equal(got, want) {
		t.Fatalf("PackPIN(123456) = %x, want %x", got, want)
	}
}

func TestPINPackingRejectsBadLength(t *testing.T) {
	if _, err := PackPIN("123"); err == nil {
		t.Fatal("expected error for 3-digit PIN")
	}
}
