package mavlink

import "encoding/binary"

const (
	magicV1 = 0xFE
	magicV2 = 0xFD

	headerLenV1 = 6
	headerLenV2 = 10

	checksumLen  = 2
	signatureLen = 13

	// incompatSigned is the only incompatibility flag defined by the protocol. Frames
	// advertising flags we do not understand are dropped.
	incompatSigned = 0x01

	maxFrameLen = headerLenV2 + 255 + checksumLen + signatureLen
)

// crcExtras seeds the frame checksum per message type. A decoder cannot validate (and so must
// drop) messages whose seed it does not know; these cover the set this driver consumes.
var crcExtras = map[uint32]byte{
	msgHeartbeat:         50,
	msgSysStatus:         124,
	msgGlobalPositionInt: 104,
	msgVFRHUD:            20,
}

// Frame is a single decoded transport frame.
type Frame struct {
	MsgID   uint32
	SysID   byte
	CompID  byte
	Payload []byte
}

// x25 computes the CRC-16/X.25 checksum used by the protocol: the frame bytes after the
// magic, followed by the per-message seed byte.
func x25(data []byte, extra byte) uint16 {
	crc := uint16(0xFFFF)
	update := func(b byte) {
		tmp := b ^ byte(crc&0xFF)
		tmp ^= tmp << 4
		crc = (crc >> 8) ^ (uint16(tmp) << 8) ^ (uint16(tmp) << 3) ^ (uint16(tmp) >> 4)
	}
	for _, b := range data {
		update(b)
	}
	update(extra)
	return crc
}

// Decoder is an incremental frame parser. Feed it raw stream bytes; it resynchronizes on
// garbage by scanning forward to the next magic byte.
type Decoder struct {
	buf []byte
}

// Write appends raw bytes to the decoder's buffer.
func (d *Decoder) Write(p []byte) {
	d.buf = append(d.buf, p...)
}

// Next extracts the next complete, valid frame, or returns false if more bytes are needed.
// Unparseable or unverifiable input is skipped.
func (d *Decoder) Next() (Frame, bool) {
	for {
		d.sync()
		if len(d.buf) == 0 {
			return Frame{}, false
		}
		frame, size, ok := d.parseHead()
		if size == 0 {
			// Incomplete; wait for more bytes unless the buffer can't possibly hold a frame.
			if len(d.buf) > maxFrameLen {
				d.buf = d.buf[1:]
				continue
			}
			return Frame{}, false
		}
		d.buf = d.buf[size:]
		if ok {
			return frame, true
		}
	}
}

// sync discards bytes preceding the next magic byte.
func (d *Decoder) sync() {
	for i, b := range d.buf {
		if b == magicV1 || b == magicV2 {
			d.buf = d.buf[i:]
			return
		}
	}
	d.buf = d.buf[:0]
}

// parseHead attempts to parse the frame at the head of the buffer. size is 0 when more bytes
// are needed; ok is false when the frame should be skipped (bad CRC, unknown message,
// unsupported flags).
func (d *Decoder) parseHead() (frame Frame, size int, ok bool) {
	if d.buf[0] == magicV1 {
		return d.parseV1()
	}
	return d.parseV2()
}

func (d *Decoder) parseV1() (Frame, int, bool) {
	if len(d.buf) < headerLenV1 {
		return Frame{}, 0, false
	}
	payloadLen := int(d.buf[1])
	total := headerLenV1 + payloadLen + checksumLen
	if len(d.buf) < total {
		return Frame{}, 0, false
	}
	msgID := uint32(d.buf[5])
	extra, known := crcExtras[msgID]
	if !known {
		return Frame{}, total, false
	}
	want := binary.LittleEndian.Uint16(d.buf[headerLenV1+payloadLen:])
	if x25(d.buf[1:headerLenV1+payloadLen], extra) != want {
		// Corrupt frame; resync from the next byte in case the length field lied.
		return Frame{}, 1, false
	}
	frame := Frame{
		MsgID:   msgID,
		SysID:   d.buf[3],
		CompID:  d.buf[4],
		Payload: append([]byte(nil), d.buf[headerLenV1:headerLenV1+payloadLen]...),
	}
	return frame, total, true
}

func (d *Decoder) parseV2() (Frame, int, bool) {
	if len(d.buf) < headerLenV2 {
		return Frame{}, 0, false
	}
	payloadLen := int(d.buf[1])
	incompat := d.buf[2]
	total := headerLenV2 + payloadLen + checksumLen
	if incompat&incompatSigned != 0 {
		total += signatureLen
	}
	if len(d.buf) < total {
		return Frame{}, 0, false
	}
	if incompat&^incompatSigned != 0 {
		return Frame{}, total, false
	}
	msgID := uint32(d.buf[7]) | uint32(d.buf[8])<<8 | uint32(d.buf[9])<<16
	extra, known := crcExtras[msgID]
	if !known {
		return Frame{}, total, false
	}
	want := binary.LittleEndian.Uint16(d.buf[headerLenV2+payloadLen:])
	if x25(d.buf[1:headerLenV2+payloadLen], extra) != want {
		return Frame{}, 1, false
	}
	frame := Frame{
		MsgID:   msgID,
		SysID:   d.buf[5],
		CompID:  d.buf[6],
		Payload: append([]byte(nil), d.buf[headerLenV2:headerLenV2+payloadLen]...),
	}
	return frame, total, true
}

// encodeV1 serializes a frame in v1 format, which every autopilot understands.
func encodeV1(seq, sysID, compID, msgID byte, payload []byte) []byte {
	out := make([]byte, 0, headerLenV1+len(payload)+checksumLen)
	out = append(out, magicV1, byte(len(payload)), seq, sysID, compID, msgID)
	out = append(out, payload...)
	crc := x25(out[1:], crcExtras[uint32(msgID)])
	return binary.LittleEndian.AppendUint16(out, crc)
}
