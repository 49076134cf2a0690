package psi

import (
	"bytes"
	"encoding/binary"
	"io"
)

// Round1Msg is the message P1 sends to P2: the shuffled, k1-exponentiated
// encodings of P1's identifiers. Wire format: u32 count, then count times
// (u16 len, len bytes).
type Round1Msg struct {
	Points [][]byte
}

// WirePair is one (point, ciphertext) tuple of a Round2Msg's W_pairs.
type WirePair struct {
	Point      []byte
	Ciphertext []byte
}

// Round2Msg is the message P2 sends to P1: Z (the k2-exponentiated images
// of P1's round-1 points) and W_pairs (P2's own blinded identifiers paired
// with encrypted values).
type Round2Msg struct {
	Z      Round1Msg
	WPairs []WirePair
}

// Round3Msg is the message P1 sends to P2: the cardinality of the
// intersection and the (rerandomized) ciphertext encrypting its sum.
type Round3Msg struct {
	Cardinality uint64
	Ciphertext  []byte
}

// SetupMsg is the out-of-band message P2 sends to P1 during session setup:
// the shared hash-to-curve seed and P2's homomorphic public key.
type SetupMsg struct {
	Seed      []byte
	PublicKey []byte
}

func writeLenPrefixed16(buf *bytes.Buffer, data []byte) error {
	if len(data) > 0xffff {
		return wrap(KindProtocolViolation, errNew("wire element longer than 65535 bytes")) // unreachable for valid 33-byte points; kept defensive
	}
	if err := binary.Write(buf, binary.BigEndian, uint16(len(data))); err != nil {
		return err
	}
	buf.Write(data)
	return nil
}

func readLenPrefixed16(r *bytes.Reader) ([]byte, error) {
	var n uint16
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, err
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}

func writeLenPrefixed32(buf *bytes.Buffer, data []byte) error {
	if err := binary.Write(buf, binary.BigEndian, uint32(len(data))); err != nil {
		return err
	}
	buf.Write(data)
	return nil
}

func readLenPrefixed32(r *bytes.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, err
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}

// MarshalBinary encodes a Round1Msg as u32 count + count*(u16 len + bytes).
func (m *Round1Msg) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.BigEndian, uint32(len(m.Points))); err != nil {
		return nil, err
	}
	for _, p := range m.Points {
		if err := writeLenPrefixed16(&buf, p); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes a Round1Msg produced by MarshalBinary.
func (m *Round1Msg) UnmarshalBinary(data []byte) error {
	return m.unmarshalFrom(bytes.NewReader(data))
}

func (m *Round1Msg) unmarshalFrom(r *bytes.Reader) error {
	var count uint32
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return wrap(KindProtocolViolation, err)
	}
	points := make([][]byte, 0, count)
	for i := uint32(0); i < count; i++ {
		p, err := readLenPrefixed16(r)
		if err != nil {
			return wrap(KindProtocolViolation, err)
		}
		points = append(points, p)
	}
	m.Points = points
	return nil
}

// MarshalBinary encodes a Round2Msg as Z followed by u32 count +
// count*(u16 point_len + point bytes + u32 ct_len + ct bytes).
func (m *Round2Msg) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	zBytes, err := m.Z.MarshalBinary()
	if err != nil {
		return nil, err
	}
	buf.Write(zBytes)

	if err := binary.Write(&buf, binary.BigEndian, uint32(len(m.WPairs))); err != nil {
		return nil, err
	}
	for _, wp := range m.WPairs {
		if err := writeLenPrefixed16(&buf, wp.Point); err != nil {
			return nil, err
		}
		if err := writeLenPrefixed32(&buf, wp.Ciphertext); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes a Round2Msg produced by MarshalBinary.
func (m *Round2Msg) UnmarshalBinary(data []byte) error {
	r := bytes.NewReader(data)
	if err := m.Z.unmarshalFrom(r); err != nil {
		return err
	}

	var count uint32
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return wrap(KindProtocolViolation, err)
	}
	pairs := make([]WirePair, 0, count)
	for i := uint32(0); i < count; i++ {
		point, err := readLenPrefixed16(r)
		if err != nil {
			return wrap(KindProtocolViolation, err)
		}
		ct, err := readLenPrefixed32(r)
		if err != nil {
			return wrap(KindProtocolViolation, err)
		}
		pairs = append(pairs, WirePair{Point: point, Ciphertext: ct})
	}
	m.WPairs = pairs
	return nil
}

// MarshalBinary encodes a Round3Msg as u64 cardinality + u32 ct_len + ct bytes.
func (m *Round3Msg) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.BigEndian, m.Cardinality); err != nil {
		return nil, err
	}
	if err := writeLenPrefixed32(&buf, m.Ciphertext); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes a Round3Msg produced by MarshalBinary.
func (m *Round3Msg) UnmarshalBinary(data []byte) error {
	r := bytes.NewReader(data)
	if err := binary.Read(r, binary.BigEndian, &m.Cardinality); err != nil {
		return wrap(KindProtocolViolation, err)
	}
	ct, err := readLenPrefixed32(r)
	if err != nil {
		return wrap(KindProtocolViolation, err)
	}
	m.Ciphertext = ct
	return nil
}

// MarshalBinary encodes a SetupMsg as u16 seed_len + seed + u32 pk_len + pk.
func (m *SetupMsg) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if err := writeLenPrefixed16(&buf, m.Seed); err != nil {
		return nil, err
	}
	if err := writeLenPrefixed32(&buf, m.PublicKey); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes a SetupMsg produced by MarshalBinary.
func (m *SetupMsg) UnmarshalBinary(data []byte) error {
	r := bytes.NewReader(data)
	seed, err := readLenPrefixed16(r)
	if err != nil {
		return wrap(KindProtocolViolation, err)
	}
	pk, err := readLenPrefixed32(r)
	if err != nil {
		return wrap(KindProtocolViolation, err)
	}
	m.Seed = seed
	m.PublicKey = pk
	return nil
}
