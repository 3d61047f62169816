package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

const sessionFormatVersion1 = 1

func writeString(buf *bytes.Buffer, s string) error {
	if len(s) > 65535 {
		return errors.New("session field too long")
	}
	if err := binary.Write(buf, binary.BigEndian, uint16(len(s))); err != nil {
		return err
	}
	buf.WriteString(s)
	return nil
}

func readString(reader *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(reader, binary.BigEndian, &n); err != nil {
		return "", err
	}
	raw := make([]byte, n)
	if _, err := io.ReadFull(reader, raw); err != nil {
		return "", err
	}
	return string(raw), nil
}

// Encode serializes a Session into the compact binary record stored in Redis.
func Encode(s *Session) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(sessionFormatVersion1)

	for _, field := range []string{s.UserID, s.Role, s.IP, s.UserAgent} {
		if err := writeString(&buf, field); err != nil {
			return nil, err
		}
	}

	var active byte
	if s.Active {
		active = 1
	}
	buf.WriteByte(active)
	buf.WriteByte(byte(s.EndReason))

	for _, ts := range []int64{s.CreatedAt, s.LastActivity, s.ExpiresAt, s.EndedAt} {
		if err := binary.Write(&buf, binary.BigEndian, ts); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

// Decode parses a binary session record. The SessionID is not part of the
// record (it is the Redis key), so callers set it after decoding.
func Decode(data []byte) (*Session, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != sessionFormatVersion1 {
		return nil, errors.New("invalid session version")
	}

	s := &Session{}
	if s.UserID, err = readString(reader); err != nil {
		return nil, err
	}
	if s.Role, err = readString(reader); err != nil {
		return nil, err
	}
	if s.IP, err = readString(reader); err != nil {
		return nil, err
	}
	if s.UserAgent, err = readString(reader); err != nil {
		return nil, err
	}

	active, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	s.Active = active == 1

	reason, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if reason > byte(EndReasonForced) {
		return nil, errors.New("invalid session end reason")
	}
	s.EndReason = EndReason(reason)

	for _, ts := range []*int64{&s.CreatedAt, &s.LastActivity, &s.ExpiresAt, &s.EndedAt} {
		if err := binary.Read(reader, binary.BigEndian, ts); err != nil {
			return nil, err
		}
	}

	return s, nil
}
