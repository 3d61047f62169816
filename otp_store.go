package authcore

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	otpKeyPrefix      = "aoc"
	otpRecordVersion1 = 1
)

var (
	errOTPChallengeNotFound = errors.New("otp challenge not found")
	errOTPChallengeExpired  = errors.New("otp challenge expired")
	errOTPChallengeBackend  = errors.New("otp challenge backend unavailable")
)

// otpChallenge is the pending second-factor state between Login and
// ConfirmOTP. Only the SHA-256 of the code is stored; the plaintext goes
// out-of-band through the Mailer.
type otpChallenge struct {
	UserID    string
	CodeHash  [32]byte
	ExpiresAt int64
}

type otpChallengeStore struct {
	redis redis.UniversalClient
}

func newOTPChallengeStore(client redis.UniversalClient) *otpChallengeStore {
	return &otpChallengeStore{redis: client}
}

func (s *otpChallengeStore) key(challengeID string) string {
	return otpKeyPrefix + ":" + challengeID
}

func (s *otpChallengeStore) Save(
	ctx context.Context,
	challengeID string,
	record *otpChallenge,
	ttl time.Duration,
) error {
	encoded, err := encodeOTPChallenge(record)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(challengeID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", errOTPChallengeBackend, err)
	}
	return nil
}

func (s *otpChallengeStore) Get(ctx context.Context, challengeID string) (*otpChallenge, error) {
	data, err := s.redis.Get(ctx, s.key(challengeID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errOTPChallengeNotFound
		}
		return nil, fmt.Errorf("%w: %v", errOTPChallengeBackend, err)
	}

	record, err := decodeOTPChallenge(data)
	if err != nil {
		return nil, err
	}
	if time.Now().Unix() > record.ExpiresAt {
		// Expiry is single-use too: the stale challenge is gone after this.
		_, _ = s.redis.Del(ctx, s.key(challengeID)).Result()
		return nil, errOTPChallengeExpired
	}
	return record, nil
}

func (s *otpChallengeStore) Delete(ctx context.Context, challengeID string) (bool, error) {
	n, err := s.redis.Del(ctx, s.key(challengeID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", errOTPChallengeBackend, err)
	}
	return n > 0, nil
}

func encodeOTPChallenge(record *otpChallenge) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(otpRecordVersion1)

	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}
	buf.Write(record.CodeHash[:])

	if len(record.UserID) > 65535 {
		return nil, errors.New("otp challenge user id length exceeded")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.UserID))); err != nil {
		return nil, err
	}
	buf.WriteString(record.UserID)

	return buf.Bytes(), nil
}

func decodeOTPChallenge(data []byte) (*otpChallenge, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != otpRecordVersion1 {
		return nil, errors.New("invalid otp challenge version")
	}

	record := &otpChallenge{}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(reader, record.CodeHash[:]); err != nil {
		return nil, err
	}

	var userLen uint16
	if err := binary.Read(reader, binary.BigEndian, &userLen); err != nil {
		return nil, err
	}
	user := make([]byte, userLen)
	if _, err := io.ReadFull(reader, user); err != nil {
		return nil, err
	}
	record.UserID = string(user)

	return record, nil
}
