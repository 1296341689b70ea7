// Package encryption implements KMS envelope encryption for Encrypted
// attributes. Ciphertext is stored as a base64 JSON envelope in a STRING
// column.
package encryption

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	kmsTypes "github.com/aws/aws-sdk-go-v2/service/kms/types"

	customerrors "github.com/theory-cloud/columntheory/pkg/errors"
	"github.com/theory-cloud/columntheory/pkg/interfaces"
)

const envelopeVersionV1 = 1

// KMSAPI is the subset of the KMS client the service needs.
type KMSAPI = interfaces.KMSAPI

// Service encrypts and decrypts attribute values with a per-value data key.
type Service struct {
	kms  KMSAPI
	rand io.Reader

	keyARN string
}

type envelope struct {
	EDK        []byte `json:"edk"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ct"`
	Version    int    `json:"v"`
}

func NewService(keyARN string, kmsClient KMSAPI) *Service {
	return NewServiceWithRand(keyARN, kmsClient, rand.Reader)
}

func NewServiceFromAWSConfig(keyARN string, cfg aws.Config) *Service {
	return NewServiceWithRand(keyARN, kms.NewFromConfig(cfg), rand.Reader)
}

func NewServiceWithRand(keyARN string, kmsClient KMSAPI, rng io.Reader) *Service {
	if rng == nil {
		rng = rand.Reader
	}
	return &Service{
		keyARN: keyARN,
		kms:    kmsClient,
		rand:   rng,
	}
}

// Encrypt seals v for entity.attribute and returns the stored envelope.
func (s *Service) Encrypt(ctx context.Context, entity, attribute string, v any) (string, error) {
	if err := s.validate(attribute); err != nil {
		return "", err
	}

	plaintext, err := encodeValue(v)
	if err != nil {
		return "", err
	}

	dataKey, err := s.kms.GenerateDataKey(ctx, &kms.GenerateDataKeyInput{
		KeyId:   aws.String(s.keyARN),
		KeySpec: kmsTypes.DataKeySpecAes256,
	})
	if err != nil {
		return "", fmt.Errorf("kms GenerateDataKey failed: %w", err)
	}
	if len(dataKey.Plaintext) != 32 {
		return "", fmt.Errorf("unexpected data key plaintext length: %d", len(dataKey.Plaintext))
	}
	if len(dataKey.CiphertextBlob) == 0 {
		return "", fmt.Errorf("kms returned empty ciphertext data key")
	}

	gcm, err := newGCM(dataKey.Plaintext)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(s.rand, nonce); err != nil {
		return "", fmt.Errorf("nonce generation failed: %w", err)
	}

	env := envelope{
		Version:    envelopeVersionV1,
		EDK:        dataKey.CiphertextBlob,
		Nonce:      nonce,
		Ciphertext: gcm.Seal(nil, nonce, plaintext, aad(entity, attribute)),
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("failed to encode envelope: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// Decrypt opens an envelope produced by Encrypt for the same entity.attribute.
func (s *Service) Decrypt(ctx context.Context, entity, attribute string, stored any) (any, error) {
	if err := s.validate(attribute); err != nil {
		return nil, err
	}

	env, err := parseEnvelope(stored)
	if err != nil {
		return nil, err
	}

	dec, err := s.kms.Decrypt(ctx, &kms.DecryptInput{
		CiphertextBlob: env.EDK,
		KeyId:          aws.String(s.keyARN),
	})
	if err != nil {
		return nil, fmt.Errorf("kms Decrypt failed: %w", err)
	}
	if len(dec.Plaintext) != 32 {
		return nil, fmt.Errorf("unexpected data key plaintext length: %d", len(dec.Plaintext))
	}

	gcm, err := newGCM(dec.Plaintext)
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, env.Nonce, env.Ciphertext, aad(entity, attribute))
	if err != nil {
		return nil, fmt.Errorf("aes-gcm decrypt failed: %w", err)
	}
	return decodeValue(plaintext)
}

func (s *Service) validate(attribute string) error {
	if s == nil {
		return fmt.Errorf("encryption service is nil")
	}
	if s.kms == nil {
		return fmt.Errorf("kms client is nil")
	}
	if s.keyARN == "" {
		return fmt.Errorf("kms key ARN is empty")
	}
	if attribute == "" {
		return fmt.Errorf("attribute name is empty")
	}
	return nil
}

// aad binds ciphertext to its column so envelopes cannot be swapped between attributes.
func aad(entity, attribute string) []byte {
	return []byte(fmt.Sprintf("columntheory:encrypted:v1|%s.%s", entity, attribute))
}

func parseEnvelope(stored any) (envelope, error) {
	var text string
	switch v := stored.(type) {
	case string:
		text = v
	case []byte:
		text = string(v)
	default:
		return envelope{}, fmt.Errorf("%w: expected encrypted envelope string, got %T", customerrors.ErrInvalidEncryptedEnvelope, stored)
	}

	raw, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return envelope{}, fmt.Errorf("%w: not base64", customerrors.ErrInvalidEncryptedEnvelope)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return envelope{}, fmt.Errorf("%w: not an envelope", customerrors.ErrInvalidEncryptedEnvelope)
	}
	switch {
	case env.Version != envelopeVersionV1:
		return envelope{}, fmt.Errorf("%w: unsupported encrypted envelope version", customerrors.ErrInvalidEncryptedEnvelope)
	case len(env.EDK) == 0:
		return envelope{}, fmt.Errorf("%w: missing encrypted data key", customerrors.ErrInvalidEncryptedEnvelope)
	case len(env.Nonce) == 0:
		return envelope{}, fmt.Errorf("%w: missing nonce", customerrors.ErrInvalidEncryptedEnvelope)
	case env.Ciphertext == nil:
		return envelope{}, fmt.Errorf("%w: missing ciphertext", customerrors.ErrInvalidEncryptedEnvelope)
	}
	return env, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes cipher init failed: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("aes-gcm init failed: %w", err)
	}
	return gcm, nil
}
