// Package awskms registers the "kms" KEK provider backed by AWS KMS. KMS is
// called only to wrap a new DEK or unwrap one on a cache miss.
package awskms

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"

	"github.com/chirino/chat-store/internal/config"
	"github.com/chirino/chat-store/internal/registry/encrypt"
)

func init() {
	encrypt.Register(encrypt.Plugin{
		Name: "kms",
		Loader: func(ctx context.Context, cfg *config.Config) (encrypt.KEK, error) {
			if cfg.EncryptionKMSKeyID == "" {
				return nil, fmt.Errorf("kms KEK: CHAT_STORE_ENCRYPTION_KMS_KEY_ID is required")
			}
			awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
			if err != nil {
				return nil, fmt.Errorf("kms KEK: loading AWS config: %w", err)
			}
			return New(kms.NewFromConfig(awsCfg), cfg.EncryptionKMSKeyID), nil
		},
	})
}

// Client is the subset of the KMS API used to wrap DEKs.
type Client interface {
	Encrypt(ctx context.Context, in *kms.EncryptInput, optFns ...func(*kms.Options)) (*kms.EncryptOutput, error)
	Decrypt(ctx context.Context, in *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

// KEK wraps DEKs with a KMS key.
type KEK struct {
	client Client
	keyID  string
}

// New returns a KEK for the given key id or ARN.
func New(client Client, keyID string) *KEK {
	return &KEK{client: client, keyID: keyID}
}

func (k *KEK) ID() string { return "kms" }

func (k *KEK) Wrap(ctx context.Context, dek []byte) ([]byte, error) {
	out, err := k.client.Encrypt(ctx, &kms.EncryptInput{
		KeyId:     aws.String(k.keyID),
		Plaintext: dek,
	})
	if err != nil {
		return nil, fmt.Errorf("kms: Encrypt: %w", err)
	}
	return out.CiphertextBlob, nil
}

func (k *KEK) Unwrap(ctx context.Context, wrapped []byte) ([]byte, error) {
	out, err := k.client.Decrypt(ctx, &kms.DecryptInput{
		CiphertextBlob: wrapped,
		KeyId:          aws.String(k.keyID),
	})
	if err != nil {
		return nil, fmt.Errorf("kms: Decrypt: %w", err)
	}
	return out.Plaintext, nil
}

var _ encrypt.KEK = (*KEK)(nil)
