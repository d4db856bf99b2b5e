package infra

import (
	"context"
	"errors"
	"fmt"
	"hash/crc32"

	kms "cloud.google.com/go/kms/apiv1"
	kmspb "cloud.google.com/go/kms/apiv1/kmspb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// errKMSIntegrity はKMSとの通信でチェックサムが一致しなかったことを表す。
var errKMSIntegrity = errors.New("KMS response failed integrity check")

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

func crc32c(b []byte) int64 {
	return int64(crc32.Checksum(b, castagnoli))
}

// KMSClient はマスター鍵・HMAC鍵をラップするCryptoKeyへのクライアント。
// 送受信するデータはCRC32Cで検証する。
type KMSClient struct {
	client  *kms.KeyManagementClient
	keyName string
}

// NewKMSClient はkeyName（projects/.../cryptoKeys/...）用のクライアントを作る。
func NewKMSClient(ctx context.Context, keyName string) (*KMSClient, error) {
	if keyName == "" {
		return nil, errors.New("KMS_KEY_NAME must be set to use the KMS key provider")
	}
	c, err := kms.NewKeyManagementClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("connecting to Cloud KMS: %w", err)
	}
	return &KMSClient{client: c, keyName: keyName}, nil
}

// Encrypt は鍵素材をラップする。keyctl wrap-key が使う。
func (c *KMSClient) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	resp, err := c.client.Encrypt(ctx, &kmspb.EncryptRequest{
		Name:            c.keyName,
		Plaintext:       plaintext,
		PlaintextCrc32C: wrapperspb.Int64(crc32c(plaintext)),
	})
	if err != nil {
		return nil, fmt.Errorf("KMS encrypt: %w", err)
	}
	if !resp.GetVerifiedPlaintextCrc32C() || resp.GetCiphertextCrc32C().GetValue() != crc32c(resp.GetCiphertext()) {
		return nil, errKMSIntegrity
	}
	return resp.GetCiphertext(), nil
}

// Decrypt はラップされた鍵素材を取り出す。
// エラーには暗号文・平文を含めない。
func (c *KMSClient) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	resp, err := c.client.Decrypt(ctx, &kmspb.DecryptRequest{
		Name:             c.keyName,
		Ciphertext:       ciphertext,
		CiphertextCrc32C: wrapperspb.Int64(crc32c(ciphertext)),
	})
	if err != nil {
		return nil, fmt.Errorf("KMS decrypt: %w", err)
	}
	if resp.GetPlaintextCrc32C().GetValue() != crc32c(resp.GetPlaintext()) {
		return nil, errKMSIntegrity
	}
	return resp.GetPlaintext(), nil
}

func (c *KMSClient) Close() error {
	return c.client.Close()
}
