package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"crypto-service/internal/infra"
	"crypto-service/internal/usecase"
	"crypto-service/pkg/cryptoutil"
)

// wrapKeyCmd は新しいマスター鍵を生成し、Cloud KMSで暗号化した値を出力する。
// 出力はKEY_PROVIDER=kms の MASTER_KEY_<ID> / HMAC_KEY_<ID> にそのまま設定できる。
func wrapKeyCmd() *cobra.Command {
	var keyName, keyID string
	var size int
	var forHMAC bool
	cmd := &cobra.Command{
		Use:   "wrap-key",
		Short: "Generate a random key and wrap it with Cloud KMS",
		RunE: func(cmd *cobra.Command, args []string) error {
			if keyName == "" {
				keyName = os.Getenv("KMS_KEY_NAME")
			}
			if size < 32 {
				return fmt.Errorf("--size must be at least 32 bytes")
			}

			ctx := context.Background()
			client, err := infra.NewKMSClient(ctx, keyName)
			if err != nil {
				return err
			}
			defer client.Close()

			secret := make([]byte, size)
			defer cryptoutil.Zero(secret)
			if _, err := io.ReadFull(rand.Reader, secret); err != nil {
				return fmt.Errorf("generating key: %w", err)
			}

			wrapped, err := client.Encrypt(ctx, secret)
			if err != nil {
				return err
			}

			encoded := base64.StdEncoding.EncodeToString(wrapped)
			out := cmd.OutOrStdout()
			if keyID == "" {
				fmt.Fprintln(out, encoded)
				return nil
			}
			prefix := infra.MasterKeyPrefix
			if forHMAC {
				prefix = infra.HMACKeyPrefix
			}
			fmt.Fprintf(out, "%s=%s\n", infra.EnvVarName(prefix, keyID), encoded)
			return nil
		},
	}
	cmd.Flags().StringVar(&keyName, "kms-key", "", "Cloud KMS CryptoKey resource name (or set KMS_KEY_NAME)")
	cmd.Flags().StringVar(&keyID, "key-id", "", "Print as an env assignment for this key ID")
	cmd.Flags().IntVar(&size, "size", 32, "Key size in bytes")
	cmd.Flags().BoolVar(&forHMAC, "hmac", false, "Name the env assignment HMAC_KEY_<ID> instead of MASTER_KEY_<ID>")
	return cmd
}

// hashPasswordCmd はパスワードをargon2idでハッシュ化する。端末ではエコーせずに読み込む。
func hashPasswordCmd() *cobra.Command {
	var verify string
	cmd := &cobra.Command{
		Use:   "hash-password",
		Short: "Hash a password with argon2id (or verify with --verify)",
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readPassword(cmd)
			if err != nil {
				return err
			}

			if verify != "" {
				ok, err := usecase.VerifyPassword(password, verify)
				if err != nil {
					return err
				}
				if !ok {
					cmd.SilenceUsage = true
					return fmt.Errorf("password does not match")
				}
				fmt.Fprintln(cmd.OutOrStdout(), "valid")
				return nil
			}

			encoded, err := usecase.HashPassword(password)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), encoded)
			return nil
		},
	}
	cmd.Flags().StringVar(&verify, "verify", "", "Encoded argon2id hash to verify the password against")
	return cmd
}

func readPassword(cmd *cobra.Command) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}
		return string(b), nil
	}

	// パイプ入力は1行目のみ使う
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
