package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"crypto-service/internal/domain"
	"crypto-service/internal/handler"
)

// encryptCmd は暗号化コマンド。結果はJSONで出力し、そのままdecryptに渡せる。
func encryptCmd() *cobra.Command {
	var plaintext, keyID string
	cmd := &cobra.Command{
		Use:   "encrypt",
		Short: "Encrypt plaintext (use --plaintext - to read stdin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd, plaintext)
			if err != nil {
				return err
			}
			body, err := callAPI(http.MethodPost, "/v1/encrypt", handler.EncryptRequest{Plaintext: text, KeyID: keyID}, http.StatusOK)
			if err != nil {
				return err
			}
			// 暗号化結果は常にJSON（保存形式）で出力する
			fmt.Fprintln(cmd.OutOrStdout(), string(body))
			return nil
		},
	}
	cmd.Flags().StringVar(&plaintext, "plaintext", "", "Plaintext to encrypt, or - for stdin (required)")
	cmd.Flags().StringVar(&keyID, "key-id", "", "Key ID (defaults to \"default\")")
	cmd.MarkFlagRequired("plaintext")
	return cmd
}

// loadEncryptionResult はファイル（"-"で標準入力）から暗号化結果を読み込む。
func loadEncryptionResult(cmd *cobra.Command, path string) (*domain.EncryptionResult, error) {
	var r io.Reader = cmd.InOrStdin()
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", path, err)
		}
		defer f.Close()
		r = f
	}
	var result domain.EncryptionResult
	if err := json.NewDecoder(r).Decode(&result); err != nil {
		return nil, fmt.Errorf("parsing encryption result: %w", err)
	}
	return &result, nil
}

// decryptCmd は復号コマンド。
func decryptCmd() *cobra.Command {
	var input string
	cmd := &cobra.Command{
		Use:   "decrypt",
		Short: "Decrypt an encryption result JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := loadEncryptionResult(cmd, input)
			if err != nil {
				return err
			}
			body, err := callAPI(http.MethodPost, "/v1/decrypt", handler.EncryptedPayload(*result), http.StatusOK)
			if err != nil {
				return err
			}
			return printResult(cmd, body, func(w io.Writer, v handler.DecryptResponse) {
				fmt.Fprintln(w, v.Plaintext)
			})
		},
	}
	cmd.Flags().StringVar(&input, "in", "-", "Encryption result JSON file, or - for stdin")
	return cmd
}

// reencryptCmd は再暗号化コマンド。
func reencryptCmd() *cobra.Command {
	var input, newKeyID string
	cmd := &cobra.Command{
		Use:   "reencrypt",
		Short: "Re-encrypt an encryption result under another key ID",
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := loadEncryptionResult(cmd, input)
			if err != nil {
				return err
			}
			body, err := callAPI(http.MethodPost, "/v1/reencrypt", handler.ReencryptRequest{
				Result:   handler.EncryptedPayload(*result),
				NewKeyID: newKeyID,
			}, http.StatusOK)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(body))
			return nil
		},
	}
	cmd.Flags().StringVar(&input, "in", "-", "Encryption result JSON file, or - for stdin")
	cmd.Flags().StringVar(&newKeyID, "new-key-id", "", "Key ID to re-encrypt under (required)")
	cmd.MarkFlagRequired("new-key-id")
	return cmd
}

// hmacCmd はHMAC生成コマンド。
func hmacCmd() *cobra.Command {
	var data, keyID string
	cmd := &cobra.Command{
		Use:   "hmac",
		Short: "Create an HMAC-SHA-256 of data",
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd, data)
			if err != nil {
				return err
			}
			body, err := callAPI(http.MethodPost, "/v1/hmac", handler.HMACRequest{Data: text, KeyID: keyID}, http.StatusOK)
			if err != nil {
				return err
			}
			return printResult(cmd, body, func(w io.Writer, v handler.HMACResponse) {
				fmt.Fprintln(w, v.HMAC)
			})
		},
	}
	cmd.Flags().StringVar(&data, "data", "", "Data, or - for stdin (required)")
	cmd.Flags().StringVar(&keyID, "key-id", "", "Key ID (defaults to \"default\")")
	cmd.MarkFlagRequired("data")
	return cmd
}

// verifyHMACCmd はHMAC検証コマンド。不一致の場合は終了コード1。
func verifyHMACCmd() *cobra.Command {
	var data, mac, keyID string
	cmd := &cobra.Command{
		Use:   "verify-hmac",
		Short: "Verify an HMAC-SHA-256 of data",
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd, data)
			if err != nil {
				return err
			}
			body, err := callAPI(http.MethodPost, "/v1/hmac/verify", handler.VerifyHMACRequest{Data: text, HMAC: mac, KeyID: keyID}, http.StatusOK)
			if err != nil {
				return err
			}
			return printValidation(cmd, body)
		},
	}
	cmd.Flags().StringVar(&data, "data", "", "Data, or - for stdin (required)")
	cmd.Flags().StringVar(&mac, "hmac", "", "Expected HMAC in hex (required)")
	cmd.Flags().StringVar(&keyID, "key-id", "", "Key ID (defaults to \"default\")")
	cmd.MarkFlagRequired("data")
	cmd.MarkFlagRequired("hmac")
	return cmd
}

// hashCmd はソルト付きSHA-256の計算コマンド。--hashを指定すると検証する。
func hashCmd() *cobra.Command {
	var data, salt, expected string
	cmd := &cobra.Command{
		Use:   "hash",
		Short: "Compute or verify a salted SHA-256 fingerprint",
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd, data)
			if err != nil {
				return err
			}
			if expected != "" {
				body, err := callAPI(http.MethodPost, "/v1/hash/verify", handler.VerifyHashRequest{Data: text, Salt: salt, Hash: expected}, http.StatusOK)
				if err != nil {
					return err
				}
				return printValidation(cmd, body)
			}
			body, err := callAPI(http.MethodPost, "/v1/hash", handler.HashRequest{Data: text, Salt: salt}, http.StatusOK)
			if err != nil {
				return err
			}
			return printResult(cmd, body, func(w io.Writer, v domain.HashResult) {
				fmt.Fprintf(w, "hash: %s\nsalt: %s\n", v.Hash, v.Salt)
			})
		},
	}
	cmd.Flags().StringVar(&data, "data", "", "Data, or - for stdin (required)")
	cmd.Flags().StringVar(&salt, "salt", "", "Salt (generated when omitted; required with --hash)")
	cmd.Flags().StringVar(&expected, "hash", "", "Expected hash to verify against")
	cmd.MarkFlagRequired("data")
	return cmd
}

// randomCmd は乱数生成コマンド。
func randomCmd() *cobra.Command {
	var size int
	cmd := &cobra.Command{
		Use:   "random",
		Short: "Generate cryptographically secure random bytes (hex)",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := callAPI(http.MethodGet, "/v1/random?size="+strconv.Itoa(size), nil, http.StatusOK)
			if err != nil {
				return err
			}
			return printResult(cmd, body, func(w io.Writer, v handler.RandomResponse) {
				fmt.Fprintln(w, v.Random)
			})
		},
	}
	cmd.Flags().IntVar(&size, "size", 32, "Number of bytes")
	return cmd
}

// validateCmd は暗号基準チェックコマンド。
func validateCmd() *cobra.Command {
	var algorithm string
	var keySize int
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check an algorithm and key size against the allow-list",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := callAPI(http.MethodPost, "/v1/standards/validate", handler.StandardsRequest{Algorithm: algorithm, KeySize: keySize}, http.StatusOK)
			if err != nil {
				return err
			}
			return printValidation(cmd, body)
		},
	}
	cmd.Flags().StringVar(&algorithm, "algorithm", "", "Algorithm name (required)")
	cmd.Flags().IntVar(&keySize, "key-size", 0, "Key size in bits (required)")
	cmd.MarkFlagRequired("algorithm")
	cmd.MarkFlagRequired("key-size")
	return cmd
}

func printValidation(cmd *cobra.Command, body []byte) error {
	var v handler.ValidationResponse
	if err := json.Unmarshal(body, &v); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	if err := printResult(cmd, body, func(w io.Writer, v handler.ValidationResponse) {
		if v.Valid {
			fmt.Fprintln(w, "valid")
		} else {
			fmt.Fprintln(w, "invalid")
		}
	}); err != nil {
		return err
	}
	if !v.Valid {
		cmd.SilenceUsage = true
		return fmt.Errorf("validation failed")
	}
	return nil
}
