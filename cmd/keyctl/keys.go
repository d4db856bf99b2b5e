package main

import (
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/spf13/cobra"

	"crypto-service/internal/handler"
)

func keyPath(tenantID, keyID string) string {
	p := "/v1/tenants/" + url.PathEscape(tenantID) + "/keys"
	if keyID != "" {
		p += "/" + url.PathEscape(keyID)
	}
	return p
}

func printKey(w io.Writer, k handler.KeyMetadataResponse) {
	fmt.Fprintf(w, "key_id:     %s\n", k.KeyID)
	fmt.Fprintf(w, "tenant_id:  %s\n", k.TenantID)
	fmt.Fprintf(w, "algorithm:  %s (%d bits)\n", k.Algorithm, k.KeySize)
	fmt.Fprintf(w, "purpose:    %s\n", k.Purpose)
	fmt.Fprintf(w, "status:     %s\n", k.Status)
	fmt.Fprintf(w, "created_at: %s\n", k.CreatedAt)
	fmt.Fprintf(w, "expires_at: %s\n", k.ExpiresAt)
}

// rotateCmd は鍵のローテーションコマンド。
func rotateCmd() *cobra.Command {
	var tenantID, keyID, purpose string
	cmd := &cobra.Command{
		Use:   "rotate",
		Short: "Rotate a key and register the new key ID",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := callAPI(http.MethodPost, keyPath(tenantID, keyID)+"/rotate", handler.RotateKeyRequest{Purpose: purpose}, http.StatusCreated)
			if err != nil {
				return err
			}
			return printResult(cmd, body, func(w io.Writer, v handler.KeyMetadataResponse) {
				fmt.Fprintf(w, "Rotated key %q for tenant %q (new key ID: %s)\n", keyID, tenantID, v.KeyID)
			})
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", "", "Tenant ID (required)")
	cmd.Flags().StringVar(&keyID, "key-id", "default", "Key ID to rotate")
	cmd.Flags().StringVar(&purpose, "purpose", "", "Key purpose: ENCRYPTION, SIGNING, KEY_EXCHANGE")
	cmd.MarkFlagRequired("tenant")
	return cmd
}

// listCmd は鍵一覧の取得コマンド。
func listCmd() *cobra.Command {
	var tenantID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all keys for a tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := callAPI(http.MethodGet, keyPath(tenantID, ""), nil, http.StatusOK)
			if err != nil {
				return err
			}
			return printResult(cmd, body, func(w io.Writer, v handler.KeyListResponse) {
				fmt.Fprintf(w, "%-40s %-18s %-12s %-8s %s\n", "KEY_ID", "ALGORITHM", "PURPOSE", "STATUS", "EXPIRES_AT")
				for _, k := range v.Keys {
					fmt.Fprintf(w, "%-40s %-18s %-12s %-8s %s\n", k.KeyID, k.Algorithm, k.Purpose, k.Status, k.ExpiresAt)
				}
			})
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", "", "Tenant ID (required)")
	cmd.MarkFlagRequired("tenant")
	return cmd
}

// getCmd は鍵メタデータの取得コマンド。
func getCmd() *cobra.Command {
	var tenantID, keyID string
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Get key metadata",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := callAPI(http.MethodGet, keyPath(tenantID, keyID), nil, http.StatusOK)
			if err != nil {
				return err
			}
			return printResult(cmd, body, printKey)
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", "", "Tenant ID (required)")
	cmd.Flags().StringVar(&keyID, "key-id", "", "Key ID (required)")
	cmd.MarkFlagRequired("tenant")
	cmd.MarkFlagRequired("key-id")
	return cmd
}

// revokeCmd は鍵の失効コマンド。
func revokeCmd() *cobra.Command {
	var tenantID, keyID string
	cmd := &cobra.Command{
		Use:   "revoke",
		Short: "Revoke a key",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := callAPI(http.MethodDelete, keyPath(tenantID, keyID), nil, http.StatusOK)
			if err != nil {
				return err
			}
			return printResult(cmd, body, func(w io.Writer, v handler.KeyMetadataResponse) {
				fmt.Fprintf(w, "Revoked key %q for tenant %q\n", v.KeyID, v.TenantID)
			})
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", "", "Tenant ID (required)")
	cmd.Flags().StringVar(&keyID, "key-id", "", "Key ID (required)")
	cmd.MarkFlagRequired("tenant")
	cmd.MarkFlagRequired("key-id")
	return cmd
}
