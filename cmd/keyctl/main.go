// Package main はCLIツールのエントリポイント。
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"crypto-service/pkg/httputil"
)

const version = "1.0.0"

// globalOptions はすべてのサブコマンドに共通するフラグ。
type globalOptions struct {
	apiURL  string
	output  string
	timeout time.Duration
	client  *http.Client
}

var opts globalOptions

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "keyctl",
		Short: "Crypto Service CLI",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.apiURL == "" {
				opts.apiURL = os.Getenv("KEYCTL_API_URL")
			}
			if opts.output != "text" && opts.output != "json" {
				return fmt.Errorf("unknown --output %q (want text or json)", opts.output)
			}
			opts.client = &http.Client{Timeout: opts.timeout}
			return nil
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&opts.apiURL, "api-url", "", "Crypto service base URL; falls back to $KEYCTL_API_URL")
	pf.StringVarP(&opts.output, "output", "o", "text", "text or json")
	pf.DurationVar(&opts.timeout, "timeout", 30*time.Second, "Per-request HTTP timeout")

	// サブコマンド登録
	rootCmd.AddCommand(encryptCmd())
	rootCmd.AddCommand(decryptCmd())
	rootCmd.AddCommand(reencryptCmd())
	rootCmd.AddCommand(hmacCmd())
	rootCmd.AddCommand(verifyHMACCmd())
	rootCmd.AddCommand(hashCmd())
	rootCmd.AddCommand(randomCmd())
	rootCmd.AddCommand(validateCmd())
	rootCmd.AddCommand(rotateCmd())
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(getCmd())
	rootCmd.AddCommand(revokeCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(wrapKeyCmd())
	rootCmd.AddCommand(hashPasswordCmd())
	rootCmd.AddCommand(versionCmd())
	return rootCmd
}

// versionCmd はバージョン情報を表示する。
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "keyctl version %s\n", version)
		},
	}
}

// callAPI はAPIを呼び出し、wantStatus以外のステータスはエラーとして返す。
// reqBodyがnilでなければJSONとして送信する。
func callAPI(method, path string, reqBody any, wantStatus int) ([]byte, error) {
	if opts.apiURL == "" {
		return nil, fmt.Errorf("--api-url is required (or set KEYCTL_API_URL)")
	}

	var body io.Reader
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, strings.TrimRight(opts.apiURL, "/")+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := opts.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != wantStatus {
		return nil, apiError(resp.StatusCode, respBody)
	}
	return respBody, nil
}

// printResult は --output=json なら生のレスポンスを、それ以外はtextFnの出力を表示する。
func printResult[T any](cmd *cobra.Command, body []byte, textFn func(w io.Writer, v T)) error {
	if opts.output == "json" {
		fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(string(body)))
		return nil
	}
	var v T
	if err := json.Unmarshal(body, &v); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	textFn(cmd.OutOrStdout(), v)
	return nil
}

// readInput は値が "-" の場合に標準入力から読み込む。
func readInput(cmd *cobra.Command, value string) (string, error) {
	if value != "-" {
		return value, nil
	}
	b, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return strings.TrimRight(string(b), "\r\n"), nil
}

// apiError はサーバーが返したエラーレスポンスを表す。
func apiError(statusCode int, body []byte) error {
	var e httputil.ErrorResponse
	if json.Unmarshal(body, &e) == nil && e.Code != "" {
		return fmt.Errorf("%s: %s (HTTP %d)", e.Code, e.Message, statusCode)
	}
	return fmt.Errorf("unexpected HTTP %d from crypto service", statusCode)
}
