// Package cryptoutil は暗号処理で共有する小さなプリミティブを提供する。
//
// 秘密値の比較はすべて ConstantTimeEqual を経由させ、呼び出し側ごとに
// 比較処理を書かないこと。
package cryptoutil

import "crypto/subtle"

// ConstantTimeEqual は2つの文字列を一致位置に依存しない時間で比較する。
// 長さが異なる場合は即座に false を返す（漏れるのは長さのみ）。
func ConstantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Zero はバイト列を0で上書きする。導出鍵などを使い終えた後に呼ぶ。
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
