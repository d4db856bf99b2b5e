package domain

// EncryptionResult は暗号化結果であり、暗号文を保存・送信する唯一の形式。
// 5つのフィールドはすべて揃っていないと復号できない。
type EncryptionResult struct {
	Encrypted string `json:"encrypted"` // hex(暗号文) + ":" + hex(認証タグ)
	IV        string `json:"iv"`
	Salt      string `json:"salt"`
	Algorithm string `json:"algorithm"`
	KeyID     string `json:"keyId"`
}

// HashResult はソルト付きハッシュの結果を表す。
type HashResult struct {
	Hash string `json:"hash"`
	Salt string `json:"salt"`
}
