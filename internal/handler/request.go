package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
)

// maxBodyBytes はリクエストボディの上限。
const maxBodyBytes = 2 << 20

// validatorはstruct情報をキャッシュするため1インスタンスを共有する
var validate = validator.New(validator.WithRequiredStructEnabled())

var errInvalidBody = errors.New("invalid request body")

// decodeJSON はボディをJSONとして読み込み、validateタグで検証する。
// allowEmpty が true の場合、空ボディはゼロ値として扱う。
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if !(allowEmpty && errors.Is(err, io.EOF)) {
			return errInvalidBody
		}
	}
	if err := validate.Struct(dst); err != nil {
		return errInvalidBody
	}
	return nil
}
