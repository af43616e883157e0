package paytr

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hitoshi/bijou/internal/model"
)

// merchantOIDPrefix は加盟店注文IDの固定接頭辞。
const merchantOIDPrefix = "BJ"

var hundred = decimal.NewFromInt(100)

// ToMinorUnits は金額を最小通貨単位（クルシュ）の整数に丸める。
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// randReader は加盟店注文IDの乱数部の生成元。
var randReader io.Reader = rand.Reader

// NewMerchantOID は接頭辞・ミリ秒タイムスタンプ・base36乱数を連結した英数字IDを生成する。
// PayTRは英数字以外を受け付けない。
func NewMerchantOID(now time.Time) (string, error) {
	n, err := rand.Int(randReader, big.NewInt(36*36*36*36*36*36))
	if err != nil {
		return "", fmt.Errorf("加盟店注文IDの乱数生成に失敗しました: %w", err)
	}
	suffix := strconv.FormatInt(n.Int64(), 36)
	return strings.ToUpper(merchantOIDPrefix + strconv.FormatInt(now.UnixMilli(), 10) + suffix), nil
}

// sign はpartsを連結した文字列のHMAC-SHA256をbase64で返す。
func sign(key string, parts ...string) string {
	mac := hmac.New(sha256.New, []byte(key))
	for _, p := range parts {
		mac.Write([]byte(p))
	}
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func verifyCallback(key, salt, merchantOID, status, totalAmount, hash string) bool {
	if hash == "" {
		return false
	}
	expected := sign(key, merchantOID, salt, status, totalAmount)
	return hmac.Equal([]byte(expected), []byte(hash))
}

// encodeBasket はバスケットを[名前, 最小単位金額, 数量]の配列としてJSON化しbase64で返す。
func encodeBasket(items []BasketItem) (string, error) {
	rows := make([][]any, 0, len(items))
	for _, it := range items {
		if it.Quantity <= 0 {
			return "", model.NewValidationError(fmt.Sprintf("数量が不正です: %s", it.Name))
		}
		rows = append(rows, []any{it.Name, strconv.FormatInt(ToMinorUnits(it.Price), 10), it.Quantity})
	}
	raw, err := json.Marshal(rows)
	if err != nil {
		return "", fmt.Errorf("バスケットのエンコードに失敗しました: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}
