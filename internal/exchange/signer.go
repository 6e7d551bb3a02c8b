package exchange

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strconv"
	"sync"
	"time"
)

// Signer 生成 Binance 签名查询串
type Signer struct {
	apiKey     string
	secret     []byte
	recvWindow int64
	now        func() time.Time

	mu     sync.Mutex
	lastTS int64
}

func NewSigner(apiKey, secret string, recvWindow int64) *Signer {
	return &Signer{apiKey: apiKey, secret: []byte(secret), recvWindow: recvWindow, now: time.Now}
}

// timestamp 毫秒时间戳，同一 Signer 内严格递增
func (s *Signer) timestamp() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.now().UnixMilli()
	if ts <= s.lastTS {
		ts = s.lastTS + 1
	}
	s.lastTS = ts
	return ts
}

// Sign 追加 timestamp / recvWindow 后按 key 排序编码，返回带 signature 的查询串
func (s *Signer) Sign(params url.Values) string {
	q := url.Values{}
	for k, vs := range params {
		q[k] = append([]string(nil), vs...)
	}
	q.Set("timestamp", strconv.FormatInt(s.timestamp(), 10))
	q.Set("recvWindow", strconv.FormatInt(s.recvWindow, 10))

	payload := q.Encode()
	return payload + "&signature=" + Signature(s.secret, payload)
}

// Signature hex(HMAC-SHA256(secret, payload))
func Signature(secret []byte, payload string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
