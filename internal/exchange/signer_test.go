package exchange

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignature_KnownVector(t *testing.T) {
	// Binance API 文档中的示例
	secret := []byte("NhqPtmdSJYdKjVHjA7PZj4Mge3R5YNiP1e3UZjInClVN65XAbvqqM6A7H5fATj0j")
	payload := "symbol=LTCBTC&side=BUY&type=LIMIT&timeInForce=GTC&quantity=1&price=0.1&recvWindow=5000&timestamp=1499827319559"
	assert.Equal(t, "c8db56825ae71d6d79447849e617115f4a920fa2acdcab2b053c4b2838bd6b71", Signature(secret, payload))
}

func TestSigner_Sign(t *testing.T) {
	s := NewSigner("k", "secret", 5000)
	s.now = func() time.Time { return time.UnixMilli(1700000000000) }

	signed := s.Sign(url.Values{"symbol": {"BTCUSDT"}})

	idx := strings.LastIndex(signed, "&signature=")
	require.Greater(t, idx, 0)
	payload := signed[:idx]
	assert.Equal(t, "recvWindow=5000&symbol=BTCUSDT&timestamp=1700000000000", payload)
	assert.Equal(t, Signature([]byte("secret"), payload), signed[idx+len("&signature="):])
}

func TestSigner_TimestampStrictlyIncreasing(t *testing.T) {
	s := NewSigner("k", "secret", 5000)
	fixed := time.UnixMilli(1700000000000)
	s.now = func() time.Time { return fixed }

	a := s.timestamp()
	b := s.timestamp()
	assert.Greater(t, b, a)
}

func TestSigner_DoesNotMutateParams(t *testing.T) {
	s := NewSigner("k", "secret", 5000)
	params := url.Values{"symbol": {"BTCUSDT"}}
	s.Sign(params)
	assert.Len(t, params, 1)
}
