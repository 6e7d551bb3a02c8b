package netx

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/proxy"
)

// ProxyDialer 返回经 SOCKS5 代理的拨号函数
func ProxyDialer(proxyAddr string) (func(ctx context.Context, network, addr string) (net.Conn, error), error) {
	dialer, err := proxy.SOCKS5("tcp", proxyAddr, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("socks5 proxy %s: %w", proxyAddr, err)
	}

	if cd, ok := dialer.(proxy.ContextDialer); ok {
		return cd.DialContext, nil
	}
	return func(_ context.Context, network, addr string) (net.Conn, error) {
		return dialer.Dial(network, addr)
	}, nil
}

// NewHTTPClient 创建带超时的 HTTP 客户端，proxyAddr 非空时走 SOCKS5
func NewHTTPClient(timeout time.Duration, proxyAddr string) (*http.Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = 10
	transport.IdleConnTimeout = 90 * time.Second

	if proxyAddr != "" {
		dial, err := ProxyDialer(proxyAddr)
		if err != nil {
			return nil, err
		}
		transport.Proxy = nil
		transport.DialContext = dial
	}

	return &http.Client{Timeout: timeout, Transport: transport}, nil
}
