package security

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// EgressGuard は外部API（LLMエンドポイント）への送信先を制限する。
// GROQ_BASE_URLは設定で差し替え可能なため、APIキーが内部ネットワークへ送られないよう
// 起動時の静的検証と接続時の検証の両方を行う。
type EgressGuard interface {
	// NewClient は送信先検証付きのHTTPクライアントを生成する。
	NewClient(timeout time.Duration) *http.Client

	// ValidateURL はエンドポイントURLを静的に検証する。
	ValidateURL(rawURL string) error
}

// allowedSchemes は外部APIに許可されるURLスキーム。
var allowedSchemes = []string{"http", "https"}

// blockedNetworks は外部APIの送信先としてブロックされるネットワーク範囲。
var blockedNetworks []net.IPNet

func init() {
	cidrs := []string{
		// プライベートIPアドレス (RFC 1918)
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		// ループバック
		"127.0.0.0/8",
		// リンクローカル（クラウドメタデータIPを含む）
		"169.254.0.0/16",
		"0.0.0.0/8",
		"::1/128",
		"fe80::/10",
		"fc00::/7",
	}
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR in blockedNetworks: %s: %v", cidr, err))
		}
		blockedNetworks = append(blockedNetworks, *network)
	}
}

// egressGuard はEgressGuardの実装。
type egressGuard struct {
	allowPrivate bool
}

var _ EgressGuard = (*egressGuard)(nil)

// NewEgressGuard はEgressGuardを生成する。
// allowPrivateがtrueの場合はスキーム以外の検証を行わない（ローカル開発用）。
func NewEgressGuard(allowPrivate bool) EgressGuard {
	return &egressGuard{allowPrivate: allowPrivate}
}

// NewClient は送信先検証付きのHTTPクライアントを生成する。
// safeurlはDialerのControlフックでDNS解決後のIPアドレスを検証するため、
// 名前解決でプライベートアドレスに向けられた場合も接続しない。
func (g *egressGuard) NewClient(timeout time.Duration) *http.Client {
	if g.allowPrivate {
		return &http.Client{Timeout: timeout}
	}

	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(allowedSchemes...).
		SetAllowedPorts(80, 443).
		Build()

	return safeurl.Client(config).Client
}

// ValidateURL はエンドポイントURLを静的に検証する。DNS解決は行わない。
func (g *egressGuard) ValidateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("empty URL")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if !isAllowedScheme(scheme) {
		return fmt.Errorf("disallowed scheme: %s (allowed: %v)", scheme, allowedSchemes)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("empty host in URL: %s", rawURL)
	}

	if g.allowPrivate {
		return nil
	}

	if ip := net.ParseIP(host); ip != nil {
		if isBlockedIP(ip) {
			return fmt.Errorf("blocked IP address: %s", ip.String())
		}
		return nil
	}

	if strings.EqualFold(host, "localhost") {
		return fmt.Errorf("blocked host: %s", host)
	}
	return nil
}

func isAllowedScheme(scheme string) bool {
	for _, allowed := range allowedSchemes {
		if strings.EqualFold(scheme, allowed) {
			return true
		}
	}
	return false
}

func isBlockedIP(ip net.IP) bool {
	for _, network := range blockedNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}
