package browser

import (
	"errors"
	"fmt"
	"net/url"
	"sync/atomic"
)

// Proxy is an outbound proxy for a browser context.
type Proxy struct {
	Server   string // scheme://host:port, as Chrome expects it
	Username string
	Password string
}

// ParseProxy parses "scheme://[user:pass@]host:port". The scheme defaults
// to http.
func ParseProxy(raw string) (Proxy, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		u, err = url.Parse("http://" + raw)
	}
	if err != nil || u.Host == "" {
		return Proxy{}, fmt.Errorf("browser: invalid proxy %q", raw)
	}
	switch u.Scheme {
	case "http", "https", "socks5", "socks4":
	default:
		return Proxy{}, fmt.Errorf("browser: unsupported proxy scheme %q", u.Scheme)
	}
	p := Proxy{Server: u.Scheme + "://" + u.Host}
	if u.User != nil {
		p.Username = u.User.Username()
		p.Password, _ = u.User.Password()
	}
	return p, nil
}

// String hides the credentials.
func (p Proxy) String() string { return p.Server }

// ProxyRotator hands out proxies round-robin. Safe for concurrent use.
type ProxyRotator struct {
	proxies []Proxy
	cursor  atomic.Uint64
}

// NewProxyRotator parses every proxy URL.
func NewProxyRotator(raw []string) (*ProxyRotator, error) {
	if len(raw) == 0 {
		return nil, errors.New("browser: no proxies configured")
	}
	r := &ProxyRotator{}
	for _, s := range raw {
		p, err := ParseProxy(s)
		if err != nil {
			return nil, err
		}
		r.proxies = append(r.proxies, p)
	}
	return r, nil
}

// Next returns the next proxy in rotation.
func (r *ProxyRotator) Next() Proxy {
	i := r.cursor.Add(1) - 1
	return r.proxies[i%uint64(len(r.proxies))]
}

// Len returns the number of proxies.
func (r *ProxyRotator) Len() int { return len(r.proxies) }
