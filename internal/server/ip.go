package server

import (
	"net/http"
	"net/netip"
	"strings"
)

// ------------------------------------------------------------
// client IP 추출
//
// ALB / CloudFront 뒤에서는 RemoteAddr 가 프록시 주소이므로
// 헤더에서 실제 사용자 IP 를 찾는다.
//  1. X-Forwarded-For: 왼쪽부터 첫 번째 public IP
//  2. CloudFront-Viewer-Address: "ip:port" 에서 port 제거
//  3. RemoteAddr (private 이어도 그대로 사용)
// ------------------------------------------------------------

func isPublicIP(a netip.Addr) bool {
	return a.IsValid() &&
		!a.IsPrivate() &&
		!a.IsLoopback() &&
		!a.IsLinkLocalUnicast() &&
		!a.IsLinkLocalMulticast() &&
		!a.IsUnspecified()
}

func parseIP(s string) (netip.Addr, bool) {
	a, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil {
		return netip.Addr{}, false
	}
	return a.Unmap(), true
}

// parseHostPort 는 "1.2.3.4:80", "[::1]:80" 과 CloudFront 의
// 괄호 없는 IPv6 "2404:6800::200e:44321" 을 모두 받는다.
func parseHostPort(s string) (netip.Addr, bool) {
	s = strings.TrimSpace(s)
	if ap, err := netip.ParseAddrPort(s); err == nil {
		return ap.Addr().Unmap(), true
	}
	if i := strings.LastIndexByte(s, ':'); i != -1 {
		return parseIP(s[:i])
	}
	return parseIP(s)
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for _, part := range strings.Split(xff, ",") {
			if a, ok := parseIP(part); ok && isPublicIP(a) {
				return a.String()
			}
		}
	}

	if cf := r.Header.Get("CloudFront-Viewer-Address"); cf != "" {
		if a, ok := parseHostPort(cf); ok && isPublicIP(a) {
			return a.String()
		}
	}

	if a, ok := parseHostPort(r.RemoteAddr); ok {
		return a.String()
	}
	return ""
}
