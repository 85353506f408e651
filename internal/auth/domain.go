package auth

import "strings"

// DomainPolicy はログインを許可するメールドメインの判定を提供する。
type DomainPolicy struct {
	domain string
}

// NewDomainPolicy はDomainPolicyを生成する。
// allowedDomainは"@ucaldas.edu.co"または"ucaldas.edu.co"の形式で指定する。
func NewDomainPolicy(allowedDomain string) DomainPolicy {
	d := strings.ToLower(strings.TrimSpace(allowedDomain))
	if !strings.HasPrefix(d, "@") {
		d = "@" + d
	}
	return DomainPolicy{domain: d}
}

// Domain は正規化済みの許可ドメイン（@付き）を返す。
func (p DomainPolicy) Domain() string {
	return p.domain
}

// IsAllowedEmail はメールアドレスが許可ドメインに属するかを返す。
// 大文字小文字を区別しない後方一致で判定し、空のメールアドレスは常に拒否する。
func (p DomainPolicy) IsAllowedEmail(email string) bool {
	e := strings.ToLower(strings.TrimSpace(email))
	if e == "" || p.domain == "@" {
		return false
	}
	return strings.HasSuffix(e, p.domain)
}
