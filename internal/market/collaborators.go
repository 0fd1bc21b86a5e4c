package market

import (
	"time"

	"github.com/custodia/marketplace-engine/internal/model"
	"github.com/custodia/marketplace-engine/internal/token"
)

// IssuerRegistry answers whether an issuer identity is allowed to list whole
// assets. Injected so tests can substitute fakes.
type IssuerRegistry interface {
	IsValidIssuer(issuer model.Address) bool
}

// AdminAuthority verifies the capability presented to privileged operations
// (pause/unpause).
type AdminAuthority interface {
	VerifyAdmin(capability string) bool
}

// Payments receives settled value: seller proceeds, protocol fees, and buyer
// change. Transfer consumes the token.
type Payments interface {
	Transfer(t *token.Token, dest model.Address)
}

// Clock supplies listing timestamps.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// StaticIssuers is an IssuerRegistry backed by a fixed allow-list.
type StaticIssuers map[model.Address]bool

func (s StaticIssuers) IsValidIssuer(issuer model.Address) bool { return s[issuer] }

// AllowAllIssuers accepts every issuer. Development use only.
type AllowAllIssuers struct{}

func (AllowAllIssuers) IsValidIssuer(model.Address) bool { return true }

// StaticAdmin verifies the admin capability against a fixed secret. An empty
// secret rejects everything.
type StaticAdmin string

func (s StaticAdmin) VerifyAdmin(capability string) bool {
	return s != "" && capability == string(s)
}
