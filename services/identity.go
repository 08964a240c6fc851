// services/identity.go
package services

import (
	"context"
	"strings"

	"link-auction-claims/models"
)

// IdentityField names one of the columns a ClaimRecord can be keyed by.
type IdentityField string

const (
	FieldWalletAddress  IdentityField = "wallet_address"
	FieldSocialUsername IdentityField = "social_username"
	FieldHostUserID     IdentityField = "host_user_id"
	FieldVerifiedUserID IdentityField = "verified_user_id"
)

// Identity is the normalized set of identifiers currently available for a
// user. All fields are optional; an Identity is usable iff at least one is
// set. Never persisted as an entity — only its values land on ClaimRecords.
type Identity struct {
	WalletAddress  string
	SocialUsername string
	HostUserID     string
	VerifiedUserID string
	Origin         models.OriginChannel
}

// Usable reports whether the identity can key a ledger lookup.
func (i Identity) Usable() bool {
	return i.WalletAddress != "" || i.SocialUsername != "" || i.HostUserID != "" || i.VerifiedUserID != ""
}

// PrimaryField returns the preferred lookup field and its value. Host-supplied
// identity wins over the standalone wallet so that a mini-app user who also
// has a wallet connected is keyed consistently across surfaces.
func (i Identity) PrimaryField() (IdentityField, string) {
	switch {
	case i.HostUserID != "":
		return FieldHostUserID, i.HostUserID
	case i.WalletAddress != "":
		return FieldWalletAddress, i.WalletAddress
	case i.SocialUsername != "":
		return FieldSocialUsername, i.SocialUsername
	case i.VerifiedUserID != "":
		return FieldVerifiedUserID, i.VerifiedUserID
	}
	return "", ""
}

// Fields returns every populated (field, value) pair, primary first.
func (i Identity) Fields() []IdentityFieldValue {
	var out []IdentityFieldValue
	pf, pv := i.PrimaryField()
	if pf != "" {
		out = append(out, IdentityFieldValue{Field: pf, Value: pv})
	}
	add := func(f IdentityField, v string) {
		if v == "" || f == pf {
			return
		}
		out = append(out, IdentityFieldValue{Field: f, Value: v})
	}
	add(FieldWalletAddress, i.WalletAddress)
	add(FieldSocialUsername, i.SocialUsername)
	add(FieldHostUserID, i.HostUserID)
	add(FieldVerifiedUserID, i.VerifiedUserID)
	return out
}

type IdentityFieldValue struct {
	Field IdentityField
	Value string
}

// IdentitySignal is the raw per-request provider state before normalization:
// whatever the gateway forwarded from the browser or the embedding host.
type IdentitySignal struct {
	WalletAddress  string
	SocialUsername string
	HostUserID     string
	VerifiedUserID string
	Origin         models.OriginChannel
}

// WalletHintFunc looks up a previously linked wallet for a verified user, so a
// returning user does not need a fresh connect prompt just to be recognized.
type WalletHintFunc func(ctx context.Context, verifiedUserID string) (string, bool)

// IdentityResolver normalizes request signals into a comparable Identity.
type IdentityResolver struct {
	walletHint WalletHintFunc
}

func NewIdentityResolver(walletHint WalletHintFunc) *IdentityResolver {
	return &IdentityResolver{walletHint: walletHint}
}

// Resolve merges the standalone web signal with the embedding-host signal (if
// any). Host identity is preferred for lookups, but an independently connected
// wallet is still exposed — the two are not mutually exclusive. Never fails;
// absent signals simply yield empty fields.
func (r *IdentityResolver) Resolve(ctx context.Context, web, host IdentitySignal) Identity {
	ident := Identity{
		WalletAddress:  normalizeWallet(web.WalletAddress),
		SocialUsername: strings.TrimSpace(web.SocialUsername),
		VerifiedUserID: strings.TrimSpace(web.VerifiedUserID),
		Origin:         models.OriginChannelWeb,
	}

	if host.HostUserID != "" {
		ident.HostUserID = strings.TrimSpace(host.HostUserID)
		ident.Origin = models.OriginChannelMiniApp
		if host.SocialUsername != "" {
			ident.SocialUsername = strings.TrimSpace(host.SocialUsername)
		}
		if host.WalletAddress != "" && ident.WalletAddress == "" {
			ident.WalletAddress = normalizeWallet(host.WalletAddress)
		}
	}

	// Lazy reconnect: a verified user without a wallet in this request may
	// still have one on file from an earlier claim.
	if ident.WalletAddress == "" && ident.VerifiedUserID != "" && r.walletHint != nil {
		if addr, ok := r.walletHint(ctx, ident.VerifiedUserID); ok {
			ident.WalletAddress = normalizeWallet(addr)
		}
	}

	return ident
}

// normalizeWallet lowercases chain addresses so comparisons are
// case-insensitive everywhere downstream.
func normalizeWallet(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}
