package services

import (
	"context"
	"testing"

	"link-auction-claims/models"

	"github.com/stretchr/testify/assert"
)

func TestResolveWebOnly(t *testing.T) {
	resolver := NewIdentityResolver(nil)

	ident := resolver.Resolve(context.Background(), IdentitySignal{
		WalletAddress:  "0xAbC123",
		SocialUsername: "twitter:bob",
	}, IdentitySignal{})

	assert.True(t, ident.Usable())
	assert.Equal(t, "0xabc123", ident.WalletAddress, "wallets are lowercased for comparison")
	assert.Equal(t, models.OriginChannelWeb, ident.Origin)

	field, value := ident.PrimaryField()
	assert.Equal(t, FieldWalletAddress, field)
	assert.Equal(t, "0xabc123", value)
}

func TestResolveHostPreferredButWalletExposed(t *testing.T) {
	resolver := NewIdentityResolver(nil)

	// User has both: a mini-app host identity and an independently connected
	// wallet. Host wins the primary slot, the wallet stays visible.
	ident := resolver.Resolve(context.Background(),
		IdentitySignal{WalletAddress: "0xABC"},
		IdentitySignal{HostUserID: "fid:42", SocialUsername: "farcaster:alice"},
	)

	field, value := ident.PrimaryField()
	assert.Equal(t, FieldHostUserID, field)
	assert.Equal(t, "fid:42", value)
	assert.Equal(t, "0xabc", ident.WalletAddress)
	assert.Equal(t, "farcaster:alice", ident.SocialUsername)
	assert.Equal(t, models.OriginChannelMiniApp, ident.Origin)
}

func TestResolveEmptySignalsNeverFails(t *testing.T) {
	resolver := NewIdentityResolver(nil)

	ident := resolver.Resolve(context.Background(), IdentitySignal{}, IdentitySignal{})
	assert.False(t, ident.Usable())

	field, value := ident.PrimaryField()
	assert.Empty(t, field)
	assert.Empty(t, value)
	assert.Empty(t, ident.Fields())
}

func TestResolveWalletHint(t *testing.T) {
	hint := func(_ context.Context, verifiedUserID string) (string, bool) {
		if verifiedUserID == "user-1" {
			return "0xDEF", true
		}
		return "", false
	}
	resolver := NewIdentityResolver(hint)

	// Verified user without a wallet in the request: lazy reconnect kicks in
	ident := resolver.Resolve(context.Background(), IdentitySignal{VerifiedUserID: "user-1"}, IdentitySignal{})
	assert.Equal(t, "0xdef", ident.WalletAddress)

	// A wallet in the request wins over the hint
	ident = resolver.Resolve(context.Background(), IdentitySignal{
		VerifiedUserID: "user-1",
		WalletAddress:  "0x111",
	}, IdentitySignal{})
	assert.Equal(t, "0x111", ident.WalletAddress)

	// Unknown user: no hint, still no error
	ident = resolver.Resolve(context.Background(), IdentitySignal{VerifiedUserID: "user-2"}, IdentitySignal{})
	assert.Empty(t, ident.WalletAddress)
}

func TestFieldsPrimaryFirst(t *testing.T) {
	ident := Identity{
		WalletAddress: "0xabc",
		HostUserID:    "fid:42",
	}

	fields := ident.Fields()
	assert.Equal(t, []IdentityFieldValue{
		{Field: FieldHostUserID, Value: "fid:42"},
		{Field: FieldWalletAddress, Value: "0xabc"},
	}, fields)
}
