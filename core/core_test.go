package core

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusIsCaseInsensitiveOnTheWire(t *testing.T) {
	var r AccessRequest
	require.NoError(t, json.Unmarshal([]byte(`{"request_id":"1","status":" Pending "}`), &r))

	assert.Equal(t, StatusPending, r.Status)
	assert.True(t, r.IsPending())
	assert.True(t, AccessRequest{Status: "PENDING"}.IsPending())
}

func TestExpiryOverridesPendingStatus(t *testing.T) {
	now := time.Now()
	r := AccessRequest{Status: StatusPending, ExpiryTimestamp: now.Add(-time.Second)}

	assert.True(t, r.IsExpired(now))
	assert.False(t, r.Actionable(now))

	l := NewListing(r, now)
	assert.True(t, l.Expired)
	assert.True(t, l.Pending)
	assert.False(t, l.Actionable())
}

func TestTerminalStatuses(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.True(t, StatusApproved.Terminal())
	assert.True(t, StatusDenied.Terminal())
}

func TestRoleWalletField(t *testing.T) {
	assert.Equal(t, RecipientWallet, RoleSent.WalletField())
	assert.Equal(t, StudentWallet, RoleReceived.WalletField())
	assert.False(t, Role(0).WalletField().Valid())

	role, err := ParseRole("received")
	require.NoError(t, err)
	assert.Equal(t, RoleReceived, role)
	assert.Equal(t, "received", role.String())

	_, err = ParseRole("institute")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestParseWalletField(t *testing.T) {
	f, err := ParseWalletField("student_wallet")
	require.NoError(t, err)
	assert.Equal(t, StudentWallet, f)

	_, err = ParseWalletField("id; DROP TABLE requests")
	assert.ErrorIs(t, err, ErrInvalidWalletField)
}

func TestApproveDropsRepeatedIDs(t *testing.T) {
	assert.Equal(t, []string{"2", "1"}, Approve("2", "1", "2").TranscriptIDs)

	d := Decision{Verdict: Accept, TranscriptIDs: []string{"a", "a"}}
	assert.Equal(t, []string{"a"}, d.Distinct().TranscriptIDs)
	assert.Len(t, d.TranscriptIDs, 2, "Distinct must not modify the receiver")
}

func TestDecisionValidate(t *testing.T) {
	assert.NoError(t, Approve("1").Validate())
	assert.NoError(t, Deny("not relevant").Validate())

	cases := map[string]Decision{
		"empty approval":   Approve(),
		"blank id":         Approve(" "),
		"empty reason":     Deny(""),
		"blank reason":     Deny("   "),
		"unknown response": {Verdict: "maybe"},
	}
	for name, d := range cases {
		t.Run(name, func(t *testing.T) {
			err := d.Validate()
			assert.ErrorIs(t, err, ErrValidation)
			var verr *ValidationError
			assert.ErrorAs(t, err, &verr)
		})
	}
}
