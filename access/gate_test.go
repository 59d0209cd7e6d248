package access

import (
	"math/big"
	"testing"

	"github.com/layer-3/credgate/core"
	"github.com/stretchr/testify/assert"
)

func TestSelectionToggle(t *testing.T) {
	s := NewSelection()
	assert.True(t, s.Toggle("3"))
	assert.True(t, s.Toggle("1"))
	assert.True(t, s.Toggle("2"))
	assert.False(t, s.Toggle("1"))

	assert.Equal(t, []string{"3", "2"}, s.IDs())
	assert.NoError(t, CheckDecision(s.Approve()))

	s.Toggle("3")
	s.Toggle("2")
	assert.ErrorIs(t, CheckDecision(s.Approve()), core.ErrValidation)
}

func TestSelectableDropsRevoked(t *testing.T) {
	creds := []core.Credential{
		{TokenID: big.NewInt(5), Title: "MSc"},
		{TokenID: big.NewInt(2), Title: "BSc", Revoked: true},
		{TokenID: big.NewInt(1), Title: "Diploma"},
	}

	got := Selectable(creds)

	assert.Len(t, got, 2)
	assert.Equal(t, "Diploma", got[0].Title)
	assert.Equal(t, "MSc", got[1].Title)
}

func TestCheckRaise(t *testing.T) {
	assert.NoError(t, CheckRaise("0xABCDEF0123456789ABCDEF0123456789ABCDEF01", "transcript review"))
	assert.ErrorIs(t, CheckRaise("ABCDEF0123456789ABCDEF0123456789ABCDEF01", "x"), core.ErrValidation)
	assert.ErrorIs(t, CheckRaise("0xABCDEF0123456789ABCDEF0123456789ABCDEF01", ""), core.ErrValidation)
}

func TestCheckSelectable(t *testing.T) {
	creds := []core.Credential{
		{TokenID: big.NewInt(1), Title: "BSc"},
		{TokenID: big.NewInt(2), Title: "MSc", Revoked: true},
	}

	assert.NoError(t, CheckSelectable(NewSelection("1"), creds))
	assert.ErrorIs(t, CheckSelectable(NewSelection("1", "2"), creds), core.ErrValidation)
	assert.ErrorIs(t, CheckSelectable(NewSelection("7"), creds), core.ErrValidation)
}
