package core

import "fmt"

// WalletField names the request column a wallet is matched against.
type WalletField string

const (
	StudentWallet   WalletField = "student_wallet"
	RecipientWallet WalletField = "recipient_wallet"
)

// Valid reports whether f is one of the two known columns.
func (f WalletField) Valid() bool {
	return f == StudentWallet || f == RecipientWallet
}

// ParseWalletField rejects anything but the two known columns.
func ParseWalletField(s string) (WalletField, error) {
	f := WalletField(s)
	if !f.Valid() {
		return "", ErrInvalidWalletField
	}
	return f, nil
}

// Role is the side of a request a caller is looking from.
type Role int

const (
	// RoleSent lists requests the caller raised as a recipient.
	RoleSent Role = iota + 1
	// RoleReceived lists requests addressed to the caller as a student.
	RoleReceived
)

var roleFields = map[Role]WalletField{
	RoleSent:     RecipientWallet,
	RoleReceived: StudentWallet,
}

var roleNames = map[Role]string{
	RoleSent:     "sent",
	RoleReceived: "received",
}

// WalletField maps the role to the lookup column used in request paths.
func (r Role) WalletField() WalletField {
	return roleFields[r]
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return fmt.Sprintf("Role(%d)", int(r))
}

// ParseRole converts "sent" or "received".
func ParseRole(s string) (Role, error) {
	for role, name := range roleNames {
		if name == s {
			return role, nil
		}
	}
	return 0, &ValidationError{Field: "role", Message: fmt.Sprintf("unknown role %q, want sent or received", s)}
}
