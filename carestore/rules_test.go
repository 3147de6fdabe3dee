package carestore

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOwnerRulesWrite(t *testing.T) {
	rules := OwnerRules{}
	alice := Principal{UserID: "alice", DeviceID: "d1", Role: RoleUser}
	admin := Principal{UserID: "root", DeviceID: "d9", Role: RoleAdmin}

	cases := []struct {
		name    string
		p       Principal
		path    string
		body    string
		allowed bool
	}{
		{"own vital", alice, "users/alice/vitals/v1", `{}`, true},
		{"own medication log", alice, "users/alice/medications/m1/logs/2025-01-02", `{}`, true},
		{"other user's vital", alice, "users/bob/vitals/v1", `{}`, false},
		{"admin cannot write for users", admin, "users/alice/vitals/v1", `{}`, false},
		{"feedback as self", alice, "feedback/f1", `{"userId":"alice"}`, true},
		{"feedback as someone else", alice, "feedback/f1", `{"userId":"bob"}`, false},
		{"feedback without author", alice, "feedback/f1", `{"message":"hi"}`, false},
		{"unknown root", alice, "settings/s1", `{}`, false},
		{"anonymous", Principal{}, "users/alice/vitals/v1", `{}`, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := rules.CanWrite(tc.p, tc.path, json.RawMessage(tc.body))
			if tc.allowed {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, ErrPermissionDenied)
			}
		})
	}
}

func TestOwnerRulesRead(t *testing.T) {
	rules := OwnerRules{}
	alice := Principal{UserID: "alice", Role: RoleUser}
	admin := Principal{UserID: "root", Role: RoleAdmin}

	require.NoError(t, rules.CanRead(alice, "users/alice/vitals"))
	require.ErrorIs(t, rules.CanRead(alice, "users/bob/vitals"), ErrPermissionDenied)
	require.ErrorIs(t, rules.CanRead(alice, "users"), ErrPermissionDenied)
	require.ErrorIs(t, rules.CanRead(alice, "feedback"), ErrPermissionDenied)
	require.ErrorIs(t, rules.CanRead(Principal{}, "users/alice/vitals"), ErrPermissionDenied)

	require.NoError(t, rules.CanRead(admin, "users/alice/vitals"))
	require.NoError(t, rules.CanRead(admin, "feedback"))
	require.ErrorIs(t, rules.CanRead(admin, "settings"), ErrPermissionDenied)
}
