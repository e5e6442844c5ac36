package model

import "testing"

func TestNamespaceFromMembershipType(t *testing.T) {
	tests := []struct {
		membershipType int
		want           Namespace
		ok             bool
	}{
		{1, NamespaceXbox, true},
		{2, NamespacePSN, true},
		{3, NamespaceSteam, true},
		{4, NamespaceBlizzard, true},
		{5, NamespaceStadia, true},
		{254, NamespaceBungie, true},
		{0, "", false},
		{99, "", false},
	}

	for _, tt := range tests {
		got, ok := NamespaceFromMembershipType(tt.membershipType)
		if got != tt.want || ok != tt.ok {
			t.Errorf("NamespaceFromMembershipType(%d) = (%q, %v), want (%q, %v)",
				tt.membershipType, got, ok, tt.want, tt.ok)
		}
	}
}

// 対応済み名前空間はmembershipTypeと往復変換できる
func TestNamespace_MembershipType_RoundTrip(t *testing.T) {
	for _, mt := range []int{1, 2, 3, 4, 5, 254} {
		ns, ok := NamespaceFromMembershipType(mt)
		if !ok {
			t.Fatalf("NamespaceFromMembershipType(%d) ok = false", mt)
		}
		if got := ns.MembershipType(); got != mt {
			t.Errorf("%s.MembershipType() = %d, want %d", ns, got, mt)
		}
	}
}

func TestNamespace_MembershipType_Unknown(t *testing.T) {
	if got := Namespace("unknown").MembershipType(); got != 0 {
		t.Errorf("MembershipType() = %d, want 0", got)
	}
}

func TestIdentityKey_String(t *testing.T) {
	key := IdentityKey{Namespace: NamespacePSN, MembershipID: 4611686018433723819}
	want := "psn:4611686018433723819"
	if got := key.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
