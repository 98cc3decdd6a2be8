package core

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestProfileMerge_LastWriteWinsAndSkipsUnset(t *testing.T) {
	base := Profile{
		FieldEmail:     String("old@example.com"),
		FieldAvatarURL: String("https://cdn.example/a.png"),
		"customBadge":  String("kept"),
	}
	patch := Profile{
		FieldEmail:     String("new@example.com"),
		FieldAvatarURL: Unset(),
		FieldOnline:    Bool(true),
	}

	merged := base.Merge(patch)
	if got := merged.Email(); got != "new@example.com" {
		t.Fatalf("expected patched email, got %q", got)
	}
	if got := merged.AvatarURL(); got != "https://cdn.example/a.png" {
		t.Fatalf("unset patch entry must not clear avatar, got %q", got)
	}
	if !merged.Online() {
		t.Fatalf("expected online merged")
	}
	if value, ok := merged.Get("customBadge"); !ok || value.String() != "kept" {
		t.Fatalf("expected unknown key to pass through")
	}
	if got := base.Email(); got != "old@example.com" {
		t.Fatalf("merge mutated its receiver")
	}
}

func TestProfileMerge_IsIdempotent(t *testing.T) {
	base := Profile{FieldResidentID: String("r1")}
	patch := Profile{FieldTags: Strings("a", "b"), FieldGrade: Number(7)}

	once := base.Merge(patch)
	twice := once.Merge(patch)
	if !once.Equal(twice) {
		t.Fatalf("expected idempotent merge: %v vs %v", once, twice)
	}
}

func TestProfileCompact_DropsUnsetOnly(t *testing.T) {
	partial := Profile{
		FieldEmail:     String("x"),
		FieldAvatarURL: Unset(),
		FieldRole:      Null(),
	}
	compacted := partial.Compact()
	if _, ok := compacted[FieldAvatarURL]; ok {
		t.Fatalf("expected unset avatar dropped")
	}
	if value, ok := compacted[FieldRole]; !ok || !value.IsNull() {
		t.Fatalf("expected explicit null kept")
	}

	encoded, err := json.Marshal(partial)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(encoded), FieldAvatarURL) {
		t.Fatalf("expected avatarURL absent from %s", encoded)
	}
	if !strings.Contains(string(encoded), `"role":null`) {
		t.Fatalf("expected role null in %s", encoded)
	}
}

func TestProfileWithout_RemovesKeys(t *testing.T) {
	profile := Profile{FieldEmail: String("x"), FieldAvatarURL: String("y")}
	trimmed := profile.Without(FieldAvatarURL)
	if _, ok := trimmed[FieldAvatarURL]; ok {
		t.Fatalf("expected avatar removed")
	}
	if _, ok := profile[FieldAvatarURL]; !ok {
		t.Fatalf("without mutated its receiver")
	}
	if Profile(nil).Without(FieldEmail) != nil {
		t.Fatalf("expected nil profile to stay nil")
	}
}

func TestProfileJSON_DecodesVariants(t *testing.T) {
	payload := `{
		"residentId": "r1",
		"grade": 9,
		"online": true,
		"tags": ["civic", "art"],
		"permissions": [{"name": "admin"}],
		"community": {"name": "Tulsa"},
		"lastLogoutAt": null
	}`
	var profile Profile
	if err := json.Unmarshal([]byte(payload), &profile); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if profile.ResidentID() != "r1" {
		t.Fatalf("expected residentId r1")
	}
	if grade, ok := profile[FieldGrade].AsNumber(); !ok || grade != 9 {
		t.Fatalf("expected numeric grade 9")
	}
	if tags := profile.Tags(); len(tags) != 2 || tags[1] != "art" {
		t.Fatalf("unexpected tags %v", tags)
	}
	if profile[FieldPermissions].Kind() != KindRaw {
		t.Fatalf("expected mixed array kept raw, got %s", profile[FieldPermissions].Kind())
	}
	if profile["community"].Kind() != KindRaw {
		t.Fatalf("expected object kept raw")
	}
	if !profile[FieldLastLogoutAt].IsNull() {
		t.Fatalf("expected null lastLogoutAt")
	}

	encoded, err := json.Marshal(profile)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var roundTrip Profile
	if err := json.Unmarshal(encoded, &roundTrip); err != nil {
		t.Fatalf("unmarshal round trip: %v", err)
	}
	if !profile.Equal(roundTrip) {
		t.Fatalf("expected stable round trip, got %s", encoded)
	}
}

func TestProfileJSON_KeepsUnrepresentableValuesVerbatim(t *testing.T) {
	payload := `{"legacyId":9007199254740993,"aliases":["a",null],"grade":12,"score":-3,"ratio":0.5}`
	var profile Profile
	if err := json.Unmarshal([]byte(payload), &profile); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if profile["legacyId"].Kind() != KindRaw {
		t.Fatalf("expected oversized integer kept raw, got %s", profile["legacyId"].Kind())
	}
	if profile["aliases"].Kind() != KindRaw {
		t.Fatalf("expected array with null kept raw, got %s", profile["aliases"].Kind())
	}
	if grade, ok := profile[FieldGrade].AsNumber(); !ok || grade != 12 {
		t.Fatalf("expected small integer decoded as number")
	}
	if profile["score"].Kind() != KindNumber || profile["ratio"].Kind() != KindNumber {
		t.Fatalf("expected plain numbers decoded as numbers")
	}

	encoded, err := json.Marshal(profile)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var echoed map[string]json.RawMessage
	if err := json.Unmarshal(encoded, &echoed); err != nil {
		t.Fatalf("unmarshal echo: %v", err)
	}
	if string(echoed["legacyId"]) != "9007199254740993" {
		t.Fatalf("expected integer preserved, got %s", echoed["legacyId"])
	}
	if string(echoed["aliases"]) != `["a",null]` {
		t.Fatalf("expected null element preserved, got %s", echoed["aliases"])
	}
}

func TestProfileFromMap_ConvertsDecodedData(t *testing.T) {
	profile, err := ProfileFromMap(map[string]any{
		"email":  "x@y.com",
		"grade":  10,
		"tags":   []any{"a"},
		"nested": map[string]any{"k": "v"},
		"  ":     "skipped",
	})
	if err != nil {
		t.Fatalf("profile from map: %v", err)
	}
	if len(profile) != 4 {
		t.Fatalf("expected 4 fields, got %d", len(profile))
	}
	if profile["nested"].Kind() != KindRaw {
		t.Fatalf("expected nested map kept raw")
	}
	if plain := profile.Map(); plain["email"] != "x@y.com" {
		t.Fatalf("unexpected plain map %v", plain)
	}
}

func TestProfileClone_IsDeep(t *testing.T) {
	original := Profile{FieldTags: Strings("a")}
	cloned := original.Clone()
	cloned[FieldTags] = Strings("b")
	if tags := original.Tags(); tags[0] != "a" {
		t.Fatalf("clone shares state with original")
	}
}

func TestCanTransition_FollowsPhaseEdges(t *testing.T) {
	if !CanTransition(PhaseIdle, PhaseResolving) {
		t.Fatalf("expected idle -> resolving")
	}
	if CanTransition(PhaseIdle, PhaseResolved) {
		t.Fatalf("idle must not jump to resolved")
	}
	if !CanTransition(PhaseError, PhaseResolving) {
		t.Fatalf("expected error -> resolving")
	}
	if CanTransition(PhaseResolved, PhaseError) {
		t.Fatalf("resolved must pass through resolving before error")
	}
}

func TestTokenFingerprint_HidesToken(t *testing.T) {
	fingerprint := TokenFingerprint("secret-token")
	if len(fingerprint) != 12 || strings.Contains(fingerprint, "secret") {
		t.Fatalf("unexpected fingerprint %q", fingerprint)
	}
	if TokenFingerprint("  ") != "" {
		t.Fatalf("expected empty fingerprint for empty token")
	}
}
