package selectors

import "testing"

func TestDefaultsLoadsEmbeddedTable(t *testing.T) {
	aliases := Defaults()

	if len(aliases) == 0 {
		t.Fatal("Defaults() returned an empty alias table")
	}
	if _, ok := aliases["submit_button"]; !ok {
		t.Error("expected embedded defaults to define submit_button")
	}
}

func TestDefaultsIsStableAcrossCalls(t *testing.T) {
	a1 := Defaults()
	a2 := Defaults()

	if len(a1) != len(a2) {
		t.Error("expected Defaults() to return a stable table across calls")
	}
}

func TestDefValidRejectsUnknownType(t *testing.T) {
	d := Def{Selector: "#foo", Type: "regex"}
	if d.Valid() {
		t.Error("expected an unsupported selector type to be invalid")
	}
}

func TestDefValidRejectsEmptySelector(t *testing.T) {
	d := Def{Selector: "", Type: "css"}
	if d.Valid() {
		t.Error("expected an empty selector to be invalid")
	}
}

func TestAliasesValidateRequiresAtLeastOneEntry(t *testing.T) {
	var a Aliases
	if err := a.Validate(); err == nil {
		t.Error("expected Validate to reject an empty alias table")
	}
}

func TestAliasesValidateRejectsMalformedEntry(t *testing.T) {
	a := Aliases{"bad": {Selector: "", Type: "css"}}
	if err := a.Validate(); err == nil {
		t.Error("expected Validate to reject a malformed entry")
	}
}

func TestFallbackAliasesIsValid(t *testing.T) {
	if err := fallbackAliases().Validate(); err != nil {
		t.Errorf("fallbackAliases() must itself be valid, got %v", err)
	}
}
