package enever

import "testing"

func TestProviderFeedSupport(t *testing.T) {
	cases := []struct {
		code        string
		electricity bool
		gas         bool
	}{
		{"", true, false},     // exchange price, electricity only
		{"TI", true, false},   // Tibber publishes no gas price
		{"EGSI", false, true}, // gas benchmark
		{"EOD", false, true},
		{"ZP", true, true},
		{"EN", true, true},
		{"XX", false, false}, // unknown code
	}

	for _, c := range cases {
		if got := SupportsElectricity(c.code); got != c.electricity {
			t.Errorf("SupportsElectricity(%q) = %v, want %v", c.code, got, c.electricity)
		}
		if got := SupportsGas(c.code); got != c.gas {
			t.Errorf("SupportsGas(%q) = %v, want %v", c.code, got, c.gas)
		}
	}
}

func TestProviderLists(t *testing.T) {
	elec := ElectricityProviders()
	gas := GasProviders()

	if len(elec) != 19 {
		t.Errorf("expected 19 electricity providers, got %d", len(elec))
	}
	if len(gas) != 19 {
		t.Errorf("expected 19 gas providers, got %d", len(gas))
	}

	for i := 1; i < len(elec); i++ {
		if elec[i-1] >= elec[i] {
			t.Fatalf("electricity providers not sorted at %d: %q >= %q", i, elec[i-1], elec[i])
		}
	}
}

func TestDisplayName(t *testing.T) {
	if got := DisplayName("ZP"); got != "Zonneplan" {
		t.Errorf("DisplayName(ZP) = %q", got)
	}
	if got := DisplayName(""); got != "Beursprijs" {
		t.Errorf("DisplayName(\"\") = %q", got)
	}
	if got := DisplayName("XX"); got != "XX" {
		t.Errorf("DisplayName(XX) = %q, want the code itself", got)
	}
}
