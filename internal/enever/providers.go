package enever

import "sort"

// providerNames maps the fixed set of provider codes to display names. The
// empty code is the exchange (beurs) price; EGSI and EOD are the gas exchange
// benchmarks.
var providerNames = map[string]string{
	"":     "Beursprijs",
	"AA":   "Atoom Alliantie",
	"AIP":  "All in power",
	"ANWB": "ANWB Energie",
	"BE":   "Budget Energie",
	"EE":   "EasyEnergy",
	"EN":   "Eneco",
	"EVO":  "Energie VanOns",
	"EZ":   "EnergyZero",
	"FR":   "Frank Energie",
	"GSL":  "Groenestroom Lokaal",
	"MDE":  "Mijndomein Energie",
	"NE":   "NextEnergy",
	"TI":   "Tibber",
	"VDB":  "Vandebron",
	"VON":  "Vrij op naam",
	"WE":   "Wout Energie",
	"ZG":   "ZonderGas",
	"ZP":   "Zonneplan",
	"EGSI": "Beursprijs EGSI",
	"EOD":  "Beursprijs EOD",
}

// SupportsElectricity reports whether the code is a known provider that
// publishes electricity prices. The gas-only exchange benchmarks do not.
func SupportsElectricity(code string) bool {
	if _, ok := providerNames[code]; !ok {
		return false
	}
	return code != "EGSI" && code != "EOD"
}

// SupportsGas reports whether the code is a known provider that publishes gas
// prices. The electricity exchange price and Tibber do not.
func SupportsGas(code string) bool {
	if _, ok := providerNames[code]; !ok {
		return false
	}
	return code != "" && code != "TI"
}

// ElectricityProviders returns the codes of all electricity providers, sorted.
func ElectricityProviders() []string {
	return providerCodes(SupportsElectricity)
}

// GasProviders returns the codes of all gas providers, sorted.
func GasProviders() []string {
	return providerCodes(SupportsGas)
}

func providerCodes(supports func(string) bool) []string {
	out := make([]string, 0, len(providerNames))
	for code := range providerNames {
		if supports(code) {
			out = append(out, code)
		}
	}
	sort.Strings(out)
	return out
}

// DisplayName returns the display name for a provider code, or the code
// itself when unknown.
func DisplayName(code string) string {
	if name, ok := providerNames[code]; ok {
		return name
	}
	return code
}
