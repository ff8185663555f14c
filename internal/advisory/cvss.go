package advisory

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	cvssAV = map[string]float64{"N": 0.85, "A": 0.62, "L": 0.55, "P": 0.2}
	cvssAC = map[string]float64{"L": 0.77, "H": 0.44}
	cvssUI = map[string]float64{"N": 0.85, "R": 0.62}
	cvssCI = map[string]float64{"H": 0.56, "L": 0.22, "N": 0}
)

// ParseScore reads a severity score as published by an advisory database:
// either a bare number or a CVSS v3.x vector. v4 and v2 vectors are not
// scored and return an error.
func ParseScore(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		if f < 0 || f > 10 {
			return 0, fmt.Errorf("advisory: score %v out of range", f)
		}
		return f, nil
	}
	return CVSS3BaseScore(s)
}

// CVSS3BaseScore computes the base score of a CVSS v3.0/v3.1 vector such
// as "CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:U/C:H/I:H/A:H".
func CVSS3BaseScore(vector string) (float64, error) {
	parts := strings.Split(vector, "/")
	if len(parts) == 0 || !strings.HasPrefix(parts[0], "CVSS:3") {
		return 0, fmt.Errorf("advisory: unsupported cvss vector %q", vector)
	}

	m := make(map[string]string, len(parts)-1)
	for _, p := range parts[1:] {
		k, v, ok := strings.Cut(p, ":")
		if !ok {
			return 0, fmt.Errorf("advisory: malformed cvss metric %q", p)
		}
		m[k] = v
	}

	changed := false
	switch m["S"] {
	case "U":
	case "C":
		changed = true
	default:
		return 0, fmt.Errorf("advisory: cvss vector %q: bad scope", vector)
	}

	av, ok1 := cvssAV[m["AV"]]
	ac, ok2 := cvssAC[m["AC"]]
	ui, ok3 := cvssUI[m["UI"]]
	c, ok4 := cvssCI[m["C"]]
	i, ok5 := cvssCI[m["I"]]
	a, ok6 := cvssCI[m["A"]]
	var pr float64
	ok7 := true
	switch m["PR"] {
	case "N":
		pr = 0.85
	case "L":
		pr = 0.62
		if changed {
			pr = 0.68
		}
	case "H":
		pr = 0.27
		if changed {
			pr = 0.5
		}
	default:
		ok7 = false
	}
	if !(ok1 && ok2 && ok3 && ok4 && ok5 && ok6 && ok7) {
		return 0, fmt.Errorf("advisory: cvss vector %q: missing base metric", vector)
	}

	iss := 1 - (1-c)*(1-i)*(1-a)
	var impact float64
	if changed {
		impact = 7.52*(iss-0.029) - 3.25*math.Pow(iss-0.02, 15)
	} else {
		impact = 6.42 * iss
	}
	if impact <= 0 {
		return 0, nil
	}
	exploitability := 8.22 * av * ac * pr * ui

	if changed {
		return roundUp(math.Min(1.08*(impact+exploitability), 10)), nil
	}
	return roundUp(math.Min(impact+exploitability, 10)), nil
}

// roundUp is the CVSS v3.1 Roundup: the smallest one-decimal number not
// less than x, computed on integers to avoid float artifacts.
func roundUp(x float64) float64 {
	n := int64(math.Round(x * 100000))
	if n%10000 == 0 {
		return float64(n) / 100000
	}
	return float64(n/10000+1) / 10
}
