package render

import (
	"crypto/rand"
	"math/big"
	"strconv"
)

const (
	headerMin = 0x10000011
	headerMax = 0x7FFFFF00
)

// randRange returns a uniform value in [lo, hi]
func randRange(lo, hi int64) (int64, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(hi-lo+1))
	if err != nil {
		return 0, err
	}
	return lo + n.Int64(), nil
}

// RandomObfuscation draws the AWG junk packet and header values. H1..H4 are
// distinct.
func RandomObfuscation() (Values, error) {
	jc, err := randRange(3, 127)
	if err != nil {
		return nil, err
	}
	jmin, err := randRange(3, 700)
	if err != nil {
		return nil, err
	}
	jmax, err := randRange(jmin+1, 1269)
	if err != nil {
		return nil, err
	}
	s1, err := randRange(3, 127)
	if err != nil {
		return nil, err
	}
	s2, err := randRange(3, 127)
	if err != nil {
		return nil, err
	}

	values := Values{
		"JC":   strconv.FormatInt(jc, 10),
		"JMIN": strconv.FormatInt(jmin, 10),
		"JMAX": strconv.FormatInt(jmax, 10),
		"S1":   strconv.FormatInt(s1, 10),
		"S2":   strconv.FormatInt(s2, 10),
	}

	seen := make(map[int64]bool, 4)
	for _, key := range []string{"H1", "H2", "H3", "H4"} {
		for {
			h, err := randRange(headerMin, headerMax)
			if err != nil {
				return nil, err
			}
			if seen[h] {
				continue
			}
			seen[h] = true
			values[key] = strconv.FormatInt(h, 10)
			break
		}
	}
	return values, nil
}
