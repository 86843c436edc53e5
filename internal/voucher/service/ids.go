package service

import (
	"crypto/rand"
	"math/big"
	"time"

	"github.com/smallbiznis/parkvoucher/internal/voucher/domain"
)

const (
	voucherIDPrefix = "VCH_"
	usageIDPrefix   = "USE_"

	idAlphabet     = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	idSuffixLength = 6
	maxIDAttempts  = 5
)

type suffixFunc func() (string, error)

func randomSuffix() (string, error) {
	limit := big.NewInt(int64(len(idAlphabet)))
	out := make([]byte, idSuffixLength)
	for i := range out {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		out[i] = idAlphabet[n.Int64()]
	}
	return string(out), nil
}

// generateID builds <prefix><YYYYMMDD>_<suffix>, retrying while taken reports
// a collision.
func generateID(prefix string, now time.Time, loc *time.Location, suffix suffixFunc, taken func(string) bool) (string, error) {
	if loc == nil {
		loc = time.UTC
	}
	day := now.In(loc).Format("20060102")
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		s, err := suffix()
		if err != nil {
			return "", err
		}
		id := prefix + day + "_" + s
		if taken == nil || !taken(id) {
			return id, nil
		}
	}
	return "", domain.ErrIDExhausted
}
