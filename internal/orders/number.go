package orders

//go:generate mockgen -source=number.go -destination=mocks/number_mock.go -package=mocks

import (
	"crypto/rand"
	"io"
	"time"
)

const (
	orderNumberPrefix       = "ORD"
	orderNumberSuffixLength = 6
	// Crockford base32 without I, L, O and U; 32 symbols keep byte%32 unbiased.
	orderNumberAlphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"
)

// OrderNumberSource produces candidate external order identifiers.
// Uniqueness is enforced by the store, not by the source.
type OrderNumberSource interface {
	Next() (string, error)
}

// OrderNumberGenerator formats ORD-<yyyymmddhhmmss>-<random>.
type OrderNumberGenerator struct {
	clock  func() time.Time
	random io.Reader
}

func NewOrderNumberGenerator() *OrderNumberGenerator {
	return &OrderNumberGenerator{clock: time.Now, random: rand.Reader}
}

func (g *OrderNumberGenerator) Next() (string, error) {
	var buf [orderNumberSuffixLength]byte
	if _, err := io.ReadFull(g.random, buf[:]); err != nil {
		return "", err
	}

	suffix := make([]byte, orderNumberSuffixLength)
	for i, b := range buf {
		suffix[i] = orderNumberAlphabet[int(b)%len(orderNumberAlphabet)]
	}

	return orderNumberPrefix + "-" + g.clock().UTC().Format("20060102150405") + "-" + string(suffix), nil
}
