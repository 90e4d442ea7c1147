package fingerprint

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func baseKey() Key {
	account := uuid.MustParse("6f1c2b8e-0a55-4b8e-9c1e-3d2f4a5b6c7d")
	return Key{
		UserID:      uuid.MustParse("1b4e28ba-2fa1-11d2-883f-0016d3cca427"),
		AccountID:   &account,
		Date:        time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
		Description: "Mercado Central",
		AmountCents: -4590,
		Source:      "csv",
	}
}

func TestCompute_Deterministic(t *testing.T) {
	a := Compute(baseKey())
	b := Compute(baseKey())

	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestCompute_EveryFieldMatters(t *testing.T) {
	base := Compute(baseKey())
	other := uuid.New()

	tests := []struct {
		name   string
		mutate func(k *Key)
	}{
		{"user", func(k *Key) { k.UserID = uuid.New() }},
		{"account", func(k *Key) { k.AccountID = &other }},
		{"null account", func(k *Key) { k.AccountID = nil }},
		{"date", func(k *Key) { k.Date = k.Date.AddDate(0, 0, 1) }},
		{"description", func(k *Key) { k.Description = "Mercado Norte" }},
		{"amount", func(k *Key) { k.AmountCents = 4590 }},
		{"source", func(k *Key) { k.Source = "xlsx" }},
		{"occurrence", func(k *Key) { k.Occurrence = 1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := baseKey()
			tt.mutate(&k)
			assert.NotEqual(t, base, Compute(k))
		})
	}
}

func TestCompute_DescriptionNormalization(t *testing.T) {
	k := baseKey()
	k.Description = "  MERCADO    central\t"
	assert.Equal(t, Compute(baseKey()), Compute(k))

	// Precomposed and decomposed forms of the same text hash identically.
	a, b := baseKey(), baseKey()
	a.Description = "Padaria S\u00e3o Jo\u00e3o"
	b.Description = "Padaria Sa\u0303o Joa\u0303o"
	assert.Equal(t, Compute(a), Compute(b))
}

func TestCompute_TimeOfDayIgnored(t *testing.T) {
	k := baseKey()
	k.Date = time.Date(2024, 3, 5, 18, 30, 0, 0, time.UTC)
	assert.Equal(t, Compute(baseKey()), Compute(k))
}

func TestCompute_DelimiterCannotShiftFields(t *testing.T) {
	a, b := baseKey(), baseKey()
	a.Description = "a|1"
	a.Source = "csv"
	b.Description = "a"
	b.Source = "1|csv"
	assert.NotEqual(t, Compute(a), Compute(b))
}

func TestNormalizeDescription(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Padaria  Sol", "padaria sol"},
		{"\tUBER *TRIP \n", "uber *trip"},
		{"", ""},
		{"   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeDescription(tt.in))
		})
	}
}

func TestCounter(t *testing.T) {
	c := NewCounter()
	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, 0, c.Next(day, "Cafe", -500))
	assert.Equal(t, 0, c.Next(day, "Cafe", -600))
	assert.Equal(t, 1, c.Next(day, "CAFE ", -500))
	assert.Equal(t, 2, c.Next(day, "cafe", -500))
	assert.Equal(t, 0, c.Next(day.AddDate(0, 0, 1), "Cafe", -500))
}
