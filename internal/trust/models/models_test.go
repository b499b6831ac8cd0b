package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestJurisdictionOf(t *testing.T) {
	cases := map[string]string{
		"US-CA DMV":         "US",
		"ca_ontario":        "CA",
		"MX:issuer":         "MX",
		"us/dmv":            "US",
		"FR issuing body":   "FR",
		"de.kba":            "DE",
		"US":                "US",
		"  gb-dvla":         "GB",
		"":                  "",
		"-leading":          "",
		"AUS-NSW transport": "AUS",
	}
	for in, want := range cases {
		assert.Equal(t, want, JurisdictionOf(in), in)
	}
}

func TestRecordValidate(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	good := Record{Code: "US", Certificates: []Certificate{
		{KeyID: "k1", ValidFrom: now, ValidUntil: now.Add(time.Hour)},
		{KeyID: "k2", ValidFrom: now, ValidUntil: now},
	}}
	assert.NoError(t, good.Validate())

	dup := good
	dup.Certificates = append([]Certificate{}, good.Certificates...)
	dup.Certificates[1].KeyID = "k1"
	assert.ErrorContains(t, dup.Validate(), "duplicate kid")

	inverted := Record{Code: "US", Certificates: []Certificate{{KeyID: "k", ValidFrom: now.Add(time.Hour), ValidUntil: now}}}
	assert.Error(t, inverted.Validate())

	assert.Error(t, Record{Code: "USA"}.Validate())
	assert.Error(t, Record{Code: "US", Certificates: []Certificate{{}}}.Validate())
}

func TestCertificateValidAt(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := Certificate{ValidFrom: from, ValidUntil: from.Add(24 * time.Hour)}
	assert.True(t, c.ValidAt(from))
	assert.True(t, c.ValidAt(from.Add(24*time.Hour)))
	assert.False(t, c.ValidAt(from.Add(-time.Second)))
	assert.False(t, c.ValidAt(from.Add(24*time.Hour+time.Second)))
}
