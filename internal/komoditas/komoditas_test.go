package komoditas

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Cabai Merah Keriting", "cabai_merah_keriting"},
		{"Bawang-Merah", "bawang_merah"},
		{"  Gula Pasir ", "gula_pasir"},
		{"kedelai", "kedelai"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Cabai Merah Keriting", DisplayName("cabai_merah_keriting"))
	assert.Equal(t, "Telur Ayam Ras", DisplayName("telur_ayam_ras"))
}

func TestRoundTrip(t *testing.T) {
	for _, name := range All {
		assert.Equal(t, name, DisplayName(Normalize(name)))
	}
}

func TestLookup(t *testing.T) {
	name, ok := Lookup("daging_sapi")
	assert.True(t, ok)
	assert.Equal(t, "Daging Sapi", name)

	name, ok = Lookup("Daging Sapi")
	assert.True(t, ok)
	assert.Equal(t, "Daging Sapi", name)

	_, ok = Lookup("cabai hijau")
	assert.False(t, ok)
	assert.False(t, Valid(""))
}

func TestKeys(t *testing.T) {
	keys := Keys()
	assert.Len(t, keys, 11)
	assert.Equal(t, "bawang_merah", keys[0])
	assert.Equal(t, "telur_ayam_ras", keys[10])
}
