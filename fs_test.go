package himd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveCaseInsensitiveFindsMatch(t *testing.T) {
	entries := []string{"Atdata00.HMA", "mclist00.hma"}
	assert.Equal(t, "Atdata00.HMA", resolveCaseInsensitive(entries, "ATDATA00.HMA"))
	assert.Equal(t, "mclist00.hma", resolveCaseInsensitive(entries, "MCLIST00.HMA"))
}

func TestResolveCaseInsensitiveFallsBackToWant(t *testing.T) {
	entries := []string{"Atdata00.HMA"}
	assert.Equal(t, "TRKIDX00.HMA", resolveCaseInsensitive(entries, "TRKIDX00.HMA"))
}

func TestGenerationPathFormatsTwoHexDigits(t *testing.T) {
	assert.Equal(t, "/HMDHIFI/ATDATA00.HMA", generationPath("ATDATA", 0))
	assert.Equal(t, "/HMDHIFI/TRKIDX09.HMA", generationPath("TRKIDX", 9))
	assert.Equal(t, "/HMDHIFI/MCLIST0F.HMA", generationPath("MCLIST", 15))
}
