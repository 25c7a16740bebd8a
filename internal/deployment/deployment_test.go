package deployment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateID_Deterministic(t *testing.T) {
	// (P7) equal (osname, checksum, serial) triples yield equal ids.
	a := GenerateID("fedora", "abcd1234", 0)
	b := GenerateID("fedora", "abcd1234", 0)
	assert.Equal(t, a, b)
}

func TestGenerateID_DiffersOnAnyField(t *testing.T) {
	base := GenerateID("fedora", "abcd1234", 0)
	assert.NotEqual(t, base, GenerateID("silverblue", "abcd1234", 0))
	assert.NotEqual(t, base, GenerateID("fedora", "ffff0000", 0))
	assert.NotEqual(t, base, GenerateID("fedora", "abcd1234", 1))
}

func TestDeployment_ID_MatchesGenerateID(t *testing.T) {
	d := Deployment{OSName: "fedora", Checksum: "csum", Serial: 2}
	assert.Equal(t, GenerateID("fedora", "csum", 2), d.ID())
}

func TestSanitizeOSName(t *testing.T) {
	assert.Equal(t, "fedora", SanitizeOSName("fedora"))
	assert.Equal(t, "fedora_coreos", SanitizeOSName("fedora/coreos"))
	assert.Equal(t, "a_b-c_1", SanitizeOSName("a b-c.1"))
}
