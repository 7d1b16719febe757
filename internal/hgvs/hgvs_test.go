package hgvs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProteinChange(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
		ok    bool
	}{
		{
			name:  "standard substitution",
			input: "NM_000238.4(KCNH2):c.1682C>T (p.Ala561Val)",
			want:  "p.Ala561Val",
			ok:    true,
		},
		{
			name:  "another substitution",
			input: "NM_000238.4(KCNH2):c.2893G>A (p.Gly965Arg)",
			want:  "p.Gly965Arg",
			ok:    true,
		},
		{
			name:  "stop gain with Ter",
			input: "NM_000238.4(KCNH2):c.1600C>T (p.Arg534Ter)",
			want:  "p.Arg534Ter",
			ok:    true,
		},
		{
			name:  "stop gain with asterisk normalized to Ter",
			input: "NM_000238.4(KCNH2):c.1600C>T (p.Arg534*)",
			want:  "p.Arg534Ter",
			ok:    true,
		},
		{
			name:  "no protein annotation",
			input: "NM_000238.4(KCNH2):c.1682C>T",
			ok:    false,
		},
		{
			name:  "intronic change",
			input: "NM_000238.4(KCNH2):c.2398+1G>A",
			ok:    false,
		},
		{
			name:  "empty string",
			input: "",
			ok:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseProteinChange(tt.input)
			require.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseCodingChange(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
		ok    bool
	}{
		{
			name:  "simple substitution",
			input: "NM_000238.4(KCNH2):c.1682C>T (p.Ala561Val)",
			want:  "c.1682C>T",
			ok:    true,
		},
		{
			name:  "splice site",
			input: "NM_000238.4(KCNH2):c.2398+1G>A",
			want:  "c.2398+1G>A",
			ok:    true,
		},
		{
			name:  "deletion",
			input: "NM_000238.4(KCNH2):c.453delC (p.Thr152fs)",
			want:  "c.453delC",
			ok:    true,
		},
		{
			name:  "no coding change",
			input: "NC_000007.14:g.150951325G>A",
			ok:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseCodingChange(tt.input)
			require.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFromCompact(t *testing.T) {
	tests := []struct {
		code string
		want string
		ok   bool
	}{
		{code: "A561V", want: "p.Ala561Val", ok: true},
		{code: "G628S", want: "p.Gly628Ser", ok: true},
		{code: "M1A", want: "p.Met1Ala", ok: true},
		{code: "R534*", want: "p.Arg534Ter", ok: true},
		{code: "R534X", want: "p.Arg534Ter", ok: true},
		{code: "A0V", ok: false},   // positions are 1-based
		{code: "561V", ok: false},  // missing ref
		{code: "AV", ok: false},    // missing position
		{code: "B12C", ok: false},  // not an amino acid
		{code: "", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			got, ok := FromCompact(tt.code)
			require.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeProtein(t *testing.T) {
	tests := []struct {
		input string
		want  string
		ok    bool
	}{
		{input: "p.Ala561Val", want: "p.Ala561Val", ok: true},
		{input: "p.Arg534Ter", want: "p.Arg534Ter", ok: true},
		{input: "p.Arg534*", want: "p.Arg534Ter", ok: true},
		{input: "p.Met1?", ok: false},
		{input: "p.Leu75ProfsTer11", ok: false}, // frameshift, not a substitution
		{input: "p.Ala561=", ok: false},
		{input: "Ala561Val", ok: false}, // missing p. prefix
		{input: "", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := NormalizeProtein(tt.input)
			require.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestProteinPosition(t *testing.T) {
	tests := []struct {
		input string
		want  int
		ok    bool
	}{
		{input: "p.Ala561Val", want: 561, ok: true},
		{input: "p.Arg534Ter", want: 534, ok: true},
		{input: "p.Leu75ProfsTer11", want: 75, ok: true},
		{input: "p.Met1?", want: 1, ok: true},
		{input: "p.?", ok: false},
		{input: "Ala561Val", ok: false},
		{input: "", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ProteinPosition(tt.input)
			require.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

// Both normalization paths must agree byte for byte: the store joins on the
// identifier, so a clinical name and a compact code describing the same
// variant have to land on the same row.
func TestFreeTextAndCompactPathsAgree(t *testing.T) {
	fromName, ok := ParseProteinChange("NM_000238.4(KCNH2):c.1682C>T (p.Ala561Val)")
	require.True(t, ok)

	fromCode, ok := FromCompact("A561V")
	require.True(t, ok)

	assert.Equal(t, fromName, fromCode)
}

func TestCompactRoundTrip(t *testing.T) {
	for ref := byte('A'); ref <= 'Z'; ref++ {
		if _, ok := oneToThree[ref]; !ok {
			continue
		}
		for alt := byte('A'); alt <= 'Z'; alt++ {
			if _, ok := oneToThree[alt]; !ok {
				continue
			}
			code := string(ref) + "127" + string(alt)
			hgvsP, ok := FromCompact(code)
			require.True(t, ok, code)

			back, ok := ToCompact(hgvsP)
			require.True(t, ok, hgvsP)
			assert.Equal(t, code, back)
		}
	}
}

func TestAminoAcidTables(t *testing.T) {
	three, ok := ToThree('G')
	require.True(t, ok)
	assert.Equal(t, "Gly", three)

	one, ok := ToOne("Gly")
	require.True(t, ok)
	assert.Equal(t, byte('G'), one)

	three, ok = ToThree('*')
	require.True(t, ok)
	assert.Equal(t, "Ter", three)

	one, ok = ToOne("Ter")
	require.True(t, ok)
	assert.Equal(t, byte('*'), one)

	_, ok = ToThree('B')
	assert.False(t, ok)
	_, ok = ToOne("Xyz")
	assert.False(t, ok)
}
