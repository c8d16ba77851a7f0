package config

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSplitQuotedFields(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		quote rune
		want  []string
	}{
		{
			name:  "single quotes with escape",
			in:    `field'A' 'fieldB' fie'l\'d'C fieldD 'another field' fieldE`,
			quote: '\'',
			want:  []string{"fieldA", "fieldB", "fiel'dC", "fieldD", "another field", "fieldE"},
		},
		{
			name:  "double quotes",
			in:    `field"A" "fieldB" fie"l'd"C "field\"D" "yet another field"`,
			quote: '"',
			want:  []string{"fieldA", "fieldB", "fiel'dC", "field\"D", "yet another field"},
		},
		{
			name:  "empty quoted field at the end",
			in:    `field"A" "" `,
			quote: '"',
			want:  []string{"fieldA", ""},
		},
		{
			name:  "empty quoted field at the beginning",
			in:    ` "" field"A"`,
			quote: '"',
			want:  []string{"", "fieldA"},
		},
		{
			name:  "surrounding spaces",
			in:    `    field"A"   `,
			quote: '"',
			want:  []string{"fieldA"},
		},
		{
			name:  "no quotes at all",
			in:    "alias regions m",
			quote: '\'',
			want:  []string{"alias", "regions", "m"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitQuotedFields(tt.in, tt.quote)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("split mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
