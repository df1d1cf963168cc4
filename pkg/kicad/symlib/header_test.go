package symlib

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReadHeader(t *testing.T) {
	fallback := Header{Version: 20231120, Generator: DefaultGenerator}

	tests := []struct {
		name  string
		input string
		want  Header
	}{
		{
			name:  "quoted generator",
			input: "(kicad_symbol_lib (version 20231120) (generator \"kicad_symbol_editor\") (generator_version \"8.0\"))",
			want:  Header{Version: 20231120, Generator: "kicad_symbol_editor"},
		},
		{
			name:  "bare generator",
			input: "(kicad_symbol_lib (version 20211014) (generator kicad_symbol_editor))",
			want:  Header{Version: 20211014, Generator: "kicad_symbol_editor"},
		},
		{
			name:  "field order does not matter",
			input: "(kicad_symbol_lib (generator \"SamacSys_ECAD_Model\") (version 20220914))",
			want:  Header{Version: 20220914, Generator: "SamacSys_ECAD_Model"},
		},
		{
			name:  "missing fields use fallback",
			input: "(kicad_symbol_lib (symbol \"A\"))",
			want:  fallback,
		},
		{
			name:  "unparseable text uses patterns",
			input: "(kicad_symbol_lib (version 20220914) (generator \"eeschema\")\n  (symbol \"A\"\n",
			want:  Header{Version: 20220914, Generator: "eeschema"},
		},
		{
			name:  "garbage uses fallback",
			input: "not a library",
			want:  fallback,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ReadHeader(tt.input, fallback))
		})
	}
}
