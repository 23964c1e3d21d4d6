package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompareVersionStrings(t *testing.T) {
	tests := map[string]struct {
		a, b   string
		higher bool
	}{
		"equal":             {a: "v23.08", b: "v23.08", higher: true},
		"patch release":     {a: "v23.08.1", b: "v23.08", higher: true},
		"older month":       {a: "v23.05.2", b: "v23.08", higher: false},
		"newer year":        {a: "v24.02", b: "v23.11.2", higher: true},
		"release candidate": {a: "v23.08rc1", b: "v23.08", higher: true},
		"modded build":      {a: "v24.05-14-gdeadbeef", b: "v24.05.1", higher: false},
		"without prefix":    {a: "24.11", b: "v24.11", higher: true},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			higher, err := CompareVersionStrings(tt.a, tt.b)
			require.NoError(t, err)
			assert.Equal(t, tt.higher, higher)
		})
	}
}

func TestCompareVersionStrings_Malformed(t *testing.T) {
	_, err := CompareVersionStrings("unknown", MinClnVersion)
	assert.Error(t, err)

	_, err = CompareVersionStrings("v23", MinClnVersion)
	assert.Error(t, err)
}
