package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTextOffsetsASCII(t *testing.T) {
	txt := NewText("hello world")
	assert.Equal(t, 11, txt.Len())
	assert.Equal(t, 6, txt.RuneOffset(6))
	assert.Equal(t, 6, txt.ByteOffset(6))
	assert.Equal(t, "world", txt.Slice(6, 11))
}

func TestTextOffsetsMultibyte(t *testing.T) {
	// "é" and "ö" are two bytes each, "€" is three.
	txt := NewText("héllo wörld €5")
	assert.Equal(t, 14, txt.Len())
	assert.Equal(t, "wörld", txt.Slice(6, 11))
	assert.Equal(t, "€5", txt.Slice(12, 14))

	b := txt.ByteOffset(12)
	assert.Equal(t, "€5", txt.String()[b:])
	assert.Equal(t, 12, txt.RuneOffset(b))
	// A continuation byte maps to the rune it belongs to.
	assert.Equal(t, 12, txt.RuneOffset(b+1))
	assert.Equal(t, txt.Len(), txt.RuneOffset(len(txt.String())))
	assert.Len(t, txt.Runes(), 14)
}

func TestDetectionOverlaps(t *testing.T) {
	a := Detection{Start: 0, End: 5}
	assert.True(t, a.Overlaps(Detection{Start: 4, End: 8}))
	assert.True(t, a.Overlaps(Detection{Start: 1, End: 2}))
	assert.False(t, a.Overlaps(Detection{Start: 5, End: 8}), "adjacent spans do not overlap")
	assert.Equal(t, 5, a.Len())
}

func TestDetectionValidate(t *testing.T) {
	tests := []struct {
		name    string
		d       Detection
		wantErr bool
	}{
		{"ok", Detection{EntityType: "PERSON", Start: 0, End: 4, Score: 0.9}, false},
		{"missing type", Detection{Start: 0, End: 4, Score: 0.9}, true},
		{"empty span", Detection{EntityType: "PERSON", Start: 2, End: 2, Score: 0.9}, true},
		{"past end", Detection{EntityType: "PERSON", Start: 0, End: 11, Score: 0.9}, true},
		{"negative start", Detection{EntityType: "PERSON", Start: -1, End: 4, Score: 0.9}, true},
		{"score above one", Detection{EntityType: "PERSON", Start: 0, End: 4, Score: 1.2}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.d.validate(10)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
