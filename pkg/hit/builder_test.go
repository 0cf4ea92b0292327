package hit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder_ZeroValue(t *testing.T) {
	var b Builder
	assert.Equal(t, 0, b.Depth())
	assert.Empty(t, b.Flatten())

	_, ok := b.Get("t")
	assert.False(t, ok)
}

func TestBuilder_WithDoesNotMutateParent(t *testing.T) {
	parent := New(map[string]string{"a": "1"})
	child := parent.With("a", "2")

	assert.Equal(t, 1, parent.Depth())
	assert.Equal(t, 2, child.Depth())
	assert.Equal(t, map[string]string{"a": "1"}, parent.Flatten())
	assert.Equal(t, map[string]string{"a": "2"}, child.Flatten())
}

func TestBuilder_BranchingSharesPrefix(t *testing.T) {
	base := Event("video", "play", "", 0)
	intro := base.With(KeyEventLabel, "intro")
	outro := base.With(KeyEventLabel, "outro")

	assert.Same(t, base.top, intro.top.parent)
	assert.Same(t, base.top, outro.top.parent)

	assert.Equal(t, "intro", intro.Flatten()[KeyEventLabel])
	assert.Equal(t, "outro", outro.Flatten()[KeyEventLabel])
	_, ok := base.Get(KeyEventLabel)
	assert.False(t, ok)
}

func TestBuilder_FlattenPrefixProperty(t *testing.T) {
	tests := []struct {
		name   string
		layers []map[string]string
		extra  map[string]string
	}{
		{
			name:   "disjoint keys",
			layers: []map[string]string{{"a": "1"}, {"b": "2"}},
			extra:  map[string]string{"c": "3"},
		},
		{
			name:   "extra overrides",
			layers: []map[string]string{{"a": "1", "b": "1"}, {"b": "2"}},
			extra:  map[string]string{"a": "x", "b": "y"},
		},
		{
			name:   "empty extra layer",
			layers: []map[string]string{{"a": "1"}},
			extra:  map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var l1 Builder
			for _, layer := range tt.layers {
				l1 = l1.WithAll(layer)
			}
			l2 := l1.WithAll(tt.extra)

			expected := l1.Flatten()
			for k, v := range tt.extra {
				expected[k] = v
			}
			assert.Equal(t, expected, l2.Flatten())
		})
	}
}

func TestBuilder_FlattenIdempotent(t *testing.T) {
	flat := map[string]string{"t": "event", "ec": "cat", "ea": "act"}
	once := New(flat).Flatten()
	twice := New(once).Flatten()

	assert.Equal(t, flat, once)
	assert.Equal(t, once, twice)
}

func TestBuilder_FlattenDoesNotAlias(t *testing.T) {
	input := map[string]string{"a": "1"}
	b := New(input)

	input["a"] = "changed"
	flat := b.Flatten()
	flat["a"] = "mutated"

	v, ok := b.Get("a")
	require.True(t, ok)
	assert.Equal(t, "1", v)
}

func TestBuilder_GetNewestWins(t *testing.T) {
	b := New(map[string]string{"k": "old"}).With("other", "x").With("k", "new")

	v, ok := b.Get("k")
	require.True(t, ok)
	assert.Equal(t, "new", v)

	v, ok = b.Get("other")
	require.True(t, ok)
	assert.Equal(t, "x", v)
}

func TestEvent_Omission(t *testing.T) {
	t.Run("no label no value", func(t *testing.T) {
		flat := Event("cat", "action", "", 0).Flatten()
		assert.Equal(t, map[string]string{"t": "event", "ec": "cat", "ea": "action"}, flat)
		assert.NotContains(t, flat, "el")
		assert.NotContains(t, flat, "ev")
	})

	t.Run("label and value", func(t *testing.T) {
		flat := Event("cat", "action", "L", 5).Flatten()
		assert.Equal(t, "L", flat["el"])
		assert.Equal(t, "5", flat["ev"])
	})

	t.Run("negative value kept", func(t *testing.T) {
		flat := Event("cat", "action", "", -3).Flatten()
		assert.Equal(t, "-3", flat["ev"])
	})
}

func TestScreenView(t *testing.T) {
	assert.Equal(t, map[string]string{"t": "screenview"}, ScreenView("").Flatten())
	assert.Equal(t, map[string]string{"t": "screenview", "cd": "Home"}, ScreenView("Home").Flatten())
}

func TestException(t *testing.T) {
	tests := []struct {
		name        string
		description string
		fatal       bool
		expected    map[string]string
	}{
		{"fatal without description", "", true, map[string]string{"t": "exception"}},
		{"fatal with description", "boom", true, map[string]string{"t": "exception", "exd": "boom"}},
		{"non-fatal", "oops", false, map[string]string{"t": "exception", "exd": "oops", "exf": "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Exception(tt.description, tt.fatal).Flatten())
		})
	}
}

func TestTiming(t *testing.T) {
	assert.Equal(t, map[string]string{"t": "timing"}, Timing("", "", 0, "").Flatten())
	assert.Equal(t,
		map[string]string{"t": "timing", "utc": "db", "utv": "query", "utt": "120", "utl": "users"},
		Timing("db", "query", 120, "users").Flatten(),
	)
}

func TestBuilder_Modifiers(t *testing.T) {
	flat := ScreenView("Home").
		CustomDimension(3, "premium").
		CustomMetric(2, 42).
		NewSession().
		NonInteraction().
		Flatten()

	assert.Equal(t, "premium", flat["cd3"])
	assert.Equal(t, "42", flat["cm2"])
	assert.Equal(t, "start", flat["sc"])
	assert.Equal(t, "1", flat["ni"])
	assert.Equal(t, "Home", flat["cd"])
}

func TestHit(t *testing.T) {
	created := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	params := map[string]string{"t": "event"}
	h := NewHit(params, created)

	params["t"] = "mutated"
	assert.Equal(t, "event", h.Type())

	out := h.Params()
	out["t"] = "changed"
	v, ok := h.Get("t")
	require.True(t, ok)
	assert.Equal(t, "event", v)

	assert.Equal(t, created, h.CreatedAt())
	assert.Equal(t, 1500*time.Millisecond, h.QueueTime(created.Add(1500*time.Millisecond)))
	assert.Equal(t, time.Duration(0), h.QueueTime(created.Add(-time.Second)))
}
