package pool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relicta-tech/lockable/internal/config"
	"github.com/relicta-tech/lockable/internal/domain/resource"
	lrerrors "github.com/relicta-tech/lockable/internal/errors"
)

func TestSelect(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager(t,
		config.ResourceConfig{Name: "a", Labels: "linux big"},
		config.ResourceConfig{Name: "b", Labels: "linux"},
		config.ResourceConfig{Name: "c", Labels: "windows", Description: "lab"},
	)

	tests := []struct {
		name string
		sel  Selector
		want []string
	}{
		{"by names", Selector{Names: []string{"c", "a"}}, []string{"c", "a"}},
		{"by label", Selector{Label: "linux"}, []string{"a", "b"}},
		{"label is exact", Selector{Label: "lin"}, nil},
		{"by script", Selector{Script: `resourceDescription == "lab" or resourceName == "b"`}, []string{"b", "c"}},
		{"script marker", Selector{Label: resource.ScriptMarker + `resourceLabels contains "big"`}, []string{"a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.Select(ctx, tt.sel)
			require.NoError(t, err)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, names(got))
		})
	}
}

func TestSelectErrors(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager(t, defs("a")...)

	_, err := m.Select(ctx, Selector{Names: []string{"missing"}})
	assert.True(t, lrerrors.IsKind(err, lrerrors.KindNotFound))

	_, err = m.Select(ctx, Selector{Script: `resourceName`})
	assert.True(t, lrerrors.IsKind(err, lrerrors.KindEvaluation))
	assert.ErrorIs(t, err, resource.ErrMatchEvaluation)

	_, err = m.Select(ctx, Selector{Script: `(`})
	assert.ErrorIs(t, err, resource.ErrMatchEvaluation)

	_, err = m.Select(ctx, Selector{})
	assert.True(t, lrerrors.IsKind(err, lrerrors.KindValidation))
}
