package scheduler

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type refHolder struct{ id uuid.UUID }

func (r refHolder) GetID() uuid.UUID { return r.id }

type stringRefHolder struct{ id string }

func (r stringRefHolder) GetID() string { return r.id }

// TestToUUID 测试引用 ID 解析
func TestToUUID(t *testing.T) {
	want := uuid.MustParse("5f1e8a52-6a55-4f7e-9d4b-3c1f0e9b7a21")
	tests := []struct {
		name    string
		value   any
		wantErr bool
	}{
		{name: "uuid", value: want},
		{name: "pointer", value: &want},
		{name: "string", value: want.String()},
		{name: "map", value: map[string]any{"id": want.String()}},
		{name: "nested map", value: map[string]any{"id": want}},
		{name: "getter", value: refHolder{id: want}},
		{name: "string getter", value: stringRefHolder{id: want.String()}},
		{name: "bad string", value: "not-a-uuid", wantErr: true},
		{name: "map without id", value: map[string]any{"name": "x"}, wantErr: true},
		{name: "nil pointer", value: (*uuid.UUID)(nil), wantErr: true},
		{name: "number", value: 7, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := ToUUID(tt.value)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, want, id)
		})
	}
}

// TestToDuration 测试数字按秒解析
func TestToDuration(t *testing.T) {
	d, err := toDuration(1.5)
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, d)

	d, err = toDuration("2m")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, d)

	d, err = toDuration("30")
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, d)

	_, err = toDuration("soon")
	assert.Error(t, err)
}
