package notification

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShoutrrrProviderValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		urls    []string
		wantErr bool
	}{
		{"logger service", []string{"logger://"}, false},
		{"no urls", nil, true},
		{"unknown scheme", []string{"nosuchservice://token@host"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewShoutrrrProvider("push", tt.urls, nil, time.Second)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestShoutrrrProviderSend(t *testing.T) {
	t.Parallel()

	p, err := NewShoutrrrProvider("push", []string{"logger://"}, []Type{TypeError}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "push", p.GetName())
	assert.True(t, p.SupportsType(TypeError))
	assert.False(t, p.SupportsType(TypeSuccess))

	n := NewNotification(TypeError, PriorityHigh, "Restore failed", "insert into ordens failed")
	require.NoError(t, p.Send(context.Background(), n))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, p.Send(ctx, n))
}
