package commands

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/musterhq/muster/internal/core/directory"
	"github.com/musterhq/muster/internal/core/message"
)

func TestResolveRecipient(t *testing.T) {
	flags := &Flags{
		Directory: directory.New([]directory.Actor{
			{ID: "u-42", Name: "Bob Tran"},
		}),
	}

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "broadcast channel", input: message.BroadcastRecipient, want: message.BroadcastRecipient},
		{name: "actor id", input: "u-42", want: "u-42"},
		{name: "display name", input: "bob tran", want: "u-42"},
		{name: "unknown", input: "nobody", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := flags.ResolveRecipient(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRelativeTime(t *testing.T) {
	now := time.Now()

	assert.Equal(t, "just now", relativeTime(now.Add(-30*time.Second)))
	assert.Equal(t, "5m ago", relativeTime(now.Add(-5*time.Minute)))
	assert.Equal(t, "3h ago", relativeTime(now.Add(-3*time.Hour)))
	assert.Equal(t, "", relativeTime(time.Time{}))

	old := now.Add(-72 * time.Hour)
	assert.Equal(t, old.Format("Jan 2"), relativeTime(old))
}
