package directory

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testActors() []Actor {
	return []Actor{
		{ID: "1", Name: "Jane Doe", Role: RoleCoordinator},
		{ID: "2", Name: "Bob Smith", Role: RoleVolunteer},
		{ID: "3", Name: "Ada Admin", Role: RoleStaff, IsAdmin: true},
	}
}

func TestDirectory_ByName(t *testing.T) {
	d := New(testActors())

	tests := []struct {
		name   string
		lookup string
		wantID string
		found  bool
	}{
		{name: "exact match", lookup: "Jane Doe", wantID: "1", found: true},
		{name: "case insensitive", lookup: "jane doe", wantID: "1", found: true},
		{name: "unknown name", lookup: "Nobody", found: false},
		{name: "partial name is not a match", lookup: "Jane", found: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, ok := d.ByName(tt.lookup)
			assert.Equal(t, tt.found, ok)
			if tt.found {
				assert.Equal(t, tt.wantID, a.ID)
			}
		})
	}
}

func TestDirectory_DisplayName_FallsBackToID(t *testing.T) {
	d := New(testActors())

	assert.Equal(t, "Bob Smith", d.DisplayName("2"))
	assert.Equal(t, "ghost", d.DisplayName("ghost"))
}

func TestDirectory_Presence(t *testing.T) {
	d := New(testActors())

	assert.False(t, d.IsOnline("1"))

	d.SetOnline([]string{"1", "3"})
	assert.True(t, d.IsOnline("1"))
	assert.False(t, d.IsOnline("2"))

	// Replacing the snapshot keeps presence annotations.
	d.Replace(testActors())
	assert.True(t, d.IsOnline("1"))

	// A later poll can clear everyone.
	d.SetOnline(nil)
	assert.False(t, d.IsOnline("1"))
}

func TestActor_IsCoordinator(t *testing.T) {
	assert.True(t, Actor{Role: RoleCoordinator}.IsCoordinator())
	assert.True(t, Actor{Role: RoleLead}.IsCoordinator())
	assert.False(t, Actor{Role: RoleVolunteer}.IsCoordinator())
	assert.False(t, Actor{Role: RoleStaff}.IsCoordinator())
}
