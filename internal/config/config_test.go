package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRouting(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		check   func(t *testing.T, r Routing)
		wantErr bool
	}{
		{
			name:  "Empty Keeps Defaults",
			input: "",
			check: func(t *testing.T, r Routing) {
				assert.Equal(t, []string{"Administrator", "System Manager"}, r.AdminRoles)
				assert.Equal(t, "crm_lead", r.LeadReferenceType)
				assert.Equal(t, 30*time.Second, r.LockTTL)
				assert.Equal(t, "@every 15m", r.ResyncSchedule)
			},
		},
		{
			name:  "Overrides",
			input: "admin_roles: [Root]\nlock_ttl: 5s\nresync_schedule: \"*/5 * * * *\"\ntimezone: UTC\n",
			check: func(t *testing.T, r Routing) {
				assert.Equal(t, []string{"Root"}, r.AdminRoles)
				assert.Equal(t, 5*time.Second, r.LockTTL)
				assert.Equal(t, "*/5 * * * *", r.ResyncSchedule)
				assert.Equal(t, time.UTC, r.Location())
				// untouched keys keep defaults
				assert.Equal(t, []string{"Sales User", "Sales Manager"}, r.StandardRoles)
			},
		},
		{
			name:    "Bad Timezone",
			input:   "timezone: Mars/Olympus\n",
			wantErr: true,
		},
		{
			name:    "Non Positive TTL",
			input:   "lock_ttl: 0s\n",
			wantErr: true,
		},
		{
			name:    "Malformed",
			input:   "admin_roles: [unclosed\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRouting([]byte(tt.input))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, got)
		})
	}
}

func TestLoadRoutingMissingFile(t *testing.T) {
	r, err := LoadRouting(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, defaultRouting(), r)
}

func TestLoadRoutingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routing.yaml")
	require.NoError(t, os.WriteFile(path, []byte("lead_reference_type: lead\n"), 0o600))

	r, err := LoadRouting(path)
	require.NoError(t, err)
	assert.Equal(t, "lead", r.LeadReferenceType)
}
