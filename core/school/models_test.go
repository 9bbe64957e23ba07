package school

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/schoolsaas/core/user"
)

func TestCurrentSession(t *testing.T) {
	tests := []struct {
		date time.Time
		want string
	}{
		{date: time.Date(2024, time.September, 1, 0, 0, 0, 0, time.UTC), want: "2024/2025"},
		{date: time.Date(2024, time.December, 31, 0, 0, 0, 0, time.UTC), want: "2024/2025"},
		{date: time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC), want: "2024/2025"},
		{date: time.Date(2025, time.August, 31, 23, 59, 0, 0, time.UTC), want: "2024/2025"},
	}
	for _, tc := range tests {
		t.Run(tc.date.Format("2006-01-02"), func(t *testing.T) {
			assert.Equal(t, tc.want, CurrentSession(tc.date))
		})
	}
}

func TestScore_Validate(t *testing.T) {
	tests := []struct {
		name    string
		score   Score
		wantErr string
	}{
		{name: "zero", score: Score{Score: decimal.Zero}},
		{name: "default max", score: Score{Score: decimal.NewFromInt(100)}},
		{name: "fraction", score: Score{Score: decimal.RequireFromString("99.5")}},
		{name: "negative", score: Score{Score: decimal.NewFromInt(-1)}, wantErr: "score -1 is out of range [0, 100]"},
		{name: "above default max", score: Score{Score: decimal.NewFromInt(150)}, wantErr: "score 150 is out of range [0, 100]"},
		{name: "custom max", score: Score{Score: decimal.NewFromInt(30), MaxScore: decimal.NewFromInt(20)}, wantErr: "score 30 is out of range [0, 20]"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.score.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.EqualError(t, err, tc.wantErr)
		})
	}
}

func TestRegistration_Clean(t *testing.T) {
	reg := Registration{
		SchoolName: "  st. mary's HIGH school ",
		Address:    " 1 Main St ",
		Admin: user.NewUser{
			Name:     " Ada Owner ",
			Username: " ADA_Owner",
			Email:    "ADA@Acme.test ",
			Roles:    []string{user.RoleStudent},
		},
	}
	reg.Clean()

	assert.Equal(t, "St. Mary's High School", reg.SchoolName)
	assert.Equal(t, "1 Main St", reg.Address)
	assert.Equal(t, "Ada Owner", reg.Admin.Name)
	assert.Equal(t, "ada_owner", reg.Admin.Username)
	assert.Equal(t, "ada@acme.test", reg.Admin.Email)
	assert.Equal(t, []string{user.RoleAdminOwner}, reg.Admin.Roles)
}
