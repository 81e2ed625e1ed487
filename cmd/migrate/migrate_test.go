package migrate

import (
	"net/url"
	"testing"

	"github.com/gaze-network/dust-indexer/common/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatabaseURL(t *testing.T) {
	testCases := []struct {
		name string
		url  string
		err  error
	}{
		{name: "postgres", url: "postgres://u:p@localhost:5432/dust?sslmode=disable"},
		{name: "postgresql", url: "postgresql://localhost/dust"},
		{name: "empty", url: "", err: errs.InvalidArgument},
		{name: "unsupported", url: "mysql://localhost/dust", err: errs.Unsupported},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := databaseURL(tc.url)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			u, err := url.Parse(got)
			require.NoError(t, err)
			assert.Equal(t, migrationTable, u.Query().Get("x-migrations-table"))
		})
	}
}

func TestParseArgs(t *testing.T) {
	var args migrateCmdArgs
	require.NoError(t, args.ParseArgs(nil))
	assert.Equal(t, 0, args.N)
	require.NoError(t, args.ParseArgs([]string{"2"}))
	assert.Equal(t, 2, args.N)
	assert.Error(t, args.ParseArgs([]string{"-1"}))
	assert.Error(t, args.ParseArgs([]string{"x"}))
}

func TestCloneURLWithQuery(t *testing.T) {
	u, err := url.Parse("postgres://localhost/dust?sslmode=disable")
	require.NoError(t, err)
	clone := cloneURLWithQuery(u, url.Values{"x-migrations-table": {"t"}})
	assert.Equal(t, "sslmode=disable", u.RawQuery)
	assert.Equal(t, "disable", clone.Query().Get("sslmode"))
	assert.Equal(t, "t", clone.Query().Get("x-migrations-table"))
}
