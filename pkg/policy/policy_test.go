package policy

import (
	"testing"

	"github.com/nl2sql-engine/core/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_RejectsInvalidNamespacing(t *testing.T) {
	cases := []string{"orders", "sales_db.orders.extra", "sales_db.", ".orders", ""}
	for _, entry := range cases {
		_, err := Load(map[string]Role{
			"analyst": {AllowedDatasources: []string{"sales_db"}, AllowedTables: []string{entry}},
		})
		require.Errorf(t, err, "entry %q should be rejected", entry)
	}
}

func TestLoad_AcceptsValidNamespacing(t *testing.T) {
	_, err := Load(map[string]Role{
		"analyst": {AllowedDatasources: []string{"sales_db"}, AllowedTables: []string{"sales_db.orders", "sales_db.*", "*"}},
	})
	require.NoError(t, err)
}

func TestAllowedTable_WildcardTable(t *testing.T) {
	eng, err := Load(map[string]Role{
		"admin": {AllowedDatasources: []string{"sales_db"}, AllowedTables: []string{"sales_db.*"}},
	})
	require.NoError(t, err)
	user := models.UserContext{Roles: []string{"admin"}}
	assert.True(t, eng.AllowedTable(user, "sales_db", "orders"))
	assert.True(t, eng.AllowedTable(user, "sales_db", "customers"))
	assert.False(t, eng.AllowedTable(user, "other_db", "orders"))
}

func TestAllowedTable_GlobalWildcard(t *testing.T) {
	eng, err := Load(map[string]Role{
		"superuser": {AllowedDatasources: []string{"sales_db", "hr_db"}, AllowedTables: []string{"*"}},
	})
	require.NoError(t, err)
	user := models.UserContext{Roles: []string{"superuser"}}
	assert.True(t, eng.AllowedTable(user, "sales_db", "orders"))
	assert.True(t, eng.AllowedTable(user, "hr_db", "employees"))
}

func TestAllowedTable_FailClosedOnMissingDatasourceID(t *testing.T) {
	eng, err := Load(map[string]Role{
		"admin": {AllowedDatasources: []string{"sales_db"}, AllowedTables: []string{"*"}},
	})
	require.NoError(t, err)
	user := models.UserContext{Roles: []string{"admin"}}
	assert.False(t, eng.AllowedTable(user, "", "orders"))
}

func TestAllowedTable_DeniesDatasourceNotInAllowedDatasources(t *testing.T) {
	eng, err := Load(map[string]Role{
		"analyst": {AllowedDatasources: []string{"hr_db"}, AllowedTables: []string{"sales_db.orders"}},
	})
	require.NoError(t, err)
	user := models.UserContext{Roles: []string{"analyst"}}
	assert.False(t, eng.AllowedTable(user, "sales_db", "orders"))
}

func TestAllowedDatasources_UnionAcrossRoles(t *testing.T) {
	eng, err := Load(map[string]Role{
		"r1": {AllowedDatasources: []string{"a", "b"}},
		"r2": {AllowedDatasources: []string{"b", "c"}},
	})
	require.NoError(t, err)
	user := models.UserContext{Roles: []string{"r1", "r2"}}
	got := eng.AllowedDatasources(user)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, got)
}

func TestCheckAll_ReturnsDeniedRefs(t *testing.T) {
	eng, err := Load(map[string]Role{
		"analyst": {AllowedDatasources: []string{"hr_db"}, AllowedTables: []string{"hr_db.employees"}},
	})
	require.NoError(t, err)
	user := models.UserContext{Roles: []string{"analyst"}}
	denied := eng.CheckAll(user, []TableRef{
		{DatasourceID: "hr_db", Table: "employees"},
		{DatasourceID: "sales_db", Table: "orders"},
	})
	require.Len(t, denied, 1)
	assert.Equal(t, "sales_db", denied[0].DatasourceID)
}
