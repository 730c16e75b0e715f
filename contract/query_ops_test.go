package contract

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchByMaterial(t *testing.T) {
	tr := newPopulatedRegistry(t)
	depositTestMaquette(t, tr, "M1")
	for i := 0; i < 5; i++ {
		depositTestObject(t, tr, fmt.Sprintf("steel-%d", i), "M1", "steel")
	}
	depositTestObject(t, tr, "wood-0", "M1", "wood")

	ids, err := tr.rc.SearchByMaterial(tr.as(collectorID), "steel")
	require.NoError(t, err)
	assert.Equal(t, []string{"steel-0", "steel-1", "steel-2", "steel-3", "steel-4"}, ids, "deposit order")

	ids, err = tr.rc.SearchByMaterial(tr.as(collectorID), "concrete")
	require.NoError(t, err)
	assert.Empty(t, ids, "unknown material is an empty result, not an error")

	_, err = tr.rc.SearchByMaterial(tr.as(depositorID), "steel")
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestSearchByMaquette(t *testing.T) {
	tr := newPopulatedRegistry(t)
	depositTestMaquette(t, tr, "M1")
	depositTestObject(t, tr, "O1", "M1", "steel")
	depositTestObject(t, tr, "O2", "M1", "wood")

	ids, err := tr.rc.SearchByMaquette(tr.as(collectorID), "M1")
	require.NoError(t, err)
	assert.Equal(t, []string{"O1", "O2"}, ids)

	_, err = tr.rc.SearchByMaquette(tr.as(collectorID), "M-missing")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = tr.rc.SearchByMaquette(tr.as(depositorID), "M1")
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestGetObjectsOf(t *testing.T) {
	tr := newPopulatedRegistry(t)
	depositTestMaquette(t, tr, "M1")
	depositTestObject(t, tr, "O1", "M1", "steel")

	// A collector may query anyone.
	ids, err := tr.rc.GetObjectsOf(tr.as(collectorID), "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"O1"}, ids)

	// Depositors may query themselves without the collector role.
	ids, err = tr.rc.GetObjectsOf(tr.as(depositorID), depositorID)
	require.NoError(t, err)
	assert.Equal(t, []string{"O1"}, ids)

	_, err = tr.rc.GetObjectsOf(tr.as(depositorID), "bob")
	require.ErrorIs(t, err, ErrUnauthorized, "querying others needs the collector role")

	_, err = tr.rc.GetObjectsOf(tr.as(collectorID), "ghost")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestGetMyObjects(t *testing.T) {
	tr := newPopulatedRegistry(t)
	depositTestMaquette(t, tr, "M1")
	depositTestObject(t, tr, "O1", "M1", "steel")
	depositTestObject(t, tr, "O2", "M1", "steel")

	ids, err := tr.rc.GetMyObjects(tr.as(depositorID))
	require.NoError(t, err)
	assert.Equal(t, []string{"O1", "O2"}, ids)

	ids, err = tr.rc.GetMyObjects(tr.as(collectorID))
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestPaginateIDs(t *testing.T) {
	ids := []string{"a", "b", "c", "d", "e"}

	page, err := paginateIDs(ids, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, page.IDs)
	assert.Equal(t, uint64(5), page.Total)

	page, err = paginateIDs(ids, 3, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"d", "e"}, page.IDs, "oversized limit clamps to the remainder")

	page, err = paginateIDs(ids, 4, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"e"}, page.IDs)

	// A huge limit must clamp, not wrap around.
	page, err = paginateIDs(ids, 1, math.MaxUint64)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c", "d", "e"}, page.IDs)

	page, err = paginateIDs(ids, 0, math.MaxUint64)
	require.NoError(t, err)
	assert.Equal(t, ids, page.IDs)

	_, err = paginateIDs(ids, 5, 1)
	require.ErrorIs(t, err, ErrOutOfRange, "offset at the end is out of range")
	_, err = paginateIDs(ids, 99, 1)
	require.ErrorIs(t, err, ErrOutOfRange)
	_, err = paginateIDs([]string{}, 0, 1)
	require.ErrorIs(t, err, ErrOutOfRange, "empty lists have no valid offset")
}

func TestSearchByMaterialPaginated(t *testing.T) {
	tr := newPopulatedRegistry(t)
	depositTestMaquette(t, tr, "M1")
	for i := 0; i < 7; i++ {
		depositTestObject(t, tr, fmt.Sprintf("steel-%d", i), "M1", "steel")
	}

	page, err := tr.rc.SearchByMaterialPaginated(tr.as(collectorID), "steel", 0, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"steel-0", "steel-1", "steel-2"}, page.IDs)
	assert.Equal(t, uint64(7), page.Total)

	page, err = tr.rc.SearchByMaterialPaginated(tr.as(collectorID), "steel", 6, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"steel-6"}, page.IDs)

	_, err = tr.rc.SearchByMaterialPaginated(tr.as(collectorID), "steel", 7, 3)
	require.ErrorIs(t, err, ErrOutOfRange)

	_, err = tr.rc.SearchByMaterialPaginated(tr.as(depositorID), "steel", 0, 3)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestSearchByMaquettePaginated(t *testing.T) {
	tr := newPopulatedRegistry(t)
	depositTestMaquette(t, tr, "M1")
	depositTestObject(t, tr, "O1", "M1", "steel")
	depositTestObject(t, tr, "O2", "M1", "wood")
	depositTestObject(t, tr, "O3", "M1", "steel")

	page, err := tr.rc.SearchByMaquettePaginated(tr.as(collectorID), "M1", 1, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"O2", "O3"}, page.IDs)
	assert.Equal(t, uint64(3), page.Total)

	_, err = tr.rc.SearchByMaquettePaginated(tr.as(collectorID), "M1", 3, 1)
	require.ErrorIs(t, err, ErrOutOfRange)
}

func TestGetObjectReadOnly(t *testing.T) {
	tr := newPopulatedRegistry(t)
	depositTestMaquette(t, tr, "M1")
	depositTestObject(t, tr, "O1", "M1", "steel")

	object, err := tr.rc.GetObject(tr.as(collectorID), "O1")
	require.NoError(t, err)
	assert.Zero(t, object.AccessCount, "plain reads leave no audit trace")

	history, err := tr.rc.GetMaterialAccessHistory(tr.as(collectorID), "O1")
	require.NoError(t, err)
	assert.Empty(t, history)

	_, err = tr.rc.GetObject(tr.as(depositorID), "O1")
	require.ErrorIs(t, err, ErrUnauthorized)
}
