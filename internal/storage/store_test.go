package storage

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	"github.com/Adda-Baaj/khobor-desk/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "stories.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newStory(company, url string) domain.Story {
	return domain.Story{
		CompanyID:     company,
		Title:         "Title for " + url,
		BodyText:      "body",
		ArticleURL:    url,
		AddedBy:       "tester",
		PublishedDate: domain.NewDate(time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)),
	}
}

func TestCreateStoryAssignsSequentialIDs(t *testing.T) {
	s := openTestStore(t)

	a, err := s.CreateStory(newStory("acme", "https://a.example/1"))
	require.NoError(t, err)
	b, err := s.CreateStory(newStory("acme", "https://a.example/2"))
	require.NoError(t, err)

	assert.Equal(t, int64(1), a.ID)
	assert.Equal(t, int64(2), b.ID)
	assert.False(t, a.AddedOn.IsZero())

	got, err := s.GetStory(a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.Title, got.Title)
	assert.Equal(t, "2025-01-02", got.PublishedDate.String())
}

func TestCreateStoryUniquePerCompanyAndURL(t *testing.T) {
	s := openTestStore(t)

	_, err := s.CreateStory(newStory("acme", "https://a.example/1"))
	require.NoError(t, err)

	_, err = s.CreateStory(newStory("acme", "https://a.example/1"))
	require.ErrorIs(t, err, ErrDuplicateStory)

	_, err = s.CreateStory(newStory("globex", "https://a.example/1"))
	require.NoError(t, err)

	_, err = s.CreateStory(newStory(" ", "https://a.example/3"))
	require.Error(t, err)
}

func TestGetStoryNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetStory(42)
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestUpdateStoryReindexesURL(t *testing.T) {
	s := openTestStore(t)
	a, err := s.CreateStory(newStory("acme", "https://a.example/1"))
	require.NoError(t, err)
	_, err = s.CreateStory(newStory("acme", "https://a.example/2"))
	require.NoError(t, err)

	a.ArticleURL = "https://a.example/2"
	_, err = s.UpdateStory(a)
	require.ErrorIs(t, err, ErrDuplicateStory)

	a.ArticleURL = "https://a.example/new"
	a.CompanyID = "other"
	a.Title = "Edited"
	updated, err := s.UpdateStory(a)
	require.NoError(t, err)
	assert.Equal(t, "acme", updated.CompanyID)
	assert.Equal(t, "Edited", updated.Title)

	_, err = s.CreateStory(newStory("acme", "https://a.example/1"))
	require.NoError(t, err, "old url must be released")
}

func TestDeleteStoryCascadesToDuplicates(t *testing.T) {
	s := openTestStore(t)
	root, err := s.CreateStory(newStory("acme", "https://a.example/1"))
	require.NoError(t, err)
	dup, err := s.CreateStory(newStory("acme", "https://a.example/2"))
	require.NoError(t, err)
	other, err := s.CreateStory(newStory("acme", "https://a.example/3"))
	require.NoError(t, err)

	require.NoError(t, s.SetRoots(map[int64]int64{dup.ID: root.ID}))

	counts, err := s.ChildCounts()
	require.NoError(t, err)
	assert.Equal(t, map[int64]int{root.ID: 1}, counts)

	removed, err := s.DeleteStory(root.ID)
	require.NoError(t, err)
	require.Len(t, removed, 2)
	assert.Equal(t, root.ID, removed[0].ID)
	assert.Equal(t, dup.ID, removed[1].ID)

	all, err := s.ListStories()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, other.ID, all[0].ID)

	_, err = s.DeleteStory(root.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteStoryRemovesDuplicateChains(t *testing.T) {
	s := openTestStore(t)
	var ids []int64
	for i := 1; i <= 4; i++ {
		st, err := s.CreateStory(newStory("acme", fmt.Sprintf("https://a.example/%d", i)))
		require.NoError(t, err)
		ids = append(ids, st.ID)
	}

	// Chains written before links were flattened: 3 -> 2 -> 1.
	require.NoError(t, s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketStories)
		for _, link := range [][2]int64{{ids[1], ids[0]}, {ids[2], ids[1]}} {
			st, err := getStory(b, link[0])
			if err != nil {
				return err
			}
			st.RootID = link[1]
			if err := putStory(b, st); err != nil {
				return err
			}
		}
		return nil
	}))

	removed, err := s.DeleteStory(ids[0])
	require.NoError(t, err)
	require.Len(t, removed, 3)
	assert.Equal(t, []int64{ids[0], ids[1], ids[2]}, []int64{removed[0].ID, removed[1].ID, removed[2].ID})

	all, err := s.ListStories()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, ids[3], all[0].ID)

	// The URL index entry of the chained duplicate is released.
	_, err = s.CreateStory(newStory("acme", "https://a.example/3"))
	require.NoError(t, err)
}

func TestSetRootsFlattensChains(t *testing.T) {
	s := openTestStore(t)
	var ids []int64
	for i := 1; i <= 5; i++ {
		st, err := s.CreateStory(newStory("acme", fmt.Sprintf("https://a.example/%d", i)))
		require.NoError(t, err)
		ids = append(ids, st.ID)
	}

	require.NoError(t, s.SetRoots(map[int64]int64{ids[2]: ids[1]}))
	require.NoError(t, s.SetRoots(map[int64]int64{ids[1]: ids[0]}))
	require.NoError(t, s.SetRoots(map[int64]int64{ids[4]: ids[3], ids[3]: ids[1]}))

	for _, id := range ids[1:] {
		st, err := s.GetStory(id)
		require.NoError(t, err)
		assert.Equal(t, ids[0], st.RootID, "story %d", id)
	}

	removed, err := s.DeleteStory(ids[0])
	require.NoError(t, err)
	assert.Len(t, removed, 5)

	require.Error(t, s.SetRoots(map[int64]int64{99: 98, 98: 99}))
}

func TestSetRootsValidates(t *testing.T) {
	s := openTestStore(t)
	a, err := s.CreateStory(newStory("acme", "https://a.example/1"))
	require.NoError(t, err)

	require.Error(t, s.SetRoots(map[int64]int64{a.ID: a.ID}))
	require.ErrorIs(t, s.SetRoots(map[int64]int64{a.ID: 99}), ErrNotFound)
	require.NoError(t, s.SetRoots(nil))

	roots, err := s.RootStories()
	require.NoError(t, err)
	assert.Len(t, roots, 1)
}

func TestSetEntitiesAndChildren(t *testing.T) {
	s := openTestStore(t)
	root, err := s.CreateStory(newStory("acme", "https://a.example/1"))
	require.NoError(t, err)
	dup, err := s.CreateStory(newStory("acme", "https://a.example/2"))
	require.NoError(t, err)
	require.NoError(t, s.SetRoots(map[int64]int64{dup.ID: root.ID}))

	st, err := s.SetEntities(root.ID, domain.Entities{Persons: []string{"Ada"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"Ada"}, st.Persons)

	children, err := s.Children(root.ID)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, dup.ID, children[0].ID)
}

func TestCompanies(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.PutCompany(domain.Company{ID: "globex", Name: "Globex"}))
	require.NoError(t, s.PutCompany(domain.Company{ID: "acme", Name: "Acme", Keywords: []string{"acme corp"}}))
	require.Error(t, s.PutCompany(domain.Company{}))

	cs, err := s.ListCompanies()
	require.NoError(t, err)
	require.Len(t, cs, 2)
	assert.Equal(t, "acme", cs[0].ID)
	assert.Equal(t, []string{"acme corp"}, cs[0].Keywords)
}
