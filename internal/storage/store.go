package storage

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/Adda-Baaj/khobor-desk/internal/domain"
)

var (
	bucketStories   = []byte("stories")
	bucketStoryURLs = []byte("story_urls")
	bucketCompanies = []byte("companies")
)

var (
	// ErrNotFound is returned when a story or company does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateStory is returned when a story with the same company and
	// article URL already exists.
	ErrDuplicateStory = errors.New("story already exists for company and url")
)

// Store persists stories and companies in a bbolt file.
type Store struct {
	db  *bolt.DB
	now func() time.Time
}

// Open opens (or creates) the bbolt database at path.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("storage path is empty")
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketStories, bucketStoryURLs, bucketCompanies} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Close releases the database file.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// CreateStory assigns an id to st and stores it.
func (s *Store) CreateStory(st domain.Story) (domain.Story, error) {
	st.CompanyID = strings.TrimSpace(st.CompanyID)
	st.ArticleURL = strings.TrimSpace(st.ArticleURL)
	if st.CompanyID == "" {
		return domain.Story{}, errors.New("story company is required")
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		stories := tx.Bucket(bucketStories)
		urls := tx.Bucket(bucketStoryURLs)

		key := urlKey(st.CompanyID, st.ArticleURL)
		if urls.Get(key) != nil {
			return ErrDuplicateStory
		}

		seq, err := stories.NextSequence()
		if err != nil {
			return fmt.Errorf("next story id: %w", err)
		}
		now := s.now()
		st.ID = int64(seq)
		st.AddedOn = now
		st.UpdatedOn = now

		if err := putStory(stories, st); err != nil {
			return err
		}
		return urls.Put(key, idKey(st.ID))
	})
	if err != nil {
		return domain.Story{}, err
	}
	return st, nil
}

// UpdateStory replaces a stored story, keeping its id, company and creation
// time.
func (s *Store) UpdateStory(st domain.Story) (domain.Story, error) {
	err := s.db.Update(func(tx *bolt.Tx) error {
		stories := tx.Bucket(bucketStories)
		urls := tx.Bucket(bucketStoryURLs)

		prev, err := getStory(stories, st.ID)
		if err != nil {
			return err
		}

		st.CompanyID = prev.CompanyID
		st.AddedOn = prev.AddedOn
		st.AddedBy = prev.AddedBy
		st.ArticleURL = strings.TrimSpace(st.ArticleURL)
		st.UpdatedOn = s.now()

		if st.ArticleURL != prev.ArticleURL {
			newKey := urlKey(st.CompanyID, st.ArticleURL)
			if urls.Get(newKey) != nil {
				return ErrDuplicateStory
			}
			if err := urls.Delete(urlKey(prev.CompanyID, prev.ArticleURL)); err != nil {
				return err
			}
			if err := urls.Put(newKey, idKey(st.ID)); err != nil {
				return err
			}
		}
		return putStory(stories, st)
	})
	if err != nil {
		return domain.Story{}, err
	}
	return st, nil
}

// GetStory loads a story by id.
func (s *Store) GetStory(id int64) (domain.Story, error) {
	var st domain.Story
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		st, err = getStory(tx.Bucket(bucketStories), id)
		return err
	})
	return st, err
}

// DeleteStory removes a story and every duplicate linked to it. It returns
// the removed stories, the requested one first.
func (s *Store) DeleteStory(id int64) ([]domain.Story, error) {
	var removed []domain.Story
	err := s.db.Update(func(tx *bolt.Tx) error {
		stories := tx.Bucket(bucketStories)
		urls := tx.Bucket(bucketStoryURLs)

		target, err := getStory(stories, id)
		if err != nil {
			return err
		}

		children := make(map[int64][]domain.Story)
		err = stories.ForEach(func(_, v []byte) error {
			var st domain.Story
			if err := json.Unmarshal(v, &st); err != nil {
				return fmt.Errorf("decode story: %w", err)
			}
			if !st.IsRoot() {
				children[st.RootID] = append(children[st.RootID], st)
			}
			return nil
		})
		if err != nil {
			return err
		}

		// Duplicates of duplicates go too.
		removed = append(removed, target)
		seen := map[int64]bool{id: true}
		for i := 0; i < len(removed); i++ {
			for _, child := range children[removed[i].ID] {
				if seen[child.ID] {
					continue
				}
				seen[child.ID] = true
				removed = append(removed, child)
			}
		}

		for _, st := range removed {
			if err := stories.Delete(idKey(st.ID)); err != nil {
				return err
			}
			if err := urls.Delete(urlKey(st.CompanyID, st.ArticleURL)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

// ForEachStory calls fn for every story in id order. Returning an error from
// fn stops the iteration and is returned.
func (s *Store) ForEachStory(fn func(domain.Story) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketStories).ForEach(func(_, v []byte) error {
			var st domain.Story
			if err := json.Unmarshal(v, &st); err != nil {
				return fmt.Errorf("decode story: %w", err)
			}
			return fn(st)
		})
	})
}

// ListStories returns every story in id order.
func (s *Store) ListStories() ([]domain.Story, error) {
	var out []domain.Story
	err := s.ForEachStory(func(st domain.Story) error {
		out = append(out, st)
		return nil
	})
	return out, err
}

// RootStories returns the stories that are not linked as duplicates, in id
// order.
func (s *Store) RootStories() ([]domain.Story, error) {
	var out []domain.Story
	err := s.ForEachStory(func(st domain.Story) error {
		if st.IsRoot() {
			out = append(out, st)
		}
		return nil
	})
	return out, err
}

// Children returns the duplicates linked to rootID, in id order.
func (s *Store) Children(rootID int64) ([]domain.Story, error) {
	var out []domain.Story
	err := s.ForEachStory(func(st domain.Story) error {
		if st.RootID == rootID {
			out = append(out, st)
		}
		return nil
	})
	return out, err
}

// ChildCounts maps each root id to the number of linked duplicates.
func (s *Store) ChildCounts() (map[int64]int, error) {
	counts := make(map[int64]int)
	err := s.ForEachStory(func(st domain.Story) error {
		if st.RootID != 0 {
			counts[st.RootID]++
		}
		return nil
	})
	return counts, err
}

// SetRoots links stories to roots (story id -> root id) in one transaction.
// Links are flattened: a root that is itself linked resolves to its own
// root, and stories already linked to a newly linked story move with it.
func (s *Store) SetRoots(links map[int64]int64) error {
	if len(links) == 0 {
		return nil
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		stories := tx.Bucket(bucketStories)
		now := s.now()

		final := make(map[int64]int64, len(links))
		for id := range links {
			root, err := resolveRoot(stories, links, id)
			if err != nil {
				return err
			}
			final[id] = root
		}

		for id, root := range final {
			st, err := getStory(stories, id)
			if err != nil {
				return fmt.Errorf("story %d: %w", id, err)
			}
			st.RootID = root
			st.UpdatedOn = now
			if err := putStory(stories, st); err != nil {
				return err
			}
		}

		var moved []domain.Story
		err := stories.ForEach(func(_, v []byte) error {
			var st domain.Story
			if err := json.Unmarshal(v, &st); err != nil {
				return fmt.Errorf("decode story: %w", err)
			}
			if root, ok := final[st.RootID]; ok && !st.IsRoot() {
				st.RootID = root
				st.UpdatedOn = now
				moved = append(moved, st)
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, st := range moved {
			if err := putStory(stories, st); err != nil {
				return err
			}
		}
		return nil
	})
}

// resolveRoot follows links and stored root ids from id to a story that is
// a root after the update.
func resolveRoot(stories *bolt.Bucket, links map[int64]int64, id int64) (int64, error) {
	seen := map[int64]bool{id: true}
	cur := links[id]
	for {
		if seen[cur] {
			return 0, fmt.Errorf("story %d cannot be its own root", id)
		}
		seen[cur] = true

		if next, ok := links[cur]; ok {
			cur = next
			continue
		}
		st, err := getStory(stories, cur)
		if err != nil {
			return 0, fmt.Errorf("root %d: %w", cur, err)
		}
		if st.IsRoot() {
			return cur, nil
		}
		cur = st.RootID
	}
}

// SetEntities replaces the recognised entities of a story.
func (s *Store) SetEntities(id int64, ents domain.Entities) (domain.Story, error) {
	var st domain.Story
	err := s.db.Update(func(tx *bolt.Tx) error {
		stories := tx.Bucket(bucketStories)
		var err error
		st, err = getStory(stories, id)
		if err != nil {
			return err
		}
		st.Entities = ents
		st.UpdatedOn = s.now()
		return putStory(stories, st)
	})
	return st, err
}

// PutCompany inserts or replaces a company.
func (s *Store) PutCompany(c domain.Company) error {
	c.ID = strings.TrimSpace(c.ID)
	if c.ID == "" {
		return errors.New("company id is required")
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode company: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCompanies).Put([]byte(c.ID), raw)
	})
}

// ListCompanies returns every company ordered by id.
func (s *Store) ListCompanies() ([]domain.Company, error) {
	var out []domain.Company
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCompanies).ForEach(func(_, v []byte) error {
			var c domain.Company
			if err := json.Unmarshal(v, &c); err != nil {
				return fmt.Errorf("decode company: %w", err)
			}
			out = append(out, c)
			return nil
		})
	})
	return out, err
}

func getStory(b *bolt.Bucket, id int64) (domain.Story, error) {
	raw := b.Get(idKey(id))
	if raw == nil {
		return domain.Story{}, fmt.Errorf("story %d: %w", id, ErrNotFound)
	}
	var st domain.Story
	if err := json.Unmarshal(raw, &st); err != nil {
		return domain.Story{}, fmt.Errorf("decode story %d: %w", id, err)
	}
	return st, nil
}

func putStory(b *bolt.Bucket, st domain.Story) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode story %d: %w", st.ID, err)
	}
	return b.Put(idKey(st.ID), raw)
}

// idKey encodes ids big-endian so bucket iteration follows id order.
func idKey(id int64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, uint64(id))
	return k
}

func urlKey(companyID, articleURL string) []byte {
	return []byte(companyID + "\x00" + articleURL)
}
