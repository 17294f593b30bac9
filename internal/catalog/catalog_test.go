package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)
	require.Equal(t, 35, c.Len())

	rose, err := c.Get("Rosa-레드")
	require.NoError(t, err)
	assert.Equal(t, "장미", rose.Name)
	assert.Equal(t, "레드", rose.Color)
	assert.Contains(t, rose.Meanings, "사랑")
	assert.Equal(t, []string{"봄", "여름", "가을"}, rose.Seasons)

	gerbera, err := c.Get("Gerbera jamesonii-옐로우")
	require.NoError(t, err)
	assert.Empty(t, gerbera.Seasons, "year-round flowers list no seasons")

	_, err = c.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNew_Validation(t *testing.T) {
	_, err := New([]Candidate{{ID: "a", Name: "A", Color: "레드"}, {ID: "a", Name: "B", Color: "핑크"}})
	assert.ErrorContains(t, err, "duplicate")

	_, err = New([]Candidate{{Name: "A", Color: "레드"}})
	assert.Error(t, err)

	_, err = New([]Candidate{{ID: "a", Color: "레드"}})
	assert.Error(t, err)

	_, err = New([]Candidate{{ID: "a", Name: "A"}})
	assert.Error(t, err)
}

func TestNew_NormalizesAndCopies(t *testing.T) {
	input := []Candidate{{ID: " a ", Name: " 장미 ", Color: "레드", Meanings: []string{"사랑", " 사랑 ", ""}}}
	c, err := New(input)
	require.NoError(t, err)

	got, err := c.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "장미", got.Name)
	assert.Equal(t, []string{"사랑"}, got.Meanings)

	input[0].Name = "changed"
	got, _ = c.Get("a")
	assert.Equal(t, "장미", got.Name)
}

func TestCatalog_OrderPreserved(t *testing.T) {
	c, err := New([]Candidate{
		{ID: "z", Name: "Z", Color: "레드"},
		{ID: "a", Name: "A", Color: "핑크"},
		{ID: "m", Name: "M", Color: "화이트"},
	})
	require.NoError(t, err)

	var ids []string
	for _, cand := range c.Candidates() {
		ids = append(ids, cand.ID)
	}
	assert.Equal(t, []string{"z", "a", "m"}, ids)
}

func TestCatalog_Mentioned(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	assert.Equal(t, []string{"Gerbera Daisy-옐로우"}, c.Mentioned("거베라 데이지로 꽃다발을 만들어 주세요"))
	assert.Equal(t, []string{"Gerbera jamesonii-옐로우"}, c.Mentioned("거베라가 좋아요"))

	ids := c.Mentioned("장미랑 튤립을 섞어서")
	assert.ElementsMatch(t, []string{"Rosa-레드", "Tulipa-화이트"}, ids)

	assert.Empty(t, c.Mentioned("아무 꽃이나 괜찮아요"))
}

func TestCatalog_Without(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	rest := c.Without([]string{"장미", "Tulipa-화이트"})
	assert.Len(t, rest, c.Len()-2)
	for _, cand := range rest {
		assert.NotEqual(t, "Rosa-레드", cand.ID)
		assert.NotEqual(t, "Tulipa-화이트", cand.ID)
	}
	assert.Len(t, c.Without(nil), c.Len())
}

func TestParse_JSONAndRoundTrip(t *testing.T) {
	c, err := Parse([]byte(`{"candidates":[{"id":"x","name":"수국","color":"블루","seasons":["여름"]}]}`))
	require.NoError(t, err)
	assert.Equal(t, 1, c.Len())

	data, err := Marshal(c.Candidates())
	require.NoError(t, err)
	again, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, c.Candidates(), again.Candidates())

	_, err = Parse([]byte("candidates: [oops"))
	assert.Error(t, err)
}

type failingSource struct{}

func (failingSource) Load(context.Context) (*Catalog, error) { return nil, errors.New("unreachable") }
func (failingSource) Name() string { return "failing" }

func TestStore_SwapAndReload(t *testing.T) {
	first, err := New([]Candidate{{ID: "a", Name: "A", Color: "레드"}})
	require.NoError(t, err)
	s := NewStore(nil, first)
	assert.Same(t, first, s.Load())

	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("candidates:\n  - {id: b, name: B, color: 화이트}\n  - {id: c, name: C, color: 블루}\n"), 0o644))

	next, err := s.Reload(context.Background(), FileSource{Path: path})
	require.NoError(t, err)
	assert.Equal(t, 2, next.Len())
	assert.Same(t, next, s.Load())
	assert.Equal(t, 1, first.Len(), "old snapshot is untouched")

	_, err = s.Reload(context.Background(), failingSource{})
	assert.Error(t, err)
	assert.Same(t, next, s.Load(), "failed reload keeps the current catalog")

	embedded, err := s.Reload(context.Background(), EmbeddedSource{})
	require.NoError(t, err)
	assert.Equal(t, 35, embedded.Len())
	assert.False(t, s.LoadedAt().IsZero())
}

func TestStore_ConcurrentReadersDuringSwap(t *testing.T) {
	a, _ := New([]Candidate{{ID: "a", Name: "A", Color: "레드"}})
	b, _ := New([]Candidate{{ID: "b", Name: "B", Color: "핑크"}, {ID: "c", Name: "C", Color: "블루"}})
	s := NewStore(nil, a)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				snap := s.Load()
				n := snap.Len()
				assert.Len(t, snap.Candidates(), n)
			}
		}()
	}
	for j := 0; j < 100; j++ {
		if j%2 == 0 {
			s.Swap(b)
		} else {
			s.Swap(a)
		}
	}
	wg.Wait()
}
