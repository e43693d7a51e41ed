package contentstore_test

import (
	"path/filepath"
	"testing"

	"github.com/rohmanhakim/newscrawl/internal/contentstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *contentstore.Store {
	t.Helper()
	db, err := contentstore.Open(":memory:")
	require.Nil(t, err)
	t.Cleanup(func() { db.Close() })
	return contentstore.NewStore(db, contentstore.DefaultParams())
}

func TestPutAndGetRoundTrips(t *testing.T) {
	s := openTestStore(t)
	body := []byte("the quick brown fox jumps over the lazy dog, repeated many times to cross the size bands. " +
		"the quick brown fox jumps over the lazy dog, repeated many times to cross the size bands.")

	record, err := s.Put(body, contentstore.UseCaseStandard)
	require.Nil(t, err)
	assert.NotEmpty(t, record.Sha256)

	got, getErr := s.Get(record.Sha256)
	require.Nil(t, getErr)
	assert.Equal(t, body, got)
}

func TestPutDeduplicatesBySha256(t *testing.T) {
	s := openTestStore(t)
	body := []byte("duplicate content")

	first, err := s.Put(body, contentstore.UseCaseStandard)
	require.Nil(t, err)

	second, err := s.Put(body, contentstore.UseCaseStandard)
	require.Nil(t, err)

	assert.Equal(t, first.ID, second.ID)
}

func TestGetUnknownShaReturnsNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Get("deadbeef")
	require.NotNil(t, err)
	assert.Equal(t, contentstore.ErrCauseNotFound, err.Cause)
}

func TestSmallBodyUsesNoneCompression(t *testing.T) {
	s := openTestStore(t)
	body := []byte("tiny")

	record, err := s.Put(body, contentstore.UseCaseStandard)
	require.Nil(t, err)
	assert.Equal(t, contentstore.StorageInline, record.StorageType)
}

func TestArchiveAndGetFromBucket(t *testing.T) {
	s := openTestStore(t)
	entries := map[string][]byte{
		"a.html": []byte("<html>a</html>"),
		"b.html": []byte("<html>b</html>"),
	}

	bucket, err := s.Archive("cold", entries)
	require.Nil(t, err)
	assert.Equal(t, 2, bucket.ItemCount)

	got, getErr := s.GetFromBucket(bucket.ID, "a.html")
	require.Nil(t, getErr)
	assert.Equal(t, entries["a.html"], got)

	// second lookup exercises the decompressed-archive cache path
	got2, getErr := s.GetFromBucket(bucket.ID, "b.html")
	require.Nil(t, getErr)
	assert.Equal(t, entries["b.html"], got2)
}

func TestGetFromBucketMissingKey(t *testing.T) {
	s := openTestStore(t)
	bucket, err := s.Archive("cold", map[string][]byte{"a.html": []byte("x")})
	require.Nil(t, err)

	_, getErr := s.GetFromBucket(bucket.ID, "missing.html")
	require.NotNil(t, getErr)
	assert.Equal(t, contentstore.ErrCauseNotFound, getErr.Cause)
}

func TestOpenSeedsCompressionTypesOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crawl.db")
	db, err := contentstore.Open(path)
	require.Nil(t, err)
	defer db.Close()

	var count int
	require.Nil(t, db.QueryRow("SELECT COUNT(*) FROM compression_types").Scan(&count))
	assert.Greater(t, count, 0)

	// reopening the same database file must not duplicate rows
	db2, err := contentstore.Open(path)
	require.Nil(t, err)
	defer db2.Close()
	var count2 int
	require.Nil(t, db2.QueryRow("SELECT COUNT(*) FROM compression_types").Scan(&count2))
	assert.Equal(t, count, count2)
}
