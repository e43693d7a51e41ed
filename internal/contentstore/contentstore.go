package contentstore

import (
	"archive/tar"
	"bytes"
	"container/list"
	"database/sql"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/rohmanhakim/newscrawl/pkg/hashutil"
)

// Store persists fetched content, deduplicating by sha256 and
// selecting a compression tier per the spec's size/use-case ladder.
// Cold content may be promoted into tar bucket archives by Archive;
// GetFromBucket keeps a small LRU of decompressed archives so repeat
// lookups into the same bucket don't re-decompress it every time.
type Store struct {
	db     *sql.DB
	params Params

	bucketCacheMu sync.Mutex
	bucketCache   map[int64]*list.Element
	bucketOrder   *list.List
}

type bucketCacheEntry struct {
	bucketID int64
	entries  map[string][]byte
}

func NewStore(db *sql.DB, params Params) *Store {
	return &Store{
		db:          db,
		params:      params,
		bucketCache: make(map[int64]*list.Element),
		bucketOrder: list.New(),
	}
}

// Put stores body, deduplicating by its sha256. If a record with the
// same hash already exists it is returned unchanged (attached by
// reference; no new blob is written).
func (s *Store) Put(body []byte, useCase UseCase) (ContentRecord, *ContentStoreError) {
	sha, err := hashutil.HashBytes(body, hashutil.HashAlgoSHA256)
	if err != nil {
		return ContentRecord{}, &ContentStoreError{Message: err.Error(), Cause: ErrCauseCompressionFailed}
	}

	if existing, ok, lookupErr := s.lookup(sha); lookupErr != nil {
		return ContentRecord{}, lookupErr
	} else if ok {
		return existing, nil
	}

	if useCase == "" {
		useCase = s.params.DefaultUseCase
	}
	typeName := selectCompressionType(int64(len(body)), useCase)
	ct, ctErr := s.compressionTypeByName(typeName)
	if ctErr != nil {
		return ContentRecord{}, ctErr
	}

	compressed, err := compress(body, ct)
	if err != nil {
		return ContentRecord{}, &ContentStoreError{Message: err.Error(), Cause: ErrCauseCompressionFailed}
	}

	storageType := StorageDBCompressed
	if ct.Algorithm == AlgoNone {
		storageType = StorageInline
	}

	ratio := 1.0
	if len(compressed) > 0 {
		ratio = float64(len(body)) / float64(len(compressed))
	}

	res, execErr := s.db.Exec(
		`INSERT INTO content_storage
			(storage_type, compression_type_id, content_blob, content_sha256, uncompressed_size, compressed_size, compression_ratio)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(storageType), ct.ID, compressed, sha, len(body), len(compressed), ratio,
	)
	if execErr != nil {
		return ContentRecord{}, &ContentStoreError{Message: execErr.Error(), Cause: ErrCauseDBFailure}
	}
	id, _ := res.LastInsertId()

	return ContentRecord{
		ID:                id,
		StorageType:       storageType,
		CompressionTypeID: ct.ID,
		Sha256:            sha,
		UncompressedSize:  int64(len(body)),
		CompressedSize:    int64(len(compressed)),
		Blob:              compressed,
	}, nil
}

// Get returns the decompressed bytes for sha256, or ErrCauseNotFound.
func (s *Store) Get(sha256 string) ([]byte, *ContentStoreError) {
	record, ok, err := s.lookup(sha256)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &ContentStoreError{Message: sha256, Cause: ErrCauseNotFound}
	}

	algo, algoErr := s.algorithmForType(record.CompressionTypeID)
	if algoErr != nil {
		return nil, algoErr
	}

	body, decErr := decompress(record.Blob, algo)
	if decErr != nil {
		return nil, &ContentStoreError{Message: decErr.Error(), Cause: ErrCauseCompressionFailed}
	}
	return body, nil
}

// Stats summarizes the store's current size for `store inspect`-style
// reporting: row counts and byte totals across both the loose
// content_storage rows and finalized compression_buckets.
type Stats struct {
	ContentRows      int64
	BucketRows       int64
	UncompressedSize int64
	CompressedSize   int64
}

// Stats queries aggregate counts/sizes across content_storage and
// compression_buckets. It does not consult the in-memory bucket cache.
func (s *Store) Stats() (Stats, *ContentStoreError) {
	var stats Stats
	row := s.db.QueryRow(`SELECT COUNT(*), COALESCE(SUM(uncompressed_size), 0), COALESCE(SUM(compressed_size), 0) FROM content_storage`)
	if err := row.Scan(&stats.ContentRows, &stats.UncompressedSize, &stats.CompressedSize); err != nil {
		return Stats{}, &ContentStoreError{Message: err.Error(), Cause: ErrCauseDBFailure}
	}

	var bucketUncompressed, bucketCompressed int64
	row = s.db.QueryRow(`SELECT COUNT(*), COALESCE(SUM(uncompressed_size), 0), COALESCE(SUM(compressed_size), 0) FROM compression_buckets`)
	if err := row.Scan(&stats.BucketRows, &bucketUncompressed, &bucketCompressed); err != nil {
		return Stats{}, &ContentStoreError{Message: err.Error(), Cause: ErrCauseDBFailure}
	}
	stats.UncompressedSize += bucketUncompressed
	stats.CompressedSize += bucketCompressed

	return stats, nil
}

func (s *Store) lookup(sha256 string) (ContentRecord, bool, *ContentStoreError) {
	row := s.db.QueryRow(
		`SELECT id, storage_type, compression_type_id, content_blob, uncompressed_size, compressed_size
		 FROM content_storage WHERE content_sha256 = ?`, sha256,
	)
	var rec ContentRecord
	var storageType string
	err := row.Scan(&rec.ID, &storageType, &rec.CompressionTypeID, &rec.Blob, &rec.UncompressedSize, &rec.CompressedSize)
	if err == sql.ErrNoRows {
		return ContentRecord{}, false, nil
	}
	if err != nil {
		return ContentRecord{}, false, &ContentStoreError{Message: err.Error(), Cause: ErrCauseDBFailure}
	}
	rec.StorageType = StorageType(storageType)
	rec.Sha256 = sha256
	return rec, true, nil
}

func (s *Store) compressionTypeByName(name string) (CompressionType, *ContentStoreError) {
	row := s.db.QueryRow(
		`SELECT id, name, algorithm, level, memory_mb, window_bits, block_bits
		 FROM compression_types WHERE name = ?`, name,
	)
	var ct CompressionType
	var algo string
	if err := row.Scan(&ct.ID, &ct.Name, &algo, &ct.Level, &ct.MemoryMB, &ct.WindowBits, &ct.BlockBits); err != nil {
		return CompressionType{}, &ContentStoreError{Message: err.Error(), Cause: ErrCauseDBFailure}
	}
	ct.Algorithm = CompressionAlgorithm(algo)
	return ct, nil
}

func (s *Store) algorithmForType(id int64) (CompressionAlgorithm, *ContentStoreError) {
	row := s.db.QueryRow(`SELECT algorithm FROM compression_types WHERE id = ?`, id)
	var algo string
	if err := row.Scan(&algo); err != nil {
		return "", &ContentStoreError{Message: err.Error(), Cause: ErrCauseDBFailure}
	}
	return CompressionAlgorithm(algo), nil
}

// Archive tars entries into one archive, compresses the whole archive
// (defaulting to brotli-11, the cold-storage tier), and persists it as
// a compression_buckets row with a key->offset-free index (retrieval
// decompresses and scans, per spec).
func (s *Store) Archive(kind string, entries map[string][]byte) (BucketRecord, *ContentStoreError) {
	var tarBuf bytes.Buffer
	tw := tar.NewWriter(&tarBuf)
	index := make(map[string]BucketIndexEntry, len(entries))
	var uncompressedSize int64

	for key, data := range entries {
		sha, _ := hashutil.HashBytes(data, hashutil.HashAlgoSHA256)
		hdr := &tar.Header{Name: key, Size: int64(len(data)), Mode: 0o644, ModTime: time.Now()}
		if err := tw.WriteHeader(hdr); err != nil {
			return BucketRecord{}, &ContentStoreError{Message: err.Error(), Cause: ErrCauseBucketCorrupt}
		}
		if _, err := tw.Write(data); err != nil {
			return BucketRecord{}, &ContentStoreError{Message: err.Error(), Cause: ErrCauseBucketCorrupt}
		}
		index[key] = BucketIndexEntry{Size: int64(len(data)), Sha256: sha}
		uncompressedSize += int64(len(data))
	}
	if err := tw.Close(); err != nil {
		return BucketRecord{}, &ContentStoreError{Message: err.Error(), Cause: ErrCauseBucketCorrupt}
	}

	ct, ctErr := s.compressionTypeByName("brotli-11")
	if ctErr != nil {
		return BucketRecord{}, ctErr
	}
	compressed, err := compress(tarBuf.Bytes(), ct)
	if err != nil {
		return BucketRecord{}, &ContentStoreError{Message: err.Error(), Cause: ErrCauseCompressionFailed}
	}

	indexJSON, err := json.Marshal(index)
	if err != nil {
		return BucketRecord{}, &ContentStoreError{Message: err.Error(), Cause: ErrCauseBucketCorrupt}
	}

	finalizedAt := time.Now()
	res, execErr := s.db.Exec(
		`INSERT INTO compression_buckets
			(bucket_type, compression_type_id, content_count, uncompressed_size, compressed_size, bucket_blob, index_json, finalized_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		kind, ct.ID, len(entries), uncompressedSize, len(compressed), compressed, string(indexJSON), finalizedAt,
	)
	if execErr != nil {
		return BucketRecord{}, &ContentStoreError{Message: execErr.Error(), Cause: ErrCauseDBFailure}
	}
	id, _ := res.LastInsertId()

	return BucketRecord{
		ID:                id,
		Kind:              kind,
		CompressionTypeID: ct.ID,
		ItemCount:         len(entries),
		UncompressedSize:  uncompressedSize,
		CompressedSize:    int64(len(compressed)),
		Blob:              compressed,
		Index:             index,
		FinalizedAt:       finalizedAt,
	}, nil
}

// GetFromBucket decompresses bucketID (or reuses the cached
// decompression) and returns key's bytes.
func (s *Store) GetFromBucket(bucketID int64, key string) ([]byte, *ContentStoreError) {
	entries, err := s.loadBucketEntries(bucketID)
	if err != nil {
		return nil, err
	}
	data, ok := entries[key]
	if !ok {
		return nil, &ContentStoreError{Message: key, Cause: ErrCauseNotFound}
	}
	return data, nil
}

func (s *Store) loadBucketEntries(bucketID int64) (map[string][]byte, *ContentStoreError) {
	s.bucketCacheMu.Lock()
	if el, ok := s.bucketCache[bucketID]; ok {
		s.bucketOrder.MoveToFront(el)
		entries := el.Value.(*bucketCacheEntry).entries
		s.bucketCacheMu.Unlock()
		return entries, nil
	}
	s.bucketCacheMu.Unlock()

	row := s.db.QueryRow(`SELECT compression_type_id, bucket_blob FROM compression_buckets WHERE id = ?`, bucketID)
	var compressionTypeID int64
	var blob []byte
	if err := row.Scan(&compressionTypeID, &blob); err != nil {
		return nil, &ContentStoreError{Message: err.Error(), Cause: ErrCauseDBFailure}
	}

	algo, algoErr := s.algorithmForType(compressionTypeID)
	if algoErr != nil {
		return nil, algoErr
	}
	tarBytes, err := decompress(blob, algo)
	if err != nil {
		return nil, &ContentStoreError{Message: err.Error(), Cause: ErrCauseCompressionFailed}
	}

	entries := make(map[string][]byte)
	tr := tar.NewReader(bytes.NewReader(tarBytes))
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &ContentStoreError{Message: err.Error(), Cause: ErrCauseBucketCorrupt}
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, &ContentStoreError{Message: err.Error(), Cause: ErrCauseBucketCorrupt}
		}
		entries[hdr.Name] = data
	}

	s.cacheBucket(bucketID, entries)
	return entries, nil
}

func (s *Store) cacheBucket(bucketID int64, entries map[string][]byte) {
	s.bucketCacheMu.Lock()
	defer s.bucketCacheMu.Unlock()

	el := s.bucketOrder.PushFront(&bucketCacheEntry{bucketID: bucketID, entries: entries})
	s.bucketCache[bucketID] = el

	if s.params.BucketCacheSize > 0 && s.bucketOrder.Len() > s.params.BucketCacheSize {
		oldest := s.bucketOrder.Back()
		if oldest != nil {
			s.bucketOrder.Remove(oldest)
			delete(s.bucketCache, oldest.Value.(*bucketCacheEntry).bucketID)
		}
	}
}
