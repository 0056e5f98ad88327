package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"time"

	"go.etcd.io/bbolt"
	"symphonia/internal/domain"
)

var (
	bucketMeta    = []byte("meta")
	bucketIDs     = []byte("ids")
	bucketVectors = []byte("vectors")
	bucketChunks  = []byte("chunks")
	keyMeta       = []byte("index_meta")
)

// FlatIndex is an exact inner-product similarity index. The corpus is
// small, so brute-force search removes the recall tuning an
// approximate index would need. Once built or loaded the index is
// immutable and safe for concurrent searchers.
type FlatIndex struct {
	meta    domain.IndexMeta
	ids     []string
	vectors [][]float32
	chunks  map[string]domain.Chunk
}

// Build validates the chunk/vector join, stages all artifacts into a
// temporary bbolt file, and publishes it with an atomic rename. A
// previously published index at path stays valid until the rename.
func Build(path string, chunks []domain.Chunk, vectors [][]float32, modelName string, sources []string) (*FlatIndex, error) {
	if len(chunks) != len(vectors) {
		return nil, fmt.Errorf("%w: %d chunks, %d vectors", domain.ErrShapeMismatch, len(chunks), len(vectors))
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: cannot build an empty index", domain.ErrInvalidArgument)
	}

	dim := len(vectors[0])
	for i, vec := range vectors {
		if len(vec) != dim {
			return nil, fmt.Errorf("%w: vector %d has dimension %d, expected %d", domain.ErrShapeMismatch, i, len(vec), dim)
		}
	}

	chunkMap := make(map[string]domain.Chunk, len(chunks))
	for _, chunk := range chunks {
		if _, dup := chunkMap[chunk.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate chunk id %s", domain.ErrInvalidArgument, chunk.ID)
		}
		chunkMap[chunk.ID] = chunk
	}

	idx := &FlatIndex{
		meta: domain.IndexMeta{
			Dimension:   dim,
			ModelName:   modelName,
			Count:       len(chunks),
			BuiltAt:     time.Now().UTC(),
			SourcePaths: sources,
		},
		ids:     make([]string, len(chunks)),
		vectors: vectors,
		chunks:  chunkMap,
	}
	for i, chunk := range chunks {
		idx.ids[i] = chunk.ID
	}

	if err := idx.persist(path); err != nil {
		return nil, err
	}
	return idx, nil
}

func (x *FlatIndex) persist(path string) error {
	tmp := path + ".tmp"
	os.Remove(tmp)

	db, err := bbolt.Open(tmp, 0600, nil)
	if err != nil {
		return fmt.Errorf("failed to stage index file: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketMeta, bucketIDs, bucketVectors, bucketChunks} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
		}

		metaData, err := json.Marshal(x.meta)
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketMeta).Put(keyMeta, metaData); err != nil {
			return err
		}

		idsBucket := tx.Bucket(bucketIDs)
		vecBucket := tx.Bucket(bucketVectors)
		chunkBucket := tx.Bucket(bucketChunks)
		for i, id := range x.ids {
			key := positionKey(i)
			if err := idsBucket.Put(key, []byte(id)); err != nil {
				return err
			}
			if err := vecBucket.Put(key, encodeVector(x.vectors[i])); err != nil {
				return err
			}
			chunkData, err := json.Marshal(x.chunks[id])
			if err != nil {
				return err
			}
			if err := chunkBucket.Put([]byte(id), chunkData); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to write index: %w", err)
	}
	if err := db.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close staged index: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to publish index: %w", err)
	}
	return nil
}

// Load reads all artifacts into memory and verifies that the vector
// count, id count, and recorded metadata agree. The bbolt file is
// closed before returning; searches never touch the disk.
func Load(path string) (*FlatIndex, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: no index at %s", domain.ErrIndexUnavailable, path)
		}
		return nil, err
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCorruptIndex, err)
	}
	defer db.Close()

	idx := &FlatIndex{chunks: make(map[string]domain.Chunk)}
	err = db.View(func(tx *bbolt.Tx) error {
		metaBucket := tx.Bucket(bucketMeta)
		idsBucket := tx.Bucket(bucketIDs)
		vecBucket := tx.Bucket(bucketVectors)
		chunkBucket := tx.Bucket(bucketChunks)
		if metaBucket == nil || idsBucket == nil || vecBucket == nil || chunkBucket == nil {
			return fmt.Errorf("%w: missing bucket", domain.ErrCorruptIndex)
		}

		metaData := metaBucket.Get(keyMeta)
		if metaData == nil {
			return fmt.Errorf("%w: missing metadata record", domain.ErrCorruptIndex)
		}
		if err := json.Unmarshal(metaData, &idx.meta); err != nil {
			return fmt.Errorf("%w: unreadable metadata: %v", domain.ErrCorruptIndex, err)
		}

		if err := idsBucket.ForEach(func(_, v []byte) error {
			idx.ids = append(idx.ids, string(v))
			return nil
		}); err != nil {
			return err
		}

		return vecBucket.ForEach(func(_, v []byte) error {
			if len(v) != idx.meta.Dimension*4 {
				return fmt.Errorf("%w: vector record has %d bytes, expected %d", domain.ErrCorruptIndex, len(v), idx.meta.Dimension*4)
			}
			idx.vectors = append(idx.vectors, decodeVector(v))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if len(idx.ids) != len(idx.vectors) || len(idx.ids) != idx.meta.Count {
		return nil, fmt.Errorf("%w: %d ids, %d vectors, metadata count %d",
			domain.ErrCorruptIndex, len(idx.ids), len(idx.vectors), idx.meta.Count)
	}

	err = db.View(func(tx *bbolt.Tx) error {
		chunkBucket := tx.Bucket(bucketChunks)
		for _, id := range idx.ids {
			data := chunkBucket.Get([]byte(id))
			if data == nil {
				return fmt.Errorf("%w: chunk %s missing from chunk records", domain.ErrCorruptIndex, id)
			}
			var chunk domain.Chunk
			if err := json.Unmarshal(data, &chunk); err != nil {
				return fmt.Errorf("%w: unreadable chunk %s: %v", domain.ErrCorruptIndex, id, err)
			}
			idx.chunks[id] = chunk
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return idx, nil
}

// Search scores every indexed vector by inner product and returns the
// topN hits descending, ties broken by insertion position so equal
// scores rank deterministically.
func (x *FlatIndex) Search(query []float32, topN int) ([]domain.Hit, error) {
	if topN < 1 {
		return nil, fmt.Errorf("%w: top_n must be >= 1, got %d", domain.ErrInvalidArgument, topN)
	}
	if len(query) != x.meta.Dimension {
		return nil, fmt.Errorf("%w: query dimension %d, index dimension %d", domain.ErrInvalidArgument, len(query), x.meta.Dimension)
	}

	type scored struct {
		pos   int
		score float64
	}
	scores := make([]scored, len(x.vectors))
	for i, vec := range x.vectors {
		var dot float64
		for j := range vec {
			dot += float64(query[j]) * float64(vec[j])
		}
		scores[i] = scored{pos: i, score: dot}
	}

	sort.Slice(scores, func(i, j int) bool {
		if scores[i].score != scores[j].score {
			return scores[i].score > scores[j].score
		}
		return scores[i].pos < scores[j].pos
	})

	if topN > len(scores) {
		topN = len(scores)
	}
	hits := make([]domain.Hit, topN)
	for i := 0; i < topN; i++ {
		hits[i] = domain.Hit{ID: x.ids[scores[i].pos], Score: scores[i].score}
	}
	return hits, nil
}

// Chunk resolves an id to its record.
func (x *FlatIndex) Chunk(id string) (domain.Chunk, bool) {
	chunk, ok := x.chunks[id]
	return chunk, ok
}

// Meta returns the metadata recorded at build time.
func (x *FlatIndex) Meta() domain.IndexMeta {
	return x.meta
}

// Count returns the number of indexed vectors.
func (x *FlatIndex) Count() int {
	return len(x.ids)
}

func positionKey(i int) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(i))
	return key
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, x := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}
