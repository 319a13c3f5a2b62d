package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketCA        = []byte("ca")
	bucketTokens    = []byte("join_tokens")
	bucketTopology  = []byte("topology")
	keyCA           = []byte("ca")
	keyTopologyData = []byte("data")
	keyTopologyRev  = []byte("revision")
)

// BoltStore is the bucket-per-entity BoltDB store backing Store.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if absent) a BoltDB file under dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "flowgate.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", dbPath, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketCA, bucketTokens, bucketTopology} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error { return s.db.Close() }

func (s *BoltStore) SaveCA(data []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCA).Put(keyCA, data)
	})
}

func (s *BoltStore) GetCA() ([]byte, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketCA).Get(keyCA)
		if v == nil {
			return fmt.Errorf("storage: no CA data stored")
		}
		data = append([]byte(nil), v...)
		return nil
	})
	return data, err
}

func (s *BoltStore) SaveJoinToken(token *JoinToken) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(token)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketTokens).Put([]byte(token.Token), data)
	})
}

func (s *BoltStore) GetJoinToken(token string) (*JoinToken, error) {
	var t JoinToken
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketTokens).Get([]byte(token))
		if v == nil {
			return fmt.Errorf("storage: join token not found")
		}
		return json.Unmarshal(v, &t)
	})
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *BoltStore) DeleteJoinToken(token string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTokens).Delete([]byte(token))
	})
}

func (s *BoltStore) ListJoinTokens() ([]*JoinToken, error) {
	var tokens []*JoinToken
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTokens).ForEach(func(k, v []byte) error {
			var t JoinToken
			if err := json.Unmarshal(v, &t); err != nil {
				return err
			}
			tokens = append(tokens, &t)
			return nil
		})
	})
	return tokens, err
}

func (s *BoltStore) SaveTopologySnapshot(revision string, data []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTopology)
		if err := b.Put(keyTopologyRev, []byte(revision)); err != nil {
			return err
		}
		return b.Put(keyTopologyData, data)
	})
}

func (s *BoltStore) GetTopologySnapshot() (string, []byte, error) {
	var revision string
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTopology)
		rev := b.Get(keyTopologyRev)
		d := b.Get(keyTopologyData)
		if rev == nil || d == nil {
			return fmt.Errorf("storage: no topology snapshot stored")
		}
		revision = string(rev)
		data = append([]byte(nil), d...)
		return nil
	})
	return revision, data, err
}
