package journal

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/buntdb"
	"go.uber.org/zap"
)

// Bunt is a Store backed by a buntdb file. The path ":memory:" keeps it in memory.
type Bunt struct {
	db *buntdb.DB
}

func OpenBunt(path string) (*Bunt, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open buntdb %s: %w", path, err)
	}
	return &Bunt{db: db}, nil
}

func buntKey(seq uint64) string {
	return fmt.Sprintf("entry:%020d", seq)
}

func (b *Bunt) Append(es []Entry) error {
	return b.db.Update(func(tx *buntdb.Tx) error {
		for _, e := range es {
			data, err := json.Marshal(e)
			if err != nil {
				return err
			}
			_, _, err = tx.Set(buntKey(e.Seq), string(data), nil)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *Bunt) Since(seq uint64, limit int) ([]Entry, error) {
	res := []Entry{}
	err := b.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendGreaterOrEqual("", buntKey(seq+1), func(key, value string) bool {
			if limit > 0 && len(res) >= limit {
				return false
			}
			var e Entry
			err := json.Unmarshal([]byte(value), &e)
			if err != nil {
				zap.S().Errorw("unmarshalling failed",
					"key", key,
					"value", value)
				return true
			}
			res = append(res, e)
			return true
		})
	})
	return res, err
}

func (b *Bunt) Close() error { return b.db.Close() }
