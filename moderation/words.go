package moderation

import (
	"strings"

	"github.com/dgraph-io/badger/v4"
)

const wordPrefix = "blacklist:"

// StoreWords adds censored words to db. The words live in the keys, values are empty.
func StoreWords(db *badger.DB, words ...string) error {
	wb := db.NewWriteBatch()
	defer wb.Cancel()
	for _, w := range words {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		if err := wb.Set([]byte(wordPrefix+strings.ToLower(w)), nil); err != nil {
			return err
		}
	}
	return wb.Flush()
}

// LoadWords reads every censored word stored in db.
func LoadWords(db *badger.DB) ([]string, error) {
	var words []string
	err := db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(wordPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			words = append(words, string(it.Item().Key()[len(prefix):]))
		}
		return nil
	})
	return words, err
}
