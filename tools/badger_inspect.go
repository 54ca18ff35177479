package main

import (
	"chat-relay/infrastructure/storage"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/database"
	"github.com/olekukonko/tablewriter"
)

const maxFieldsWidth = 120

func main() {
	dbPath := flag.String("db", database.DefaultPath, "Path to badger DB")
	prefix := flag.String("prefix", "", "Key prefix to scan, e.g. notifications: or chats:")
	flag.Parse()

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Collection", "ID", "Fields"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	counts := map[string]int{}
	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(*prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			err := item.Value(func(v []byte) error {
				collection, doc, err := storage.DecodeEntry(item.KeyCopy(nil), v)
				if err != nil {
					fmt.Printf("Skipping key %s: %v\n", string(item.Key()), err)
					return nil
				}
				counts[collection]++
				table.Append([]string{collection, doc.ID, summarize(doc.Fields)})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Fatal(err)
	}

	table.Render()
	printCounts(counts)
}

func summarize(fields map[string]any) string {
	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Sprintf("<%v>", err)
	}
	if len(raw) > maxFieldsWidth {
		return string(raw[:maxFieldsWidth]) + "..."
	}
	return string(raw)
}

func printCounts(counts map[string]int) {
	collections := make([]string, 0, len(counts))
	for c := range counts {
		collections = append(collections, c)
	}
	sort.Strings(collections)
	parts := make([]string, 0, len(collections))
	for _, c := range collections {
		parts = append(parts, fmt.Sprintf("%s=%d", c, counts[c]))
	}
	fmt.Printf("\n%s\n", strings.Join(parts, " "))
}

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true)

	db, err := badger.Open(opts)
	if err != nil && strings.Contains(err.Error(), "Log truncate required") {
		// A crashed writer left the value log dirty: open once read-write to truncate.
		repaired, repairErr := badger.Open(badger.DefaultOptions(path).WithLogger(nil).WithBypassLockGuard(true))
		if repairErr != nil {
			return nil, fmt.Errorf("repair failed: %w", repairErr)
		}
		_ = repaired.Close()
		return badger.Open(opts)
	}
	return db, err
}
