package inventory

import (
	"bufio"
	"fmt"
	"io"
	log "log/slog"
	"os"
	"strings"
)

// Record is one 3D model and its comma-separated category tags.
type Record struct {
	ID         string `json:"id"`
	Categories string `json:"categories"`
}

func (r Record) Tags() []string {
	return strings.Split(r.Categories, ",")
}

// Primary is the grouping key of the record: its first tag, lowercased.
func (r Record) Primary() string {
	return strings.ToLower(r.Tags()[0])
}

// Index groups records by primary category. It is never modified after
// Parse returns, so it can be shared between goroutines freely.
type Index struct {
	order  []string
	byCat  map[string][]Record
	byID   map[string]Record
	models int
}

func Empty() *Index {
	return &Index{
		byCat: make(map[string][]Record),
		byID:  make(map[string]Record),
	}
}

// Parse reads "model_id,categories" lines. Only the first comma separates
// the id; the rest of the line is the category list, optionally quoted.
// Lines without a second field are skipped.
func Parse(r io.Reader) (*Index, error) {
	idx := Empty()

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		rec, ok := parseLine(sc.Text())
		if !ok {
			continue
		}
		idx.add(rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read inventory: %w", err)
	}

	return idx, nil
}

// Load parses the CSV at path. A missing or unreadable file is logged and
// yields an empty index; the service keeps running without inventory.
func Load(path string) *Index {
	f, err := os.Open(path)
	if err != nil {
		log.Error("Failed to open inventory", "path", path, "err", err)
		return Empty()
	}
	defer f.Close()

	idx, err := Parse(f)
	if err != nil {
		log.Error("Failed to load inventory", "path", path, "err", err)
		return Empty()
	}

	log.Info("Loaded inventory", "models", idx.Len(), "categories", len(idx.order))
	return idx
}

func parseLine(line string) (Record, bool) {
	id, cats, ok := strings.Cut(strings.TrimSpace(line), ",")
	if !ok {
		return Record{}, false
	}

	cats = strings.TrimSpace(cats)
	if len(cats) >= 2 && cats[0] == '"' && cats[len(cats)-1] == '"' {
		cats = cats[1 : len(cats)-1]
	}

	return Record{
		ID:         strings.TrimSpace(id),
		Categories: cats,
	}, true
}

func (idx *Index) add(rec Record) {
	key := rec.Primary()
	if _, ok := idx.byCat[key]; !ok {
		idx.order = append(idx.order, key)
	}
	idx.byCat[key] = append(idx.byCat[key], rec)
	if _, ok := idx.byID[rec.ID]; !ok {
		idx.byID[rec.ID] = rec
	}
	idx.models++
}

// Len is the number of records, duplicates included.
func (idx *Index) Len() int {
	return idx.models
}

// Categories returns primary categories in order of first appearance.
func (idx *Index) Categories() []string {
	return append([]string(nil), idx.order...)
}

func (idx *Index) Records(category string) []Record {
	return append([]Record(nil), idx.byCat[strings.ToLower(category)]...)
}

// Lookup returns the first record seen for id.
func (idx *Index) Lookup(id string) (Record, bool) {
	rec, ok := idx.byID[id]
	return rec, ok
}

// Excerpt renders at most maxCategories categories with at most
// maxRecords records each, for use as LLM prompt context.
func (idx *Index) Excerpt(maxCategories, maxRecords int) string {
	var b strings.Builder
	b.WriteString("\n\nAvailable Models:\n")

	for i, cat := range idx.order {
		if i >= maxCategories {
			break
		}
		fmt.Fprintf(&b, "\n%s:\n", strings.ToUpper(cat))
		for j, rec := range idx.byCat[cat] {
			if j >= maxRecords {
				break
			}
			fmt.Fprintf(&b, "  - ID: %s, Types: %s\n", rec.ID, rec.Categories)
		}
	}

	return b.String()
}

// Snapshot copies the whole index keyed by primary category.
func (idx *Index) Snapshot() map[string][]Record {
	out := make(map[string][]Record, len(idx.byCat))
	for cat, recs := range idx.byCat {
		out[cat] = append([]Record(nil), recs...)
	}
	return out
}
