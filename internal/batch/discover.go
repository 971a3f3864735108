package batch

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/okian/platecount/internal/adapters/vision"
	"github.com/okian/platecount/internal/domain/model"
)

// Item is one file to process.
type Item struct {
	Name string
	Path string
	Kind model.SourceKind
}

// Discover lists the processable files of dir: videos in name order, then
// images in name order. A manifest is placed by the kind it declares; one
// that cannot be read is treated as a video so the failure is reported when
// it is processed. Other files and subdirectories are skipped.
func Discover(dir string) ([]Item, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}

	var videos, images []Item
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		kind, ok := vision.KindForName(e.Name())
		if !ok {
			continue
		}
		item := Item{Name: e.Name(), Path: filepath.Join(dir, e.Name()), Kind: kind}
		if vision.Ext(item.Name) == "json" {
			item.Kind = model.KindVideo
			if m, err := vision.LoadManifest(item.Path); err == nil && m.Kind == model.KindImage {
				item.Kind = model.KindImage
			}
		}
		if item.Kind == model.KindImage {
			images = append(images, item)
		} else {
			videos = append(videos, item)
		}
	}

	byName := func(items []Item) {
		sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	}
	byName(videos)
	byName(images)
	return append(videos, images...), nil
}
