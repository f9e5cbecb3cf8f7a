package objectstore

import (
	"context"
	"path"
	"strings"

	"patternmatch/logging"
)

// ObjectInfo describes one object in the bulk store.
type ObjectInfo struct {
	Path string
	Size int64
}

// Store is the slice of the bulk object store this engine consumes. Listing
// is paginated: an empty returned token means the prefix is exhausted.
type Store interface {
	Get(ctx context.Context, objectPath string) ([]byte, error)
	List(ctx context.Context, prefix, pageToken string, maxResults int) ([]ObjectInfo, string, error)
}

// DefaultImageExtensions are the upload formats the normalizer emits.
var DefaultImageExtensions = []string{".jpg", ".jpeg", ".png", ".webp"}

// ListUnderPrefix paginates through the store, accumulating up to maxToScan
// objects under the prefix. It stops early when the prefix is exhausted and
// reports truncated=true when the cap was reached while the store still had
// more items. A page failure surfaces the error along with everything
// gathered so far; the caller decides whether a partial result is usable.
func ListUnderPrefix(ctx context.Context, s Store, prefix string, maxToScan, pageSize int) ([]ObjectInfo, bool, error) {
	if maxToScan <= 0 {
		return nil, false, nil
	}
	if pageSize <= 0 {
		pageSize = 100
	}

	var (
		items []ObjectInfo
		token string
	)
	for {
		if err := ctx.Err(); err != nil {
			return items, false, err
		}

		remaining := maxToScan - len(items)
		request := pageSize
		if remaining < request {
			request = remaining
		}

		page, next, err := s.List(ctx, prefix, token, request)
		if err != nil {
			return items, false, err
		}
		items = append(items, page...)

		if len(items) >= maxToScan {
			truncated := next != ""
			if truncated {
				log := logging.Component("scanner")
				log.Warn().
					Str("prefix", prefix).
					Int("max_to_scan", maxToScan).
					Msg("candidate population exceeds scan cap, result truncated")
			}
			return items[:maxToScan], truncated, nil
		}
		if next == "" {
			return items, false, nil
		}
		token = next
	}
}

// FilterByBrandAndExtension drops folder markers and non-image objects and,
// when brand is non-empty, keeps only objects whose path encodes that brand
// in one of its segments. Used when scanning a prefix shared across brands.
func FilterByBrandAndExtension(items []ObjectInfo, brand string, extensions []string) []ObjectInfo {
	if len(extensions) == 0 {
		extensions = DefaultImageExtensions
	}

	kept := make([]ObjectInfo, 0, len(items))
	for _, item := range items {
		if strings.HasSuffix(item.Path, "/") || item.Size == 0 {
			// Folder placeholder objects carry no image data.
			continue
		}
		if !hasExtension(item.Path, extensions) {
			continue
		}
		if brand != "" && !hasBrandSegment(item.Path, brand) {
			continue
		}
		kept = append(kept, item)
	}
	return kept
}

func hasExtension(objectPath string, extensions []string) bool {
	ext := strings.ToLower(path.Ext(objectPath))
	for _, allowed := range extensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

func hasBrandSegment(objectPath, brand string) bool {
	for _, segment := range strings.Split(objectPath, "/") {
		if segment == brand {
			return true
		}
	}
	return false
}
