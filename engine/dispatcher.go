package engine

import (
	"path"
	"regexp"
	"strings"

	"patternmatch/types"
)

// TriggerKind tags how an asset-finalized event is handled.
type TriggerKind int

const (
	// Ignored means the path matches no handled shape. A no-op, not an error.
	Ignored TriggerKind = iota
	// ListingUpload is a seller's new listing pattern photo.
	ListingUpload
	// BuyerUpload is a buyer's want-photo (active pattern or pattern query).
	BuyerUpload
)

func (k TriggerKind) String() string {
	switch k {
	case ListingUpload:
		return "listing_upload"
	case BuyerUpload:
		return "buyer_upload"
	default:
		return "ignored"
	}
}

// Trigger is a classified asset-finalized event with the ids parsed out of
// the object path.
type Trigger struct {
	Kind      TriggerKind
	Path      string
	Brand     string
	ListingID string
	UID       string
	SearchID  string
}

var (
	// …/brands/{brand}/{listingId}/pattern.{ext}
	listingPathRe = regexp.MustCompile(`(?i)(?:^|/)brands/([^/]+)/([^/]+)/pattern\.(jpe?g|png|webp)$`)
	// users_active_patterns/{uid}/{brand}/{searchId}.{ext}
	activePatternRe = regexp.MustCompile(`(?i)^users_active_patterns/([^/]+)/([^/]+)/([^/.]+)\.(jpe?g|png|webp)$`)
	// pattern_queries/{brand}/{uid}/…
	patternQueryRe = regexp.MustCompile(`(?i)^pattern_queries/([^/]+)/([^/]+)/.+$`)
)

// Classify maps an asset-finalized event onto the handler that owns its
// path shape. Anything unrecognized is Ignored.
func Classify(ev types.AssetFinalized) Trigger {
	if m := listingPathRe.FindStringSubmatch(ev.Path); m != nil {
		return Trigger{Kind: ListingUpload, Path: ev.Path, Brand: m[1], ListingID: m[2]}
	}
	if m := activePatternRe.FindStringSubmatch(ev.Path); m != nil {
		return Trigger{Kind: BuyerUpload, Path: ev.Path, UID: m[1], Brand: m[2], SearchID: m[3]}
	}
	if m := patternQueryRe.FindStringSubmatch(ev.Path); m != nil {
		return Trigger{Kind: BuyerUpload, Path: ev.Path, Brand: m[1], UID: m[2]}
	}
	return Trigger{Kind: Ignored, Path: ev.Path}
}

// ownerFromQueryPath parses the buyer uid out of a static query object path
// (pattern_queries/{brand}/{uid}/…). Empty when the path has another shape.
func ownerFromQueryPath(objectPath string) string {
	segments := strings.Split(objectPath, "/")
	if len(segments) >= 4 && segments[0] == "pattern_queries" {
		return segments[2]
	}
	return ""
}

// ownerFromActivePath parses the buyer uid and search id out of an active
// pattern object path (users_active_patterns/{uid}/{brand}/{searchId}.{ext}).
func ownerFromActivePath(objectPath string) (uid, searchID string) {
	segments := strings.Split(objectPath, "/")
	if len(segments) != 4 || segments[0] != "users_active_patterns" {
		return "", ""
	}
	base := segments[3]
	return segments[1], strings.TrimSuffix(base, path.Ext(base))
}

// listingIDFromPath parses the listing id out of a listing pattern path
// (…/brands/{brand}/{listingId}/pattern.{ext}).
func listingIDFromPath(objectPath string) string {
	segments := strings.Split(objectPath, "/")
	for i, segment := range segments {
		if segment == "brands" && i+3 < len(segments) {
			return segments[i+2]
		}
	}
	return ""
}
