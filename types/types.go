package types

import "time"

// Source tags recorded on inbox entries so downstream consumers can tell
// which comparison path produced a match.
const (
	SourceStaticQuery = "static_query"
	SourceActiveQuery = "active_query"
	SourceSearchIndex = "search_index"
	SourceListingScan = "listing_scan"
)

// AssetFinalized is the inbound trigger payload emitted when an uploaded
// object has been normalized and written to the bulk store.
type AssetFinalized struct {
	Path        string `json:"path"`
	BucketID    string `json:"bucketId"`
	ContentType string `json:"contentType"`
	SizeBytes   int64  `json:"sizeBytes"`
}

// SearchRecord is a buyer's stored want-photo. One record exists per
// (brand, image_path); repeated processing of the same upload reuses it.
type SearchRecord struct {
	ID          string    `json:"id"`
	UID         string    `json:"uid"`
	Brand       string    `json:"brand"`
	ImagePath   string    `json:"image_path"`
	Fingerprint string    `json:"fingerprint"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ListingMirror is the denormalized listing metadata row maintained by the
// listing ingest pipeline. Read-only for the match engine.
type ListingMirror struct {
	ListingID        string `json:"listing_id"`
	Brand            string `json:"brand"`
	SellerUID        string `json:"seller_uid"`
	CanonicalRefPath string `json:"canonical_ref_path"`
}

// MirrorRef is the result of resolving one listing id. The zero value means
// the mirror could not be resolved; the match is still recorded, just
// without seller enrichment.
type MirrorRef struct {
	SellerUID  string
	ListingRef string
}

// Match is one qualifying comparison, staged for recording. CounterpartyID
// is the matched buyer: it keys the audit row together with ListingID and is
// also the inbox recipient.
type Match struct {
	ListingID      string
	CounterpartyID string
	Score          float64
	SearchID       string
	SellerUID      string
	ListingRef     string
	SourceTag      string
}

// MatchAudit is the durable record of a qualifying comparison, keyed by
// (listing_id, counterparty_id). Append/merge only.
type MatchAudit struct {
	ListingID      string    `json:"listing_id"`
	CounterpartyID string    `json:"counterparty_id"`
	Score          float64   `json:"score"`
	SearchID       string    `json:"search_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// InboxEntry is the per-recipient "new match" record consumed by the
// external notification pipeline, keyed by (recipient_id, listing_id).
// Seen is flipped by that consumer, never by this engine.
type InboxEntry struct {
	RecipientID string    `json:"recipient_id"`
	ListingID   string    `json:"listing_id"`
	Score       float64   `json:"score"`
	SellerUID   string    `json:"seller_uid"`
	ListingRef  string    `json:"listing_ref"`
	SourceTag   string    `json:"source_tag"`
	Seen        bool      `json:"seen"`
	CreatedAt   time.Time `json:"created_at"`
}
