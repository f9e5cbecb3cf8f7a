package trigger

import (
	"bytes"
	"context"
	"database/sql"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"patternmatch/database"
	"patternmatch/engine"
	"patternmatch/objectstore"
	"patternmatch/types"
)

func patternPNG(t *testing.T, phase float64) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			v := 128 + 60*math.Sin(float64(x)/9+phase) + 50*math.Cos(float64(y)/7-phase)
			img.SetGray(x, y, color.Gray{Y: uint8(math.Max(0, math.Min(255, v)))})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func writeObject(t *testing.T, root, key string, data []byte) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(key))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, data, 0o644))
}

func newTestHandler(t *testing.T) (*Handler, *sql.DB, string) {
	t.Helper()

	db, err := database.InitDatabase(filepath.Join(t.TempDir(), "trigger.db"))
	require.NoError(t, err)
	require.NoError(t, database.EnsureSearchIndexes(db))
	t.Cleanup(func() { db.Close() })

	root := t.TempDir()
	store, err := objectstore.NewFSStore(root)
	require.NoError(t, err)

	e := engine.New(db, store, engine.Config{MaxToScan: 100, MaxWorkers: 4})
	return NewHandler(e, store), db, root
}

func assetMessage(t *testing.T, ev types.AssetFinalized) *message.Message {
	t.Helper()
	payload, err := json.Marshal(ev)
	require.NoError(t, err)
	return message.NewMessage(watermill.NewUUID(), payload)
}

func TestHandleListingEvent(t *testing.T) {
	h, db, root := newTestHandler(t)
	ctx := context.Background()

	img := patternPNG(t, 0.5)
	writeObject(t, root, "brands/zimm/L1/pattern.png", img)
	writeObject(t, root, "pattern_queries/zimm/buyer1/q1.png", img)

	msg := assetMessage(t, types.AssetFinalized{Path: "brands/zimm/L1/pattern.png"})
	require.NoError(t, h.Handle(msg))

	entry, err := database.GetInboxEntry(ctx, db, "buyer1", "L1")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, types.SourceStaticQuery, entry.SourceTag)
}

func TestHandleBuyerEvent(t *testing.T) {
	h, db, root := newTestHandler(t)
	ctx := context.Background()

	img := patternPNG(t, 1.3)
	writeObject(t, root, "brands/zimm/L1/pattern.png", img)
	writeObject(t, root, "pattern_queries/zimm/buyer1/q1.png", img)

	msg := assetMessage(t, types.AssetFinalized{Path: "pattern_queries/zimm/buyer1/q1.png"})
	require.NoError(t, h.Handle(msg))

	entry, err := database.GetInboxEntry(ctx, db, "buyer1", "L1")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, types.SourceListingScan, entry.SourceTag)

	// The upload is also indexed as an active search.
	records, err := database.FindActiveSearchesByBrand(ctx, db, "zimm")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "buyer1", records[0].UID)
}

func TestHandleIgnoredPathAcks(t *testing.T) {
	h, db, _ := newTestHandler(t)

	msg := assetMessage(t, types.AssetFinalized{Path: "avatars/buyer1/profile.png"})
	require.NoError(t, h.Handle(msg))

	audits, inbox, err := database.CountMatchRecords(context.Background(), db)
	require.NoError(t, err)
	assert.Zero(t, audits)
	assert.Zero(t, inbox)
}

func TestHandlePoisonPayloadAcks(t *testing.T) {
	h, _, _ := newTestHandler(t)

	msg := message.NewMessage(watermill.NewUUID(), []byte("{not json"))
	assert.NoError(t, h.Handle(msg))
}

func TestHandleMissingAssetNacks(t *testing.T) {
	h, _, _ := newTestHandler(t)

	// Classifiable path, but the object is not in the store yet. The error
	// must surface so the broker redelivers.
	msg := assetMessage(t, types.AssetFinalized{Path: "brands/zimm/L1/pattern.png"})
	assert.Error(t, h.Handle(msg))
}

func TestHandleUndecodableImageAcks(t *testing.T) {
	h, db, root := newTestHandler(t)

	writeObject(t, root, "brands/zimm/L1/pattern.png", bytes.Repeat([]byte{0x42}, 512))

	msg := assetMessage(t, types.AssetFinalized{Path: "brands/zimm/L1/pattern.png"})
	assert.NoError(t, h.Handle(msg))

	audits, _, err := database.CountMatchRecords(context.Background(), db)
	require.NoError(t, err)
	assert.Zero(t, audits)
}

func TestRouterDeliversPublishedEvents(t *testing.T) {
	h, db, root := newTestHandler(t)

	img := patternPNG(t, 2.0)
	writeObject(t, root, "brands/zimm/L1/pattern.png", img)
	writeObject(t, root, "pattern_queries/zimm/buyer1/q1.png", img)

	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	t.Cleanup(func() { pubSub.Close() })

	router, err := NewRouter(h, pubSub, "")
	require.NoError(t, err)
	t.Cleanup(func() { router.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() {
		_ = router.Run(ctx)
	}()
	select {
	case <-router.Running():
	case <-time.After(5 * time.Second):
		t.Fatal("router did not start")
	}

	require.NoError(t, PublishAssetFinalized(pubSub, types.AssetFinalized{Path: "brands/zimm/L1/pattern.png"}))

	deadline := time.Now().Add(10 * time.Second)
	for {
		entry, err := database.GetInboxEntry(ctx, db, "buyer1", "L1")
		require.NoError(t, err)
		if entry != nil {
			assert.Equal(t, types.SourceStaticQuery, entry.SourceTag)
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("published event was not processed")
		}
		time.Sleep(50 * time.Millisecond)
	}
}
