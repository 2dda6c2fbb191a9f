package events

import (
	"context"
	"fmt"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var testDBSeq int

func newTestOutbox(t *testing.T) (*Outbox, *gorm.DB) {
	t.Helper()

	testDBSeq++
	dsn := fmt.Sprintf("file:outbox_test_%d?mode=memory&cache=shared", testDBSeq)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&Row{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return NewOutbox(db, node), db
}

func TestPublishStoresEvent(t *testing.T) {
	outbox, db := newTestOutbox(t)
	ctx := context.Background()

	err := outbox.Publish(ctx, Event{
		Type:    EventCommissionCreated,
		Payload: map[string]any{"amount_cents": int64(500)},
	})
	require.NoError(t, err)

	var rows []Row
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, EventCommissionCreated, rows[0].EventType)
	assert.False(t, rows[0].Published)
}

func TestPublishDedupes(t *testing.T) {
	outbox, db := newTestOutbox(t)
	ctx := context.Background()

	event := Event{
		Type:      EventCommissionCreated,
		Payload:   map[string]any{"order_id": "order-1"},
		DedupeKey: "commission:order-1:sale:created",
	}
	require.NoError(t, outbox.Publish(ctx, event))
	require.NoError(t, outbox.Publish(ctx, event))

	var count int64
	require.NoError(t, db.Model(&Row{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestPublishRejectsEmptyType(t *testing.T) {
	outbox, _ := newTestOutbox(t)

	err := outbox.Publish(context.Background(), Event{Type: "  "})
	assert.Error(t, err)
}
