package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/chopdirect/settlement/pkg/db/models"
	"github.com/chopdirect/settlement/pkg/enums"
)

func newOutboxDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(&models.OutboxEvent{}))
	return db
}

func TestEmitWrapsPayloadInEnvelope(t *testing.T) {
	db := newOutboxDB(t)
	svc := NewService(NewRepository(db), nil)

	orderID := uuid.New()
	actorID := uuid.New()
	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventOrderPlaced,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Actor:         &ActorRef{UserID: actorID, Role: "customer"},
			Data:          map[string]any{"grand_total": "10000"},
		})
	})
	require.NoError(t, err)

	var row models.OutboxEvent
	require.NoError(t, db.Where("aggregate_id = ?", orderID).First(&row).Error)
	assert.Equal(t, enums.EventOrderPlaced, row.EventType)
	assert.Equal(t, enums.AggregateOrder, row.AggregateType)
	assert.Nil(t, row.PublishedAt)

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(row.Payload, &envelope))
	assert.Equal(t, 1, envelope.Version)
	assert.NotEmpty(t, envelope.EventID)
	assert.False(t, envelope.OccurredAt.IsZero())
	require.NotNil(t, envelope.Actor)
	assert.Equal(t, actorID, envelope.Actor.UserID)

	var data map[string]any
	require.NoError(t, json.Unmarshal(envelope.Data, &data))
	assert.Equal(t, "10000", data["grand_total"])
}

func TestEmitIfNotExistsSkipsDuplicate(t *testing.T) {
	db := newOutboxDB(t)
	svc := NewService(NewRepository(db), nil)

	orderID := uuid.New()
	event := DomainEvent{
		EventType:     enums.EventOrderCompleted,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Data:          map[string]any{"status": "completed"},
	}

	for i := 0; i < 2; i++ {
		err := db.Transaction(func(tx *gorm.DB) error {
			return svc.EmitIfNotExists(context.Background(), tx, event)
		})
		require.NoError(t, err)
	}

	var count int64
	require.NoError(t, db.Model(&models.OutboxEvent{}).
		Where("aggregate_id = ?", orderID).
		Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestEmitRequiresTransaction(t *testing.T) {
	db := newOutboxDB(t)
	svc := NewService(NewRepository(db), nil)

	err := svc.Emit(context.Background(), nil, DomainEvent{
		EventType:     enums.EventOrderPlaced,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
	})
	assert.Error(t, err)
}

func TestFetchUnpublishedForPublishSkipsExhaustedRows(t *testing.T) {
	db := newOutboxDB(t)
	repo := NewRepository(db)
	svc := NewService(repo, nil)

	first := uuid.New()
	second := uuid.New()
	err := db.Transaction(func(tx *gorm.DB) error {
		for _, id := range []uuid.UUID{first, second} {
			if err := svc.Emit(context.Background(), tx, DomainEvent{
				EventType:     enums.EventWalletCredited,
				AggregateType: enums.AggregateWallet,
				AggregateID:   id,
				Data:          map[string]any{},
			}); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, db.Model(&models.OutboxEvent{}).
		Where("aggregate_id = ?", first).
		Update("attempt_count", 10).Error)

	err = db.Transaction(func(tx *gorm.DB) error {
		rows, err := repo.FetchUnpublishedForPublish(tx, 50, 10)
		if err != nil {
			return err
		}
		require.Len(t, rows, 1)
		assert.Equal(t, second, rows[0].AggregateID)
		return nil
	})
	require.NoError(t, err)
}

func TestMarkPublishedAndFailed(t *testing.T) {
	db := newOutboxDB(t)
	repo := NewRepository(db)
	svc := NewService(repo, nil)

	aggregateID := uuid.New()
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventClearanceCleared,
			AggregateType: enums.AggregateClearance,
			AggregateID:   aggregateID,
			Data:          map[string]any{},
		})
	}))

	var row models.OutboxEvent
	require.NoError(t, db.Where("aggregate_id = ?", aggregateID).First(&row).Error)

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return repo.MarkFailedTx(tx, row.ID, fmt.Errorf("broker unavailable"))
	}))
	require.NoError(t, db.First(&row, "id = ?", row.ID).Error)
	assert.Equal(t, 1, row.AttemptCount)
	require.NotNil(t, row.LastError)
	assert.Contains(t, *row.LastError, "broker unavailable")
	assert.Nil(t, row.PublishedAt)

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return repo.MarkPublishedTx(tx, row.ID)
	}))
	require.NoError(t, db.First(&row, "id = ?", row.ID).Error)
	assert.NotNil(t, row.PublishedAt)

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		rows, err := repo.FetchUnpublishedForPublish(tx, 50, 10)
		if err != nil {
			return err
		}
		assert.Empty(t, rows)
		return nil
	}))
}
