package services

import (
	"context"
	"sync"
	"testing"

	"dealflow/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingListener struct {
	mu      sync.Mutex
	created []models.Deal
	moves   [][2]string
}

func (l *recordingListener) DealCreated(ctx context.Context, deal models.Deal) {
	l.mu.Lock()
	l.created = append(l.created, deal)
	l.mu.Unlock()
}

func (l *recordingListener) DealStageChanged(ctx context.Context, deal models.Deal, from, to string) {
	l.mu.Lock()
	l.moves = append(l.moves, [2]string{from, to})
	l.mu.Unlock()
}

func TestDealService_LifecycleEvents(t *testing.T) {
	svc := NewDealService(newTestDB(t), quietLogger())
	listener := &recordingListener{}
	svc.SetEventListener(listener)
	ctx := context.Background()

	deal, err := svc.CreateDeal(ctx, "ws-1", &DealCreateRequest{Title: "Acme", StageID: "lead"})
	require.NoError(t, err)
	require.Len(t, listener.created, 1)
	assert.Equal(t, deal.ID, listener.created[0].ID)

	moved, err := svc.MoveDealStage(ctx, "ws-1", deal.ID, "nego")
	require.NoError(t, err)
	assert.Equal(t, "nego", moved.StageID)
	assert.False(t, moved.UpdatedAt.Before(deal.UpdatedAt))

	// moving into the current stage is not a transition
	_, err = svc.MoveDealStage(ctx, "ws-1", deal.ID, "nego")
	require.NoError(t, err)
	assert.Equal(t, [][2]string{{"lead", "nego"}}, listener.moves)
}

func TestDealService_UpdateAndScope(t *testing.T) {
	svc := NewDealService(newTestDB(t), quietLogger())
	ctx := context.Background()

	deal, err := svc.CreateDeal(ctx, "ws-1", &DealCreateRequest{Title: "Acme", StageID: "lead"})
	require.NoError(t, err)
	_, err = svc.CreateDeal(ctx, "ws-2", &DealCreateRequest{Title: "Other", StageID: "lead"})
	require.NoError(t, err)

	title := "Acme Renewal"
	updated, err := svc.UpdateDeal(ctx, "ws-1", deal.ID, &DealUpdateRequest{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "Acme Renewal", updated.Title)

	_, err = svc.GetDeal(ctx, "ws-2", deal.ID)
	assert.ErrorIs(t, err, ErrDealNotFound)

	deals, err := svc.ListDeals(ctx, "ws-1")
	require.NoError(t, err)
	assert.Len(t, deals, 1)
}
