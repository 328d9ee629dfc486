package state

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/mongoadmin/indexsync/internal/status"
	statusmocks "github.com/mongoadmin/indexsync/internal/status/mocks"
)

const testSchedule = 2 * time.Minute

func TestCachedStateService_Initialize(t *testing.T) {
	t.Parallel()

	syncTime := time.Now()

	tests := []struct {
		name       string
		setupMocks func(*statusmocks.MockStatusPersistence)
		wantPhase  map[string]status.SyncPhase
	}{
		{
			name: "loads stored statuses",
			setupMocks: func(m *statusmocks.MockStatusPersistence) {
				m.EXPECT().LoadStatus(gomock.Any(), "catalog").Return(&status.SyncStatus{
					Phase:        status.SyncPhaseComplete,
					LastSyncTime: &syncTime,
					VisitedCount: 5,
				}, nil)
			},
			wantPhase: map[string]status.SyncPhase{"catalog": status.SyncPhaseComplete},
		},
		{
			name: "first run is persisted as failed",
			setupMocks: func(m *statusmocks.MockStatusPersistence) {
				m.EXPECT().LoadStatus(gomock.Any(), "catalog").Return(&status.SyncStatus{}, nil)
				m.EXPECT().SaveStatus(gomock.Any(), "catalog", gomock.Any()).
					DoAndReturn(func(_ context.Context, _ string, s *status.SyncStatus) error {
						assert.Equal(t, "No previous rebuild", s.Message)
						return nil
					})
			},
			wantPhase: map[string]status.SyncPhase{"catalog": status.SyncPhaseFailed},
		},
		{
			name: "interrupted pass is reset",
			setupMocks: func(m *statusmocks.MockStatusPersistence) {
				m.EXPECT().LoadStatus(gomock.Any(), "catalog").Return(&status.SyncStatus{Phase: status.SyncPhaseSyncing}, nil)
				m.EXPECT().SaveStatus(gomock.Any(), "catalog", gomock.Any()).Return(errors.New("disk full"))
			},
			wantPhase: map[string]status.SyncPhase{"catalog": status.SyncPhaseFailed},
		},
		{
			name: "load errors start fresh",
			setupMocks: func(m *statusmocks.MockStatusPersistence) {
				m.EXPECT().LoadStatus(gomock.Any(), "catalog").Return(nil, errors.New("corrupt"))
				m.EXPECT().SaveStatus(gomock.Any(), "catalog", gomock.Any()).Return(nil)
			},
			wantPhase: map[string]status.SyncPhase{"catalog": status.SyncPhaseFailed},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			persistence := statusmocks.NewMockStatusPersistence(ctrl)
			tt.setupMocks(persistence)

			svc := NewStateService(persistence, testSchedule)
			require.NoError(t, svc.Initialize(context.Background(), []string{"catalog"}))

			statuses, err := svc.ListSyncStatuses(context.Background())
			require.NoError(t, err)
			require.Len(t, statuses, len(tt.wantPhase))
			for name, phase := range tt.wantPhase {
				assert.Equal(t, phase, statuses[name].Phase)
				assert.Equal(t, "2m0s", statuses[name].SyncSchedule)
			}
		})
	}
}

func TestCachedStateService_GetSyncStatus(t *testing.T) {
	t.Parallel()

	svc := NewStateService(nil, testSchedule)
	ctx := context.Background()
	require.NoError(t, svc.Initialize(ctx, []string{"catalog"}))

	got, err := svc.GetSyncStatus(ctx, "catalog")
	require.NoError(t, err)
	assert.Equal(t, status.SyncPhaseFailed, got.Phase)

	// callers receive copies
	got.Phase = status.SyncPhaseComplete
	again, err := svc.GetSyncStatus(ctx, "catalog")
	require.NoError(t, err)
	assert.Equal(t, status.SyncPhaseFailed, again.Phase)

	_, err = svc.GetSyncStatus(ctx, "unknown")
	assert.Error(t, err)
}

func TestCachedStateService_UpdateSyncStatus(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	persistence := statusmocks.NewMockStatusPersistence(ctrl)
	svc := NewStateService(persistence, testSchedule)
	ctx := context.Background()

	persistence.EXPECT().SaveStatus(gomock.Any(), "catalog", gomock.Any()).Return(nil)
	require.NoError(t, svc.UpdateSyncStatus(ctx, "catalog", &status.SyncStatus{Phase: status.SyncPhaseComplete, VisitedCount: 4}))

	got, err := svc.GetSyncStatus(ctx, "catalog")
	require.NoError(t, err)
	assert.Equal(t, int64(4), got.VisitedCount)

	persistence.EXPECT().SaveStatus(gomock.Any(), "catalog", gomock.Any()).Return(errors.New("disk full"))
	err = svc.UpdateSyncStatus(ctx, "catalog", &status.SyncStatus{Phase: status.SyncPhaseFailed})
	require.Error(t, err)

	got, err = svc.GetSyncStatus(ctx, "catalog")
	require.NoError(t, err)
	assert.Equal(t, status.SyncPhaseComplete, got.Phase, "failed saves keep the previous status")
}

func TestCachedStateService_UpdateStatusAtomically(t *testing.T) {
	t.Parallel()

	const testMessageModified = "Modified"

	tests := []struct {
		name        string
		index       string
		modify      bool
		saveErr     error
		wantUpdated bool
		wantErr     bool
		wantMessage string
	}{
		{name: "applies change", index: "catalog", modify: true, wantUpdated: true, wantMessage: testMessageModified},
		{name: "no change", index: "catalog", wantMessage: "No previous rebuild"},
		{name: "save error keeps cache", index: "catalog", modify: true, saveErr: errors.New("boom"), wantErr: true, wantMessage: "No previous rebuild"},
		{name: "unknown index", index: "unknown", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			persistence := statusmocks.NewMockStatusPersistence(ctrl)
			persistence.EXPECT().LoadStatus(gomock.Any(), "catalog").Return(&status.SyncStatus{}, nil)
			persistence.EXPECT().SaveStatus(gomock.Any(), "catalog", gomock.Any()).Return(nil)

			svc := NewStateService(persistence, testSchedule)
			ctx := context.Background()
			require.NoError(t, svc.Initialize(ctx, []string{"catalog"}))

			if tt.modify && tt.index == "catalog" {
				persistence.EXPECT().SaveStatus(gomock.Any(), "catalog", gomock.Any()).Return(tt.saveErr)
			}

			updated, err := svc.UpdateStatusAtomically(ctx, tt.index, func(s *status.SyncStatus) bool {
				if !tt.modify {
					return false
				}
				s.Message = testMessageModified
				return true
			})
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantUpdated, updated)

			if tt.index != "catalog" {
				return
			}
			got, err := svc.GetSyncStatus(ctx, "catalog")
			require.NoError(t, err)
			assert.Equal(t, tt.wantMessage, got.Message)
		})
	}
}
