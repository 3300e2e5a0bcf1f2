package repository_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pressplay/payments/internal/domain"
	"github.com/pressplay/payments/internal/repository"
	"github.com/pressplay/payments/internal/testutil"
)

func TestUpdateStatusDirect_RefusesTerminalIntent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewIntentRepository(db)
	ctx := context.Background()

	for _, status := range []domain.IntentStatus{
		domain.IntentStatusSucceeded,
		domain.IntentStatusCancelled,
		domain.IntentStatusExpired,
	} {
		t.Run(string(status), func(t *testing.T) {
			i := testutil.SeedIntent(t, db, "stripe", 1500, status)

			err := repo.UpdateStatusDirect(ctx, i.ID, domain.IntentStatusRequiresMethod, nil)
			assert.ErrorIs(t, err, domain.ErrIntentTerminal)

			var stored domain.IntentStatus
			require.NoError(t, db.QueryRow(
				`SELECT status FROM payment_intents WHERE id = $1`, i.ID,
			).Scan(&stored))
			assert.Equal(t, status, stored)
		})
	}
}

func TestUpdateStatusDirect_AdvancesNonTerminalIntent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewIntentRepository(db)
	ctx := context.Background()

	i := testutil.SeedIntent(t, db, "stripe", 1500, domain.IntentStatusRequiresConfirmation)

	require.NoError(t, repo.UpdateStatusDirect(ctx, i.ID, domain.IntentStatusProcessing, nil))

	var stored domain.IntentStatus
	require.NoError(t, db.QueryRow(
		`SELECT status FROM payment_intents WHERE id = $1`, i.ID,
	).Scan(&stored))
	assert.Equal(t, domain.IntentStatusProcessing, stored)
}

func TestUpdateStatusDirect_UnknownIntent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewIntentRepository(db)

	err := repo.UpdateStatusDirect(context.Background(), uuid.New(), domain.IntentStatusProcessing, nil)
	assert.ErrorIs(t, err, domain.ErrIntentNotFound)
}
