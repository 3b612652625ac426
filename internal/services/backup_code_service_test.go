package services_test

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/aegis-sec/aegis/internal/models"
	"github.com/aegis-sec/aegis/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// backupCodeStore gives the mock repository real consume semantics: a code is
// removed from the set at most once, under lock, like the SQL guard.
type backupCodeStore struct {
	mu    sync.Mutex
	codes map[string]bool
}

func newBackupCodeRepo(store *backupCodeStore) *services.MockAccountRepository {
	repo := &services.MockAccountRepository{}
	repo.SetBackupCodesFunc = func(ctx context.Context, id string, codes []string) error {
		store.mu.Lock()
		defer store.mu.Unlock()
		store.codes = make(map[string]bool, len(codes))
		for _, c := range codes {
			store.codes[c] = true
		}
		return nil
	}
	repo.ConsumeBackupCodeFunc = func(ctx context.Context, id, code string) (bool, error) {
		store.mu.Lock()
		defer store.mu.Unlock()
		if !store.codes[code] {
			return false, nil
		}
		delete(store.codes, code)
		return true, nil
	}
	repo.GetByIDFunc = func(ctx context.Context, id string) (*models.Account, error) {
		store.mu.Lock()
		defer store.mu.Unlock()
		remaining := make([]string, 0, len(store.codes))
		for c := range store.codes {
			remaining = append(remaining, c)
		}
		return &models.Account{ID: id, TwoFactorBackupCodes: remaining}, nil
	}
	return repo
}

func TestBackupCodeServiceGenerate_TenUppercaseCodes(t *testing.T) {
	store := &backupCodeStore{}
	events := &services.MockEventRecorder{}
	service := services.NewBackupCodeService(newBackupCodeRepo(store), events, testLogger())

	codes, err := service.GenerateBackupCodes(context.Background(), "acct_1")

	require.NoError(t, err)
	assert.Len(t, codes, 10)

	seen := make(map[string]bool)
	pattern := regexp.MustCompile(`^[0-9A-F]{16}$`)
	for _, c := range codes {
		assert.Regexp(t, pattern, c)
		assert.False(t, seen[c], "codes must be unique")
		seen[c] = true
	}

	assert.Equal(t, 1, events.CountByType(models.EventBackupCodesGenerated))
	// The plaintext codes never appear in event metadata.
	for _, e := range events.Events {
		for _, v := range e.Metadata {
			if s, ok := v.(string); ok {
				assert.False(t, seen[s])
			}
		}
	}
}

func TestBackupCodeServiceConsume_EachCodeWorksOnce(t *testing.T) {
	store := &backupCodeStore{}
	events := &services.MockEventRecorder{}
	service := services.NewBackupCodeService(newBackupCodeRepo(store), events, testLogger())
	ctx := context.Background()

	codes, err := service.GenerateBackupCodes(ctx, "acct_1")
	require.NoError(t, err)

	err = service.ConsumeBackupCode(ctx, "acct_1", codes[0])
	require.NoError(t, err)
	assert.Equal(t, 1, events.CountByType(models.EventBackupCodeConsumed))

	// Second submission of the same code is rejected.
	err = service.ConsumeBackupCode(ctx, "acct_1", codes[0])
	assert.ErrorIs(t, err, models.ErrCodeInvalid)

	// The remaining codes are unaffected.
	err = service.ConsumeBackupCode(ctx, "acct_1", codes[1])
	assert.NoError(t, err)
}

func TestBackupCodeServiceConsume_NormalizesInput(t *testing.T) {
	store := &backupCodeStore{}
	service := services.NewBackupCodeService(newBackupCodeRepo(store), &services.MockEventRecorder{}, testLogger())
	ctx := context.Background()

	codes, err := service.GenerateBackupCodes(ctx, "acct_1")
	require.NoError(t, err)

	lower := "  " + strings.ToLower(codes[0]) + " "
	err = service.ConsumeBackupCode(ctx, "acct_1", lower)
	assert.NoError(t, err)
}

func TestBackupCodeServiceConsume_UnknownCodeRejected(t *testing.T) {
	store := &backupCodeStore{}
	events := &services.MockEventRecorder{}
	service := services.NewBackupCodeService(newBackupCodeRepo(store), events, testLogger())
	ctx := context.Background()

	_, err := service.GenerateBackupCodes(ctx, "acct_1")
	require.NoError(t, err)

	err = service.ConsumeBackupCode(ctx, "acct_1", "FFFFFFFFFF")
	assert.ErrorIs(t, err, models.ErrCodeInvalid)
	assert.Equal(t, 1, events.CountByType(models.EventCodeRejected))
}

// Two concurrent submissions of the same code succeed at most once.
func TestBackupCodeServiceConsume_ConcurrentSameCode(t *testing.T) {
	store := &backupCodeStore{}
	service := services.NewBackupCodeService(newBackupCodeRepo(store), &services.MockEventRecorder{}, testLogger())
	ctx := context.Background()

	codes, err := service.GenerateBackupCodes(ctx, "acct_1")
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := service.ConsumeBackupCode(ctx, "acct_1", codes[0]); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
}

// Regenerating replaces the previous set entirely.
func TestBackupCodeServiceGenerate_ReplacesPreviousSet(t *testing.T) {
	store := &backupCodeStore{}
	service := services.NewBackupCodeService(newBackupCodeRepo(store), &services.MockEventRecorder{}, testLogger())
	ctx := context.Background()

	oldCodes, err := service.GenerateBackupCodes(ctx, "acct_1")
	require.NoError(t, err)

	_, err = service.GenerateBackupCodes(ctx, "acct_1")
	require.NoError(t, err)

	err = service.ConsumeBackupCode(ctx, "acct_1", oldCodes[0])
	assert.ErrorIs(t, err, models.ErrCodeInvalid)
}
