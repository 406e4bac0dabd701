package suppression

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/pennywise-app/nudge-engine/internal/domain"
	"github.com/pennywise-app/nudge-engine/internal/repository/sqlite"
)

var admitNow = time.Date(2026, 8, 23, 7, 0, 0, 0, time.UTC)

func newTestLedger(t *testing.T) (*Ledger, *sqlite.Store) {
	t.Helper()

	store, err := sqlite.Open(filepath.Join(t.TempDir(), "nudge.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if err := store.InitSchema(context.Background()); err != nil {
		t.Fatalf("failed to init schema: %v", err)
	}

	return NewLedger(store, zap.NewNop()), store
}

func deliverAt(t *testing.T, store *sqlite.Store, userID, ruleID string, at time.Time) {
	t.Helper()
	err := store.CreateDelivery(context.Background(), &domain.Delivery{
		DeliveryID:  "delivery_" + ruleID + at.Format("20060102T150405"),
		UserID:      userID,
		RuleID:      ruleID,
		Category:    "dining",
		Title:       "t",
		Body:        "b",
		DeliveredAt: at,
	})
	if err != nil {
		t.Fatalf("failed to seed delivery: %v", err)
	}
}

func TestLedger_Admit_FreshUser(t *testing.T) {
	ledger, _ := newTestLedger(t)

	decision, err := ledger.Admit(context.Background(), "user_1", "rule_dining", "dining", 7, admitNow)

	assert.NoError(t, err)
	assert.True(t, decision.Admitted)
	assert.Empty(t, decision.Reason)
}

func TestLedger_Admit_MutedCategory(t *testing.T) {
	ledger, store := newTestLedger(t)
	ctx := context.Background()

	assert.NoError(t, store.PutPrefs(ctx, domain.UserPrefs{
		UserID:          "user_1",
		MutedCategories: []string{"dining"},
	}))

	decision, err := ledger.Admit(ctx, "user_1", "rule_dining", "dining", 7, admitNow)

	assert.NoError(t, err)
	assert.False(t, decision.Admitted)
	assert.Equal(t, ReasonMuted, decision.Reason)
}

func TestLedger_Admit_MuteWinsOverCooldown(t *testing.T) {
	ledger, store := newTestLedger(t)
	ctx := context.Background()

	assert.NoError(t, store.PutPrefs(ctx, domain.UserPrefs{
		UserID:          "user_1",
		MutedCategories: []string{"dining"},
	}))
	deliverAt(t, store, "user_1", "rule_dining", admitNow.Add(-time.Hour))

	decision, err := ledger.Admit(ctx, "user_1", "rule_dining", "dining", 7, admitNow)

	assert.NoError(t, err)
	assert.Equal(t, ReasonMuted, decision.Reason)
}

func TestLedger_Admit_RuleCooldown(t *testing.T) {
	ledger, store := newTestLedger(t)
	ctx := context.Background()

	// Fired 5 days ago with a 7 day cooldown: still cooling down.
	deliverAt(t, store, "user_1", "rule_dining", admitNow.AddDate(0, 0, -5))

	decision, err := ledger.Admit(ctx, "user_1", "rule_dining", "dining", 7, admitNow)

	assert.NoError(t, err)
	assert.False(t, decision.Admitted)
	assert.Equal(t, ReasonCooldown, decision.Reason)
}

func TestLedger_Admit_CooldownExpired(t *testing.T) {
	ledger, store := newTestLedger(t)
	ctx := context.Background()

	// Fired 8 days ago with a 7 day cooldown: eligible again.
	deliverAt(t, store, "user_1", "rule_dining", admitNow.AddDate(0, 0, -8))

	decision, err := ledger.Admit(ctx, "user_1", "rule_dining", "dining", 7, admitNow)

	assert.NoError(t, err)
	assert.True(t, decision.Admitted)
}

func TestLedger_Admit_GlobalThrottle(t *testing.T) {
	ledger, store := newTestLedger(t)
	ctx := context.Background()

	// A different rule fired 2 hours ago; the 24h global window blocks
	// every other rule for this user.
	deliverAt(t, store, "user_1", "rule_budget", admitNow.Add(-2*time.Hour))

	decision, err := ledger.Admit(ctx, "user_1", "rule_dining", "dining", 7, admitNow)

	assert.NoError(t, err)
	assert.False(t, decision.Admitted)
	assert.Equal(t, ReasonGlobalThrottle, decision.Reason)
}

func TestLedger_Admit_GlobalThrottleExpired(t *testing.T) {
	ledger, store := newTestLedger(t)
	ctx := context.Background()

	deliverAt(t, store, "user_1", "rule_budget", admitNow.Add(-25*time.Hour))

	decision, err := ledger.Admit(ctx, "user_1", "rule_dining", "dining", 7, admitNow)

	assert.NoError(t, err)
	assert.True(t, decision.Admitted)
}

func TestLedger_Admit_CooldownCheckedBeforeGlobalThrottle(t *testing.T) {
	ledger, store := newTestLedger(t)
	ctx := context.Background()

	// The same rule fired 2 hours ago: both windows apply, cooldown is the
	// reported reason.
	deliverAt(t, store, "user_1", "rule_dining", admitNow.Add(-2*time.Hour))

	decision, err := ledger.Admit(ctx, "user_1", "rule_dining", "dining", 7, admitNow)

	assert.NoError(t, err)
	assert.Equal(t, ReasonCooldown, decision.Reason)
}

func TestLedger_Admit_OtherUsersDoNotInterfere(t *testing.T) {
	ledger, store := newTestLedger(t)
	ctx := context.Background()

	deliverAt(t, store, "user_2", "rule_dining", admitNow.Add(-time.Hour))

	decision, err := ledger.Admit(ctx, "user_1", "rule_dining", "dining", 7, admitNow)

	assert.NoError(t, err)
	assert.True(t, decision.Admitted)
}

func TestLedger_Lock_SerializesPerUser(t *testing.T) {
	ledger, _ := newTestLedger(t)

	unlock := ledger.Lock("user_1")

	acquired := make(chan struct{})
	go func() {
		innerUnlock := ledger.Lock("user_1")
		innerUnlock()
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while first still held")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second lock never acquired after release")
	}
}

func TestLedger_Lock_DifferentUsersDoNotContend(t *testing.T) {
	ledger, _ := newTestLedger(t)

	unlock := ledger.Lock("user_1")
	defer unlock()

	done := make(chan struct{})
	go func() {
		otherUnlock := ledger.Lock("user_2")
		otherUnlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock for a different user blocked")
	}
}
