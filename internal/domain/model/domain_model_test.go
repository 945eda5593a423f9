//go:build !integration

package model

import (
	"errors"
	"strings"
	"testing"
	"time"

	"telegram-vpn-provisioning/internal/domain"
)

func testCatalog(t *testing.T) *PlanCatalog {
	t.Helper()
	c, err := NewPlanCatalog(
		PlanDefinition{Key: "free", Name: "Free (5 horas)", Hours: 5},
		PlanDefinition{Key: "d15", Name: "15 días", Days: 15},
		PlanDefinition{Key: "d30", Name: "30 días", Days: 30},
	)
	if err != nil {
		t.Fatalf("expected valid catalog, got: %v", err)
	}
	return c
}

// --- Expiration Policy Tests ---

func TestComputeExpiry(t *testing.T) {
	c := testCatalog(t)
	now := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)

	t.Run("should add the exact plan offset", func(t *testing.T) {
		for _, p := range c.List() {
			got, err := c.ComputeExpiry(p.Name, now)
			if err != nil {
				t.Fatalf("expected no error for %q, got: %v", p.Name, err)
			}
			if !got.Equal(now.Add(p.Duration())) {
				t.Errorf("plan %q: expected %v, got %v", p.Name, now.Add(p.Duration()), got)
			}
		}
	})

	t.Run("should not drift on repeated computation", func(t *testing.T) {
		p, _ := c.ByName("30 días")
		first := ComputeExpiry(p, now)
		for i := 0; i < 100; i++ {
			if got := ComputeExpiry(p, now); !got.Equal(first) {
				t.Fatalf("iteration %d drifted: %v != %v", i, got, first)
			}
		}
	})

	t.Run("should normalize to UTC", func(t *testing.T) {
		loc := time.FixedZone("UTC-5", -5*3600)
		p, _ := c.ByName("Free (5 horas)")
		got := ComputeExpiry(p, now.In(loc))
		if got.Location() != time.UTC {
			t.Errorf("expected UTC location, got %v", got.Location())
		}
	})

	t.Run("should reject unknown plans", func(t *testing.T) {
		_, err := c.ComputeExpiry("99 días", now)
		if !errors.Is(err, domain.ErrInvalidPlan) {
			t.Fatalf("expected ErrInvalidPlan, got: %v", err)
		}
	})
}

func TestNewPlanCatalog(t *testing.T) {
	tests := []struct {
		name  string
		plans []PlanDefinition
	}{
		{"empty", nil},
		{"zero duration", []PlanDefinition{{Key: "z", Name: "zero"}}},
		{"negative", []PlanDefinition{{Key: "n", Name: "neg", Days: -1, Hours: 30}}},
		{"duplicate name", []PlanDefinition{{Key: "a", Name: "x", Days: 1}, {Key: "b", Name: "x", Days: 2}}},
		{"duplicate key", []PlanDefinition{{Key: "a", Name: "x", Days: 1}, {Key: "a", Name: "y", Days: 2}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewPlanCatalog(tt.plans...); !errors.Is(err, domain.ErrInvalidArgument) {
				t.Errorf("expected ErrInvalidArgument, got: %v", err)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	window := 72 * time.Hour

	tests := []struct {
		name      string
		expiresAt time.Time
		want      ExpiryStatus
	}{
		{"long ago", now.Add(-30 * 24 * time.Hour), ExpiryExpired},
		{"one nanosecond ago", now.Add(-time.Nanosecond), ExpiryExpired},
		{"exactly now", now, ExpiryExpiringSoon},
		{"inside window", now.Add(24 * time.Hour), ExpiryExpiringSoon},
		{"window edge", now.Add(window), ExpiryExpiringSoon},
		{"just past window", now.Add(window + time.Nanosecond), ExpiryActive},
		{"far future", now.Add(365 * 24 * time.Hour), ExpiryActive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.expiresAt, now, window); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}

	t.Run("should map every offset to exactly one status", func(t *testing.T) {
		for h := -200; h <= 200; h++ {
			s := Classify(now.Add(time.Duration(h)*time.Hour), now, window)
			switch s {
			case ExpiryActive, ExpiryExpiringSoon, ExpiryExpired:
			default:
				t.Fatalf("offset %dh produced unknown status %q", h, s)
			}
		}
	})
}

func TestDaysRemaining(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if got := DaysRemaining(now.Add(71*time.Hour), now); got != 2 {
		t.Errorf("expected 2 whole days, got %d", got)
	}
	if got := DaysRemaining(now.Add(-time.Hour), now); got != -1 {
		t.Errorf("expected -1 for an hour past expiry, got %d", got)
	}
	if got := HoursRemaining(now.Add(90*time.Minute), now); got != 1.5 {
		t.Errorf("expected 1.5 hours, got %v", got)
	}
}

// --- Client Record Tests ---

func TestSanitizeClientID(t *testing.T) {
	tests := []struct{ in, want string }{
		{"alice", "alice"},
		{"  Juan Pérez ", "Juan_P_rez"},
		{"../../etc/passwd", "______etc_passwd"},
		{"", "cliente"},
		{"ok-name_1", "ok-name_1"},
	}
	for _, tt := range tests {
		if got := SanitizeClientID(tt.in); got != tt.want {
			t.Errorf("SanitizeClientID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	long := SanitizeClientID(strings.Repeat("x", 100))
	if len(long) != MaxClientIDLength {
		t.Errorf("expected length %d, got %d", MaxClientIDLength, len(long))
	}
}

func TestDeriveClientID(t *testing.T) {
	at := time.Date(2026, 10, 16, 9, 5, 7, 0, time.UTC)

	t.Run("should combine name, requester, instant and purchase", func(t *testing.T) {
		if got := DeriveClientID("Ana María", 42, at, "01JA2B3C4D5E6F7G8H9JKMNPQR"); got != "Ana_Mar_a_42_1016090507_npqr" {
			t.Errorf("unexpected derived id %q", got)
		}
		if got := DeriveClientID("", 7, at, ""); got != "user_7_1016090507" {
			t.Errorf("unexpected derived id for empty name %q", got)
		}
	})

	t.Run("should differ for two purchases approved in the same second", func(t *testing.T) {
		a := DeriveClientID("Ana", 42, at, "01JA2B3C4D5E6F7G8H9JKMAAAA")
		b := DeriveClientID("Ana", 42, at, "01JA2B3C4D5E6F7G8H9JKMBBBB")
		if a == b {
			t.Errorf("expected distinct ids, both %q", a)
		}
	})

	t.Run("should keep the suffix when the name is long", func(t *testing.T) {
		got := DeriveClientID(strings.Repeat("x", 80), 1383931339, at, "01JA2B3C4D5E6F7G8H9JKMNPQR")
		if len(got) > MaxClientIDLength {
			t.Errorf("expected at most %d chars, got %d", MaxClientIDLength, len(got))
		}
		if !strings.HasSuffix(got, "_1383931339_1016090507_npqr") {
			t.Errorf("expected suffix preserved, got %q", got)
		}
	})
}

func TestNewClientRecord(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*3600)
	exp := time.Date(2026, 5, 1, 15, 0, 0, 0, loc)
	rec, err := NewClientRecord("alice", "30 días", exp, 0)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if rec.ExpiresAt.Location() != time.UTC || !rec.ExpiresAt.Equal(exp) {
		t.Errorf("expected UTC-normalized expiry, got %v", rec.ExpiresAt)
	}
	if _, err := NewClientRecord("", "30 días", exp, 0); err == nil {
		t.Error("expected error for empty id")
	}
}

// --- Pending Purchase Tests ---

func TestPendingPurchaseTransitions(t *testing.T) {
	now := time.Now()
	cash := PaymentMethod{ID: "balance-transfer"}
	card := PaymentMethod{ID: "card-transfer", RequiresCode: true}

	t.Run("should go straight to approval without a code", func(t *testing.T) {
		p, _ := NewPendingPurchase("p1", 10, "ana", now)
		mustNoErr(t, p.SelectPlan("15 días", now))
		mustNoErr(t, p.SelectMethod(cash, now))
		mustNoErr(t, p.SubmitEvidence("file-1", now))
		if p.State != PurchaseAwaitingApproval {
			t.Fatalf("expected awaiting approval, got %s", p.State)
		}
	})

	t.Run("should require a code for card transfers", func(t *testing.T) {
		p, _ := NewPendingPurchase("p2", 10, "ana", now)
		mustNoErr(t, p.SelectPlan("15 días", now))
		mustNoErr(t, p.SelectMethod(card, now))
		mustNoErr(t, p.SubmitEvidence("file-1", now))
		if p.State != PurchaseAwaitingConfirmationCode {
			t.Fatalf("expected awaiting code, got %s", p.State)
		}
		if err := p.SubmitCode("   ", now); !errors.Is(err, domain.ErrInvalidTransition) {
			t.Errorf("expected blank code to be rejected, got: %v", err)
		}
		mustNoErr(t, p.SubmitCode(" 12345 ", now))
		if p.State != PurchaseAwaitingApproval || p.ConfirmationCode != "12345" {
			t.Fatalf("unexpected purchase after code: %+v", p)
		}
	})

	t.Run("should reset progress when a plan is selected again", func(t *testing.T) {
		p, _ := NewPendingPurchase("p3", 10, "ana", now)
		mustNoErr(t, p.SelectPlan("15 días", now))
		mustNoErr(t, p.SelectMethod(card, now))
		mustNoErr(t, p.SubmitEvidence("file-1", now))
		mustNoErr(t, p.SelectPlan("30 días", now))
		if p.State != PurchaseAwaitingMethod || p.PaymentMethod != "" || p.ReceiptReference != "" || p.RequiresCode {
			t.Fatalf("expected cleared progress, got %+v", p)
		}
	})

	t.Run("should refuse a code before evidence", func(t *testing.T) {
		p, _ := NewPendingPurchase("p4", 10, "ana", now)
		if err := p.SubmitCode("999", now); !errors.Is(err, domain.ErrInvalidTransition) {
			t.Fatalf("expected ErrInvalidTransition, got: %v", err)
		}
		if p.State != PurchaseAwaitingPlan {
			t.Errorf("state changed to %s", p.State)
		}
	})

	t.Run("should not leave a terminal state", func(t *testing.T) {
		p, _ := NewPendingPurchase("p5", 10, "ana", now)
		mustNoErr(t, p.Cancel(now))
		if err := p.SelectPlan("15 días", now); err == nil {
			t.Error("expected error selecting a plan after cancel")
		}
		if err := p.Decide(true, now); err == nil {
			t.Error("expected error approving after cancel")
		}
	})

	t.Run("should reject from any open state", func(t *testing.T) {
		p, _ := NewPendingPurchase("p6", 10, "ana", now)
		mustNoErr(t, p.SelectPlan("15 días", now))
		mustNoErr(t, p.Decide(false, now))
		if p.State != PurchaseRejected {
			t.Errorf("expected rejected, got %s", p.State)
		}
	})

	t.Run("should approve only from awaiting approval", func(t *testing.T) {
		p, _ := NewPendingPurchase("p7", 10, "ana", now)
		mustNoErr(t, p.SelectPlan("15 días", now))
		if err := p.Decide(true, now); !errors.Is(err, domain.ErrInvalidTransition) {
			t.Errorf("expected ErrInvalidTransition, got: %v", err)
		}
	})
}

func mustNoErr(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
