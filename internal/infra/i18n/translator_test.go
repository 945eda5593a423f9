//go:build !integration

package i18n

import (
	"sort"
	"strings"
	"testing"
)

func TestTranslator(t *testing.T) {
	translator, err := newTranslatorFromBytes([]byte("greeting: Hola\nwelcome_user: Hola %s\nexpires: vence en %.1f horas"))
	if err != nil {
		t.Fatalf("newTranslatorFromBytes failed: %v", err)
	}

	t.Run("should translate a simple key", func(t *testing.T) {
		if got := translator.T("greeting"); got != "Hola" {
			t.Errorf("wanted 'Hola', got '%s'", got)
		}
	})

	t.Run("should return key if not found", func(t *testing.T) {
		if got := translator.T("nonexistent_key"); got != "nonexistent_key" {
			t.Errorf("wanted 'nonexistent_key', got '%s'", got)
		}
	})

	t.Run("should format arguments correctly", func(t *testing.T) {
		if got := translator.T("welcome_user", "Ana"); got != "Hola Ana" {
			t.Errorf("wanted 'Hola Ana', got '%s'", got)
		}
		if got := translator.T("expires", 23.5); got != "vence en 23.5 horas" {
			t.Errorf("got '%s'", got)
		}
	})

	t.Run("should reject malformed yaml", func(t *testing.T) {
		if _, err := newTranslatorFromBytes([]byte("a: [unclosed")); err == nil {
			t.Fatal("expected an error")
		}
	})
}

func TestEmbeddedCatalogs(t *testing.T) {
	es, err := NewTranslator(LocalesFS, "es")
	if err != nil {
		t.Fatalf("load es: %v", err)
	}
	en, err := NewTranslator(LocalesFS, "en")
	if err != nil {
		t.Fatalf("load en: %v", err)
	}

	t.Run("should ship the same keys in every language", func(t *testing.T) {
		a, b := es.Keys(), en.Keys()
		sort.Strings(a)
		sort.Strings(b)
		if strings.Join(a, ",") != strings.Join(b, ",") {
			t.Fatalf("catalogs differ:\nes=%v\nen=%v", a, b)
		}
	})

	t.Run("should render the purchase request caption", func(t *testing.T) {
		got := es.T("admin_purchase_request", "Ana", int64(42), "30 días", "💳 Saldo", "-")
		if !strings.Contains(got, "Ana (42)") || strings.Contains(got, "%!") {
			t.Fatalf("caption = %q", got)
		}
	})

	t.Run("should fail for an unknown language", func(t *testing.T) {
		if _, err := NewTranslator(LocalesFS, "xx"); err == nil {
			t.Fatal("expected an error")
		}
		if es.Lang() != "es" {
			t.Errorf("Lang() = %q", es.Lang())
		}
	})
}
