package main

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"slaydrip/backend/internal/config"
	"slaydrip/backend/internal/invoice"
)

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "short", ManagerPIN: "739154"})
	if err == nil {
		t.Fatalf("expected short secret to be rejected")
	}
	for _, pin := range []string{"123456", "987654", "777777", "12345"} {
		err := validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef", ManagerPIN: pin})
		if err == nil {
			t.Fatalf("expected weak pin %q to be rejected", pin)
		}
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef", ManagerPIN: "739154"})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}

func TestDefaultInvoiceBackends(t *testing.T) {
	cfg := config.Config{InvoiceRenderer: "html", InvoiceStorage: "fs", InvoiceDir: t.TempDir()}

	renderer, closeFn := newRenderer(cfg, zerolog.Nop())
	if _, ok := renderer.(invoice.HTMLRenderer); !ok || closeFn != nil {
		t.Fatalf("expected html renderer without closer, got %T", renderer)
	}

	storage, err := newStorage(context.Background(), cfg)
	if err != nil {
		t.Fatalf("file storage: %v", err)
	}
	if _, ok := storage.(*invoice.FileStorage); !ok {
		t.Fatalf("expected file storage, got %T", storage)
	}
}
