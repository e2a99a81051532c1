package models_test

import (
	"context"
	"errors"
	"testing"

	"github.com/mmdatafocus/backoffice/models"
	"github.com/mmdatafocus/backoffice/testsupport"
	"github.com/mmdatafocus/backoffice/utils"
)

func TestAuthorize(t *testing.T) {
	db := testsupport.OpenDB(t)
	testsupport.SeedTenant(t, db, "t1", "$")
	testsupport.SeedTenant(t, db, "t2", "₦")
	testsupport.SeedActor(t, db, "owner1", "t1", models.ActorRoleOwner)
	testsupport.SeedActor(t, db, "clerk1", "t1", models.ActorRoleClerk)
	testsupport.SeedActor(t, db, "viewer1", "t1", models.ActorRoleViewer)
	testsupport.SeedActor(t, db, "owner2", "t2", models.ActorRoleOwner)
	dir := models.NewTenantDirectory(db)
	ctx := context.Background()

	cases := []struct {
		name     string
		scope    models.Scope
		action   models.Action
		expected error
	}{
		{"owner restamps", models.NewScope("t1", "owner1"), models.ActionCurrencyRestamp, nil},
		{"clerk writes", models.NewScope("t1", "clerk1"), models.ActionTransactionWrite, nil},
		{"clerk cannot void", models.NewScope("t1", "clerk1"), models.ActionTransactionVoid, utils.ErrForbidden},
		{"viewer reads", models.NewScope("t1", "viewer1"), models.ActionReportRead, nil},
		{"viewer cannot write", models.NewScope("t1", "viewer1"), models.ActionTransactionWrite, utils.ErrForbidden},
		{"foreign actor", models.NewScope("t1", "owner2"), models.ActionReportRead, utils.ErrForbidden},
		{"unknown actor", models.NewScope("t1", "ghost"), models.ActionReportRead, utils.ErrForbidden},
		{"unknown tenant", models.NewScope("t9", "owner1"), models.ActionReportRead, utils.ErrNotFound},
		{"system actor", models.SystemScope("t2"), models.ActionProjectionSync, nil},
		{"system on unknown tenant", models.SystemScope("t9"), models.ActionProjectionSync, utils.ErrNotFound},
		{"missing tenant", models.NewScope("", "owner1"), models.ActionReportRead, utils.ErrInvalidInput},
	}
	for _, tc := range cases {
		tenant, err := dir.Authorize(ctx, tc.scope, tc.action)
		if tc.expected == nil {
			if err != nil {
				t.Fatalf("%s: unexpected error %v", tc.name, err)
			}
			if tenant.ID != tc.scope.TenantId {
				t.Fatalf("%s: expected tenant %s, got %s", tc.name, tc.scope.TenantId, tenant.ID)
			}
			continue
		}
		if !errors.Is(err, tc.expected) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.expected, err)
		}
	}
}

func TestTenantOfAndCurrency(t *testing.T) {
	db := testsupport.OpenDB(t)
	testsupport.SeedTenant(t, db, "t1", "₦")
	testsupport.SeedActor(t, db, "a1", "t1", models.ActorRoleAccountant)
	dir := models.NewTenantDirectory(db)
	ctx := context.Background()

	tenant, err := dir.TenantOf(ctx, "a1")
	if err != nil {
		t.Fatalf("tenant of: %v", err)
	}
	if tenant.ID != "t1" {
		t.Fatalf("expected t1, got %s", tenant.ID)
	}
	symbol, code, err := dir.Currency(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if symbol != "₦" || code != "NGN" {
		t.Fatalf("expected ₦/NGN, got %s/%s", symbol, code)
	}
	_, err = dir.TenantOf(ctx, "nobody")
	if !errors.Is(err, utils.ErrNotFound) || errors.Is(err, utils.ErrTenantNotFound) {
		t.Fatalf("expected a plain ErrNotFound for an unknown actor, got %v", err)
	}
	_, _, err = dir.Currency(ctx, "t404")
	if !errors.Is(err, utils.ErrTenantNotFound) || !errors.Is(err, utils.ErrNotFound) {
		t.Fatalf("expected ErrTenantNotFound, got %v", err)
	}

	ids, err := dir.ListTenantIds(ctx)
	if err != nil || len(ids) != 1 || ids[0] != "t1" {
		t.Fatalf("list tenants: %v %v", ids, err)
	}
}
