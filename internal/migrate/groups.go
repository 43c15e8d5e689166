package migrate

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// FeatureGroups returns the four feature-schema groups in execution order.
// Sequential order is part of the contract: log lines per group arrive in a
// fixed order and each group commits or rolls back alone.
func FeatureGroups() []Group {
	return []Group{
		notificationsGroup(),
		accountingGroup(),
		vendorGroup(),
		marketingGroup(),
	}
}

// notificationsGroup keeps the eventual read patterns (unread count per
// user/role/department, recency, category filtering) index-backed from day
// one.
func notificationsGroup() Group {
	return Group{
		Name: "notifications",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS notifications (
				id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
				user_id UUID,
				title TEXT NOT NULL,
				message TEXT NOT NULL,
				category TEXT NOT NULL DEFAULT 'GENERAL',
				target_roles TEXT[],
				target_departments TEXT[],
				is_read BOOLEAN NOT NULL DEFAULT FALSE,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
			`CREATE INDEX IF NOT EXISTS idx_notifications_user_read ON notifications (user_id, is_read)`,
			`CREATE INDEX IF NOT EXISTS idx_notifications_target_roles ON notifications USING GIN (target_roles)`,
			`CREATE INDEX IF NOT EXISTS idx_notifications_target_departments ON notifications USING GIN (target_departments)`,
			`CREATE INDEX IF NOT EXISTS idx_notifications_created_at ON notifications (created_at)`,
			`CREATE INDEX IF NOT EXISTS idx_notifications_category ON notifications (category)`,
		},
	}
}

func accountingGroup() Group {
	return Group{
		Name: "accounting",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS accounts (
				id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
				account_code TEXT NOT NULL UNIQUE,
				account_name TEXT NOT NULL,
				account_type TEXT NOT NULL,
				parent_account_id UUID REFERENCES accounts(id),
				is_active BOOLEAN NOT NULL DEFAULT TRUE,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
			`CREATE TABLE IF NOT EXISTS journal_entries (
				id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
				entry_number TEXT NOT NULL UNIQUE,
				entry_date DATE NOT NULL,
				description TEXT,
				status TEXT NOT NULL DEFAULT 'DRAFT',
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
			`CREATE TABLE IF NOT EXISTS journal_entry_lines (
				id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
				journal_entry_id UUID NOT NULL REFERENCES journal_entries(id) ON DELETE CASCADE,
				account_id UUID REFERENCES accounts(id),
				debit NUMERIC(14,2) NOT NULL DEFAULT 0,
				credit NUMERIC(14,2) NOT NULL DEFAULT 0,
				memo TEXT
			)`,
			`CREATE TABLE IF NOT EXISTS expenses (
				id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
				account_id UUID REFERENCES accounts(id),
				amount NUMERIC(14,2) NOT NULL,
				expense_date DATE NOT NULL,
				description TEXT,
				receipt_url TEXT,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
			`CREATE TABLE IF NOT EXISTS budgets (
				id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
				account_id UUID REFERENCES accounts(id),
				fiscal_year INT NOT NULL,
				amount NUMERIC(14,2) NOT NULL,
				notes TEXT
			)`,
			`CREATE TABLE IF NOT EXISTS fiscal_years (
				id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
				year INT NOT NULL UNIQUE,
				start_date DATE NOT NULL,
				end_date DATE NOT NULL,
				is_closed BOOLEAN NOT NULL DEFAULT FALSE
			)`,
		},
	}
}

// vendorGroup also carries the legacy column migration: older databases
// named the vendor columns name/phone, newer ones vendor_name/phone_number.
// The add-column statements make the target columns exist everywhere; the
// post step copies legacy values exactly once, only where the source column
// is present and the target is still empty.
func vendorGroup() Group {
	return Group{
		Name: "vendor_purchase",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS vendors (
				id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
				vendor_name TEXT,
				phone_number TEXT,
				email TEXT,
				address TEXT,
				is_active BOOLEAN NOT NULL DEFAULT TRUE,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
			`ALTER TABLE vendors ADD COLUMN IF NOT EXISTS vendor_name TEXT`,
			`ALTER TABLE vendors ADD COLUMN IF NOT EXISTS phone_number TEXT`,
			`CREATE TABLE IF NOT EXISTS vendor_payments (
				id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
				vendor_id UUID REFERENCES vendors(id),
				amount NUMERIC(14,2) NOT NULL,
				payment_date DATE NOT NULL,
				payment_method TEXT,
				reference TEXT
			)`,
			`CREATE TABLE IF NOT EXISTS purchase_orders (
				id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
				order_number TEXT NOT NULL UNIQUE,
				vendor_id UUID REFERENCES vendors(id),
				status TEXT NOT NULL DEFAULT 'OPEN',
				order_date DATE NOT NULL DEFAULT CURRENT_DATE,
				total_amount NUMERIC(14,2) NOT NULL DEFAULT 0
			)`,
			`CREATE TABLE IF NOT EXISTS purchase_order_items (
				id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
				purchase_order_id UUID NOT NULL REFERENCES purchase_orders(id) ON DELETE CASCADE,
				description TEXT NOT NULL,
				quantity NUMERIC(12,2) NOT NULL DEFAULT 1,
				unit_price NUMERIC(14,2) NOT NULL DEFAULT 0
			)`,
		},
		Post: migrateLegacyVendorColumns,
	}
}

func migrateLegacyVendorColumns(ctx context.Context, tx pgx.Tx) error {
	renames := []struct{ from, to string }{
		{"name", "vendor_name"},
		{"phone", "phone_number"},
	}
	for _, rename := range renames {
		present, err := columnExists(ctx, tx, "vendors", rename.from)
		if err != nil {
			return err
		}
		if !present {
			continue
		}
		stmt := fmt.Sprintf(`UPDATE vendors SET %s = %s WHERE %s IS NULL`,
			rename.to, rename.from, rename.to)
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to copy vendors.%s: %w", rename.from, err)
		}
	}
	return nil
}

// marketingGroup creates the canonical campaigns table and backfills it
// from a legacy campaigns table when one exists, whichever of the two
// historical column layouts it carries.
func marketingGroup() Group {
	return Group{
		Name: "marketing",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS marketing_campaigns (
				id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
				name TEXT NOT NULL UNIQUE,
				type TEXT,
				status TEXT NOT NULL DEFAULT 'DRAFT',
				budget NUMERIC(14,2),
				start_date DATE,
				end_date DATE,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
		},
		Post: backfillCampaigns,
	}
}

// legacyCampaignColumns are the columns the backfill probes for in a legacy
// campaigns table.
var legacyCampaignColumns = []string{
	"campaign_name", "campaign_type", "name", "type",
	"status", "budget", "start_date", "end_date",
}

func backfillCampaigns(ctx context.Context, tx pgx.Tx) error {
	legacy, err := tableExists(ctx, tx, "campaigns")
	if err != nil {
		return err
	}
	if !legacy {
		return nil
	}

	present := make(map[string]bool, len(legacyCampaignColumns))
	for _, col := range legacyCampaignColumns {
		if present[col], err = columnExists(ctx, tx, "campaigns", col); err != nil {
			return err
		}
	}

	projection, ok := campaignProjection(present)
	if !ok {
		// No recognizable name column; nothing to migrate.
		return nil
	}

	stmt := `INSERT INTO marketing_campaigns (name, type, status, budget, start_date, end_date)
		SELECT ` + projection + ` FROM campaigns ON CONFLICT DO NOTHING`
	if _, err := tx.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("failed to backfill campaigns: %w", err)
	}
	return nil
}

// campaignProjection builds the SELECT list for the legacy campaigns table
// based on which columns are actually present. The two historical layouts
// are campaign_name/campaign_type and name/type; missing optional columns
// project as NULL. Returns false when no usable name column exists.
func campaignProjection(present map[string]bool) (string, bool) {
	var nameExpr string
	switch {
	case present["campaign_name"]:
		nameExpr = "campaign_name"
	case present["name"]:
		nameExpr = "name"
	default:
		return "", false
	}

	typeExpr := "NULL"
	switch {
	case present["campaign_type"]:
		typeExpr = "campaign_type"
	case present["type"]:
		typeExpr = "type"
	}

	// status is NOT NULL on the canonical table, so an absent or NULL legacy
	// value falls back to the default explicitly.
	statusExpr := `'DRAFT'`
	if present["status"] {
		statusExpr = `COALESCE(status, 'DRAFT')`
	}

	exprs := []string{nameExpr, typeExpr, statusExpr}
	for _, col := range []string{"budget", "start_date", "end_date"} {
		if present[col] {
			exprs = append(exprs, col)
		} else {
			exprs = append(exprs, "NULL")
		}
	}
	return strings.Join(exprs, ", "), true
}
