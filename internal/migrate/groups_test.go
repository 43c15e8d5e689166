package migrate

import (
	"regexp"
	"strings"
	"testing"
)

func TestFeatureGroupOrder(t *testing.T) {
	groups := FeatureGroups()
	want := []string{"notifications", "accounting", "vendor_purchase", "marketing"}
	if len(groups) != len(want) {
		t.Fatalf("got %d groups, want %d", len(groups), len(want))
	}
	for i, name := range want {
		if groups[i].Name != name {
			t.Errorf("group %d = %s, want %s", i, groups[i].Name, name)
		}
	}
}

// Every DDL statement must be safe to re-run: creates carry IF NOT EXISTS
// and nothing is destructive.
func TestGroupDDLIsIdempotentAndAdditive(t *testing.T) {
	createRe := regexp.MustCompile(`(?i)^\s*CREATE (TABLE|INDEX) IF NOT EXISTS`)
	addColumnRe := regexp.MustCompile(`(?i)^\s*ALTER TABLE \w+ ADD COLUMN IF NOT EXISTS`)
	destructiveRe := regexp.MustCompile(`(?i)\b(DROP|TRUNCATE|DELETE)\b`)

	for _, group := range FeatureGroups() {
		if len(group.Statements) == 0 {
			t.Errorf("group %s has no statements", group.Name)
		}
		for _, stmt := range group.Statements {
			norm := strings.Join(strings.Fields(stmt), " ")
			if !createRe.MatchString(norm) && !addColumnRe.MatchString(norm) {
				t.Errorf("group %s statement is not idempotent DDL: %s", group.Name, norm)
			}
			if destructiveRe.MatchString(norm) && !strings.Contains(norm, "ON DELETE CASCADE") {
				t.Errorf("group %s statement is destructive: %s", group.Name, norm)
			}
		}
	}
}

func TestNotificationsIndexes(t *testing.T) {
	group := notificationsGroup()
	wantIndexes := []string{
		"idx_notifications_user_read",
		"idx_notifications_target_roles",
		"idx_notifications_target_departments",
		"idx_notifications_created_at",
		"idx_notifications_category",
	}
	all := strings.Join(group.Statements, "\n")
	for _, idx := range wantIndexes {
		if !strings.Contains(all, idx) {
			t.Errorf("missing index %s", idx)
		}
	}
}

func TestCampaignProjection(t *testing.T) {
	tests := []struct {
		name    string
		present []string
		want    string
		wantOK  bool
	}{
		{
			name:    "old layout with all columns",
			present: []string{"campaign_name", "campaign_type", "status", "budget", "start_date", "end_date"},
			want:    "campaign_name, campaign_type, COALESCE(status, 'DRAFT'), budget, start_date, end_date",
			wantOK:  true,
		},
		{
			name:    "new layout with all columns",
			present: []string{"name", "type", "status", "budget", "start_date", "end_date"},
			want:    "name, type, COALESCE(status, 'DRAFT'), budget, start_date, end_date",
			wantOK:  true,
		},
		{
			name:    "old layout wins when both present",
			present: []string{"campaign_name", "name", "campaign_type", "type"},
			want:    "campaign_name, campaign_type, 'DRAFT', NULL, NULL, NULL",
			wantOK:  true,
		},
		{
			name:    "name only",
			present: []string{"name"},
			want:    "name, NULL, 'DRAFT', NULL, NULL, NULL",
			wantOK:  true,
		},
		{
			name:    "no usable name column",
			present: []string{"status", "budget"},
			wantOK:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			present := make(map[string]bool, len(tt.present))
			for _, col := range tt.present {
				present[col] = true
			}
			got, ok := campaignProjection(present)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("projection = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestJournalEntryLinesCascade(t *testing.T) {
	all := strings.Join(accountingGroup().Statements, "\n")
	if !strings.Contains(all, "journal_entry_lines") ||
		!strings.Contains(all, "REFERENCES journal_entries(id) ON DELETE CASCADE") {
		t.Error("journal entry lines must cascade-delete with their parent entry")
	}
}

func TestVendorLegacyColumnsCovered(t *testing.T) {
	all := strings.Join(vendorGroup().Statements, "\n")
	for _, col := range []string{"vendor_name", "phone_number"} {
		if !strings.Contains(all, "ADD COLUMN IF NOT EXISTS "+col) {
			t.Errorf("vendor group must add %s for legacy databases", col)
		}
	}
}
