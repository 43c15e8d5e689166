package admin

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestValidIdentifier(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"users", true},
		{"_private", true},
		{"order_items2", true},
		{"", false},
		{"Users", false},
		{"1users", false},
		{"users; drop table x", false},
		{`us"ers`, false},
		{strings.Repeat("a", 64), false},
	}

	for _, tt := range tests {
		if got := ValidIdentifier(tt.name); got != tt.want {
			t.Errorf("ValidIdentifier(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestQuoteIdentifier(t *testing.T) {
	if got := quoteIdentifier("users"); got != `"users"` {
		t.Errorf("quoteIdentifier(users) = %s", got)
	}
	if got := quoteIdentifier(`we"ird`); got != `"we""ird"` {
		t.Errorf("quoteIdentifier escaping = %s", got)
	}
}

func TestGuardQuery(t *testing.T) {
	tests := []struct {
		name    string
		sql     string
		want    string
		wantErr bool
	}{
		{
			name: "plain select gets limit",
			sql:  "select 1",
			want: "select 1 LIMIT 100",
		},
		{
			name: "existing limit preserved",
			sql:  "SELECT * FROM users LIMIT 5",
			want: "SELECT * FROM users LIMIT 5",
		},
		{
			name: "leading whitespace and case",
			sql:  "  SeLeCt id FROM users",
			want: "SeLeCt id FROM users LIMIT 100",
		},
		{
			name: "trailing semicolon stripped before limit",
			sql:  "select id from users;",
			want: "select id from users LIMIT 100",
		},
		{
			name:    "delete rejected",
			sql:     "delete from users",
			wantErr: true,
		},
		{
			name:    "update rejected",
			sql:     "UPDATE users SET name = 'x'",
			wantErr: true,
		},
		{
			name:    "empty rejected",
			sql:     "   ",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := guardQuery(tt.sql)
			if tt.wantErr {
				if !errors.Is(err, ErrQueryRejected) {
					t.Fatalf("expected ErrQueryRejected, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("guardQuery(%q) = %q, want %q", tt.sql, got, tt.want)
			}
		})
	}
}

func TestBuildBrowseQuery(t *testing.T) {
	columns := []string{"id", "title", "body", "created_at"}
	textColumns := []string{"title", "body"}

	t.Run("defaults", func(t *testing.T) {
		dataSQL, countSQL, args := buildBrowseQuery("posts", columns, nil, BrowseOptions{})
		want := `SELECT * FROM "posts" ORDER BY "id" DESC LIMIT 50 OFFSET 0`
		if dataSQL != want {
			t.Errorf("dataSQL = %q, want %q", dataSQL, want)
		}
		if countSQL != `SELECT COUNT(*) FROM "posts"` {
			t.Errorf("countSQL = %q", countSQL)
		}
		if len(args) != 0 {
			t.Errorf("args = %v, want none", args)
		}
	})

	t.Run("search across text columns binds one parameter", func(t *testing.T) {
		dataSQL, countSQL, args := buildBrowseQuery("posts", columns, textColumns, BrowseOptions{
			Page: 2, Limit: 10, Search: "hello",
		})
		wantWhere := ` WHERE "title" ILIKE $1 OR "body" ILIKE $1`
		if !strings.Contains(dataSQL, wantWhere) {
			t.Errorf("dataSQL missing search clause: %q", dataSQL)
		}
		if !strings.Contains(countSQL, wantWhere) {
			t.Errorf("countSQL missing search clause: %q", countSQL)
		}
		if !strings.HasSuffix(dataSQL, "LIMIT 10 OFFSET 10") {
			t.Errorf("dataSQL pagination wrong: %q", dataSQL)
		}
		if strings.Contains(countSQL, "LIMIT") || strings.Contains(countSQL, "ORDER BY") {
			t.Errorf("countSQL must not order or limit: %q", countSQL)
		}
		if !reflect.DeepEqual(args, []any{"%hello%"}) {
			t.Errorf("args = %v", args)
		}
	})

	t.Run("search with no text columns is a no-op", func(t *testing.T) {
		dataSQL, _, args := buildBrowseQuery("posts", columns, nil, BrowseOptions{Search: "zzz-no-match"})
		if strings.Contains(dataSQL, "WHERE") {
			t.Errorf("unexpected WHERE clause: %q", dataSQL)
		}
		if len(args) != 0 {
			t.Errorf("args = %v, want none", args)
		}
	})

	t.Run("known sort column ascending", func(t *testing.T) {
		dataSQL, _, _ := buildBrowseQuery("posts", columns, nil, BrowseOptions{
			SortBy: "created_at", SortOrder: "asc",
		})
		if !strings.Contains(dataSQL, `ORDER BY "created_at" ASC`) {
			t.Errorf("dataSQL = %q", dataSQL)
		}
	})

	t.Run("unknown sort column falls back to first column", func(t *testing.T) {
		dataSQL, _, _ := buildBrowseQuery("posts", columns, nil, BrowseOptions{
			SortBy: "evil; drop table posts",
		})
		if !strings.Contains(dataSQL, `ORDER BY "id" DESC`) {
			t.Errorf("dataSQL = %q", dataSQL)
		}
	})
}

func TestBuildInsertQuery(t *testing.T) {
	t.Run("single column primary key returns id", func(t *testing.T) {
		sql, args, err := buildInsertQuery("users", map[string]any{
			"name": "Ada", "email": "ada@example.com",
		}, []string{"id"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := `INSERT INTO "users" ("email", "name") VALUES ($1, $2) RETURNING "id"`
		if sql != want {
			t.Errorf("sql = %q, want %q", sql, want)
		}
		if !reflect.DeepEqual(args, []any{"ada@example.com", "Ada"}) {
			t.Errorf("args = %v", args)
		}
	})

	t.Run("no primary key omits returning", func(t *testing.T) {
		sql, _, err := buildInsertQuery("audit_log", map[string]any{"event": "login"}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if strings.Contains(sql, "RETURNING") {
			t.Errorf("sql should not contain RETURNING: %q", sql)
		}
	})

	t.Run("composite primary key omits returning", func(t *testing.T) {
		sql, _, err := buildInsertQuery("memberships", map[string]any{"role": "admin"}, []string{"user_id", "team_id"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if strings.Contains(sql, "RETURNING") {
			t.Errorf("sql should not contain RETURNING: %q", sql)
		}
	})

	t.Run("empty payload errors", func(t *testing.T) {
		if _, _, err := buildInsertQuery("users", map[string]any{}, []string{"id"}); err == nil {
			t.Error("expected error for empty payload")
		}
	})
}

func TestBuildUpdateQuery(t *testing.T) {
	t.Run("primary key columns excluded from set list", func(t *testing.T) {
		sql, args, err := buildUpdateQuery("users",
			[]string{"id"},
			map[string]any{"id": 7},
			map[string]any{"id": 99, "name": "Ada"},
		)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := `UPDATE "users" SET "name" = $1 WHERE "id" = $2`
		if sql != want {
			t.Errorf("sql = %q, want %q", sql, want)
		}
		if !reflect.DeepEqual(args, []any{"Ada", 7}) {
			t.Errorf("args = %v", args)
		}
	})

	t.Run("composite key builds full tuple where", func(t *testing.T) {
		sql, args, err := buildUpdateQuery("memberships",
			[]string{"user_id", "team_id"},
			map[string]any{"user_id": 1, "team_id": 2},
			map[string]any{"role": "owner"},
		)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := `UPDATE "memberships" SET "role" = $1 WHERE "user_id" = $2 AND "team_id" = $3`
		if sql != want {
			t.Errorf("sql = %q, want %q", sql, want)
		}
		if !reflect.DeepEqual(args, []any{"owner", 1, 2}) {
			t.Errorf("args = %v", args)
		}
	})

	t.Run("no primary key", func(t *testing.T) {
		_, _, err := buildUpdateQuery("audit_log", nil, map[string]any{}, map[string]any{"event": "x"})
		if !errors.Is(err, ErrNoPrimaryKey) {
			t.Errorf("expected ErrNoPrimaryKey, got %v", err)
		}
	})

	t.Run("only primary key fields in payload", func(t *testing.T) {
		_, _, err := buildUpdateQuery("users",
			[]string{"id"},
			map[string]any{"id": 7},
			map[string]any{"id": 7},
		)
		if !errors.Is(err, ErrNoUpdatableColumns) {
			t.Errorf("expected ErrNoUpdatableColumns, got %v", err)
		}
	})

	t.Run("missing primary key value", func(t *testing.T) {
		_, _, err := buildUpdateQuery("users",
			[]string{"id"},
			map[string]any{},
			map[string]any{"name": "Ada"},
		)
		if err == nil || errors.Is(err, ErrNoPrimaryKey) {
			t.Errorf("expected missing-column error, got %v", err)
		}
	})
}

func TestBuildDeleteQuery(t *testing.T) {
	t.Run("full key tuple", func(t *testing.T) {
		sql, args, err := buildDeleteQuery("users", []string{"id"}, map[string]any{"id": 7})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if sql != `DELETE FROM "users" WHERE "id" = $1` {
			t.Errorf("sql = %q", sql)
		}
		if !reflect.DeepEqual(args, []any{7}) {
			t.Errorf("args = %v", args)
		}
	})

	t.Run("no primary key", func(t *testing.T) {
		_, _, err := buildDeleteQuery("audit_log", nil, map[string]any{"id": 1})
		if !errors.Is(err, ErrNoPrimaryKey) {
			t.Errorf("expected ErrNoPrimaryKey, got %v", err)
		}
	})
}
