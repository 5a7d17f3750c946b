package db

import "testing"

func TestMigrationURL(t *testing.T) {
	cases := []struct{ in, want string }{
		{in: "postgres://u:p@localhost:5432/mrs?sslmode=disable", want: "pgx5://u:p@localhost:5432/mrs?sslmode=disable"},
		{in: "postgresql://u:p@localhost:5432/mrs", want: "pgx5://u:p@localhost:5432/mrs"},
		{in: "pgx5://u:p@localhost/mrs", want: "pgx5://u:p@localhost/mrs"},
	}
	for _, tc := range cases {
		if got := migrationURL(tc.in); got != tc.want {
			t.Fatalf("migrationURL(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) == 0 || len(entries)%2 != 0 {
		t.Fatalf("expected up/down pairs, got %d files", len(entries))
	}
}
