package sqlhint

import "testing"

func TestIsModifying(t *testing.T) {
	cases := []struct {
		stmt string
		want bool
	}{
		{"INSERT INTO t (a) VALUES (1)", true},
		{"  insert into t values (1)", true},
		{"UPDATE t SET a = 1", true},
		{"delete from t", true},
		{"CREATE TABLE IF NOT EXISTS t (a)", true},
		{"Alter Table t add column b", true},
		{"DROP TABLE t", true},
		{"TRUNCATE t", true},
		{"  select 1", false},
		{"SELECT * FROM t", false},
		{"PRAGMA journal_mode", false},
		{"with x as (select 1) select * from x", false},
		{"", false},
		{"explain select 1", false},
	}

	for _, tc := range cases {
		if got := IsModifying(tc.stmt); got != tc.want {
			t.Errorf("IsModifying(%q) = %v, want %v", tc.stmt, got, tc.want)
		}
	}
}

func TestAction(t *testing.T) {
	cases := []struct {
		stmt string
		want string
	}{
		{"INSERT INTO t VALUES (1)", "insert"},
		{"update t set a=1", "update"},
		{"  DELETE FROM t", "delete"},
		{"create index i on t(a)", "create"},
		{"SELECT 1", "other"},
		{"begin", "other"},
	}

	for _, tc := range cases {
		if got := Action(tc.stmt); got != tc.want {
			t.Errorf("Action(%q) = %q, want %q", tc.stmt, got, tc.want)
		}
	}
}

func TestTable(t *testing.T) {
	cases := []struct {
		stmt string
		want string
	}{
		{"SELECT * FROM patients WHERE id=1", "patients"},
		{"INSERT INTO patients (first_name) VALUES ('a')", "patients"},
		{"UPDATE patients SET first_name='b' WHERE id=1", "patients"},
		{"DELETE FROM visits", "visits"},
		{"PRAGMA journal_mode", ""},
		{"SELECT 1", ""},
		// Known heuristic limitation: first match wins in subqueries.
		{"SELECT * FROM a WHERE x IN (SELECT x FROM b)", "a"},
	}

	for _, tc := range cases {
		if got := Table(tc.stmt); got != tc.want {
			t.Errorf("Table(%q) = %q, want %q", tc.stmt, got, tc.want)
		}
	}
}
