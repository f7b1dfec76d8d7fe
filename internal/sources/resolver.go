// Package sources resolves which external sources to query, and in what
// order, for a given user and library scope.
package sources

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Scope identifies a priority rule. LibraryID nil means the rule applies
// to every library of the given type for that user.
type Scope struct {
	UserID      string
	LibraryType string
	LibraryID   *int64
}

// Rule is a stored source ordering for one scope.
type Rule struct {
	ID        int64
	Scope     Scope
	Sources   []string // ordered, unique
	SearchAll bool     // query everything regardless of order
	UpdatedAt time.Time
}

// Resolution is the outcome of resolving a scope.
type Resolution struct {
	Sources   []string
	SearchAll bool
	// Found is false when no rule exists; the caller falls back to all
	// enabled sources in default order.
	Found bool
}

// Resolver resolves and manages source priority rules.
type Resolver struct {
	db *sql.DB
}

// NewResolver creates a resolver backed by the given database.
func NewResolver(db *sql.DB) *Resolver {
	return &Resolver{db: db}
}

// Resolve returns the ordered sources for (user, libraryType, library).
// The most specific rule wins: an exact-library rule beats a type-level
// rule. Absence of any rule is a valid, common state.
func (r *Resolver) Resolve(userID, libraryType string, libraryID *int64) (Resolution, error) {
	if libraryID != nil {
		rule, err := r.get(userID, libraryType, libraryID)
		if err != nil {
			return Resolution{}, err
		}
		if rule != nil {
			return Resolution{Sources: rule.Sources, SearchAll: rule.SearchAll, Found: true}, nil
		}
	}

	rule, err := r.get(userID, libraryType, nil)
	if err != nil {
		return Resolution{}, err
	}
	if rule != nil {
		return Resolution{Sources: rule.Sources, SearchAll: rule.SearchAll, Found: true}, nil
	}
	return Resolution{}, nil
}

// Upsert replaces any existing rule for the exact scope in one transaction.
func (r *Resolver) Upsert(scope Scope, sources []string, searchAll bool) error {
	seen := make(map[string]bool, len(sources))
	for _, s := range sources {
		if seen[s] {
			return fmt.Errorf("upsert rule: duplicate source %q", s)
		}
		seen[s] = true
	}

	data, err := json.Marshal(sources)
	if err != nil {
		return fmt.Errorf("encode sources: %w", err)
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(
		scopeWhere("DELETE FROM source_priority_rules WHERE "), scopeArgs(scope)...,
	); err != nil {
		return fmt.Errorf("delete existing rule: %w", err)
	}

	if _, err := tx.Exec(`
		INSERT INTO source_priority_rules (user_id, library_type, library_id, sources, search_all, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		scope.UserID, scope.LibraryType, scope.LibraryID, string(data), searchAll, time.Now(),
	); err != nil {
		return fmt.Errorf("insert rule: %w", err)
	}

	return tx.Commit()
}

// Delete removes the rule for the exact scope. No error if absent.
func (r *Resolver) Delete(scope Scope) error {
	if _, err := r.db.Exec(
		scopeWhere("DELETE FROM source_priority_rules WHERE "), scopeArgs(scope)...,
	); err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	return nil
}

func (r *Resolver) get(userID, libraryType string, libraryID *int64) (*Rule, error) {
	scope := Scope{UserID: userID, LibraryType: libraryType, LibraryID: libraryID}
	row := r.db.QueryRow(
		scopeWhere("SELECT id, sources, search_all, updated_at FROM source_priority_rules WHERE "),
		scopeArgs(scope)...,
	)

	rule := &Rule{Scope: scope}
	var data string
	err := row.Scan(&rule.ID, &data, &rule.SearchAll, &rule.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get rule: %w", err)
	}
	if err := json.Unmarshal([]byte(data), &rule.Sources); err != nil {
		return nil, fmt.Errorf("decode sources: %w", err)
	}
	return rule, nil
}

func scopeWhere(prefix string) string {
	return prefix + "user_id = ? AND library_type = ? AND COALESCE(library_id, 0) = COALESCE(?, 0)"
}

func scopeArgs(s Scope) []any {
	return []any{s.UserID, s.LibraryType, s.LibraryID}
}
