package sqlite

import (
	"database/sql"
	"encoding/json"
	"time"

	"interlink/internal/domain"
)

// ============================================================================
// Null Type Conversion Helpers
// ============================================================================

// nullToString safely converts sql.NullString to string
func nullToString(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// stringToNull safely converts string to sql.NullString
func stringToNull(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullToBool converts sql.NullInt64 to bool (0 = false, non-zero = true)
func nullToBool(ni sql.NullInt64) bool {
	return ni.Valid && ni.Int64 != 0
}

// boolToInt converts bool to the integer sqlite stores
func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// Times are stored as unix nanoseconds so they round-trip without a layout

// nullToTime converts nullable unix nanoseconds to time.Time (zero when NULL)
func nullToTime(ni sql.NullInt64) time.Time {
	if !ni.Valid {
		return time.Time{}
	}
	return time.Unix(0, ni.Int64)
}

// timeToNull converts time.Time to nullable unix nanoseconds (NULL when zero)
func timeToNull(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

// ============================================================================
// JSON Marshaling Helpers
// ============================================================================

// unmarshalJSONField safely unmarshals JSON from nullable string into target
func unmarshalJSONField(ns sql.NullString, target interface{}) error {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(ns.String), target)
}

// marshalToNull marshals v to nullable JSON string.
// Returns empty NullString for nil or empty interface slices.
func marshalToNull(v interface{}) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	if s, ok := v.([]domain.Interface); ok && len(s) == 0 {
		return sql.NullString{}, nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// ============================================================================
// Profile Row Scanner
// ============================================================================
//
// CRITICAL: Column order must match between profileColumns, scanArgs() and
// insertArgs().

const profileColumns = `id, name, kind, address, source, interfaces, reachable, checked_at, first_seen, last_seen`

// profileRow holds all columns from a profile query for scanning
type profileRow struct {
	ID             string
	Name           sql.NullString
	Kind           string
	Address        sql.NullString
	Source         sql.NullString
	InterfacesJSON sql.NullString
	Reachable      sql.NullInt64
	CheckedAt      sql.NullInt64
	FirstSeen      sql.NullInt64
	LastSeen       sql.NullInt64
}

// scanArgs returns pointers to all fields for sql.Scan()
func (r *profileRow) scanArgs() []interface{} {
	return []interface{}{
		&r.ID, &r.Name, &r.Kind, &r.Address, &r.Source,
		&r.InterfacesJSON, &r.Reachable, &r.CheckedAt, &r.FirstSeen, &r.LastSeen,
	}
}

// toDomain converts the row into a profile without credentials
func (r *profileRow) toDomain() (domain.SystemProfile, error) {
	p := domain.SystemProfile{
		ID:      r.ID,
		Name:    nullToString(r.Name),
		Kind:    domain.ParseSystemKind(r.Kind),
		Address: nullToString(r.Address),
		Source:  nullToString(r.Source),
		Reachability: domain.Reachability{
			Reachable: nullToBool(r.Reachable),
			CheckedAt: nullToTime(r.CheckedAt),
		},
		FirstSeen: nullToTime(r.FirstSeen),
		LastSeen:  nullToTime(r.LastSeen),
	}
	if err := unmarshalJSONField(r.InterfacesJSON, &p.Interfaces); err != nil {
		return domain.SystemProfile{}, err
	}
	return p, nil
}

// insertArgs returns the values for an insert in profileColumns order
func insertArgs(p domain.SystemProfile) ([]interface{}, error) {
	ifaces, err := marshalToNull(p.Interfaces)
	if err != nil {
		return nil, err
	}
	return []interface{}{
		p.ID,
		stringToNull(p.Name),
		string(p.Kind),
		stringToNull(p.Address),
		stringToNull(p.Source),
		ifaces,
		boolToInt(p.Reachability.Reachable),
		timeToNull(p.Reachability.CheckedAt),
		timeToNull(p.FirstSeen),
		timeToNull(p.LastSeen),
	}, nil
}
