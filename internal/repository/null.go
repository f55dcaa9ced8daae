package repository

import "database/sql"

// nullStringPtr は*stringをsql.NullStringに変換する。nilと空文字列はNULLとして扱う。
func nullStringPtr(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// nullStringToPtr はsql.NullStringを*stringに変換する。
func nullStringToPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func nullInt64Ptr(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullInt64ToPtr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

// nonNil はnilスライスを空スライスに置き換える。
func nonNil(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}
