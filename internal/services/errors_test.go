package services

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestIsUniqueConstraintError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"gorm translated", fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey), true},
		{"postgres unique violation", &pgconn.PgError{Code: "23505"}, true},
		{"postgres foreign key violation", &pgconn.PgError{Code: "23503"}, false},
		{"mysql duplicate entry", fmt.Errorf("insert: %w", &mysql.MySQLError{Number: 1062}), true},
		{"mysql lock timeout", &mysql.MySQLError{Number: 1205}, false},
		{"sqlite unique", errors.New("UNIQUE constraint failed: provider_verifications.user_id"), true},
		{"unrelated message mentioning duplicate", errors.New("upload failed: duplicate object name"), false},
		{"unrelated message mentioning unique", errors.New("could not build unique key for bucket"), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, isUniqueConstraintError(tc.err))
		})
	}
}
