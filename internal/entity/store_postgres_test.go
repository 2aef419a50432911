package entity

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

var rowColumns = []string{"id", "kind", "data", "unique_key", "is_deleted", "delete_reason", "deleted_by",
	"created_by", "created_at", "updated_by", "updated_at"}

func TestPostgresStore_Get(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := NewPostgresStore(db)
	ctx := context.Background()

	// Non-uuid ids never reach the database.
	_, err = store.Get(ctx, "currency", "not-a-uuid")
	require.ErrorIs(t, err, ErrNotFound)

	id := uuid.NewString()
	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE kind = $1 AND id = $2")).WithArgs("currency", id).
		WillReturnRows(sqlmock.NewRows(rowColumns).
			AddRow(id, "currency", []byte(`{"currency":"USD"}`), `["USD"]`, false, "", "", "u1", now, "u1", now))

	r, err := store.Get(ctx, "currency", id)
	require.NoError(t, err)
	require.Equal(t, id, r.ID)
	require.Equal(t, `["USD"]`, r.UniqueKey)
	require.JSONEq(t, `{"currency":"USD"}`, string(r.Data))

	missing := uuid.NewString()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE kind = $1 AND id = $2")).WithArgs("currency", missing).
		WillReturnRows(sqlmock.NewRows(rowColumns))
	_, err = store.Get(ctx, "currency", missing)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindLiveExcludesSelf(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := NewPostgresStore(db)

	self := uuid.NewString()
	mock.ExpectQuery(regexp.QuoteMeta("id::text <> $3")).WithArgs("currency", `["USD"]`, self).
		WillReturnRows(sqlmock.NewRows(rowColumns))

	_, err = store.FindLive(context.Background(), "currency", `["USD"]`, self)
	require.ErrorIs(t, err, ErrNotFound)

	// No key, no query.
	_, err = store.FindLive(context.Background(), "currency", "", "")
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InTxMapsUniqueViolation(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := NewPostgresStore(db)

	now := time.Now().UTC()
	row := Row{ID: uuid.NewString(), Kind: "currency", Data: []byte(`{"currency":"USD"}`), UniqueKey: `["USD"]`,
		Meta: Meta{CreatedBy: "u1", CreatedAt: now, UpdatedBy: "u1", UpdatedAt: now}}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO config_entities")).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: liveKeyConstraint})
	mock.ExpectRollback()

	err = store.InTx(context.Background(), func(ctx context.Context, tx Tx) error {
		return tx.Insert(ctx, row)
	})
	require.ErrorIs(t, err, ErrDuplicateKey)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateOfMissingRowIsNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := NewPostgresStore(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE config_entities")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err = store.InTx(context.Background(), func(ctx context.Context, tx Tx) error {
		return tx.Update(ctx, Row{ID: uuid.NewString(), Kind: "currency", Data: []byte(`{}`)})
	})
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_List(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := NewPostgresStore(db)

	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("LIMIT $2 OFFSET $3")).WithArgs("currency", DefaultPageSize, 0).
		WillReturnRows(sqlmock.NewRows(rowColumns).
			AddRow(uuid.NewString(), "currency", []byte(`{"currency":"USD"}`), `["USD"]`, false, "", "", "u1", now, "u1", now).
			AddRow(uuid.NewString(), "currency", []byte(`{"currency":"EUR"}`), `["EUR"]`, false, "", "", "u1", now, "u1", now))

	rows, err := store.List(context.Background(), "currency", Page{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateNeverTouchesDeletedRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := NewPostgresStore(db)

	id := uuid.NewString()
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("WHERE kind = $1 AND id = $2 AND NOT is_deleted")).
		WithArgs("currency", id, sqlmock.AnyArg(), sqlmock.AnyArg(), false, "", "", "u2", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err = store.InTx(context.Background(), func(ctx context.Context, tx Tx) error {
		return tx.Update(ctx, Row{ID: id, Kind: "currency", Data: []byte(`{}`), Meta: Meta{UpdatedBy: "u2"}})
	})
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
