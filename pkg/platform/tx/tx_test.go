package txcontext

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFrom(t *testing.T) {
	_, ok := From(context.Background())
	assert.False(t, ok)

	var nilTx *sql.Tx
	_, ok = From(WithTx(context.Background(), nilTx))
	assert.False(t, ok)

	tx := &sql.Tx{}
	got, ok := From(WithTx(context.Background(), tx))
	assert.True(t, ok)
	assert.Same(t, tx, got)
}

func TestPick(t *testing.T) {
	db := &sql.DB{}
	assert.Equal(t, Querier(db), Pick(context.Background(), db))

	tx := &sql.Tx{}
	assert.Equal(t, Querier(tx), Pick(WithTx(context.Background(), tx), db))
}
