package db

import (
	"context"
	"testing"
)

func TestTxFromContext_Nil(t *testing.T) {
	if tx := TxFromContext(context.Background()); tx != nil {
		t.Error("expected nil transaction on empty context")
	}
}

func TestTxFromContext_WrongType(t *testing.T) {
	ctx := context.WithValue(context.Background(), txKey{}, "not-a-tx")
	if tx := TxFromContext(ctx); tx != nil {
		t.Error("expected nil transaction for wrong value type")
	}
}

func TestConn_FallsBackToPool(t *testing.T) {
	if q := Conn(context.Background(), nil); q == nil {
		t.Error("expected the pool querier interface value")
	}
}
