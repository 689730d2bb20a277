package wire

import (
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgproto3"
)

func TestServerError_Classification(t *testing.T) {
	unique := NewServerError(&pgproto3.ErrorResponse{Severity: "ERROR", Code: pgerrcode.UniqueViolation, Message: "duplicate key"})
	if !unique.IsUniqueViolation() {
		t.Errorf("expected IsUniqueViolation for code %s", unique.Code)
	}
	if !unique.IsClass(pgerrcode.IntegrityConstraintViolation[:2]) {
		t.Errorf("expected IsClass(23) for code %s", unique.Code)
	}

	serialization := NewServerError(&pgproto3.ErrorResponse{Severity: "ERROR", Code: pgerrcode.SerializationFailure})
	if !serialization.IsSerializationFailure() {
		t.Errorf("expected IsSerializationFailure for code %s", serialization.Code)
	}
	if serialization.IsUniqueViolation() {
		t.Error("serialization failure misclassified as unique violation")
	}

	undefined := NewServerError(&pgproto3.ErrorResponse{Severity: "ERROR", Code: pgerrcode.UndefinedTable})
	if !undefined.IsUndefinedTable() {
		t.Errorf("expected IsUndefinedTable for code %s", undefined.Code)
	}
}
